package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/storage/inmemory"
	"github.com/papercomputeco/chatmerge/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver("in-memory", func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies that callers cannot mutate", func() {
		ctx := context.Background()
		driver := inmemory.NewDriver()

		c := &storage.Conversation{Title: "original", Provider: "openai", Model: "gpt-4o"}
		Expect(driver.CreateConversation(ctx, c)).To(Succeed())

		got, err := driver.GetConversation(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		got.Title = "mutated"

		again, err := driver.GetConversation(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Title).To(Equal("original"))
	})
})
