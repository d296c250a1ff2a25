package chroma_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	"github.com/papercomputeco/chatmerge/pkg/vector/chroma"
	"github.com/papercomputeco/chatmerge/pkg/vector/vectortest"
)

var _ = Describe("Driver", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = logger.Nop()
	})

	Describe("against a fake server", func() {
		var (
			fake   *fakeChroma
			server *httptest.Server
		)

		BeforeEach(func() {
			fake, server = newFakeChroma()
			DeferCleanup(server.Close)
		})

		vectortest.DescribeDriver("chroma", func() vector.Driver {
			driver, err := chroma.NewDriver(chroma.Config{URL: server.URL, APIKey: "tok"}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			return driver
		})

		It("creates one cosine collection per namespace", func() {
			driver, err := chroma.NewDriver(chroma.Config{URL: server.URL, CollectionPrefix: "cm"}, log)
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.Upsert(context.Background(), "chat-1", []vector.Record{
				{ID: "a", Values: []float32{1, 0}, Metadata: vector.Metadata{"content": "a"}},
			})).To(Succeed())

			meta, ok := fake.collectionMetadata("cm-chat-1")
			Expect(ok).To(BeTrue())
			Expect(meta).To(HaveKeyWithValue("hnsw:space", "cosine"))
			Expect(driver.CollectionName("chat-1")).To(Equal("cm-chat-1"))
		})

		It("sends the api key", func() {
			driver, err := chroma.NewDriver(chroma.Config{URL: server.URL, APIKey: "tok"}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.EnsureReady(context.Background())).To(Succeed())
			Expect(fake.seenTokens()).To(ContainElement("tok"))
		})
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})
	})

	Describe("EnsureReady", func() {
		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= 2 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.EnsureReady(context.Background())).To(Succeed())
			Expect(attempts.Load()).To(Equal(int32(3)))
		})

		It("should return an error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).NotTo(HaveOccurred())

			err = driver.EnsureReady(context.Background())
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
		})
	})
})
