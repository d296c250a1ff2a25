package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/eventstream"
	"github.com/papercomputeco/chatmerge/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	var p *nop.Publisher

	BeforeEach(func() {
		p = nop.NewPublisher()
	})

	It("rejects nil events", func() {
		Expect(p.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
		Expect(p.PublishMerge(context.Background(), nil)).To(MatchError(eventstream.ErrNilMergeEvent))
	})

	It("accepts events", func() {
		Expect(p.PublishTurn(context.Background(), eventstream.NewTurnPersistedEvent())).To(Succeed())
		Expect(p.PublishMerge(context.Background(), eventstream.NewMergeCompletedEvent())).To(Succeed())
	})

	It("closes successfully", func() {
		Expect(p.Close()).To(Succeed())
	})
})
