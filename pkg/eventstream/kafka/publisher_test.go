package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chatmerge/pkg/eventstream"
	"github.com/papercomputeco/chatmerge/pkg/eventstream/kafka"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

var _ = Describe("Publisher", func() {
	var (
		writer *fakeWriter
		pub    *kafka.Publisher
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		writer = &fakeWriter{}

		var err error
		pub, err = kafka.NewPublisher(kafka.Config{Writer: writer, Topic: "events"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires brokers when no writer is injected", func() {
		_, err := kafka.NewPublisher(kafka.Config{Brokers: " , "})
		Expect(err).To(MatchError(ContainSubstring("at least one broker")))
	})

	It("builds a writer from a broker list", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: "localhost:9092, localhost:9093"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("keys turn events by conversation", func() {
		event := eventstream.NewTurnPersistedEvent()
		event.ConversationID = "chat-1"
		event.AssistantTurnID = "turn-2"

		Expect(pub.PublishTurn(ctx, event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))

		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("chat-1"))
		Expect(header(msg, "event_type")).To(Equal(eventstream.EventTypeTurnPersisted))
		Expect(header(msg, "event_id")).To(Equal(event.EventID))

		var got eventstream.TurnPersistedEvent
		Expect(json.Unmarshal(msg.Value, &got)).To(Succeed())
		Expect(got.AssistantTurnID).To(Equal("turn-2"))
	})

	It("keys merge events by the merged conversation", func() {
		event := eventstream.NewMergeCompletedEvent()
		event.ResultChatID = "merged"
		event.SourceChatIDs = []string{"a", "b"}

		Expect(pub.PublishMerge(ctx, event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))
		Expect(string(writer.messages[0].Key)).To(Equal("merged"))
		Expect(header(writer.messages[0], "event_type")).To(Equal(eventstream.EventTypeMergeCompleted))
	})

	It("rejects nil events", func() {
		Expect(pub.PublishTurn(ctx, nil)).To(MatchError(eventstream.ErrNilTurnEvent))
		Expect(pub.PublishMerge(ctx, nil)).To(MatchError(eventstream.ErrNilMergeEvent))
		Expect(writer.messages).To(BeEmpty())
	})

	It("wraps writer errors", func() {
		boom := errors.New("broker down")
		writer.err = boom

		err := pub.PublishTurn(ctx, eventstream.NewTurnPersistedEvent())
		Expect(err).To(MatchError(boom))
		Expect(err.Error()).To(ContainSubstring("events"))
	})

	It("closes the writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
