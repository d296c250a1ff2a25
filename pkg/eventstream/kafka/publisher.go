// Package kafka publishes chatmerge domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chatmerge/pkg/eventstream"
	"github.com/papercomputeco/chatmerge/pkg/logger"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "chatmerge.events"

// MessageWriter is the subset of *kafka.Writer the publisher depends on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	// Brokers is a comma-separated list of host:port addresses.
	Brokers string
	Topic   string

	// Writer overrides the kafka writer built from Brokers.
	Writer MessageWriter

	Logger *slog.Logger
}

// Publisher writes events as JSON messages keyed by conversation ID so that
// events for one conversation land on the same partition.
type Publisher struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a Kafka publisher.
func NewPublisher(c Config) (*Publisher, error) {
	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	writer := c.Writer
	if writer == nil {
		brokers := splitBrokers(c.Brokers)
		if len(brokers) == 0 {
			return nil, errors.New("kafka publisher requires at least one broker")
		}

		writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}

	return &Publisher{
		writer: writer,
		topic:  topic,
		logger: log,
	}, nil
}

// PublishTurn writes a turn persisted event.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	return p.publish(ctx, event.ConversationID, event.Envelope, event)
}

// PublishMerge writes a merge completed event keyed by the merged conversation.
func (p *Publisher) PublishMerge(ctx context.Context, event *eventstream.MergeCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilMergeEvent
	}

	return p.publish(ctx, event.ResultChatID, event.Envelope, event)
}

func (p *Publisher) publish(ctx context.Context, key string, env eventstream.Envelope, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.EventType, err)
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.EventType, p.topic, err)
	}

	p.logger.Debug("published event",
		"topic", p.topic,
		"event_type", env.EventType,
		"event_id", env.EventID,
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(s string) []string {
	var brokers []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
