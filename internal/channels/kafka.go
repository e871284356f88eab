package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/config"
)

// DefaultEventTopic carries office events when no topic is configured.
const DefaultEventTopic = "suzieq.office.events"

// OfficeEvent is the record published for each message.
type OfficeEvent struct {
	Target    string    `json:"target,omitempty"`
	Thread    string    `json:"thread,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// messageWriter is the part of kafka.Writer the channel uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes messages as JSON events to a topic.
type KafkaChannel struct {
	writer messageWriter
	topic  string
}

// NewKafkaChannel creates the channel. It is unconfigured unless enabled
// with at least one broker.
func NewKafkaChannel(cfg config.KafkaConfig) *KafkaChannel {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultEventTopic
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return &KafkaChannel{topic: topic}
	}
	return &KafkaChannel{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *KafkaChannel) Name() string     { return "kafka" }
func (k *KafkaChannel) Configured() bool { return k.writer != nil }

// Close flushes and closes the writer.
func (k *KafkaChannel) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Send publishes msg keyed by its target so one target's events stay
// ordered.
func (k *KafkaChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if k.writer == nil {
		return nil
	}
	ev := OfficeEvent{Target: msg.ChatID, Thread: msg.ThreadID, Content: msg.Content, Timestamp: time.Now().UTC()}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ChatID),
		Value: value,
		Time:  ev.Timestamp,
	}); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", k.topic, err)
	}
	return nil
}
