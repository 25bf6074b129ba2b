package kafka

import (
	"context"
	"time"

	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ForwarderName identifies the forwarder in logs and metrics
const ForwarderName = "kafka-forwarder"

// MessageWriter is the part of *kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer forwards committed events to a topic, keyed by aggregate id so
// every stream stays ordered within its partition. It is an eventbus.Listener.
type Producer struct {
	writer MessageWriter
	log    zerolog.Logger
}

func NewProducer(brokers []string, topic string, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return NewProducerWithWriter(writer, log)
}

// NewProducerWithWriter wraps an existing writer
func NewProducerWithWriter(w MessageWriter, log zerolog.Logger) *Producer {
	return &Producer{
		writer: w,
		log:    log.With().Str("component", "kafka_producer").Logger(),
	}
}

func (p *Producer) Name() string { return ForwarderName }

// Handle writes the stored event envelope; the typed payload is not sent.
func (p *Producer) Handle(ctx context.Context, msg eventbus.Message) error {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Event.AggregateID),
		Value: data,
		Time:  msg.Event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.Event.EventType)},
			{Key: "aggregate_type", Value: []byte(msg.Event.AggregateType)},
		},
	})
	if err != nil {
		return err
	}

	p.log.Debug().
		Str("event_type", msg.Event.EventType).
		Str("aggregate_id", msg.Event.AggregateID).
		Int("version", msg.Event.Version).
		Msg("event forwarded")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
