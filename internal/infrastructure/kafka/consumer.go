package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles one decoded event
type MessageHandler func(ctx context.Context, event store.Event) error

// MessageReader is the part of *kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrUndecodable marks a message whose value is not a stored event
var ErrUndecodable = errors.New("undecodable message")

// Consumer reads events from a topic and commits each offset after its
// handler succeeded, so delivery is at least once.
type Consumer struct {
	reader MessageReader
	poison func(error) bool
	log    zerolog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPoison marks handler errors that retrying cannot fix. Such messages
// are logged and committed like undecodable ones.
func WithPoison(isPoison func(error) bool) ConsumerOption {
	return func(c *Consumer) { c.poison = isPoison }
}

func NewConsumer(brokers []string, topic, groupID string, log zerolog.Logger, opts ...ConsumerOption) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, log, opts...)
}

// NewConsumerWithReader wraps an existing reader
func NewConsumerWithReader(r MessageReader, log zerolog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader: r,
		poison: func(error) bool { return false },
		log:    log.With().Str("component", "kafka_consumer").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume runs until ctx is cancelled. Poison messages are logged and
// committed so one bad message cannot stall the partition. Any other handler
// failure stops Consume without committing; the group redelivers the message
// from the last committed offset once the consumer restarts.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error().Err(err).Msg("failed to fetch message")
			continue
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// handle returns nil when the message may be committed
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	var event store.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.log.Error().
			Err(fmt.Errorf("%w: %v", ErrUndecodable, err)).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("skipping undecodable message")
		return nil
	}

	err := handler(ctx, event)
	if err == nil {
		return nil
	}
	if c.poison(err) {
		c.log.Error().
			Err(err).
			Str("event_type", event.EventType).
			Str("aggregate_id", event.AggregateID).
			Int("version", event.Version).
			Int64("offset", msg.Offset).
			Msg("skipping poison message")
		return nil
	}
	return fmt.Errorf("handle offset %d of partition %d: %w", msg.Offset, msg.Partition, err)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Dispatcher delivers one message to every subscribed listener
type Dispatcher interface {
	Dispatch(ctx context.Context, msg eventbus.Message) error
}

// DispatchTo hands consumed events to d without a typed payload; listeners
// decode the stored data themselves.
func DispatchTo(d Dispatcher) MessageHandler {
	return func(ctx context.Context, event store.Event) error {
		if err := d.Dispatch(ctx, eventbus.Message{Event: event}); err != nil {
			return fmt.Errorf("dispatch %s v%d of %s: %w", event.EventType, event.Version, event.AggregateID, err)
		}
		return nil
	}
}
