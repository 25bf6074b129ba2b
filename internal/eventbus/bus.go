// Package eventbus delivers committed events to in-process listeners.
//
// Delivery is synchronous and ordered: Publish hands each message to every
// listener in subscription order before moving to the next message. A listener
// failure is retried a bounded number of times and then logged; it never
// reaches the publisher.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/rs/zerolog"
)

// Message is a committed event plus its decoded payload.
// Payload may be nil when the message was rebuilt from storage or a broker;
// listeners decode Event.Data in that case.
type Message struct {
	Event   store.Event
	Payload any
}

// Listener handles one message at a time.
type Listener interface {
	Name() string
	Handle(ctx context.Context, msg Message) error
}

// Bus fans messages out to subscribed listeners.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener

	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithRetry sets how many times a failing listener is tried per message and
// the pause between tries.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(b *Bus) {
		if attempts < 1 {
			attempts = 1
		}
		b.attempts = attempts
		b.backoff = backoff
	}
}

// New creates a Bus. Listeners are tried 3 times by default.
func New(log zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		attempts: 3,
		backoff:  10 * time.Millisecond,
		log:      log.With().Str("component", "eventbus").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe appends l to the delivery order.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish delivers messages in order. Listener failures are logged.
func (b *Bus) Publish(ctx context.Context, msgs ...Message) {
	for _, msg := range msgs {
		_ = b.Dispatch(ctx, msg)
	}
}

// Dispatch delivers one message to every listener and returns the joined
// failures of listeners that exhausted their retries.
func (b *Bus) Dispatch(ctx context.Context, msg Message) error {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := b.deliver(ctx, l, msg); err != nil {
			b.log.Error().
				Err(err).
				Str("listener", l.Name()).
				Str("event_type", msg.Event.EventType).
				Str("aggregate_id", msg.Event.AggregateID).
				Int("version", msg.Event.Version).
				Msg("listener failed, giving up on message")
			errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, l Listener, msg Message) error {
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if err = l.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == b.attempts {
			break
		}
		b.log.Warn().
			Err(err).
			Str("listener", l.Name()).
			Str("event_type", msg.Event.EventType).
			Int("attempt", attempt).
			Msg("listener failed, retrying")

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(b.backoff):
		}
	}
	return err
}
