package eventbus

import (
	"context"
	"time"
)

// Metrics records listener outcomes.
type Metrics interface {
	ListenerHandled(listener, eventType string, d time.Duration, err error)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ListenerHandled(string, string, time.Duration, error) {}

type instrumented struct {
	Listener
	metrics Metrics
}

// Instrument wraps l so every Handle call is timed and counted.
func Instrument(l Listener, m Metrics) Listener {
	if m == nil {
		return l
	}
	return instrumented{Listener: l, metrics: m}
}

func (i instrumented) Handle(ctx context.Context, msg Message) error {
	start := time.Now()
	err := i.Listener.Handle(ctx, msg)
	i.metrics.ListenerHandled(i.Name(), msg.Event.EventType, time.Since(start), err)
	return err
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc struct {
	ID string
	Fn func(ctx context.Context, msg Message) error
}

func (f ListenerFunc) Name() string { return f.ID }

func (f ListenerFunc) Handle(ctx context.Context, msg Message) error { return f.Fn(ctx, msg) }
