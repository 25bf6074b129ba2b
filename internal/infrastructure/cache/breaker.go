package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around a Store.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
}

// BreakerStore stops calling an unhealthy backend for a while. Misses are not failures.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewBreakerStore(next Store, cfg BreakerConfig, log zerolog.Logger) *BreakerStore {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("cache breaker state changed")
		},
	}
	return &BreakerStore{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Get(ctx, key)
	})
	return v, b.wrap(err)
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return b.wrap(err)
}

func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Delete(ctx, keys...)
	})
	return b.wrap(err)
}

// BreakerOpen is the State of a breaker that rejects calls
var BreakerOpen = gobreaker.StateOpen.String()

// State reports the breaker state for health checks.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) wrap(err error) error {
	if err == nil || errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrBackend) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackend, err)
}
