package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/goccy/go-json"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrSerialization is returned when a computed value cannot be encoded
var ErrSerialization = errors.New("cache serialization failed")

const tagKeyPrefix = "tag:"

// DefaultBeta weighs early recomputation; 0 disables it
const DefaultBeta = 1.0

// DefaultFlightTimeout bounds a shared computation once its first caller is gone
const DefaultFlightTimeout = 30 * time.Second

// entry is the stored envelope around a cached value
type entry struct {
	Value     json.RawMessage   `json:"v"`
	Tags      map[string]string `json:"t,omitempty"` // tag -> version at compute time
	CreatedAt time.Time         `json:"c"`
	Delta     time.Duration     `json:"d"` // compute duration
	ExpiresAt time.Time         `json:"e"`
}

// ComputeFunc produces the value for a missing or stale key.
type ComputeFunc func(ctx context.Context) (any, error)

// Metrics records cache outcomes.
type Metrics interface {
	Hit()
	Miss()
	EarlyRecompute()
	Computed(d time.Duration)
	BackendError()
	DecodeError()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) Hit()                   {}
func (NopMetrics) Miss()                  {}
func (NopMetrics) EarlyRecompute()        {}
func (NopMetrics) Computed(time.Duration) {}
func (NopMetrics) BackendError()          {}
func (NopMetrics) DecodeError()           {}

// Cache computes values at most once per key at a time, recomputes them
// probabilistically before they expire (XFetch), and drops them when one of
// their tags is invalidated. Backend failures degrade to computing directly.
type Cache struct {
	store   Store
	group   singleflight.Group
	beta    float64
	flight  time.Duration
	now     func() time.Time
	random  func() float64 // in (0, 1]
	metrics Metrics
	log     zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithBeta sets the XFetch weight. Larger values recompute earlier.
func WithBeta(beta float64) Option {
	return func(c *Cache) { c.beta = beta }
}

// WithFlightTimeout bounds a computation shared by concurrent callers.
func WithFlightTimeout(d time.Duration) Option {
	return func(c *Cache) { c.flight = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRandom replaces the (0, 1] source used by XFetch.
func WithRandom(random func() float64) Option {
	return func(c *Cache) { c.random = random }
}

func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func New(store Store, log zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		beta:    DefaultBeta,
		flight:  DefaultFlightTimeout,
		now:     time.Now,
		random:  func() float64 { return 1 - rand.Float64() },
		metrics: NopMetrics{},
		log:     log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the encoded value for key, computing and storing it when missing,
// expired, invalidated through one of its tags, or picked for early recomputation.
func (c *Cache) Get(ctx context.Context, key string, tags []string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	seen, err := c.lookup(ctx, key)
	if err != nil {
		c.backendFailed(err, key)
		return c.computeUncached(ctx, compute)
	}
	if seen != nil {
		if !c.expiresEarly(seen) {
			c.metrics.Hit()
			return seen.Value, nil
		}
		c.metrics.EarlyRecompute()
	} else {
		c.metrics.Miss()
	}

	// the flight outlives the caller that started it; every caller waits on
	// its own context only
	flight := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flight)
		defer cancel()

		// another flight may have stored a fresher entry while this caller waited
		if fresh, err := c.lookup(fctx, key); err == nil && fresh != nil &&
			(seen == nil || fresh.CreatedAt.After(seen.CreatedAt)) {
			return []byte(fresh.Value), nil
		}
		return c.recompute(fctx, key, tags, ttl, compute)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch is Get with the value decoded into T. A cached value that no longer
// decodes into T is treated as a miss.
func Fetch[T any](ctx context.Context, c *Cache, key string, tags []string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var out T
	raw, err := c.Get(ctx, key, tags, ttl, func(ctx context.Context) (any, error) {
		return compute(ctx)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.metrics.DecodeError()
		c.log.Warn().Err(err).Str("key", key).Msg("cached value does not decode, recomputing")
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.backendFailed(delErr, key)
		}
		return compute(ctx)
	}
	return out, nil
}

// InvalidateTags makes every entry carrying one of tags stale. Each tag is
// attempted even when an earlier one fails; failures are returned joined.
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) error {
	var errs []error
	for _, tag := range tags {
		version, err := gonanoid.New()
		if err == nil {
			err = c.store.Set(ctx, tagKeyPrefix+tag, []byte(version), 0)
		}
		if err != nil {
			c.backendFailed(err, tagKeyPrefix+tag)
			errs = append(errs, fmt.Errorf("invalidate tag %s: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}

// lookup returns nil, nil for a miss, an expired entry, an undecodable entry
// or an entry whose tags moved on.
func (c *Cache) lookup(ctx context.Context, key string) (*entry, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.metrics.DecodeError()
		c.log.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		return nil, nil
	}
	if !c.now().Before(e.ExpiresAt) {
		return nil, nil
	}

	for tag, version := range e.Tags {
		current, err := c.store.Get(ctx, tagKeyPrefix+tag)
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if string(current) != version {
			return nil, nil
		}
	}
	return &e, nil
}

// expiresEarly implements XFetch: now - delta*beta*ln(rand) >= expiry
func (c *Cache) expiresEarly(e *entry) bool {
	if c.beta <= 0 || e.Delta <= 0 {
		return false
	}
	gap := -float64(e.Delta) * c.beta * math.Log(c.random())
	return !c.now().Add(time.Duration(gap)).Before(e.ExpiresAt)
}

func (c *Cache) recompute(ctx context.Context, key string, tags []string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	// tag versions are read before computing so an invalidation racing the
	// computation leaves the stored entry stale
	versions, err := c.tagVersions(ctx, tags)
	if err != nil {
		c.backendFailed(err, key)
		return c.computeUncached(ctx, compute)
	}

	start := c.now()
	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	delta := c.now().Sub(start)
	c.metrics.Computed(delta)

	value, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSerialization, key, err)
	}

	created := c.now()
	raw, err := json.Marshal(entry{
		Value:     value,
		Tags:      versions,
		CreatedAt: created,
		Delta:     delta,
		ExpiresAt: created.Add(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSerialization, key, err)
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.backendFailed(err, key)
	}
	return value, nil
}

func (c *Cache) computeUncached(ctx context.Context, compute ComputeFunc) ([]byte, error) {
	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return value, nil
}

// tagVersions returns the current version of each tag, creating missing ones
func (c *Cache) tagVersions(ctx context.Context, tags []string) (map[string]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	versions := make(map[string]string, len(tags))
	for _, tag := range tags {
		raw, err := c.store.Get(ctx, tagKeyPrefix+tag)
		switch {
		case err == nil:
			versions[tag] = string(raw)
		case errors.Is(err, ErrCacheMiss):
			version, err := gonanoid.New()
			if err != nil {
				return nil, err
			}
			if err := c.store.Set(ctx, tagKeyPrefix+tag, []byte(version), 0); err != nil {
				return nil, err
			}
			versions[tag] = version
		default:
			return nil, err
		}
	}
	return versions, nil
}

func (c *Cache) backendFailed(err error, key string) {
	c.metrics.BackendError()
	c.log.Warn().Err(err).Str("key", key).Msg("cache backend unavailable, computing directly")
}
