package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher receives events after they are committed
type Publisher interface {
	Publish(ctx context.Context, msgs ...eventbus.Message)
}

// Metrics records repository activity
type Metrics interface {
	LoadDuration(aggregateType string, d time.Duration)
	SaveDuration(aggregateType string, d time.Duration)
	EventsAppended(aggregateType string, n int)
	ConcurrencyConflict(aggregateType string)
	SnapshotWritten(aggregateType string)
	SnapshotDecodeFailed(aggregateType string)
	SnapshotWriteFailed(aggregateType string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) LoadDuration(string, time.Duration) {}
func (NopMetrics) SaveDuration(string, time.Duration) {}
func (NopMetrics) EventsAppended(string, int)         {}
func (NopMetrics) ConcurrencyConflict(string)         {}
func (NopMetrics) SnapshotWritten(string)             {}
func (NopMetrics) SnapshotDecodeFailed(string)        {}
func (NopMetrics) SnapshotWriteFailed(string)         {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...eventbus.Message) {}

// Repository loads aggregates from snapshots plus events and saves their pending events
type Repository[T Aggregate] struct {
	aggregateType string
	newAggregate  func() T

	events    store.EventStore
	snapshots store.SnapshotStore
	tx        store.Transactor
	trigger   SnapshotTrigger
	publisher Publisher
	metrics   Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Repository
type Option func(*options)

type options struct {
	tx        store.Transactor
	trigger   SnapshotTrigger
	publisher Publisher
	metrics   Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// WithTransactor makes the append and the snapshot write one unit of work
func WithTransactor(tx store.Transactor) Option {
	return func(o *options) { o.tx = tx }
}

// WithSnapshotTrigger replaces the default EventCountTrigger
func WithSnapshotTrigger(t SnapshotTrigger) Option {
	return func(o *options) { o.trigger = t }
}

// WithPublisher sets where committed events go
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock overrides the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewRepository creates a repository for one aggregate type.
// newAggregate must return a fresh zero-state aggregate on every call.
func NewRepository[T Aggregate](
	aggregateType string,
	newAggregate func() T,
	events store.EventStore,
	snapshots store.SnapshotStore,
	opts ...Option,
) *Repository[T] {
	o := options{
		tx:        store.NopTransactor{},
		trigger:   EventCountTrigger{Threshold: DefaultSnapshotThreshold},
		publisher: nopPublisher{},
		metrics:   NopMetrics{},
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Repository[T]{
		aggregateType: aggregateType,
		newAggregate:  newAggregate,
		events:        events,
		snapshots:     snapshots,
		tx:            o.tx,
		trigger:       o.trigger,
		publisher:     o.publisher,
		metrics:       o.metrics,
		log:           o.log.With().Str("component", "repository").Str("aggregate_type", aggregateType).Logger(),
		now:           o.now,
	}
}

// Load rebuilds the aggregate from its latest snapshot and the events after it.
// An unreadable snapshot is logged and the full stream is replayed instead.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	start := time.Now()
	defer func() { r.metrics.LoadDuration(r.aggregateType, time.Since(start)) }()

	var zero T
	agg := r.newAggregate()

	snapshot, err := r.snapshots.ReadLatest(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to read snapshot of %s %s: %w", r.aggregateType, id, err)
	}
	if snapshot != nil {
		if err := restore(agg, snapshot); err != nil {
			r.metrics.SnapshotDecodeFailed(r.aggregateType)
			r.log.Warn().
				Err(err).
				Str("aggregate_id", id).
				Int("snapshot_version", snapshot.Version).
				Msg("ignoring unreadable snapshot, replaying full stream")
			agg = r.newAggregate()
		}
	}

	events, err := r.events.ReadFrom(ctx, id, agg.GetVersion())
	if err != nil {
		return zero, fmt.Errorf("failed to read events of %s %s: %w", r.aggregateType, id, err)
	}
	if agg.GetVersion() < 0 && len(events) == 0 {
		return zero, fmt.Errorf("%s %s: %w", r.aggregateType, id, ErrAggregateNotFound)
	}

	root := agg.root()
	for _, e := range events {
		if want := agg.GetVersion() + 1; e.Version != want {
			return zero, fmt.Errorf("%s %s: %w: expected version %d, got %d",
				r.aggregateType, id, ErrVersionGap, want, e.Version)
		}
		if err := agg.ApplyEvent(e); err != nil {
			return zero, fmt.Errorf("failed to apply %s v%d to %s %s: %w",
				e.EventType, e.Version, r.aggregateType, id, err)
		}
		root.applied++
	}

	return agg, nil
}

func restore[T Aggregate](agg T, snapshot *store.Snapshot) error {
	if err := json.Unmarshal(snapshot.State, agg); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotDecode, err)
	}
	if got := agg.GetID(); got != snapshot.AggregateID {
		return fmt.Errorf("%w: state belongs to %q", ErrSnapshotDecode, got)
	}
	agg.root().restore(snapshot.Version)
	return nil
}

// Save appends the pending events at the aggregate's version, snapshots when the
// trigger fires, and publishes the events once both are committed.
// A stale version fails with store.ErrConcurrencyConflict and nothing is published.
//
// With an atomic transactor a failed snapshot write rolls the append back and
// fails the save. Otherwise the events are already stored, so the failure is
// logged and counted and the save completes; the next save retries the snapshot.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	pending := agg.Uncommitted()
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { r.metrics.SaveDuration(r.aggregateType, time.Since(start)) }()

	root := agg.root()
	id := agg.GetID()
	expected := agg.GetVersion()
	newVersion := expected + len(pending)
	now := r.now()

	events := make([]store.Event, len(pending))
	msgs := make([]eventbus.Message, len(pending))
	for i, p := range pending {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", p.EventType(), err)
		}
		events[i] = store.Event{
			ID:            uuid.NewString(),
			AggregateID:   id,
			AggregateType: r.aggregateType,
			EventType:     p.EventType(),
			Data:          data,
			Timestamp:     now,
			Version:       expected + 1 + i,
		}
		msgs[i] = eventbus.Message{Event: events[i], Payload: p}
	}

	var snapshot *store.Snapshot
	if r.trigger.ShouldSnapshot(newVersion - root.lastSnapshotVersion()) {
		state, err := json.Marshal(agg)
		if err != nil {
			r.log.Warn().Err(err).Str("aggregate_id", id).Msg("skipping snapshot, state not encodable")
		} else {
			snapshot = &store.Snapshot{
				AggregateID:   id,
				AggregateType: r.aggregateType,
				Version:       newVersion,
				State:         state,
				CreatedAt:     now,
			}
		}
	}

	var snapshotErr error
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		if err := r.events.Append(ctx, id, expected, events); err != nil {
			return err
		}
		if snapshot != nil {
			if err := r.snapshots.Write(ctx, snapshot); err != nil {
				if r.tx.Atomic() {
					return err
				}
				snapshotErr = err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(r.aggregateType)
		}
		return fmt.Errorf("failed to save %s %s: %w", r.aggregateType, id, err)
	}

	r.metrics.EventsAppended(r.aggregateType, len(events))
	switch {
	case snapshotErr != nil:
		snapshot = nil
		r.metrics.SnapshotWriteFailed(r.aggregateType)
		r.log.Warn().Err(snapshotErr).Str("aggregate_id", id).Int("version", newVersion).Msg("snapshot write failed after append")
	case snapshot != nil:
		r.metrics.SnapshotWritten(r.aggregateType)
		r.log.Debug().Str("aggregate_id", id).Int("version", newVersion).Msg("snapshot written")
	}

	r.publisher.Publish(ctx, msgs...)
	root.commit(newVersion, snapshot != nil)
	return nil
}
