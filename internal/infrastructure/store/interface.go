package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row or stream does not exist
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when the stream head moved past the expected version
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidBatch is returned when appended events are not a contiguous run for one aggregate
	ErrInvalidBatch = errors.New("invalid event batch")
)

// EventStore is an append-only log of events per aggregate.
type EventStore interface {
	// Append writes events with versions expectedVersion+1, expectedVersion+2, ...
	// It fails with ErrConcurrencyConflict when the stream head is not expectedVersion.
	// Use -1 for a stream that must not exist yet.
	Append(ctx context.Context, aggregateID string, expectedVersion int, events []Event) error

	// ReadFrom returns the events with version > afterVersion in ascending order.
	ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]Event, error)

	// ReadAll returns every stored event in append order.
	ReadAll(ctx context.Context) ([]Event, error)
}

// SnapshotStore keeps the latest serialized state per aggregate.
type SnapshotStore interface {
	// ReadLatest returns nil, nil when no snapshot exists.
	ReadLatest(ctx context.Context, aggregateID string) (*Snapshot, error)
	Write(ctx context.Context, snapshot *Snapshot) error
}

// Transactor runs fn in a unit of work shared by the stores that support it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Atomic reports whether an error returned by fn undoes the writes fn made
	Atomic() bool
}

// NopTransactor runs fn directly, for backends without transactions.
// Writes made by fn before it fails stay committed.
type NopTransactor struct{}

func (NopTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (NopTransactor) Atomic() bool { return false }

// checkBatch verifies the events belong to aggregateID and continue the stream at expectedVersion+1.
func checkBatch(aggregateID string, expectedVersion int, events []Event) error {
	if expectedVersion < -1 {
		return fmt.Errorf("%w: expected version %d", ErrInvalidBatch, expectedVersion)
	}
	for i, e := range events {
		if e.AggregateID != aggregateID {
			return fmt.Errorf("%w: event %s belongs to %s, not %s", ErrInvalidBatch, e.ID, e.AggregateID, aggregateID)
		}
		if want := expectedVersion + 1 + i; e.Version != want {
			return fmt.Errorf("%w: event %s has version %d, want %d", ErrInvalidBatch, e.ID, e.Version, want)
		}
	}
	return nil
}

func conflictError(aggregateID string, expected, actual int) error {
	return fmt.Errorf("%w: aggregate %s expected version %d, stream is at %d",
		ErrConcurrencyConflict, aggregateID, expected, actual)
}
