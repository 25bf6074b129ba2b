package aggregate

import (
	"errors"

	"github.com/example/article-cqrs/internal/infrastructure/store"
)

var (
	// ErrAggregateNotFound is returned when neither a snapshot nor events exist
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrVersionGap is returned when replayed events are not contiguous
	ErrVersionGap = errors.New("event stream has a version gap")

	// ErrSnapshotDecode marks a snapshot whose state could not be restored
	ErrSnapshotDecode = errors.New("snapshot decode failed")
)

// Payload is a domain event before it is wrapped in a store.Event
type Payload interface {
	EventType() string
}

// Aggregate is implemented by types embedding Root
type Aggregate interface {
	GetID() string
	GetVersion() int
	// ApplyEvent mutates state from a stored event without recording it
	ApplyEvent(event store.Event) error
	Uncommitted() []Payload
	root() *Root
}

// Root tracks the version and pending events of an aggregate.
// The zero value is a fresh aggregate at version -1.
type Root struct {
	applied     int // number of events applied; version is applied-1
	snapshotted int // applied count at the last snapshot, 0 when none
	uncommitted []Payload
}

func (r *Root) root() *Root { return r }

// GetVersion returns the version of the last applied event, -1 for a new aggregate
func (r *Root) GetVersion() int { return r.applied - 1 }

// Record appends a new event. The caller has already applied it to its own state.
func (r *Root) Record(p Payload) {
	r.uncommitted = append(r.uncommitted, p)
}

// Uncommitted returns the events recorded since the last save
func (r *Root) Uncommitted() []Payload {
	out := make([]Payload, len(r.uncommitted))
	copy(out, r.uncommitted)
	return out
}

func (r *Root) lastSnapshotVersion() int { return r.snapshotted - 1 }

// commit marks the pending events as stored at newVersion
func (r *Root) commit(newVersion int, snapshotted bool) {
	r.applied = newVersion + 1
	if snapshotted {
		r.snapshotted = r.applied
	}
	r.uncommitted = nil
}

func (r *Root) restore(version int) {
	r.applied = version + 1
	r.snapshotted = r.applied
	r.uncommitted = nil
}
