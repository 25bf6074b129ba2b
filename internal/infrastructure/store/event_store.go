package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is the stored envelope of a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// MemoryEventStore keeps events in process memory
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]Event // aggregateID -> events
	log    []Event            // append order across aggregates
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make(map[string][]Event),
	}
}

// Append stores events if the stream is still at expectedVersion
func (es *MemoryEventStore) Append(_ context.Context, aggregateID string, expectedVersion int, events []Event) error {
	if err := checkBatch(aggregateID, expectedVersion, events); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	head := len(es.events[aggregateID]) - 1
	if head != expectedVersion {
		return conflictError(aggregateID, expectedVersion, head)
	}
	es.events[aggregateID] = append(es.events[aggregateID], events...)
	es.log = append(es.log, events...)
	return nil
}

// ReadFrom returns events of an aggregate after the given version
func (es *MemoryEventStore) ReadFrom(_ context.Context, aggregateID string, afterVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stream := es.events[aggregateID]
	start := afterVersion + 1
	if start < 0 {
		start = 0
	}
	if start >= len(stream) {
		return nil, nil
	}
	out := make([]Event, len(stream)-start)
	copy(out, stream[start:])
	return out, nil
}

// ReadAll returns all events in append order
func (es *MemoryEventStore) ReadAll(_ context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	out := make([]Event, len(es.log))
	copy(out, es.log)
	return out, nil
}
