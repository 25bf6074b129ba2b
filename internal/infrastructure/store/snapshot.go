package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt     time.Time       `json:"created_at"`
}

// MemorySnapshotStore keeps the latest snapshot per aggregate in memory
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

func (s *MemorySnapshotStore) ReadLatest(_ context.Context, aggregateID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	snap.State = append(json.RawMessage(nil), snap.State...)
	return &snap, nil
}

// Write keeps the snapshot unless a newer one is already stored
func (s *MemorySnapshotStore) Write(_ context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.snapshots[snapshot.AggregateID]; ok && cur.Version > snapshot.Version {
		return nil
	}
	snap := *snapshot
	snap.State = append(json.RawMessage(nil), snapshot.State...)
	s.snapshots[snapshot.AggregateID] = snap
	return nil
}
