package mocks

import (
	"context"
	"sync"

	"github.com/example/article-cqrs/internal/infrastructure/store"
)

// MockEventStore is an in-memory EventStore that records calls and injects failures
type MockEventStore struct {
	mu    sync.Mutex
	inner *store.MemoryEventStore

	// For tracking calls in tests
	AppendCalls  []AppendCall
	ReadFromCall []ReadFromCall
	AppendErr    error
	ReadErr      error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID     string
	ExpectedVersion int
	Events          []store.Event
}

// ReadFromCall records parameters passed to ReadFrom
type ReadFromCall struct {
	AggregateID  string
	AfterVersion int
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{inner: store.NewMemoryEventStore()}
}

// Append stores events in memory unless AppendErr is set
func (m *MockEventStore) Append(ctx context.Context, aggregateID string, expectedVersion int, events []store.Event) error {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:     aggregateID,
		ExpectedVersion: expectedVersion,
		Events:          append([]store.Event(nil), events...),
	})
	err := m.AppendErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.inner.Append(ctx, aggregateID, expectedVersion, events)
}

// ReadFrom returns events after a version unless ReadErr is set
func (m *MockEventStore) ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]store.Event, error) {
	m.mu.Lock()
	m.ReadFromCall = append(m.ReadFromCall, ReadFromCall{AggregateID: aggregateID, AfterVersion: afterVersion})
	err := m.ReadErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.ReadFrom(ctx, aggregateID, afterVersion)
}

// ReadAll returns all events
func (m *MockEventStore) ReadAll(ctx context.Context) ([]store.Event, error) {
	m.mu.Lock()
	err := m.ReadErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.ReadAll(ctx)
}

// Reset clears recorded calls and injected errors
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls = nil
	m.ReadFromCall = nil
	m.AppendErr = nil
	m.ReadErr = nil
}

// MockSnapshotStore is an in-memory SnapshotStore that records writes
type MockSnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]store.Snapshot

	WriteCalls []store.Snapshot
	WriteErr   error
	ReadErr    error
}

// NewMockSnapshotStore creates a new MockSnapshotStore
func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{snapshots: make(map[string]store.Snapshot)}
}

func (m *MockSnapshotStore) ReadLatest(_ context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	snap, ok := m.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MockSnapshotStore) Write(_ context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls = append(m.WriteCalls, *snapshot)
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.snapshots[snapshot.AggregateID] = *snapshot
	return nil
}

// SetSnapshot stores a snapshot directly for testing
func (m *MockSnapshotStore) SetSnapshot(snapshot store.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.AggregateID] = snapshot
}

// Latest returns the stored snapshot without recording a call
func (m *MockSnapshotStore) Latest(aggregateID string) (store.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[aggregateID]
	return snap, ok
}
