package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
)

// MockReadStore wraps the in-memory ReadStore, counting calls and optionally slowing reads
type MockReadStore struct {
	*store.ReadStore

	// ReadDelay is slept before every Find* call
	ReadDelay time.Duration

	findOneCalls   atomic.Int64
	findByCalls    atomic.Int64
	findOneByCalls atomic.Int64

	mu          sync.Mutex
	UpdateCalls []uuid.UUID
	DeleteCalls []uuid.UUID
}

// NewMockReadStore creates a new MockReadStore
func NewMockReadStore() *MockReadStore {
	return &MockReadStore{ReadStore: store.NewReadStore()}
}

func (m *MockReadStore) UpdateOne(ctx context.Context, id uuid.UUID, fn func(*readmodel.Article)) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, id)
	m.mu.Unlock()
	return m.ReadStore.UpdateOne(ctx, id, fn)
}

func (m *MockReadStore) DeleteOne(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, id)
	m.mu.Unlock()
	return m.ReadStore.DeleteOne(ctx, id)
}

func (m *MockReadStore) FindOne(ctx context.Context, id uuid.UUID) (*readmodel.Article, error) {
	m.findOneCalls.Add(1)
	m.sleep()
	return m.ReadStore.FindOne(ctx, id)
}

func (m *MockReadStore) FindBy(ctx context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error) {
	m.findByCalls.Add(1)
	m.sleep()
	return m.ReadStore.FindBy(ctx, criteria, limit)
}

func (m *MockReadStore) FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error) {
	m.findOneByCalls.Add(1)
	m.sleep()
	return m.ReadStore.FindOneBy(ctx, criteria)
}

// FindOneCalls returns how many times FindOne ran
func (m *MockReadStore) FindOneCalls() int { return int(m.findOneCalls.Load()) }

// FindByCalls returns how many times FindBy ran
func (m *MockReadStore) FindByCalls() int { return int(m.findByCalls.Load()) }

// FindOneByCalls returns how many times FindOneBy ran
func (m *MockReadStore) FindOneByCalls() int { return int(m.findOneByCalls.Load()) }

func (m *MockReadStore) sleep() {
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}
}
