// Package cache provides a stampede-safe, tag-invalidated cache over a byte store.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCacheMiss is returned by a Store when the key is absent or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrBackend wraps failures of the underlying store
	ErrBackend = errors.New("cache backend failure")
)

// Store is the byte-level backend of a Cache.
type Store interface {
	// Get returns ErrCacheMiss when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store with lazy expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
