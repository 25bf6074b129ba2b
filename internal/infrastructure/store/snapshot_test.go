package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySnapshotStore_ReadLatestMissing(t *testing.T) {
	s := NewMemorySnapshotStore()

	snap, err := s.ReadLatest(context.Background(), "article-1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMemorySnapshotStore_WriteAndRead(t *testing.T) {
	s := NewMemorySnapshotStore()
	ctx := context.Background()

	state, err := json.Marshal(map[string]any{"title": "Hello"})
	require.NoError(t, err)

	err = s.Write(ctx, &Snapshot{
		AggregateID:   "article-1",
		AggregateType: "Article",
		Version:       9,
		State:         state,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)

	snap, err := s.ReadLatest(ctx, "article-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 9, snap.Version)
	assert.Equal(t, "Article", snap.AggregateType)
	assert.JSONEq(t, `{"title":"Hello"}`, string(snap.State))
}

func TestMemorySnapshotStore_KeepsNewest(t *testing.T) {
	s := NewMemorySnapshotStore()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, &Snapshot{AggregateID: "a", Version: 19, State: json.RawMessage(`{"v":19}`)}))
	require.NoError(t, s.Write(ctx, &Snapshot{AggregateID: "a", Version: 9, State: json.RawMessage(`{"v":9}`)}))

	snap, err := s.ReadLatest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 19, snap.Version)
}

func TestMemorySnapshotStore_ReturnsCopies(t *testing.T) {
	s := NewMemorySnapshotStore()
	ctx := context.Background()

	state := json.RawMessage(`{"v":1}`)
	require.NoError(t, s.Write(ctx, &Snapshot{AggregateID: "a", Version: 1, State: state}))
	state[2] = 'x'

	snap, err := s.ReadLatest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(snap.State))
}
