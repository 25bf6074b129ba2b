//go:build integration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dockerCtx, cancelDocker := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDocker()
	if exec.CommandContext(dockerCtx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "articles",
				"POSTGRES_PASSWORD": "articles",
				"POSTGRES_DB":       "articles",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://articles:articles@%s:%s/articles?sslmode=disable", host, port.Port())
	db, err := ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, EnsureSchema(ctx, db))
	return db
}

func TestPostgres_EventStore(t *testing.T) {
	db := startPostgres(t)
	es := NewPostgresEventStore(db)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, es.Append(ctx, id, -1, makeEvents(id, 0, 3)))

	err := es.Append(ctx, id, 1, makeEvents(id, 2, 1))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	events, err := es.ReadFrom(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, 2, events[1].Version)

	all, err := es.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPostgres_TransactorRollsBack(t *testing.T) {
	db := startPostgres(t)
	es := NewPostgresEventStore(db)
	tx := NewPostgresTransactor(db)
	ctx := context.Background()
	id := uuid.NewString()

	err := tx.InTx(ctx, func(ctx context.Context) error {
		if err := es.Append(ctx, id, -1, makeEvents(id, 0, 1)); err != nil {
			return err
		}
		return fmt.Errorf("snapshot write failed")
	})
	require.Error(t, err)

	events, err := es.ReadFrom(ctx, id, -1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPostgres_SnapshotStore(t *testing.T) {
	db := startPostgres(t)
	s := NewPostgresSnapshotStore(db)
	ctx := context.Background()

	missing, err := s.ReadLatest(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for _, v := range []int{4, 9} {
		require.NoError(t, s.Write(ctx, &Snapshot{
			AggregateID:   "a",
			AggregateType: "Article",
			Version:       v,
			State:         []byte(`{}`),
			CreatedAt:     time.Now(),
		}))
	}

	snap, err := s.ReadLatest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 9, snap.Version)
}

func TestPostgres_ReadStore(t *testing.T) {
	db := startPostgres(t)
	rs := NewPostgresReadStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := makeArticle("Hello", "draft", now)
	require.NoError(t, rs.InsertOne(ctx, a))

	require.NoError(t, rs.UpdateOne(ctx, a.ID, func(row *readmodel.Article) {
		row.Status = "published"
		row.PublishedAt = &now
	}))

	got, err := rs.FindOneBy(ctx, readmodel.Criteria{readmodel.FieldStatus: "published"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, now.Equal(*got.PublishedAt))

	require.NoError(t, rs.DeleteOne(ctx, a.ID))
	assert.ErrorIs(t, rs.DeleteOne(ctx, a.ID), ErrNotFound)
	assert.ErrorIs(t, rs.UpdateOne(ctx, a.ID, func(*readmodel.Article) {}), ErrNotFound)
}
