package store

import (
	"context"
	"testing"
	"time"

	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeArticle(title, status string, created time.Time) *readmodel.Article {
	return &readmodel.Article{
		ID:        uuid.New(),
		Title:     title,
		Slug:      title,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestReadStore_InsertIsUpsert(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	a := makeArticle("first", "draft", time.Now())

	require.NoError(t, rs.InsertOne(ctx, a))
	a.Title = "second"
	require.NoError(t, rs.InsertOne(ctx, a))

	got, err := rs.FindOne(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
}

func TestReadStore_UpdateOne(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	a := makeArticle("hello", "draft", time.Now())
	require.NoError(t, rs.InsertOne(ctx, a))

	err := rs.UpdateOne(ctx, a.ID, func(row *readmodel.Article) {
		row.Status = "published"
	})
	require.NoError(t, err)

	got, err := rs.FindOne(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "published", got.Status)
}

func TestReadStore_UpdateMissing(t *testing.T) {
	rs := NewReadStore()

	err := rs.UpdateOne(context.Background(), uuid.New(), func(*readmodel.Article) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadStore_DeleteMissing(t *testing.T) {
	rs := NewReadStore()

	err := rs.DeleteOne(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadStore_FindOneReturnsCopy(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	a := makeArticle("hello", "draft", time.Now())
	require.NoError(t, rs.InsertOne(ctx, a))

	got, err := rs.FindOne(ctx, a.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := rs.FindOne(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Title)
}

func TestReadStore_FindByCriteriaAndLimit(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	oldest := makeArticle("a", "published", base)
	middle := makeArticle("b", "published", base.Add(time.Hour))
	newest := makeArticle("c", "published", base.Add(2*time.Hour))
	draft := makeArticle("d", "draft", base.Add(3*time.Hour))
	for _, a := range []*readmodel.Article{oldest, middle, newest, draft} {
		require.NoError(t, rs.InsertOne(ctx, a))
	}

	items, err := rs.FindBy(ctx, readmodel.Criteria{"status": "published"}, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, newest.ID, items[0].ID)
	assert.Equal(t, middle.ID, items[1].ID)

	all, err := rs.FindBy(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestReadStore_FindByUnsupportedCriteria(t *testing.T) {
	rs := NewReadStore()

	_, err := rs.FindBy(context.Background(), readmodel.Criteria{"body": "x"}, 0)
	assert.ErrorIs(t, err, readmodel.ErrUnsupportedCriteria)
}

func TestReadStore_FindOneBy(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	a := makeArticle("hello", "draft", time.Now())
	require.NoError(t, rs.InsertOne(ctx, a))

	got, err := rs.FindOneBy(ctx, readmodel.Criteria{"slug": "hello"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = rs.FindOneBy(ctx, readmodel.Criteria{"slug": "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}
