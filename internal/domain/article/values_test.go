package article

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTitle(t *testing.T) {
	_, err := NewTitle("   ")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = NewTitle(strings.Repeat("é", 256))
	assert.ErrorIs(t, err, ErrInvalidValue)

	title, err := NewTitle(strings.Repeat("é", 255))
	require.NoError(t, err)
	assert.Equal(t, 255, len([]rune(title.String())))

	title, err = NewTitle("  Padded  ")
	require.NoError(t, err)
	assert.Equal(t, "Padded", title.String())
}

func TestDescriptionLimits(t *testing.T) {
	_, err := NewDescription(strings.Repeat("a", 10001))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = NewShortDescription(strings.Repeat("a", 501))
	assert.ErrorIs(t, err, ErrInvalidValue)

	d, err := NewDescription("")
	require.NoError(t, err)
	assert.Empty(t, d.String())
}

func TestNewSlug(t *testing.T) {
	for _, ok := range []string{"a", "hello-world", "v2-release-3"} {
		_, err := NewSlug(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "Hello", "a--b", "-a", "a-", "a b", "ä"} {
		_, err := NewSlug(bad)
		assert.ErrorIs(t, err, ErrInvalidValue, bad)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("published")
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, s)

	_, err = ParseStatus("scheduled")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValueObjectsSurviveJSON(t *testing.T) {
	in := ArticlePublished{ArticleID: uuid.New(), PublishedAt: testNow}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	ev, err := DecodeEvent(store.Event{EventType: EventArticlePublished, Data: data})
	require.NoError(t, err)
	out, ok := ev.(ArticlePublished)
	require.True(t, ok)
	assert.Equal(t, in.ArticleID, out.ArticleID)
	assert.True(t, in.PublishedAt.Equal(out.PublishedAt))
}

// ============================================
// Slug Tests
// ============================================

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Hello World":          "hello-world",
		"  Go 1.22 -- Release": "go-1-22-release",
		"Crème brûlée":         "cr-me-br-l-e",
		"!!!":                  "article",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
		_, err := NewSlug(Slugify(in))
		assert.NoError(t, err, in)
	}

	long := Slugify(strings.Repeat("word ", 100))
	assert.LessOrEqual(t, len(long), maxSlugLength-8)
	assert.False(t, strings.HasSuffix(long, "-"))
}

func TestUniqueSlugGenerator(t *testing.T) {
	rs := store.NewReadStore()
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, rs.InsertOne(ctx, &readmodel.Article{ID: owner, Slug: "hello-world", CreatedAt: time.Now()}))
	require.NoError(t, rs.InsertOne(ctx, &readmodel.Article{ID: uuid.New(), Slug: "hello-world-2", CreatedAt: time.Now()}))

	gen := NewUniqueSlugGenerator(rs)
	title := mustTitle(t, "Hello World")

	slug, err := gen.Generate(ctx, title, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "hello-world-3", slug.String())

	slug, err = gen.Generate(ctx, title, owner)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", slug.String())
}
