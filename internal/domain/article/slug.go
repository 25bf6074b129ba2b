package article

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
)

// maxSlugAttempts bounds the numeric suffixes tried for a taken slug
const maxSlugAttempts = 100

// ErrSlugUnavailable is returned when every candidate slug is taken
var ErrSlugUnavailable = errors.New("no free slug")

// SlugGenerator derives a slug for an article title
type SlugGenerator interface {
	Generate(ctx context.Context, title Title, articleID uuid.UUID) (Slug, error)
}

// Slugify lowercases the title and joins its ASCII letter and digit runs with hyphens
func Slugify(title string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	s := b.String()
	if len(s) > maxSlugLength-8 {
		s = strings.TrimRight(s[:maxSlugLength-8], "-")
	}
	if s == "" {
		return "article"
	}
	return s
}

// SlugFinder looks up articles by column, satisfied by store.ReadModelStore
type SlugFinder interface {
	FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error)
}

// UniqueSlugGenerator appends -2, -3, ... until the slug is not used by another article
type UniqueSlugGenerator struct {
	finder SlugFinder
}

func NewUniqueSlugGenerator(finder SlugFinder) *UniqueSlugGenerator {
	return &UniqueSlugGenerator{finder: finder}
}

func (g *UniqueSlugGenerator) Generate(ctx context.Context, title Title, articleID uuid.UUID) (Slug, error) {
	base := Slugify(title.String())
	for i := 1; i <= maxSlugAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		found, err := g.finder.FindOneBy(ctx, readmodel.Criteria{readmodel.FieldSlug: candidate})
		if errors.Is(err, store.ErrNotFound) || (err == nil && found.ID == articleID) {
			return NewSlug(candidate)
		}
		if err != nil {
			return Slug{}, fmt.Errorf("failed to check slug %q: %w", candidate, err)
		}
	}
	return Slug{}, fmt.Errorf("%w for %q", ErrSlugUnavailable, base)
}

// SlugifyGenerator derives the slug from the title alone
type SlugifyGenerator struct{}

func (SlugifyGenerator) Generate(_ context.Context, title Title, _ uuid.UUID) (Slug, error) {
	return NewSlug(Slugify(title.String()))
}
