package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no article matches a query
var ErrNotFound = errors.New("article not found")

// DefaultListLimit caps ListArticles when no limit is given
const DefaultListLimit = 50

type Handler struct {
	articles ReadRepository
}

func NewHandler(articles ReadRepository) *Handler {
	return &Handler{articles: articles}
}

// GetArticle returns one article by id
func (h *Handler) GetArticle(ctx context.Context, id uuid.UUID) (*readmodel.Article, error) {
	a, err := h.articles.FetchOne(ctx, id)
	return a, notFound(err)
}

// ListArticles returns the newest articles, optionally filtered by status
func (h *Handler) ListArticles(ctx context.Context, status string, limit int) ([]*readmodel.Article, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	criteria := readmodel.Criteria{}
	if status != "" {
		criteria[readmodel.FieldStatus] = status
	}
	return h.articles.FindBy(ctx, criteria, limit)
}

// FindArticleBySlug returns the article currently holding slug
func (h *Handler) FindArticleBySlug(ctx context.Context, slug string) (*readmodel.Article, error) {
	a, err := h.articles.FindOneBy(ctx, readmodel.Criteria{readmodel.FieldSlug: slug})
	return a, notFound(err)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
