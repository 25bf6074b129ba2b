package store

import (
	"context"

	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
)

// ReadModelStore defines the storage for denormalized article views
type ReadModelStore interface {
	// InsertOne writes the article, replacing any row with the same id
	InsertOne(ctx context.Context, article *readmodel.Article) error

	// UpdateOne applies fn to the stored article. Returns ErrNotFound when absent
	UpdateOne(ctx context.Context, id uuid.UUID, fn func(*readmodel.Article)) error

	// DeleteOne removes the article. Returns ErrNotFound when absent
	DeleteOne(ctx context.Context, id uuid.UUID) error

	// FindOne returns ErrNotFound when absent
	FindOne(ctx context.Context, id uuid.UUID) (*readmodel.Article, error)

	// FindBy returns matches newest first; limit <= 0 means no limit
	FindBy(ctx context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error)

	// FindOneBy returns the first match or ErrNotFound
	FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error)
}
