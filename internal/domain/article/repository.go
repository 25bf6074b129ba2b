package article

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/article-cqrs/internal/domain/aggregate"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/google/uuid"
)

// Repository loads and saves articles
type Repository interface {
	Load(ctx context.Context, id uuid.UUID) (*Article, error)
	Save(ctx context.Context, a *Article) error
}

// SnapshottingRepository is the article repository backed by the event and snapshot stores.
// Loaded articles get the slug generator back, since it is not part of their state.
type SnapshottingRepository struct {
	inner   *aggregate.Repository[*Article]
	slugger SlugGenerator
}

func NewSnapshottingRepository(
	events store.EventStore,
	snapshots store.SnapshotStore,
	slugger SlugGenerator,
	opts ...aggregate.Option,
) *SnapshottingRepository {
	return &SnapshottingRepository{
		inner:   aggregate.NewRepository(AggregateType, func() *Article { return &Article{} }, events, snapshots, opts...),
		slugger: slugger,
	}
}

func (r *SnapshottingRepository) Load(ctx context.Context, id uuid.UUID) (*Article, error) {
	a, err := r.inner.Load(ctx, id.String())
	if errors.Is(err, aggregate.ErrAggregateNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrArticleNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	a.slugger = r.slugger
	return a, nil
}

func (r *SnapshottingRepository) Save(ctx context.Context, a *Article) error {
	return r.inner.Save(ctx, a)
}
