package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
)

// ReadStore is an in-memory read model store. Rows are kept flattened and
// rebuilt through readmodel.ArticleFromMap, like the PostgreSQL scanner does.
type ReadStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]map[string]any
}

func NewReadStore() *ReadStore {
	return &ReadStore{
		data: make(map[uuid.UUID]map[string]any),
	}
}

// InsertOne stores an article, replacing an existing row
func (rs *ReadStore) InsertOne(_ context.Context, article *readmodel.Article) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.data[article.ID] = article.ToMap()
	return nil
}

// UpdateOne modifies an article using an update function
func (rs *ReadStore) UpdateOne(_ context.Context, id uuid.UUID, fn func(*readmodel.Article)) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	row, ok := rs.data[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	a, err := readmodel.ArticleFromMap(row)
	if err != nil {
		return err
	}
	fn(a)
	a.ID = id
	rs.data[id] = a.ToMap()
	return nil
}

// DeleteOne removes an article
func (rs *ReadStore) DeleteOne(_ context.Context, id uuid.UUID) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.data[id]; !ok {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	delete(rs.data, id)
	return nil
}

// FindOne retrieves an article by id
func (rs *ReadStore) FindOne(_ context.Context, id uuid.UUID) (*readmodel.Article, error) {
	rs.mu.RLock()
	row, ok := rs.data[id]
	rs.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return readmodel.ArticleFromMap(row)
}

// FindBy retrieves the articles matching all criteria
func (rs *ReadStore) FindBy(_ context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	items := make([]*readmodel.Article, 0)
	for _, row := range rs.data {
		a, err := readmodel.ArticleFromMap(row)
		if err != nil {
			return nil, err
		}
		if a.Matches(criteria) {
			items = append(items, a)
		}
	}

	readmodel.SortArticles(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// FindOneBy retrieves the first article matching all criteria
func (rs *ReadStore) FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error) {
	items, err := rs.FindBy(ctx, criteria, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("article matching %v: %w", map[string]string(criteria), ErrNotFound)
	}
	return items[0], nil
}
