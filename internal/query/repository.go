package query

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/example/article-cqrs/internal/infrastructure/cache"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

const keyPrefix = "article.query."

// ReadRepository answers article queries
type ReadRepository interface {
	FetchOne(ctx context.Context, id uuid.UUID) (*readmodel.Article, error)
	FindBy(ctx context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error)
	FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error)
}

// StoreReadRepository reads straight from the read model store
type StoreReadRepository struct {
	store store.ReadModelStore
}

func NewStoreReadRepository(s store.ReadModelStore) *StoreReadRepository {
	return &StoreReadRepository{store: s}
}

func (r *StoreReadRepository) FetchOne(ctx context.Context, id uuid.UUID) (*readmodel.Article, error) {
	return r.store.FindOne(ctx, id)
}

func (r *StoreReadRepository) FindBy(ctx context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error) {
	return r.store.FindBy(ctx, criteria, limit)
}

func (r *StoreReadRepository) FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error) {
	return r.store.FindOneBy(ctx, criteria)
}

// TTLs per query kind
type TTLs struct {
	FetchOne  time.Duration
	FindOneBy time.Duration
	FindBy    time.Duration
}

// DefaultTTLs favor long-lived single rows over lists
var DefaultTTLs = TTLs{
	FetchOne:  time.Hour,
	FindOneBy: 30 * time.Minute,
	FindBy:    5 * time.Minute,
}

// CachedReadRepository serves queries from the cache, falling back to inner.
// Cached values are flat maps, and every result is rebuilt through
// readmodel.ArticleFromMap, whether it came from the cache or not.
type CachedReadRepository struct {
	inner ReadRepository
	cache *cache.Cache
	ttl   TTLs
	log   zerolog.Logger
}

func NewCachedReadRepository(inner ReadRepository, c *cache.Cache, ttl TTLs, log zerolog.Logger) *CachedReadRepository {
	return &CachedReadRepository{
		inner: inner,
		cache: c,
		ttl:   ttl,
		log:   log.With().Str("component", "cached_read_repository").Logger(),
	}
}

func (r *CachedReadRepository) FetchOne(ctx context.Context, id uuid.UUID) (*readmodel.Article, error) {
	row, err := cache.Fetch(ctx, r.cache, FetchOneKey(id), []string{ItemTag(id)}, r.ttl.FetchOne,
		func(ctx context.Context) (map[string]any, error) {
			a, err := r.inner.FetchOne(ctx, id)
			if err != nil {
				return nil, err
			}
			return a.ToMap(), nil
		})
	if err != nil {
		return nil, err
	}
	return readmodel.ArticleFromMap(row)
}

func (r *CachedReadRepository) FindBy(ctx context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	rows, err := cache.Fetch(ctx, r.cache, FindByKey(criteria, limit), criteriaTags(criteria), r.ttl.FindBy,
		func(ctx context.Context) ([]map[string]any, error) {
			items, err := r.inner.FindBy(ctx, criteria, limit)
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]any, len(items))
			for i, a := range items {
				rows[i] = a.ToMap()
			}
			return rows, nil
		})
	if err != nil {
		return nil, err
	}

	items := make([]*readmodel.Article, len(rows))
	for i, row := range rows {
		if items[i], err = readmodel.ArticleFromMap(row); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *CachedReadRepository) FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	row, err := cache.Fetch(ctx, r.cache, FindOneByKey(criteria), criteriaTags(criteria), r.ttl.FindOneBy,
		func(ctx context.Context) (map[string]any, error) {
			a, err := r.inner.FindOneBy(ctx, criteria)
			if err != nil {
				return nil, err
			}
			return a.ToMap(), nil
		})
	if err != nil {
		return nil, err
	}
	return readmodel.ArticleFromMap(row)
}

func criteriaTags(criteria readmodel.Criteria) []string {
	tags := []string{ListTag}
	if status, ok := criteria[readmodel.FieldStatus]; ok {
		tags = append(tags, StatusTag(status))
	}
	return tags
}

// FetchOneKey is the cache key of a single article
func FetchOneKey(id uuid.UUID) string {
	return keyPrefix + "fetch_one." + id.String()
}

// FindByKey is the cache key of a criteria list query
func FindByKey(criteria readmodel.Criteria, limit int) string {
	return keyPrefix + "find_by." + criteriaHash(criteria, strconv.Itoa(limit))
}

// FindOneByKey is the cache key of a single-row criteria query
func FindOneByKey(criteria readmodel.Criteria) string {
	return keyPrefix + "find_one_by." + criteriaHash(criteria, "")
}

// criteriaHash is stable across map iteration order
func criteriaHash(criteria readmodel.Criteria, suffix string) string {
	h, _ := blake2b.New256(nil)
	for _, field := range criteria.Fields() {
		fmt.Fprintf(h, "%d:%s=%d:%s;", len(field), field, len(criteria[field]), criteria[field])
	}
	h.Write([]byte("|" + suffix))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
