package projection

import (
	"context"

	"github.com/example/article-cqrs/internal/domain/article"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/query"
	"github.com/rs/zerolog"
)

const InvalidatorName = "article-cache-invalidator"

// TagInvalidator is satisfied by *cache.Cache
type TagInvalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) error
}

// CacheInvalidator drops cached query results affected by an article event
type CacheInvalidator struct {
	cache TagInvalidator
	log   zerolog.Logger
}

func NewCacheInvalidator(c TagInvalidator, log zerolog.Logger) *CacheInvalidator {
	return &CacheInvalidator{
		cache: c,
		log:   log.With().Str("component", "cache_invalidator").Logger(),
	}
}

func (ci *CacheInvalidator) Name() string { return InvalidatorName }

func (ci *CacheInvalidator) Handle(ctx context.Context, msg eventbus.Message) error {
	ev, ok, err := articleEvent(msg)
	if err != nil || !ok {
		return err
	}

	tags := TagsFor(ev)
	if err := ci.cache.InvalidateTags(ctx, tags...); err != nil {
		ci.log.Warn().
			Err(err).
			Strs("tags", tags).
			Str("event_type", msg.Event.EventType).
			Msg("cache invalidation incomplete")
		return err
	}

	ci.log.Debug().Strs("tags", tags).Str("event_type", msg.Event.EventType).Msg("cache tags invalidated")
	return nil
}

// TagsFor lists the cache tags an event makes stale
func TagsFor(ev article.Event) []string {
	status := func(s article.Status) string { return query.StatusTag(string(s)) }

	switch e := ev.(type) {
	case article.ArticleCreated:
		return []string{query.ListTag}
	case article.ArticleUpdated:
		return []string{query.ItemTag(e.ArticleID), query.ListTag}
	case article.ArticlePublished:
		// a republished article leaves the unpublished list too
		return []string{
			query.ItemTag(e.ArticleID),
			status(article.StatusPublished),
			status(article.StatusDraft),
			status(article.StatusUnpublished),
			query.ListTag,
		}
	case article.ArticleUnpublished:
		return []string{
			query.ItemTag(e.ArticleID),
			status(article.StatusPublished),
			status(article.StatusUnpublished),
			query.ListTag,
		}
	case article.ArticleArchived:
		return []string{query.ItemTag(e.ArticleID), status(article.StatusArchived), query.ListTag}
	case article.ArticleDeleted:
		return []string{query.ItemTag(e.ArticleID), query.ListTag}
	default:
		return []string{query.ItemTag(article.EventID(ev)), query.ListTag}
	}
}
