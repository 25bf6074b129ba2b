// Package projection keeps the query side in step with committed article
// events: the Projector maintains read model rows and the CacheInvalidator
// drops cached query results that the event made stale.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/article-cqrs/internal/domain/article"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/rs/zerolog"
)

// ProjectorName identifies the projector in logs and metrics
const ProjectorName = "article-projector"

type Projector struct {
	readStore store.ReadModelStore
	log       zerolog.Logger
}

func NewProjector(readStore store.ReadModelStore, log zerolog.Logger) *Projector {
	return &Projector{
		readStore: readStore,
		log:       log.With().Str("component", "projector").Logger(),
	}
}

func (p *Projector) Name() string { return ProjectorName }

// Handle applies one committed event to the read model. Events of other
// aggregate types are ignored.
func (p *Projector) Handle(ctx context.Context, msg eventbus.Message) error {
	ev, ok, err := articleEvent(msg)
	if err != nil || !ok {
		return err
	}

	p.log.Debug().
		Str("event_type", msg.Event.EventType).
		Str("aggregate_id", msg.Event.AggregateID).
		Int("version", msg.Event.Version).
		Msg("projecting event")

	return p.apply(ctx, ev)
}

func (p *Projector) apply(ctx context.Context, ev article.Event) error {
	switch e := ev.(type) {
	case article.ArticleCreated:
		return p.readStore.InsertOne(ctx, &readmodel.Article{
			ID:               e.ArticleID,
			Title:            e.Title.String(),
			Slug:             e.Slug.String(),
			Description:      e.Description.String(),
			ShortDescription: e.ShortDescription.String(),
			Status:           string(article.StatusDraft),
			CreatedAt:        e.CreatedAt,
			UpdatedAt:        e.CreatedAt,
		})

	case article.ArticleUpdated:
		return p.update(ctx, e, func(a *readmodel.Article) {
			a.Title = e.Title.String()
			a.Slug = e.Slug.String()
			a.Description = e.Description.String()
			a.ShortDescription = e.ShortDescription.String()
			a.UpdatedAt = e.UpdatedAt
		})

	case article.ArticlePublished:
		return p.update(ctx, e, func(a *readmodel.Article) {
			published := e.PublishedAt
			a.Status = string(article.StatusPublished)
			a.PublishedAt = &published
			a.UpdatedAt = e.PublishedAt
		})

	case article.ArticleUnpublished:
		return p.update(ctx, e, func(a *readmodel.Article) {
			a.Status = string(article.StatusUnpublished)
			a.PublishedAt = nil
			a.UpdatedAt = e.UnpublishedAt
		})

	case article.ArticleArchived:
		return p.update(ctx, e, func(a *readmodel.Article) {
			archived := e.ArchivedAt
			a.Status = string(article.StatusArchived)
			a.ArchivedAt = &archived
			a.UpdatedAt = e.ArchivedAt
		})

	case article.ArticleDeleted:
		if err := p.readStore.DeleteOne(ctx, e.ArticleID); err != nil {
			return fmt.Errorf("failed to project %s: %w", e.EventType(), err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %T", article.ErrUnknownEvent, ev)
	}
}

func (p *Projector) update(ctx context.Context, ev article.Event, fn func(*readmodel.Article)) error {
	if err := p.readStore.UpdateOne(ctx, article.EventID(ev), fn); err != nil {
		return fmt.Errorf("failed to project %s: %w", ev.EventType(), err)
	}
	return nil
}

// articleEvent extracts the typed payload of msg. ok is false for events of
// other aggregates. Messages rebuilt from storage or a broker carry no
// payload and are decoded from the stored data.
func articleEvent(msg eventbus.Message) (article.Event, bool, error) {
	if msg.Event.AggregateType != article.AggregateType {
		return nil, false, nil
	}
	if ev, ok := msg.Payload.(article.Event); ok {
		return ev, true, nil
	}
	ev, err := article.DecodeEvent(msg.Event)
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

// Dispatcher delivers one message to every subscribed listener
type Dispatcher interface {
	Dispatch(ctx context.Context, msg eventbus.Message) error
}

// Rebuild replays the whole event log through d, in append order. Failed
// events are logged and skipped; their errors are returned joined together
// with the number of events replayed.
func Rebuild(ctx context.Context, events store.EventStore, d Dispatcher, log zerolog.Logger) (int, error) {
	all, err := events.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read event log: %w", err)
	}

	log.Info().Int("events", len(all)).Msg("replaying event log")

	var errs []error
	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := d.Dispatch(ctx, eventbus.Message{Event: e}); err != nil {
			log.Error().Err(err).Str("event_id", e.ID).Msg("failed to replay event")
			errs = append(errs, err)
		}
	}

	log.Info().Int("events", len(all)).Int("failed", len(errs)).Msg("event replay completed")
	return len(all), errors.Join(errs...)
}
