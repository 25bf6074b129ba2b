package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/article-cqrs/internal/domain/aggregate"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Article"

var (
	ErrArticleNotFound   = errors.New("article not found")
	ErrInvalidTransition = errors.New("invalid article status transition")
	ErrArticleDeleted    = errors.New("article is deleted")
	ErrNoSlugGenerator   = errors.New("article has no slug generator")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusDraft:       {StatusPublished, StatusArchived, StatusDeleted},
	StatusPublished:   {StatusUnpublished, StatusArchived, StatusDeleted},
	StatusUnpublished: {StatusPublished, StatusArchived, StatusDeleted},
	StatusArchived:    {StatusDeleted},
	StatusDeleted:     {}, // terminal state
}

// editable lists the statuses in which content may change
var editable = map[Status]bool{
	StatusDraft:       true,
	StatusPublished:   true,
	StatusUnpublished: true,
}

// Article is the event-sourced article aggregate. State only changes through
// its operations, each of which records exactly one event.
type Article struct {
	aggregate.Root

	id               uuid.UUID
	title            Title
	description      Description
	shortDescription ShortDescription
	slug             Slug
	status           Status
	createdAt        time.Time
	updatedAt        time.Time
	publishedAt      *time.Time
	archivedAt       *time.Time

	slugger SlugGenerator
}

// Create starts a new draft article
func Create(
	ctx context.Context,
	id uuid.UUID,
	title Title,
	description Description,
	shortDescription ShortDescription,
	slugger SlugGenerator,
	now time.Time,
) (*Article, error) {
	if slugger == nil {
		return nil, ErrNoSlugGenerator
	}
	slug, err := slugger.Generate(ctx, title, id)
	if err != nil {
		return nil, fmt.Errorf("failed to generate slug: %w", err)
	}

	a := &Article{slugger: slugger}
	a.record(ArticleCreated{
		ArticleID:        id,
		Title:            title,
		Description:      description,
		ShortDescription: shortDescription,
		Slug:             slug,
		CreatedAt:        now,
	})
	return a, nil
}

// Update replaces the content. A new title regenerates the slug.
func (a *Article) Update(ctx context.Context, title Title, description Description, shortDescription ShortDescription, now time.Time) error {
	if !editable[a.status] {
		return a.transitionError("update")
	}

	slug := a.slug
	if title != a.title {
		if a.slugger == nil {
			return ErrNoSlugGenerator
		}
		var err error
		if slug, err = a.slugger.Generate(ctx, title, a.id); err != nil {
			return fmt.Errorf("failed to generate slug: %w", err)
		}
	}

	a.record(ArticleUpdated{
		ArticleID:        a.id,
		Title:            title,
		Description:      description,
		ShortDescription: shortDescription,
		Slug:             slug,
		UpdatedAt:        now,
	})
	return nil
}

func (a *Article) Publish(now time.Time) error {
	if !a.CanTransitionTo(StatusPublished) {
		return a.transitionError("publish")
	}
	a.record(ArticlePublished{ArticleID: a.id, PublishedAt: now})
	return nil
}

func (a *Article) Unpublish(now time.Time) error {
	if !a.CanTransitionTo(StatusUnpublished) {
		return a.transitionError("unpublish")
	}
	a.record(ArticleUnpublished{ArticleID: a.id, UnpublishedAt: now})
	return nil
}

func (a *Article) Archive(now time.Time) error {
	if !a.CanTransitionTo(StatusArchived) {
		return a.transitionError("archive")
	}
	a.record(ArticleArchived{ArticleID: a.id, ArchivedAt: now})
	return nil
}

func (a *Article) Delete(now time.Time) error {
	if !a.CanTransitionTo(StatusDeleted) {
		return a.transitionError("delete")
	}
	a.record(ArticleDeleted{ArticleID: a.id, DeletedAt: now})
	return nil
}

// CanTransitionTo checks if the article can transition to the target status
func (a *Article) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[a.status] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError describes why op is not allowed in the current status
func (a *Article) transitionError(op string) error {
	if a.status == StatusDeleted {
		return fmt.Errorf("%w: %w: %s", ErrInvalidTransition, ErrArticleDeleted, a.id)
	}
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, a.status)
}

// record applies the event and queues it for saving
func (a *Article) record(e Event) {
	_ = a.apply(e)
	a.Record(e)
}

// apply is the single place state changes
func (a *Article) apply(e Event) error {
	switch ev := e.(type) {
	case ArticleCreated:
		a.id = ev.ArticleID
		a.title = ev.Title
		a.description = ev.Description
		a.shortDescription = ev.ShortDescription
		a.slug = ev.Slug
		a.status = StatusDraft
		a.createdAt = ev.CreatedAt
		a.updatedAt = ev.CreatedAt
	case ArticleUpdated:
		a.title = ev.Title
		a.description = ev.Description
		a.shortDescription = ev.ShortDescription
		a.slug = ev.Slug
		a.updatedAt = ev.UpdatedAt
	case ArticlePublished:
		a.status = StatusPublished
		a.publishedAt = timePtr(ev.PublishedAt)
		a.updatedAt = ev.PublishedAt
	case ArticleUnpublished:
		a.status = StatusUnpublished
		a.publishedAt = nil
		a.updatedAt = ev.UnpublishedAt
	case ArticleArchived:
		a.status = StatusArchived
		a.archivedAt = timePtr(ev.ArchivedAt)
		a.updatedAt = ev.ArchivedAt
	case ArticleDeleted:
		a.status = StatusDeleted
		a.updatedAt = ev.DeletedAt
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
	return nil
}

// ApplyEvent applies a stored event during replay (implements aggregate.Aggregate)
func (a *Article) ApplyEvent(e store.Event) error {
	ev, err := DecodeEvent(e)
	if err != nil {
		return err
	}
	return a.apply(ev)
}

func (a *Article) GetID() string { return a.id.String() }

func (a *Article) ID() uuid.UUID                      { return a.id }
func (a *Article) Title() Title                       { return a.title }
func (a *Article) Description() Description           { return a.description }
func (a *Article) ShortDescription() ShortDescription { return a.shortDescription }
func (a *Article) Slug() Slug                         { return a.slug }
func (a *Article) Status() Status                     { return a.status }
func (a *Article) CreatedAt() time.Time               { return a.createdAt }
func (a *Article) UpdatedAt() time.Time               { return a.updatedAt }
func (a *Article) PublishedAt() *time.Time            { return copyTime(a.publishedAt) }
func (a *Article) ArchivedAt() *time.Time             { return copyTime(a.archivedAt) }

// state is the snapshot encoding of an Article
type state struct {
	ID               uuid.UUID        `json:"id"`
	Title            Title            `json:"title"`
	Description      Description      `json:"description"`
	ShortDescription ShortDescription `json:"short_description"`
	Slug             Slug             `json:"slug"`
	Status           Status           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	PublishedAt      *time.Time       `json:"published_at,omitempty"`
	ArchivedAt       *time.Time       `json:"archived_at,omitempty"`
}

func (a *Article) MarshalJSON() ([]byte, error) {
	return json.Marshal(state{
		ID:               a.id,
		Title:            a.title,
		Description:      a.description,
		ShortDescription: a.shortDescription,
		Slug:             a.slug,
		Status:           a.status,
		CreatedAt:        a.createdAt,
		UpdatedAt:        a.updatedAt,
		PublishedAt:      a.publishedAt,
		ArchivedAt:       a.archivedAt,
	})
}

func (a *Article) UnmarshalJSON(b []byte) error {
	var s state
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s.ID == uuid.Nil || s.Status == "" {
		return fmt.Errorf("%w: snapshot lacks id or status", ErrInvalidValue)
	}
	a.id = s.ID
	a.title = s.Title
	a.description = s.Description
	a.shortDescription = s.ShortDescription
	a.slug = s.Slug
	a.status = s.Status
	a.createdAt = s.CreatedAt
	a.updatedAt = s.UpdatedAt
	a.publishedAt = s.PublishedAt
	a.archivedAt = s.ArchivedAt
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
