package article

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/google/uuid"
)

const (
	EventArticleCreated     = "ArticleCreated"
	EventArticleUpdated     = "ArticleUpdated"
	EventArticlePublished   = "ArticlePublished"
	EventArticleUnpublished = "ArticleUnpublished"
	EventArticleArchived    = "ArticleArchived"
	EventArticleDeleted     = "ArticleDeleted"
)

// ErrUnknownEvent is returned for event types this package does not define
var ErrUnknownEvent = errors.New("unknown article event")

// ErrMalformedEvent is returned when stored event data does not decode
var ErrMalformedEvent = errors.New("malformed article event")

// IsPoison reports whether err comes from an event no handler can ever
// process, so redelivering it is pointless.
func IsPoison(err error) bool {
	return errors.Is(err, ErrUnknownEvent) || errors.Is(err, ErrMalformedEvent)
}

// Event is one of the article event types below. The set is closed:
// only this package can implement it.
//
//sumtype:decl
type Event interface {
	EventType() string
	articleID() uuid.UUID
}

type ArticleCreated struct {
	ArticleID        uuid.UUID        `json:"article_id"`
	Title            Title            `json:"title"`
	Description      Description      `json:"description"`
	ShortDescription ShortDescription `json:"short_description"`
	Slug             Slug             `json:"slug"`
	CreatedAt        time.Time        `json:"created_at"`
}

type ArticleUpdated struct {
	ArticleID        uuid.UUID        `json:"article_id"`
	Title            Title            `json:"title"`
	Description      Description      `json:"description"`
	ShortDescription ShortDescription `json:"short_description"`
	Slug             Slug             `json:"slug"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type ArticlePublished struct {
	ArticleID   uuid.UUID `json:"article_id"`
	PublishedAt time.Time `json:"published_at"`
}

type ArticleUnpublished struct {
	ArticleID     uuid.UUID `json:"article_id"`
	UnpublishedAt time.Time `json:"unpublished_at"`
}

type ArticleArchived struct {
	ArticleID  uuid.UUID `json:"article_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

type ArticleDeleted struct {
	ArticleID uuid.UUID `json:"article_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (ArticleCreated) EventType() string     { return EventArticleCreated }
func (ArticleUpdated) EventType() string     { return EventArticleUpdated }
func (ArticlePublished) EventType() string   { return EventArticlePublished }
func (ArticleUnpublished) EventType() string { return EventArticleUnpublished }
func (ArticleArchived) EventType() string    { return EventArticleArchived }
func (ArticleDeleted) EventType() string     { return EventArticleDeleted }

func (e ArticleCreated) articleID() uuid.UUID     { return e.ArticleID }
func (e ArticleUpdated) articleID() uuid.UUID     { return e.ArticleID }
func (e ArticlePublished) articleID() uuid.UUID   { return e.ArticleID }
func (e ArticleUnpublished) articleID() uuid.UUID { return e.ArticleID }
func (e ArticleArchived) articleID() uuid.UUID    { return e.ArticleID }
func (e ArticleDeleted) articleID() uuid.UUID     { return e.ArticleID }

// EventID returns the article the event belongs to
func EventID(e Event) uuid.UUID { return e.articleID() }

// DecodeEvent turns a stored event back into its typed payload
func DecodeEvent(e store.Event) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch e.EventType {
	case EventArticleCreated:
		ev, err = decode[ArticleCreated](e.Data)
	case EventArticleUpdated:
		ev, err = decode[ArticleUpdated](e.Data)
	case EventArticlePublished:
		ev, err = decode[ArticlePublished](e.Data)
	case EventArticleUnpublished:
		ev, err = decode[ArticleUnpublished](e.Data)
	case EventArticleArchived:
		ev, err = decode[ArticleArchived](e.Data)
	case EventArticleDeleted:
		ev, err = decode[ArticleDeleted](e.Data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.EventType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s v%d of %s: %w", ErrMalformedEvent, e.EventType, e.Version, e.AggregateID, err)
	}
	return ev, nil
}

func decode[T Event](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
