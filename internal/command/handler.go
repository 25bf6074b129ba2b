// Package command runs the write side: each command loads an article,
// applies one operation and saves the recorded event.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/article-cqrs/internal/domain/article"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidCommand is returned when a command fails validation
var ErrInvalidCommand = errors.New("invalid command")

type Handler struct {
	articles article.Repository
	slugger  article.SlugGenerator
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Handler)

// WithClock replaces time.Now for event timestamps
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(articles article.Repository, slugger article.SlugGenerator, log zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		articles: articles,
		slugger:  slugger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "command_handler").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateArticle creates a draft article and returns its id
func (h *Handler) CreateArticle(ctx context.Context, cmd CreateArticle) (uuid.UUID, error) {
	if err := h.check(cmd); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	if cmd.ArticleID != "" {
		id = uuid.MustParse(cmd.ArticleID)
	}

	title, description, short, err := content(cmd.Title, cmd.Description, cmd.ShortDescription)
	if err != nil {
		return uuid.Nil, err
	}

	a, err := article.Create(ctx, id, title, description, short, h.slugger, h.now())
	if err != nil {
		return uuid.Nil, err
	}
	if err := h.articles.Save(ctx, a); err != nil {
		return uuid.Nil, err
	}

	h.log.Info().Str("article_id", id.String()).Str("slug", a.Slug().String()).Msg("article created")
	return id, nil
}

// UpdateArticle replaces the content of an article
func (h *Handler) UpdateArticle(ctx context.Context, cmd UpdateArticle) error {
	if err := h.check(cmd); err != nil {
		return err
	}
	title, description, short, err := content(cmd.Title, cmd.Description, cmd.ShortDescription)
	if err != nil {
		return err
	}
	return h.run(ctx, "update", cmd.ArticleID, func(a *article.Article) error {
		return a.Update(ctx, title, description, short, h.now())
	})
}

func (h *Handler) PublishArticle(ctx context.Context, cmd PublishArticle) error {
	if err := h.check(cmd); err != nil {
		return err
	}
	return h.run(ctx, "publish", cmd.ArticleID, func(a *article.Article) error {
		return a.Publish(h.now())
	})
}

func (h *Handler) UnpublishArticle(ctx context.Context, cmd UnpublishArticle) error {
	if err := h.check(cmd); err != nil {
		return err
	}
	return h.run(ctx, "unpublish", cmd.ArticleID, func(a *article.Article) error {
		return a.Unpublish(h.now())
	})
}

func (h *Handler) ArchiveArticle(ctx context.Context, cmd ArchiveArticle) error {
	if err := h.check(cmd); err != nil {
		return err
	}
	return h.run(ctx, "archive", cmd.ArticleID, func(a *article.Article) error {
		return a.Archive(h.now())
	})
}

func (h *Handler) DeleteArticle(ctx context.Context, cmd DeleteArticle) error {
	if err := h.check(cmd); err != nil {
		return err
	}
	return h.run(ctx, "delete", cmd.ArticleID, func(a *article.Article) error {
		return a.Delete(h.now())
	})
}

// run is the load, mutate, save cycle. Concurrency conflicts are returned
// to the caller as is.
func (h *Handler) run(ctx context.Context, op, rawID string, mutate func(*article.Article) error) error {
	id := uuid.MustParse(rawID)

	a, err := h.articles.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := mutate(a); err != nil {
		return err
	}
	if err := h.articles.Save(ctx, a); err != nil {
		return err
	}

	h.log.Info().
		Str("article_id", id.String()).
		Str("op", op).
		Str("status", string(a.Status())).
		Msg("article command applied")
	return nil
}

func (h *Handler) check(cmd any) error {
	if err := h.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return nil
}

func content(rawTitle, rawDescription, rawShort string) (article.Title, article.Description, article.ShortDescription, error) {
	title, err := article.NewTitle(rawTitle)
	if err != nil {
		return article.Title{}, article.Description{}, article.ShortDescription{}, err
	}
	description, err := article.NewDescription(rawDescription)
	if err != nil {
		return article.Title{}, article.Description{}, article.ShortDescription{}, err
	}
	short, err := article.NewShortDescription(rawShort)
	if err != nil {
		return article.Title{}, article.Description{}, article.ShortDescription{}, err
	}
	return title, description, short, nil
}
