package readmodel

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedRow is returned when a stored row cannot be turned back into a read model.
var ErrMalformedRow = errors.New("malformed read model row")

// ErrUnsupportedCriteria is returned for criteria on columns the read model does not index.
var ErrUnsupportedCriteria = errors.New("unsupported criteria")

// Article is the denormalized article view served to queries
type Article struct {
	ID               uuid.UUID
	Title            string
	Slug             string
	Description      string
	ShortDescription string
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PublishedAt      *time.Time
	ArchivedAt       *time.Time
}

// ToMap flattens the article into primitives (strings and nil).
// The result survives any serializer round trip unchanged.
func (a *Article) ToMap() map[string]any {
	return map[string]any{
		"id":                a.ID.String(),
		"title":             a.Title,
		"slug":              a.Slug,
		"description":       a.Description,
		"short_description": a.ShortDescription,
		"status":            a.Status,
		"created_at":        formatTime(a.CreatedAt),
		"updated_at":        formatTime(a.UpdatedAt),
		"published_at":      formatTimePtr(a.PublishedAt),
		"archived_at":       formatTimePtr(a.ArchivedAt),
	}
}

// ArticleFromMap rebuilds an Article from its flattened form. It is the only
// way rows and cached values become read models again.
func ArticleFromMap(m map[string]any) (*Article, error) {
	r := rowReader{m: m}

	idStr := r.str("id")
	id, err := uuid.Parse(idStr)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%w: id %q: %v", ErrMalformedRow, idStr, err)
	}

	a := &Article{
		ID:               id,
		Title:            r.str("title"),
		Slug:             r.str("slug"),
		Description:      r.str("description"),
		ShortDescription: r.str("short_description"),
		Status:           r.str("status"),
		CreatedAt:        r.time("created_at"),
		UpdatedAt:        r.time("updated_at"),
		PublishedAt:      r.timePtr("published_at"),
		ArchivedAt:       r.timePtr("archived_at"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}

// Matches reports whether every criterion equals the article's column value.
func (a *Article) Matches(c Criteria) bool {
	for field, want := range c {
		var got string
		switch field {
		case FieldStatus:
			got = a.Status
		case FieldSlug:
			got = a.Slug
		case FieldTitle:
			got = a.Title
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// Criteria filter columns for FindBy queries
const (
	FieldStatus = "status"
	FieldSlug   = "slug"
	FieldTitle  = "title"
)

// Criteria is an equality filter: column -> value.
type Criteria map[string]string

// Validate rejects columns outside the supported set.
func (c Criteria) Validate() error {
	for field := range c {
		switch field {
		case FieldStatus, FieldSlug, FieldTitle:
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedCriteria, field)
		}
	}
	return nil
}

// Fields returns the criteria columns in sorted order.
func (c Criteria) Fields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// SortArticles orders newest first, ties broken by id.
func SortArticles(items []*Article) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

type rowReader struct {
	m   map[string]any
	err error
}

func (r *rowReader) str(key string) string {
	if r.err != nil {
		return ""
	}
	v, ok := r.m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.err = fmt.Errorf("%w: %s has type %T", ErrMalformedRow, key, v)
		return ""
	}
	return s
}

func (r *rowReader) time(key string) time.Time {
	s := r.str(key)
	if s == "" || r.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.err = fmt.Errorf("%w: %s: %v", ErrMalformedRow, key, err)
		return time.Time{}
	}
	return t
}

func (r *rowReader) timePtr(key string) *time.Time {
	if r.str(key) == "" {
		return nil
	}
	t := r.time(key)
	if r.err != nil {
		return nil
	}
	return &t
}
