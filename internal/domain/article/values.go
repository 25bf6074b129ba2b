package article

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidValue is returned when a value object rejects its input
var ErrInvalidValue = errors.New("invalid value")

const (
	maxTitleLength            = 255
	maxDescriptionLength      = 10000
	maxShortDescriptionLength = 500
	maxSlugLength             = 255
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Title is a non-empty article title
type Title struct{ value string }

func NewTitle(s string) (Title, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Title{}, fmt.Errorf("%w: title is empty", ErrInvalidValue)
	}
	if n := utf8.RuneCountInString(s); n > maxTitleLength {
		return Title{}, fmt.Errorf("%w: title has %d characters, max %d", ErrInvalidValue, n, maxTitleLength)
	}
	return Title{value: s}, nil
}

func (t Title) String() string { return t.value }

func (t Title) MarshalText() ([]byte, error) { return []byte(t.value), nil }

func (t *Title) UnmarshalText(b []byte) error {
	v, err := NewTitle(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Description is the article body
type Description struct{ value string }

func NewDescription(s string) (Description, error) {
	if n := utf8.RuneCountInString(s); n > maxDescriptionLength {
		return Description{}, fmt.Errorf("%w: description has %d characters, max %d", ErrInvalidValue, n, maxDescriptionLength)
	}
	return Description{value: s}, nil
}

func (d Description) String() string { return d.value }

func (d Description) MarshalText() ([]byte, error) { return []byte(d.value), nil }

func (d *Description) UnmarshalText(b []byte) error {
	v, err := NewDescription(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ShortDescription is the teaser shown in listings
type ShortDescription struct{ value string }

func NewShortDescription(s string) (ShortDescription, error) {
	if n := utf8.RuneCountInString(s); n > maxShortDescriptionLength {
		return ShortDescription{}, fmt.Errorf("%w: short description has %d characters, max %d", ErrInvalidValue, n, maxShortDescriptionLength)
	}
	return ShortDescription{value: s}, nil
}

func (d ShortDescription) String() string { return d.value }

func (d ShortDescription) MarshalText() ([]byte, error) { return []byte(d.value), nil }

func (d *ShortDescription) UnmarshalText(b []byte) error {
	v, err := NewShortDescription(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Slug is the URL-safe article identifier, lowercase words joined by hyphens
type Slug struct{ value string }

func NewSlug(s string) (Slug, error) {
	if len(s) > maxSlugLength {
		return Slug{}, fmt.Errorf("%w: slug has %d characters, max %d", ErrInvalidValue, len(s), maxSlugLength)
	}
	if !slugPattern.MatchString(s) {
		return Slug{}, fmt.Errorf("%w: slug %q", ErrInvalidValue, s)
	}
	return Slug{value: s}, nil
}

func (s Slug) String() string { return s.value }

func (s Slug) MarshalText() ([]byte, error) { return []byte(s.value), nil }

func (s *Slug) UnmarshalText(b []byte) error {
	v, err := NewSlug(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Status string

const (
	StatusDraft       Status = "draft"
	StatusPublished   Status = "published"
	StatusUnpublished Status = "unpublished"
	StatusArchived    Status = "archived"
	StatusDeleted     Status = "deleted"
)

// ParseStatus accepts only the known statuses
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusPublished, StatusUnpublished, StatusArchived, StatusDeleted:
		return st, nil
	default:
		return "", fmt.Errorf("%w: status %q", ErrInvalidValue, s)
	}
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
