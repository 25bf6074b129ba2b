package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/google/uuid"
)

const articleColumns = `id, title, slug, description, short_description, status,
	created_at, updated_at, published_at, archived_at`

// PostgresReadStore implements ReadModelStore using PostgreSQL
type PostgresReadStore struct {
	db *sql.DB
	tx *PostgresTransactor
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db, tx: NewPostgresTransactor(db)}
}

// InsertOne upserts the article row
func (rs *PostgresReadStore) InsertOne(ctx context.Context, a *readmodel.Article) error {
	_, err := executor(ctx, rs.db).ExecContext(ctx,
		`INSERT INTO read_articles (`+articleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			slug = EXCLUDED.slug,
			description = EXCLUDED.description,
			short_description = EXCLUDED.short_description,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			archived_at = EXCLUDED.archived_at`,
		a.ID, a.Title, a.Slug, a.Description, a.ShortDescription, a.Status,
		a.CreatedAt, a.UpdatedAt, nullTime(a.PublishedAt), nullTime(a.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert article %s: %w", a.ID, err)
	}
	return nil
}

// UpdateOne locks the row, applies fn and writes it back
func (rs *PostgresReadStore) UpdateOne(ctx context.Context, id uuid.UUID, fn func(*readmodel.Article)) error {
	return rs.tx.InTx(ctx, func(ctx context.Context) error {
		q := executor(ctx, rs.db)

		row := q.QueryRowContext(ctx,
			`SELECT `+articleColumns+` FROM read_articles WHERE id = $1 FOR UPDATE`, id)
		a, err := scanArticle(row)
		if err != nil {
			return err
		}

		fn(a)
		_, err = q.ExecContext(ctx,
			`UPDATE read_articles SET
				title = $2, slug = $3, description = $4, short_description = $5, status = $6,
				updated_at = $7, published_at = $8, archived_at = $9
			 WHERE id = $1`,
			id, a.Title, a.Slug, a.Description, a.ShortDescription, a.Status,
			a.UpdatedAt, nullTime(a.PublishedAt), nullTime(a.ArchivedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to update article %s: %w", id, err)
		}
		return nil
	})
}

// DeleteOne removes the article row
func (rs *PostgresReadStore) DeleteOne(ctx context.Context, id uuid.UUID) error {
	res, err := executor(ctx, rs.db).ExecContext(ctx, `DELETE FROM read_articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete article %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// FindOne retrieves an article by id
func (rs *PostgresReadStore) FindOne(ctx context.Context, id uuid.UUID) (*readmodel.Article, error) {
	row := executor(ctx, rs.db).QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM read_articles WHERE id = $1`, id)
	return scanArticle(row)
}

// FindBy retrieves the articles matching all criteria, newest first
func (rs *PostgresReadStore) FindBy(ctx context.Context, criteria readmodel.Criteria, limit int) ([]*readmodel.Article, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	// column names come from the validated whitelist
	for _, field := range criteria.Fields() {
		args = append(args, criteria[field])
		where = append(where, fmt.Sprintf("%s = $%d", field, len(args)))
	}

	query := `SELECT ` + articleColumns + ` FROM read_articles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := executor(ctx, rs.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	items := make([]*readmodel.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}
	return items, nil
}

// FindOneBy retrieves the first article matching all criteria
func (rs *PostgresReadStore) FindOneBy(ctx context.Context, criteria readmodel.Criteria) (*readmodel.Article, error) {
	items, err := rs.FindBy(ctx, criteria, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("article matching %v: %w", map[string]string(criteria), ErrNotFound)
	}
	return items[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanArticle goes through readmodel.ArticleFromMap, the same factory the cache read path uses
func scanArticle(row rowScanner) (*readmodel.Article, error) {
	var (
		id, title, slug, description, short, status string
		createdAt, updatedAt                         time.Time
		publishedAt, archivedAt                      sql.NullTime
	)
	err := row.Scan(&id, &title, &slug, &description, &short, &status,
		&createdAt, &updatedAt, &publishedAt, &archivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	return readmodel.ArticleFromMap(map[string]any{
		"id":                id,
		"title":             title,
		"slug":              slug,
		"description":       description,
		"short_description": short,
		"status":            status,
		"created_at":        createdAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        updatedAt.UTC().Format(time.RFC3339Nano),
		"published_at":      nullTimeString(publishedAt),
		"archived_at":       nullTimeString(archivedAt),
	})
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeString(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return t.Time.UTC().Format(time.RFC3339Nano)
}
