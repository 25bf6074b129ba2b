package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys
const uniqueViolation = "23505"

// Schema creates the tables used by the PostgreSQL stores
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	seq            BIGSERIAL,
	id             UUID NOT NULL UNIQUE,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	data           JSONB NOT NULL,
	version        INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS events_seq_idx ON events (seq);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	state          JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_articles (
	id                UUID PRIMARY KEY,
	title             TEXT NOT NULL,
	slug              TEXT NOT NULL,
	description       TEXT NOT NULL,
	short_description TEXT NOT NULL,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	published_at      TIMESTAMPTZ,
	archived_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS read_articles_status_idx ON read_articles (status);
CREATE INDEX IF NOT EXISTS read_articles_slug_idx ON read_articles (slug);
`

// EnsureSchema creates missing tables
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// PostgresTransactor shares one *sql.Tx with every PostgreSQL store called inside InTx
type PostgresTransactor struct {
	db *sql.DB
}

func NewPostgresTransactor(db *sql.DB) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

// InTx commits when fn succeeds and rolls back otherwise. Nested calls join the outer transaction.
func (t *PostgresTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *PostgresTransactor) Atomic() bool { return true }

func executor(ctx context.Context, db *sql.DB) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresEventStore stores events in PostgreSQL
type PostgresEventStore struct {
	db *sql.DB
	tx *PostgresTransactor
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{
		db: db,
		tx: NewPostgresTransactor(db),
	}
}

// Append inserts the batch atomically. The (aggregate_id, version) key rejects a racing writer.
func (es *PostgresEventStore) Append(ctx context.Context, aggregateID string, expectedVersion int, events []Event) error {
	if err := checkBatch(aggregateID, expectedVersion, events); err != nil {
		return err
	}

	return es.tx.InTx(ctx, func(ctx context.Context) error {
		q := executor(ctx, es.db)

		var head int
		err := q.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(version), -1) FROM events WHERE aggregate_id = $1",
			aggregateID,
		).Scan(&head)
		if err != nil {
			return fmt.Errorf("failed to read stream head: %w", err)
		}
		if head != expectedVersion {
			return conflictError(aggregateID, expectedVersion, head)
		}

		for _, e := range events {
			_, err = q.ExecContext(ctx,
				`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.ID,
				e.AggregateID,
				e.AggregateType,
				e.EventType,
				[]byte(e.Data),
				e.Version,
				e.Timestamp,
			)
			if isUniqueViolation(err) {
				return conflictError(aggregateID, expectedVersion, e.Version)
			}
			if err != nil {
				return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// ReadFrom returns events of an aggregate after the given version
func (es *PostgresEventStore) ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]Event, error) {
	rows, err := executor(ctx, es.db).QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND version > $2
		 ORDER BY version ASC`,
		aggregateID, afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

// ReadAll returns all events in append order
func (es *PostgresEventStore) ReadAll(ctx context.Context) ([]Event, error) {
	rows, err := executor(ctx, es.db).QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// PostgresSnapshotStore keeps one snapshot row per aggregate
type PostgresSnapshotStore struct {
	db *sql.DB
}

func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (s *PostgresSnapshotStore) ReadLatest(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var snap Snapshot
	var state []byte
	err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &state, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap.State = json.RawMessage(state)
	return &snap, nil
}

// Write upserts the snapshot; an older version never replaces a newer one
func (s *PostgresSnapshotStore) Write(ctx context.Context, snapshot *Snapshot) error {
	_, err := executor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = EXCLUDED.aggregate_type,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
		 WHERE snapshots.version < EXCLUDED.version`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		[]byte(snapshot.State),
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
