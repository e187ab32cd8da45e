package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"orgfinder/internal/model"
)

// ErrNotFound is returned when a query log row does not exist
var ErrNotFound = errors.New("query log not found")

const schema = `
CREATE TABLE IF NOT EXISTS query_logs (
	query_id          TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	query             TEXT NOT NULL,
	normalized_query  TEXT NOT NULL DEFAULT '',
	primary_service   TEXT NOT NULL DEFAULT '',
	location_text     TEXT NOT NULL DEFAULT '',
	used_memory       BOOLEAN NOT NULL DEFAULT FALSE,
	expanded_radius   BOOLEAN NOT NULL DEFAULT FALSE,
	closest_fallback  BOOLEAN NOT NULL DEFAULT FALSE,
	result_count      INTEGER NOT NULL DEFAULT 0,
	organizations     JSONB,
	failure_reason    TEXT NOT NULL DEFAULT '',
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	response_time_ms  BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS query_feedback (
	id            BIGSERIAL PRIMARY KEY,
	query_id      TEXT NOT NULL REFERENCES query_logs(query_id) ON DELETE CASCADE,
	organization  TEXT NOT NULL,
	action        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresRepository stores query logs and feedback
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Migrate creates the log tables when missing
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// LogQuery records one processed query
func (r *PostgresRepository) LogQuery(ctx context.Context, entry *model.QueryLog) error {
	query := `
		INSERT INTO query_logs (
			query_id, session_id, query, normalized_query, primary_service, location_text,
			used_memory, expanded_radius, closest_fallback, result_count, organizations,
			failure_reason, total_tokens, response_time_ms
		) VALUES (
			:query_id, :session_id, :query, :normalized_query, :primary_service, :location_text,
			:used_memory, :expanded_radius, :closest_fallback, :result_count, :organizations,
			:failure_reason, :total_tokens, :response_time_ms
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// GetQueryLog returns the log row of one query
func (r *PostgresRepository) GetQueryLog(ctx context.Context, queryID string) (*model.QueryLog, error) {
	query := `
		SELECT query_id, session_id, query, normalized_query, primary_service, location_text,
		       used_memory, expanded_radius, closest_fallback, result_count, organizations,
		       failure_reason, total_tokens, response_time_ms
		FROM query_logs
		WHERE query_id = $1
	`
	var entry model.QueryLog
	if err := r.db.GetContext(ctx, &entry, query, queryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get query log: %w", err)
	}
	return &entry, nil
}

// LogFeedback records a user action on an organization returned by a query
func (r *PostgresRepository) LogFeedback(ctx context.Context, queryID, organization, action string) error {
	query := `
		INSERT INTO query_feedback (query_id, organization, action)
		SELECT query_id, $2, $3 FROM query_logs WHERE query_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, queryID, organization, action)
	if err != nil {
		return fmt.Errorf("failed to log feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to log feedback: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
