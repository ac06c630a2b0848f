package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps tasks in PostgreSQL.
type Store struct {
	url  string
	pool *pgxpool.Pool
	conn DB
}

// New creates a Store for the given connection url. Call Open before use.
func New(url string) *Store {
	return &Store{url: url}
}

// NewWithDB wraps an already opened connection.
func NewWithDB(db DB) *Store {
	return &Store{conn: db}
}

// Database returns the connection or ErrStoreClosed if it is not opened.
func (s *Store) Database() (DB, error) {
	if s.conn == nil {
		return nil, errpkg.ErrStoreClosed
	}
	return s.conn, nil
}

// Open establishes the connection pool and checks that the server answers.
func (s *Store) Open(ctx context.Context) error {
	config, err := pgxpool.ParseConfig(s.url)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.pool = pool
	s.conn = pool
	slog.Debug("postgres connection opened", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		slog.Debug("postgres connection closed")
	}
	s.conn = nil
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS task (
		id         BIGSERIAL PRIMARY KEY,
		type       TEXT NOT NULL CHECK (type IN ('export', 'import')),
		status     TEXT NOT NULL,
		params     JSONB NOT NULL DEFAULT '{}'::jsonb,
		parent_id  BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS task_parent_id_idx ON task (parent_id, id DESC)`,
}

// Migrate creates the task table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := s.Database()
	if err != nil {
		return errpkg.NewDBError("migrate", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return errpkg.NewDBError("migrate", err)
		}
	}
	return nil
}
