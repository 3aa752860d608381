// Package sqlite implements the domain repositories on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"storefront/internal/adapter/sqltx"
	"storefront/internal/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a *sql.DB shared by the repositories.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if needed) the database file at path and migrates it.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"},
		"_txlock": {"immediate"},
	}.Encode()

	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s.SetMaxOpenConns(4)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	d := &DB{sql: s}
	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if err := d.sql.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Transactor returns a Transactor whose transactions the repositories join.
func (d *DB) Transactor() *sqltx.Transactor {
	return sqltx.NewTransactor(d.sql)
}

func (d *DB) conn(ctx context.Context) sqltx.Querier {
	return sqltx.Conn(ctx, d.sql)
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT    NOT NULL,
			description TEXT,
			price       TEXT    NOT NULL,
			stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,
		`CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT    UNIQUE NOT NULL,
			email         TEXT    UNIQUE NOT NULL,
			password_hash TEXT    NOT NULL,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Timestamps are stored as unix microseconds.
func toUnix(t time.Time) int64 { return t.UnixMicro() }

func fromUnix(us int64) time.Time { return time.UnixMicro(us).UTC() }

// mapUniqueViolation turns a users unique violation into the matching
// domain error; other errors are returned unchanged.
func mapUniqueViolation(err error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) || liteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return err
	}
	msg := liteErr.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return domain.ErrEmailTaken
	case strings.Contains(msg, "users.username"):
		return domain.ErrUsernameTaken
	}
	return err
}
