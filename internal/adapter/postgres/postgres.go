// Package postgres implements the domain repositories using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/adapter/sqltx"
	"storefront/internal/domain"

	"github.com/lib/pq"
)

// DB wraps a *sql.DB shared by the repositories.
type DB struct {
	sql *sql.DB
}

// Open connects to PostgreSQL, pings, and runs migrations.
func Open(connStr string) (*DB, error) {
	s, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	d := &DB{sql: s}
	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Transactor returns a Transactor whose transactions the repositories join.
func (d *DB) Transactor() *sqltx.Transactor {
	return sqltx.NewTransactor(d.sql)
}

func (d *DB) conn(ctx context.Context) sqltx.Querier {
	return sqltx.Conn(ctx, d.sql)
}

// savepoint runs fn under a savepoint when ctx carries a transaction. A
// failing statement then leaves the enclosing transaction usable.
func (d *DB) savepoint(ctx context.Context, name string, fn func() error) error {
	tx, ok := sqltx.FromContext(ctx)
	if !ok {
		return fn()
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name+";"); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name+";"); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint %s: %w", name, rbErr))
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name+";"); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			description TEXT,
			price NUMERIC NOT NULL CHECK (price > 0),
			stock BIGINT NOT NULL DEFAULT 0 CHECK (stock >= 0),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);",
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT ` + usernameConstraint + ` UNIQUE (username),
			CONSTRAINT ` + emailConstraint + ` UNIQUE (email)
		);`,
		// Widen columns created by earlier schema versions.
		"ALTER TABLE products ALTER COLUMN price TYPE NUMERIC, ALTER COLUMN stock TYPE BIGINT;",
		"ALTER TABLE users ALTER COLUMN username TYPE TEXT, ALTER COLUMN email TYPE TEXT;",
	}

	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
	uniqueViolation    = "23505"
)

// mapUniqueViolation turns a users unique violation into the matching
// domain error; other errors are returned unchanged.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case emailConstraint:
		return domain.ErrEmailTaken
	case usernameConstraint:
		return domain.ErrUsernameTaken
	}
	return err
}
