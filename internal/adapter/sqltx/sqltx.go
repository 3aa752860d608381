// Package sqltx carries a database/sql transaction through a context so that
// repositories join whatever unit of work the caller opened.
package sqltx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// FromContext returns the transaction stored in ctx, if any.
func FromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the context's transaction when present, else db.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return db
}

// Transactor runs functions inside a transaction on db.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a Transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn inside a transaction, committing when fn returns nil and
// rolling back when it returns an error or panics. A call made while a
// transaction is already in ctx joins it.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
