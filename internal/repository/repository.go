package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/db"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrNotPending is returned when a transfer status update finds the transfer already finalized
var ErrNotPending = errors.New("transfer is not pending")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db      *sql.DB
	dialect db.Dialect
	q       querier
	tx      *sql.Tx
}

// NewRepository initializes a new repository
func NewRepository(conn *sql.DB, dialect db.Dialect) *Repository {
	return &Repository{db: conn, dialect: dialect, q: conn}
}

// Dialect returns the SQL dialect the repository talks
func (r *Repository) Dialect() db.Dialect {
	return r.dialect
}

// BeginTx starts a transaction and returns a repository bound to it.
// Callers defer Rollback and finish with Commit.
func (r *Repository) BeginTx(ctx context.Context) (*Repository, error) {
	if r.tx != nil {
		return nil, fmt.Errorf("transaction already started")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Repository{db: r.db, dialect: r.dialect, q: tx, tx: tx}, nil
}

// Commit commits the bound transaction
func (r *Repository) Commit() error {
	if r.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the bound transaction. Calling it after Commit is a no-op.
func (r *Repository) Rollback() error {
	if r.tx == nil {
		return nil
	}
	if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}
