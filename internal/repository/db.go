// Package repository holds the SQL queries behind the account ledger and the
// analysis history. The layout follows sqlc output: a Queries type bound to a
// DBTX, one file per table, and a Querier interface the services depend on.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

// Store adds transactions on top of Querier. The *ForUpdate queries only
// hold their row lock when called inside ExecTx.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(q Querier) error) error
}

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	*Queries
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// ExecTx runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UniqueViolationCode is the Postgres SQLSTATE for unique constraint failures.
const UniqueViolationCode = "23505"

// IsUniqueViolation detects unique constraint violations (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode
}

// IsNotFound reports whether err is the no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var _ Store = (*SQLStore)(nil)
