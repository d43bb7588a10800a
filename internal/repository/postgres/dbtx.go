package postgres

import (
	"context"
	"database/sql"
)

// DBTX is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
// Repositories built on it run equally inside a settlement commit
// transaction or on a plain connection, and tests wrap them in a
// rolled-back transaction for isolation.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row

	// sqlx extensions
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}
