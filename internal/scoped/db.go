package scoped

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier abstracts the pgx query interface shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a Querier that can open transactions.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Statement is any scoped builder.
type Statement interface {
	Build() (string, []any, error)
}

// Exec renders and executes stmt.
func Exec(ctx context.Context, q Querier, stmt Statement) (pgconn.CommandTag, error) {
	sql, args, err := stmt.Build()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return q.Exec(ctx, sql, args...)
}

// Query renders stmt and returns its rows.
func Query(ctx context.Context, q Querier, stmt Statement) (pgx.Rows, error) {
	sql, args, err := stmt.Build()
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, sql, args...)
}

// QueryRow renders stmt and returns a single row. Build errors surface from Scan.
func QueryRow(ctx context.Context, q Querier, stmt Statement) pgx.Row {
	sql, args, err := stmt.Build()
	if err != nil {
		return errRow{err: err}
	}
	return q.QueryRow(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
