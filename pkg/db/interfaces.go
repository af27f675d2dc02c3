package db

import (
	"context"
	"database/sql"
)

// Querier runs a statement and returns its rows. *sql.DB, *sql.Conn and
// *Conn implement it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ConnProvider hands out scoped connections. ConnectionManager is the
// production implementation; tests back one with go-sqlmock.
type ConnProvider interface {
	Acquire(ctx context.Context) (*Conn, error)
	Teardown() error
}

// QueryRunner executes read-only SQL text and materialises the result.
type QueryRunner interface {
	RunQuery(ctx context.Context, sqlText string) (*QueryResult, error)
}

var (
	_ ConnProvider = (*ConnectionManager)(nil)
	_ Querier      = (*Conn)(nil)
	_ QueryRunner  = (*Inspector)(nil)
)
