// Package postgres implements the data access layer over database/sql and
// lib/pq. Repositories accept a Querier so the same code runs against the
// pool or inside a service-owned transaction.
package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Querier is the subset of database/sql satisfied by both *sql.DB and
// *sql.Tx. Repositories never begin or commit transactions themselves; the
// calling service owns transaction boundaries.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// uniqueViolation reports whether err is a PostgreSQL unique violation,
// optionally on one specific constraint.
func uniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
