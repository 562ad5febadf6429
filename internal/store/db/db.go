// Package db is the hand-authored persistence layer: a Querier interface
// plus row and params types, in the same generated-repository shape used
// throughout this codebase's other services, over a raw pgx connection or
// pool so the Dispatcher can run a batch lease and its handlers inside one
// transaction.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting Queries run
// unmodified against a bare pool or inside an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries implements Querier against a DBTX.
type Queries struct {
	db DBTX
}

// New constructs a Queries bound to db, which may be a pool or a live
// transaction — callers inside a transaction pass the tx to get
// transactional reads/writes without duplicating query bodies.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx instead of whatever DBTX this one
// was constructed with, so a caller holding a pool-backed Queries can run
// a sequence of writes inside one transaction without a second query
// implementation.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
