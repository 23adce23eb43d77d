// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"database/sql"
)

// Executor runs statements that mutate the database. *sql.DB, *sql.Conn and
// *sql.Tx all satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier runs read-only queries. *sql.DB, *sql.Conn and *sql.Tx all satisfy
// it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader and Executor in one, which is what a *sql.DB gives you.
type ReadWriter interface {
	Executor
	Querier
}
