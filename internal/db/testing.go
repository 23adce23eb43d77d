// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// TestExecutor is an Executor that records every statement instead of running
// it. It can be told to fail a specific statement with WithFailOn.
type TestExecutor struct {
	mu         sync.Mutex
	statements []string
	failOn     int
	failErr    error
}

// NewTestExecutor returns a recording executor.
func NewTestExecutor(t testing.TB, opt ...Option) *TestExecutor {
	t.Helper()
	opts := GetOpts(opt...)
	return &TestExecutor{
		failOn:  opts.withFailOn,
		failErr: opts.withFailErr,
	}
}

// ExecContext records the query. It returns the configured error when the
// query is the one selected with WithFailOn; the failing statement is
// recorded too.
func (e *TestExecutor) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = append(e.statements, query)
	if e.failOn > 0 && len(e.statements) == e.failOn {
		return nil, e.failErr
	}
	return sqlmock.NewResult(0, 0), nil
}

// Count returns how many statements were issued.
func (e *TestExecutor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.statements)
}

// Statements returns a copy of the issued statements in order.
func (e *TestExecutor) Statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.statements...)
}

// TestMockDB returns a sqlmock backed sql.DB which is closed and checked for
// unmet expectations when the test completes.
func TestMockDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDb.Close()
	})
	return sqlDb, mock
}
