// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ErrorE(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stdErr := stderrors.New("test error")
	tests := []struct {
		name string
		opt  []errors.Option
		want error
	}{
		{
			name: "all fields",
			opt: []errors.Option{
				errors.WithWrap(stdErr),
				errors.WithMsg("test msg"),
				errors.WithOp("alice.Bob"),
				errors.WithCode(errors.CheckpointCreation),
			},
			want: &errors.Err{
				Wrapped: stdErr,
				Op:      "alice.Bob",
				Msg:     "test msg",
				Code:    errors.CheckpointCreation,
			},
		},
		{
			name: "code from wrapped Err",
			opt: []errors.Option{
				errors.WithWrap(&errors.Err{Code: errors.RollbackFailed}),
			},
			want: &errors.Err{
				Wrapped: &errors.Err{Code: errors.RollbackFailed},
				Code:    errors.RollbackFailed,
			},
		},
		{
			name: "no options",
			want: &errors.Err{Code: errors.Unknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			err := errors.E(ctx, tt.opt...)
			require.Error(t, err)
			assert.Equal(tt.want, err)
		})
	}
}

func Test_ErrorNewAndWrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	err := errors.New(ctx, errors.IntrospectionFailed, "dialect.(mysql).Introspect", "unable to list tables")
	require.Error(t, err)
	assert.True(t, errors.Match(errors.T(errors.IntrospectionFailed), err))
	assert.Equal(t, "dialect.(mysql).Introspect: unable to list tables: migration issue: error #2000", err.Error())

	wrapped := errors.Wrap(ctx, err, "change.(Detector).Detect")
	assert.True(t, errors.Match(errors.T(errors.IntrospectionFailed), wrapped))
	assert.True(t, errors.Match(errors.T(errors.Op("change.(Detector).Detect")), wrapped))
	assert.Contains(t, wrapped.Error(), "unable to list tables")

	assert.Nil(t, errors.Wrap(ctx, nil, "noop"))
}

func TestErr_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "msg and code",
			err:  &errors.Err{Op: "apply.Run", Msg: "stage 3 failed", Code: errors.ApplyStepFailed},
			want: "apply.Run: stage 3 failed: migration issue: error #2004",
		},
		{
			name: "default message",
			err:  &errors.Err{Code: errors.InvalidParameter},
			want: "invalid parameter: parameter violation: error #100",
		},
		{
			name: "wrapped same code",
			err: &errors.Err{
				Op:      "outer",
				Code:    errors.RollbackFailed,
				Wrapped: &errors.Err{Op: "inner", Code: errors.RollbackFailed, Msg: "exec failed"},
			},
			want: "outer: \ninner: exec failed: migration issue: error #2005",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
	var nilErr *errors.Err
	assert.Equal(t, "", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())
}

func TestDriverErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		err          error
		missingTable bool
		permission   bool
		unique       bool
		notNull      bool
	}{
		{name: "mysql missing table", err: &mysql.MySQLError{Number: 1146}, missingTable: true},
		{name: "mysql access denied", err: &mysql.MySQLError{Number: 1142}, permission: true},
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062}, unique: true},
		{name: "mysql null", err: &mysql.MySQLError{Number: 1048}, notNull: true},
		{name: "pgx missing table", err: &pgconn.PgError{Code: "42P01"}, missingTable: true},
		{name: "pgx permission", err: &pgconn.PgError{Code: "42501"}, permission: true},
		{name: "pq unique", err: &pq.Error{Code: "23505"}, unique: true},
		{name: "pq not null", err: &pq.Error{Code: "23502"}, notNull: true},
		{name: "plain error", err: stderrors.New("boom")},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tt.missingTable, errors.IsMissingTableError(tt.err))
			assert.Equal(tt.permission, errors.IsPermissionError(tt.err))
			assert.Equal(tt.unique, errors.IsUniqueError(tt.err))
			assert.Equal(tt.notNull, errors.IsNotNullError(tt.err))
		})
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()
	assert.Nil(t, errors.Convert(nil))
	assert.Equal(t, errors.MissingTable, errors.Convert(&mysql.MySQLError{Number: 1146}).Code)
	assert.Equal(t, errors.PermissionDenied, errors.Convert(&pgconn.PgError{Code: "42501"}).Code)
	assert.Equal(t, errors.Unknown, errors.Convert(stderrors.New("x")).Code)
	orig := &errors.Err{Code: errors.Io}
	assert.Same(t, orig, errors.Convert(orig))
}
