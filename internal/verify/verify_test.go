// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package verify

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/dialect"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialect struct {
	*dialect.MySQL
	live  *schema.Schema
	err   error
	calls int
}

func (f *fakeDialect) Introspect(ctx context.Context, _ db.Querier) (*schema.Schema, error) {
	f.calls++
	if f.err != nil {
		return nil, errors.Wrap(ctx, f.err, "fakeDialect.Introspect", errors.WithCode(errors.IntrospectionFailed))
	}
	return f.live, nil
}

var ordersFk = &schema.ForeignKey{Name: "orders_userId_fk", Columns: []string{"userId"}, RefTable: "users", RefColumns: []string{"id"}}

func liveSchema() *schema.Schema {
	return &schema.Schema{Tables: []*schema.Table{
		{
			Name: "users",
			Columns: []*schema.Column{
				{Name: "id", Type: "int"},
				{Name: "name", Type: "varchar(255)", Nullable: true},
				{Name: "deletedAt", Type: "timestamp", Nullable: true},
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "orders",
			Columns: []*schema.Column{
				{Name: "id", Type: "int"},
				{Name: "userId", Type: "int"},
				{Name: "version", Type: "int"},
			},
			PrimaryKey:  []string{"id"},
			Indexes:     []*schema.Index{{Name: "orders_userId_idx", Columns: []string{"userId"}}},
			ForeignKeys: []*schema.ForeignKey{ordersFk},
		},
	}}
}

func testConfig(t *testing.T) Config {
	script := filepath.Join(t.TempDir(), "backup-database.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nmysqldump \"$@\"\n"), 0o700))
	return Config{
		RequiredTables:   []string{"users", "orders"},
		VersionColumn:    "version",
		VersionTables:    []string{"orders"},
		SoftDeleteColumn: "deletedAt",
		SoftDeleteTables: []string{"users"},
		BackupScripts:    []string{script},
		Target:           liveSchema(),
	}
}

func names(checks []*Check) []string {
	var n []string
	for _, c := range checks {
		n = append(n, c.Name)
	}
	return n
}

func TestVerify_pass(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	conn, mock := db.TestMockDB(t)
	d := &fakeDialect{MySQL: &dialect.MySQL{}, live: liveSchema()}
	mock.ExpectQuery(d.OrphanRows("orders", ordersFk)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	v, err := NewVerifier(ctx, d, conn, testConfig(t))
	require.NoError(err)
	r := v.Verify(ctx, WithData(true))
	assert.Equal(Pass, r.Status, r.Checks)
	assert.Equal(0, r.ExitCode())
	assert.Zero(r.Failed)
	assert.Zero(r.Skipped)
	assert.Equal(len(r.Checks), r.Passed)
	assert.Equal([]string{
		"table users",
		"table orders",
		"version column orders.version",
		"soft delete column users.deletedAt",
		"backup script " + v.cfg.BackupScripts[0],
		"pending additions",
	}, names(r.ByCategory(SchemaCategory)))
	assert.Equal([]string{"foreign key orders.orders_userId_fk"}, names(r.ByCategory(ConstraintCategory)))
	assert.Equal([]string{"index orders.orders_userId_idx"}, names(r.ByCategory(IndexCategory)))
	assert.Equal([]string{"orphan rows orders.orders_userId_fk"}, names(r.ByCategory(DataCategory)))
}

func TestVerify_failuresDoNotStopOtherChecks(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	conn, mock := db.TestMockDB(t)
	live := liveSchema()
	live.Tables[0].Columns = live.Tables[0].Columns[:2] // no deletedAt
	live.Tables[1].Indexes = nil
	d := &fakeDialect{MySQL: &dialect.MySQL{}, live: live}
	mock.ExpectQuery(d.OrphanRows("orders", ordersFk)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	cfg := testConfig(t)
	cfg.RequiredTables = append(cfg.RequiredTables, "clients")
	cfg.BackupScripts = append(cfg.BackupScripts, filepath.Join(t.TempDir(), "restore-database.sh"))
	v, err := NewVerifier(ctx, d, conn, cfg)
	require.NoError(err)
	r := v.Verify(ctx, WithData(true))
	assert.Equal(Fail, r.Status)
	assert.Equal(1, r.ExitCode())

	var failed []string
	for _, c := range r.Checks {
		if c.Status == Fail {
			failed = append(failed, c.Name)
		}
	}
	assert.Equal([]string{
		"table clients",
		"soft delete column users.deletedAt",
		"backup script " + cfg.BackupScripts[1],
		"pending additions",
		"index orders.orders_userId_idx",
		"orphan rows orders.orders_userId_fk",
	}, failed)
	assert.Equal(len(failed), r.Failed)

	pending := r.ByCategory(SchemaCategory)[len(r.ByCategory(SchemaCategory))-1]
	assert.Len(pending.Details, 2)
}

func TestVerify_skips(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	conn, _ := db.TestMockDB(t)
	d := &fakeDialect{MySQL: &dialect.MySQL{}, live: liveSchema()}
	v, err := NewVerifier(ctx, d, conn, testConfig(t))
	require.NoError(err)

	// data checks are off unless asked for
	r := v.Verify(ctx)
	require.Len(r.ByCategory(DataCategory), 1)
	assert.Equal(Skip, r.ByCategory(DataCategory)[0].Status)
	assert.Equal(Pass, r.Status)

	r = v.Verify(ctx, WithConstraints(false), WithIndexes(false))
	assert.Equal(Skip, r.ByCategory(ConstraintCategory)[0].Status)
	assert.Equal(Skip, r.ByCategory(IndexCategory)[0].Status)
	assert.Equal(3, r.Skipped)

	// running again gives the same answer
	again := v.Verify(ctx, WithConstraints(false), WithIndexes(false))
	assert.Equal(r, again)
}

func TestVerify_introspectionFailure(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	conn, _ := db.TestMockDB(t)
	d := &fakeDialect{MySQL: &dialect.MySQL{}, err: stderrors.New("access denied")}
	cfg := testConfig(t)
	v, err := NewVerifier(ctx, d, conn, cfg)
	require.NoError(err)
	r := v.Verify(ctx, WithData(true))
	assert.Equal(Fail, r.Status)
	assert.Equal(1, d.calls)
	for _, c := range r.Checks {
		if c.Name == "backup script "+cfg.BackupScripts[0] {
			assert.Equal(Pass, c.Status)
			continue
		}
		assert.Equal(Fail, c.Status, c.Name)
	}
	for _, cat := range []Category{SchemaCategory, ConstraintCategory, IndexCategory, DataCategory} {
		assert.NotEmpty(r.ByCategory(cat), cat)
	}
}

func TestNewVerifier(t *testing.T) {
	ctx := context.Background()
	conn, _ := db.TestMockDB(t)
	_, err := NewVerifier(ctx, nil, conn, Config{})
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
	_, err = NewVerifier(ctx, &dialect.MySQL{}, nil, Config{})
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}
