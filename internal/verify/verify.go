// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package verify runs read-only assertions against a live schema. Every check
// always runs; a failing check never stops the ones after it.
package verify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/change"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/dialect"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
)

// Config is what the live schema is expected to provide.
type Config struct {
	RequiredTables []string

	// VersionColumn must exist on each of VersionTables.
	VersionColumn string
	VersionTables []string

	// SoftDeleteColumn must exist on each of SoftDeleteTables.
	SoftDeleteColumn string
	SoftDeleteTables []string

	// BackupScripts must exist on disk.
	BackupScripts []string

	// Target is the schema definition, if one is configured. Constraint and
	// index checks compare against it.
	Target       *schema.Schema
	IgnoreTables []string
}

// Verifier checks one database.
type Verifier struct {
	dialect dialect.Dialect
	reader  db.Querier
	cfg     Config
	logger  hclog.Logger
}

// NewVerifier returns a Verifier. WithLogger is the only supported option.
func NewVerifier(ctx context.Context, d dialect.Dialect, r db.Querier, cfg Config, opt ...Option) (*Verifier, error) {
	const op = "verify.NewVerifier"
	switch {
	case d == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing dialect")
	case r == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing reader")
	}
	opts := getOpts(opt...)
	return &Verifier{
		dialect: d,
		reader:  r,
		cfg:     cfg,
		logger:  opts.withLogger,
	}, nil
}

// Verify runs every check. Supported options are WithConstraints,
// WithIndexes and WithData.
func (v *Verifier) Verify(ctx context.Context, opt ...Option) *Result {
	opts := getOpts(opt...)
	r := newResult()

	live, err := v.dialect.Introspect(ctx, v.reader)
	if err != nil {
		v.logger.Error("unable to read live schema", "error", err)
	}

	v.schemaChecks(ctx, r, live, err)

	switch {
	case !opts.withConstraints:
		r.skip(ConstraintCategory, "foreign keys", "constraint checks disabled")
	default:
		v.constraintChecks(r, live, err)
	}

	switch {
	case !opts.withIndexes:
		r.skip(IndexCategory, "indexes", "index checks disabled")
	default:
		v.indexChecks(r, live, err)
	}

	switch {
	case !opts.withData:
		r.skip(DataCategory, "orphan rows", "data checks disabled")
	default:
		v.dataChecks(ctx, r, live, err)
	}

	v.logger.Info("verification complete", "status", r.Status, "passed", r.Passed, "failed", r.Failed, "skipped", r.Skipped)
	return r
}

func introspectionFailure(err error) string {
	return fmt.Sprintf("unable to read live schema: %v", err)
}

func (v *Verifier) schemaChecks(ctx context.Context, r *Result, live *schema.Schema, liveErr error) {
	if liveErr != nil {
		r.fail(SchemaCategory, "live schema", introspectionFailure(liveErr))
	}
	for _, t := range v.cfg.RequiredTables {
		name := "table " + t
		switch {
		case liveErr != nil:
			r.fail(SchemaCategory, name, introspectionFailure(liveErr))
		case live.Table(t) == nil:
			r.fail(SchemaCategory, name, fmt.Sprintf("required table %s is missing", t))
		default:
			r.pass(SchemaCategory, name, fmt.Sprintf("table %s exists", t))
		}
	}
	v.columnChecks(r, live, liveErr, "version column", v.cfg.VersionColumn, v.cfg.VersionTables)
	v.columnChecks(r, live, liveErr, "soft delete column", v.cfg.SoftDeleteColumn, v.cfg.SoftDeleteTables)

	for _, p := range v.cfg.BackupScripts {
		name := "backup script " + p
		fi, err := os.Stat(p)
		switch {
		case err != nil:
			r.fail(SchemaCategory, name, fmt.Sprintf("backup script %s is missing", p))
		case fi.IsDir():
			r.fail(SchemaCategory, name, fmt.Sprintf("%s is a directory", p))
		case fi.Size() == 0:
			r.fail(SchemaCategory, name, fmt.Sprintf("backup script %s is empty", p))
		default:
			r.pass(SchemaCategory, name, fmt.Sprintf("backup script %s exists", p))
		}
	}

	if v.cfg.Target == nil {
		return
	}
	const name = "pending additions"
	if liveErr != nil {
		r.fail(SchemaCategory, name, introspectionFailure(liveErr))
		return
	}
	changes, err := change.Diff(ctx, v.dialect, live, v.cfg.Target, v.cfg.IgnoreTables)
	if err != nil {
		r.fail(SchemaCategory, name, fmt.Sprintf("unable to compare with target schema: %v", err))
		return
	}
	pending := change.Filter(changes, change.Stage1)
	if len(pending) == 0 {
		r.pass(SchemaCategory, name, "no stage 1 changes pending")
		return
	}
	details := make([]string, 0, len(pending))
	for _, c := range pending {
		details = append(details, c.Description)
	}
	r.fail(SchemaCategory, name, fmt.Sprintf("%d stage 1 change(s) not applied", len(pending)), details...)
}

func (v *Verifier) columnChecks(r *Result, live *schema.Schema, liveErr error, kind, column string, tables []string) {
	for _, t := range tables {
		name := fmt.Sprintf("%s %s.%s", kind, t, column)
		switch {
		case liveErr != nil:
			r.fail(SchemaCategory, name, introspectionFailure(liveErr))
		case column == "":
			r.fail(SchemaCategory, name, fmt.Sprintf("no %s name configured", kind))
		case live.Table(t) == nil:
			r.fail(SchemaCategory, name, fmt.Sprintf("table %s is missing", t))
		case live.Table(t).Column(column) == nil:
			r.fail(SchemaCategory, name, fmt.Sprintf("table %s has no %s column", t, column))
		default:
			r.pass(SchemaCategory, name, fmt.Sprintf("%s.%s exists", t, column))
		}
	}
}

// targetTables are the target tables that verification compares, ignored
// ones excluded.
func (v *Verifier) targetTables() []*schema.Table {
	if v.cfg.Target == nil {
		return nil
	}
	var tables []*schema.Table
	for _, t := range v.cfg.Target.Tables {
		ignored := false
		for _, i := range v.cfg.IgnoreTables {
			if strings.EqualFold(i, t.Name) {
				ignored = true
				break
			}
		}
		if !ignored {
			tables = append(tables, t)
		}
	}
	return tables
}

func (v *Verifier) constraintChecks(r *Result, live *schema.Schema, liveErr error) {
	if v.cfg.Target == nil {
		r.skip(ConstraintCategory, "foreign keys", "no target schema configured")
		return
	}
	if liveErr != nil {
		r.fail(ConstraintCategory, "foreign keys", introspectionFailure(liveErr))
		return
	}
	checked := 0
	for _, t := range v.targetTables() {
		lt := live.Table(t.Name)
		for _, f := range t.ForeignKeys {
			checked++
			name := fmt.Sprintf("foreign key %s.%s", t.Name, f.Name)
			if lt.FindForeignKey(f) == nil {
				r.fail(ConstraintCategory, name, fmt.Sprintf("%s (%s) -> %s (%s) is missing", t.Name, strings.Join(f.Columns, ", "), f.RefTable, strings.Join(f.RefColumns, ", ")))
				continue
			}
			r.pass(ConstraintCategory, name, "present")
		}
	}
	if checked == 0 {
		r.skip(ConstraintCategory, "foreign keys", "target schema declares no foreign keys")
	}
}

func (v *Verifier) indexChecks(r *Result, live *schema.Schema, liveErr error) {
	if v.cfg.Target == nil {
		r.skip(IndexCategory, "indexes", "no target schema configured")
		return
	}
	if liveErr != nil {
		r.fail(IndexCategory, "indexes", introspectionFailure(liveErr))
		return
	}
	checked := 0
	for _, t := range v.targetTables() {
		lt := live.Table(t.Name)
		for _, i := range t.Indexes {
			checked++
			name := fmt.Sprintf("index %s.%s", t.Name, i.Name)
			if lt.FindIndex(i) == nil {
				r.fail(IndexCategory, name, fmt.Sprintf("index on %s (%s) is missing", t.Name, strings.Join(i.Columns, ", ")))
				continue
			}
			r.pass(IndexCategory, name, "present")
		}
	}
	if checked == 0 {
		r.skip(IndexCategory, "indexes", "target schema declares no indexes")
	}
}

func (v *Verifier) dataChecks(ctx context.Context, r *Result, live *schema.Schema, liveErr error) {
	if liveErr != nil {
		r.fail(DataCategory, "orphan rows", introspectionFailure(liveErr))
		return
	}
	checked := 0
	for _, t := range live.Tables {
		for _, f := range t.ForeignKeys {
			checked++
			name := fmt.Sprintf("orphan rows %s.%s", t.Name, f.Name)
			var n int64
			if err := v.reader.QueryRowContext(ctx, v.dialect.OrphanRows(t.Name, f)).Scan(&n); err != nil {
				r.fail(DataCategory, name, fmt.Sprintf("unable to count orphan rows: %v", err))
				continue
			}
			if n > 0 {
				r.fail(DataCategory, name, fmt.Sprintf("%d row(s) in %s reference missing %s rows", n, t.Name, f.RefTable))
				continue
			}
			r.pass(DataCategory, name, "no orphan rows")
		}
	}
	if checked == 0 {
		r.skip(DataCategory, "orphan rows", "no foreign keys to check")
	}
}
