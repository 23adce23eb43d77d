// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package change

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/dialect"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
)

// Detector compares a live database with a target definition. It only reads
// from the database.
type Detector struct {
	dialect dialect.Dialect
	reader  db.Querier
	ignore  []string
	logger  hclog.Logger
}

// NewDetector creates a Detector. Supported options are WithIgnoreTables and
// WithLogger.
func NewDetector(ctx context.Context, d dialect.Dialect, r db.Querier, opt ...Option) (*Detector, error) {
	const op = "change.NewDetector"
	switch {
	case d == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing dialect")
	case r == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing reader")
	}
	opts := getOpts(opt...)
	return &Detector{
		dialect: d,
		reader:  r,
		ignore:  opts.withIgnoreTables,
		logger:  opts.withLogger,
	}, nil
}

// Current returns the introspected live schema.
func (d *Detector) Current(ctx context.Context) (*schema.Schema, error) {
	const op = "change.(Detector).Current"
	live, err := d.dialect.Introspect(ctx, d.reader)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.IntrospectionFailed))
	}
	return live, nil
}

// Detect returns the changes needed to move the live database to target,
// ordered by stage and then discovery order. An empty result means there is
// nothing to do; a failure to read the live schema is always an error.
func (d *Detector) Detect(ctx context.Context, target *schema.Schema) ([]*Change, error) {
	const op = "change.(Detector).Detect"
	if target == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing target schema")
	}
	live, err := d.Current(ctx)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	changes, err := Diff(ctx, d.dialect, live, target, d.ignore)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	d.logger.Debug("detected changes", "live_tables", len(live.Tables), "target_tables", len(target.Tables), "changes", len(changes))
	return changes, nil
}

// Diff computes the changes from live to target without touching a
// database. Tables named in ignore are left alone on both sides.
//
// Changes within a stage run before any later stage, so renames (stage 3)
// happen after everything else. Until then the renamed table and columns
// still carry their live names, and all other changes refer to them that way.
func Diff(ctx context.Context, d dialect.Dialect, live, target *schema.Schema, ignore []string) ([]*Change, error) {
	const op = "change.Diff"
	df := &differ{
		ctx:       ctx,
		d:         d,
		live:      live,
		target:    target,
		ignore:    ignore,
		liveNames: map[string]string{},
		columns:   map[string]map[string]string{},
		kept:      map[string]bool{},
	}
	if err := df.run(); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	Sort(df.changes)
	return df.changes, nil
}

type differ struct {
	ctx    context.Context
	d      dialect.Dialect
	live   *schema.Schema
	target *schema.Schema
	ignore []string

	// target table name -> live table name
	liveNames map[string]string
	// target table name -> target column name -> live column name
	columns map[string]map[string]string
	// live tables that a target table maps onto
	kept map[string]bool

	changes []*Change
}

func (df *differ) add(t Type, table, sql, rollback, format string, args ...any) error {
	return df.addWithRollback(t, table, sql, []string{rollback}, format, args...)
}

func (df *differ) addWithRollback(t Type, table, sql string, rollback []string, format string, args ...any) error {
	c, err := New(df.ctx, t, table, sql, rollback, fmt.Sprintf(format, args...))
	if err != nil {
		return err
	}
	df.changes = append(df.changes, c)
	return nil
}

func (df *differ) ignored(table string) bool {
	return slices.ContainsFunc(df.ignore, func(i string) bool { return strings.EqualFold(i, table) })
}

func (df *differ) run() error {
	// resolve table and column names first so foreign keys can refer to
	// tables defined later in the file.
	for _, tt := range df.target.Tables {
		if df.ignored(tt.Name) {
			continue
		}
		lt := df.live.Table(tt.Name)
		if lt == nil && tt.RenamedFrom != "" {
			lt = df.live.Table(tt.RenamedFrom)
		}
		if lt == nil {
			continue
		}
		df.liveNames[tt.Name] = lt.Name
		df.kept[strings.ToLower(lt.Name)] = true
		cols := map[string]string{}
		for _, tc := range tt.Columns {
			lc := lt.Column(tc.Name)
			if lc == nil && tc.RenamedFrom != "" {
				lc = lt.Column(tc.RenamedFrom)
			}
			if lc != nil {
				cols[strings.ToLower(tc.Name)] = lc.Name
			}
		}
		df.columns[tt.Name] = cols
	}

	for _, tt := range df.target.Tables {
		if df.ignored(tt.Name) {
			continue
		}
		liveName, ok := df.liveNames[tt.Name]
		if !ok {
			if err := df.createTable(tt); err != nil {
				return err
			}
			continue
		}
		if err := df.alterTable(tt, df.live.Table(liveName)); err != nil {
			return err
		}
	}
	return df.dropTables()
}

// liveColumn maps a target column of a target table to the name it has right
// now, which differs only while a rename is pending.
func (df *differ) liveColumn(table, column string) string {
	if cols, ok := df.columns[table]; ok {
		if n, ok := cols[strings.ToLower(column)]; ok {
			return n
		}
	}
	return column
}

func (df *differ) liveTable(table string) string {
	if n, ok := df.liveNames[table]; ok {
		return n
	}
	if t := df.target.Table(table); t != nil {
		if n, ok := df.liveNames[t.Name]; ok {
			return n
		}
	}
	return table
}

func (df *differ) liveIndex(table string, i *schema.Index) *schema.Index {
	cp := &schema.Index{Name: i.Name, Unique: i.Unique}
	for _, c := range i.Columns {
		cp.Columns = append(cp.Columns, df.liveColumn(table, c))
	}
	return cp
}

func (df *differ) liveForeignKey(table string, f *schema.ForeignKey) *schema.ForeignKey {
	ref := f.RefTable
	if t := df.target.Table(f.RefTable); t != nil {
		ref = t.Name
	}
	cp := &schema.ForeignKey{Name: f.Name, RefTable: df.liveTable(ref), OnDelete: f.OnDelete}
	for _, c := range f.Columns {
		cp.Columns = append(cp.Columns, df.liveColumn(table, c))
	}
	for _, c := range f.RefColumns {
		cp.RefColumns = append(cp.RefColumns, df.liveColumn(ref, c))
	}
	return cp
}

func (df *differ) createTable(tt *schema.Table) error {
	if err := df.add(CreateTable, tt.Name, df.d.CreateTable(tt), df.d.DropTable(tt.Name),
		"create table %s with %d columns", tt.Name, len(tt.Columns)); err != nil {
		return err
	}
	for _, i := range tt.Indexes {
		if err := df.addIndex(tt.Name, i); err != nil {
			return err
		}
	}
	for _, f := range tt.ForeignKeys {
		if err := df.addForeignKey(tt.Name, df.liveForeignKey(tt.Name, f)); err != nil {
			return err
		}
	}
	return nil
}

func (df *differ) addIndex(table string, i *schema.Index) error {
	kind := "index"
	if i.Unique {
		kind = "unique index"
	}
	return df.add(AddIndex, table, df.d.AddIndex(table, i), df.d.DropIndex(table, i),
		"add %s %s on %s(%s)", kind, i.Name, table, strings.Join(i.Columns, ", "))
}

func (df *differ) addForeignKey(table string, f *schema.ForeignKey) error {
	return df.add(AddConstraint, table, df.d.AddForeignKey(table, f), df.d.DropForeignKey(table, f),
		"add foreign key %s on %s(%s) referencing %s(%s)",
		f.Name, table, strings.Join(f.Columns, ", "), f.RefTable, strings.Join(f.RefColumns, ", "))
}

func (df *differ) alterTable(tt, lt *schema.Table) error {
	table := lt.Name
	targetCols := map[string]bool{}

	for _, tc := range tt.Columns {
		liveName := df.liveColumn(tt.Name, tc.Name)
		targetCols[strings.ToLower(liveName)] = true
		lc := lt.Column(liveName)
		if lc == nil {
			if err := df.addColumn(table, tc); err != nil {
				return err
			}
			continue
		}
		if err := df.alterColumn(table, lc, tc); err != nil {
			return err
		}
		if !strings.EqualFold(lc.Name, tc.Name) {
			if err := df.add(Rename, table, df.d.RenameColumn(table, lc.Name, tc.Name), df.d.RenameColumn(table, tc.Name, lc.Name),
				"rename column %s.%s to %s", table, lc.Name, tc.Name); err != nil {
				return err
			}
		}
	}

	targetIndexes := make([]*schema.Index, 0, len(tt.Indexes))
	for _, i := range tt.Indexes {
		li := df.liveIndex(tt.Name, i)
		targetIndexes = append(targetIndexes, li)
		if lt.FindIndex(li) == nil {
			if err := df.addIndex(table, li); err != nil {
				return err
			}
		}
	}
	targetFks := make([]*schema.ForeignKey, 0, len(tt.ForeignKeys))
	for _, f := range tt.ForeignKeys {
		lf := df.liveForeignKey(tt.Name, f)
		targetFks = append(targetFks, lf)
		if lt.FindForeignKey(lf) == nil {
			if err := df.addForeignKey(table, lf); err != nil {
				return err
			}
		}
	}

	// drops: foreign keys, then indexes, then columns
	target := &schema.Table{Indexes: targetIndexes, ForeignKeys: targetFks}
	for _, f := range lt.ForeignKeys {
		if target.FindForeignKey(f) != nil {
			continue
		}
		if err := df.add(Drop, table, df.d.DropForeignKey(table, f), df.d.AddForeignKey(table, f),
			"drop foreign key %s on %s", f.Name, table); err != nil {
			return err
		}
	}
	for _, i := range lt.Indexes {
		if target.FindIndex(i) != nil || backsForeignKey(lt, target, i) {
			continue
		}
		if err := df.add(Drop, table, df.d.DropIndex(table, i), df.d.AddIndex(table, i),
			"drop index %s on %s", i.Name, table); err != nil {
			return err
		}
	}
	for _, lc := range lt.Columns {
		if targetCols[strings.ToLower(lc.Name)] {
			continue
		}
		if err := df.add(Drop, table, df.d.DropColumn(table, lc.Name), df.d.AddColumn(table, lc),
			"drop column %s.%s", table, lc.Name); err != nil {
			return err
		}
	}

	if !strings.EqualFold(lt.Name, tt.Name) {
		if err := df.add(Rename, tt.Name, df.d.RenameTable(lt.Name, tt.Name), df.d.RenameTable(tt.Name, lt.Name),
			"rename table %s to %s", lt.Name, tt.Name); err != nil {
			return err
		}
	}
	return nil
}

// backsForeignKey reports whether a live index exists to support a foreign
// key that is staying. MySQL creates these implicitly.
func backsForeignKey(lt, target *schema.Table, i *schema.Index) bool {
	for _, f := range lt.ForeignKeys {
		if target.FindForeignKey(f) == nil {
			continue
		}
		if len(i.Columns) >= len(f.Columns) && equalFold(i.Columns[:len(f.Columns)], f.Columns) {
			return true
		}
	}
	return false
}

func (df *differ) addColumn(table string, tc *schema.Column) error {
	if tc.Nullable || tc.Default != nil {
		nullability := "nullable"
		if !tc.Nullable {
			nullability = "defaulted"
		}
		return df.add(AddColumn, table, df.d.AddColumn(table, tc), df.d.DropColumn(table, tc.Name),
			"add %s column %s.%s (%s)", nullability, table, tc.Name, tc.Type)
	}
	// existing rows have no value for it yet, so it starts out nullable
	nullable := tc.Clone()
	nullable.Nullable = true
	if err := df.add(AddColumn, table, df.d.AddColumn(table, nullable), df.d.DropColumn(table, tc.Name),
		"add nullable column %s.%s (%s)", table, tc.Name, tc.Type); err != nil {
		return err
	}
	return df.add(SetNotNull, table, df.d.AlterColumn(table, nullable, tc), df.d.AlterColumn(table, tc, nullable),
		"set %s.%s NOT NULL", table, tc.Name)
}

// alterColumn compares type and nullability. Defaults are not compared; the
// live default is carried through any restated column definition.
func (df *differ) alterColumn(table string, lc, tc *schema.Column) error {
	current := lc.Clone()
	if df.d.StorageType(lc.Type) != df.d.StorageType(tc.Type) {
		retyped := current.Clone()
		retyped.Type = tc.Type
		if err := df.add(AlterColumn, table, df.d.AlterColumn(table, current, retyped), df.d.AlterColumn(table, retyped, current),
			"change type of %s.%s from %s to %s", table, lc.Name, lc.Type, tc.Type); err != nil {
			return err
		}
		current = retyped
	}
	if lc.Nullable == tc.Nullable {
		return nil
	}
	changed := current.Clone()
	changed.Nullable = tc.Nullable
	if tc.Nullable {
		return df.add(AlterColumn, table, df.d.AlterColumn(table, current, changed), df.d.AlterColumn(table, changed, current),
			"allow NULL in %s.%s", table, lc.Name)
	}
	return df.add(SetNotNull, table, df.d.AlterColumn(table, current, changed), df.d.AlterColumn(table, changed, current),
		"set %s.%s NOT NULL", table, lc.Name)
}

func (df *differ) dropTables() error {
	var dropped []*schema.Table
	for _, lt := range df.live.Tables {
		if df.kept[strings.ToLower(lt.Name)] || df.ignored(lt.Name) {
			continue
		}
		dropped = append(dropped, lt)
	}
	// foreign keys between dropped tables have to go before the tables do
	for _, lt := range dropped {
		for _, f := range lt.ForeignKeys {
			if err := df.add(Drop, lt.Name, df.d.DropForeignKey(lt.Name, f), df.d.AddForeignKey(lt.Name, f),
				"drop foreign key %s on %s", f.Name, lt.Name); err != nil {
				return err
			}
		}
	}
	for _, lt := range dropped {
		restore := []string{df.d.CreateTable(lt)}
		for _, i := range lt.Indexes {
			restore = append(restore, df.d.AddIndex(lt.Name, i))
		}
		if err := df.addWithRollback(Drop, lt.Name, df.d.DropTable(lt.Name), restore,
			"drop table %s", lt.Name); err != nil {
			return err
		}
	}
	return nil
}

func equalFold(a, b []string) bool {
	return slices.EqualFunc(a, b, strings.EqualFold)
}
