// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package dialect reads a live database into a normalized schema and writes
// the DDL statements used to move it towards a target.
package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
)

// Dialect is the database specific part of migrating a schema. Every
// statement producing method returns exactly one statement without a
// trailing semicolon.
type Dialect interface {
	// Name of the dialect, as used in configuration.
	Name() string

	// Quote an identifier.
	Quote(ident string) string

	// StorageType returns the normalized type a column declared as t is
	// stored as, so declared and introspected types compare equal.
	StorageType(t string) string

	// Introspect reads the current schema of the connected database.
	Introspect(ctx context.Context, q db.Querier) (*schema.Schema, error)

	CreateTable(t *schema.Table) string
	DropTable(table string) string
	RenameTable(from, to string) string

	AddColumn(table string, c *schema.Column) string
	DropColumn(table, column string) string
	RenameColumn(table, from, to string) string
	// AlterColumn changes the type and nullability of from to match to.
	AlterColumn(table string, from, to *schema.Column) string

	AddIndex(table string, i *schema.Index) string
	DropIndex(table string, i *schema.Index) string

	AddForeignKey(table string, f *schema.ForeignKey) string
	DropForeignKey(table string, f *schema.ForeignKey) string

	// OrphanRows is a query returning a single count of rows in table whose
	// foreign key columns reference no row in the referenced table.
	OrphanRows(table string, f *schema.ForeignKey) string
}

// New returns the Dialect for the database type.
func New(dbType db.DbType) (Dialect, error) {
	const op = "dialect.New"
	switch dbType {
	case db.MySQL:
		return &MySQL{}, nil
	case db.Postgres:
		return &Postgres{}, nil
	default:
		return nil, errors.New(context.Background(), errors.InvalidParameter, op, fmt.Sprintf("no dialect for %s database type", dbType), errors.WithoutEvent())
	}
}

func quoteList(d Dialect, idents []string) string {
	quoted := make([]string, 0, len(idents))
	for _, i := range idents {
		quoted = append(quoted, d.Quote(i))
	}
	return strings.Join(quoted, ", ")
}

func columnDefinition(d Dialect, c *schema.Column) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String()
}

func createTable(d Dialect, t *schema.Table) string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, columnDefinition(d, c))
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(d, t.PrimaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(t.Name), strings.Join(defs, ",\n  "))
}

func addForeignKey(d Dialect, table string, f *schema.ForeignKey) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Quote(table), d.Quote(f.Name), quoteList(d, f.Columns), d.Quote(f.RefTable), quoteList(d, f.RefColumns))
	if f.OnDelete != "" && f.OnDelete != "NO ACTION" {
		stmt += " ON DELETE " + f.OnDelete
	}
	return stmt
}

func addIndex(d Dialect, table string, i *schema.Index) string {
	unique := ""
	if i.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.Quote(i.Name), d.Quote(table), quoteList(d, i.Columns))
}

func orphanRows(d Dialect, table string, f *schema.ForeignKey) string {
	joins := make([]string, 0, len(f.Columns))
	notNull := make([]string, 0, len(f.Columns))
	for i, c := range f.Columns {
		joins = append(joins, fmt.Sprintf("c.%s = p.%s", d.Quote(c), d.Quote(f.RefColumns[i])))
		notNull = append(notNull, fmt.Sprintf("c.%s IS NOT NULL", d.Quote(c)))
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON %s WHERE %s AND p.%s IS NULL",
		d.Quote(table), d.Quote(f.RefTable), strings.Join(joins, " AND "), strings.Join(notNull, " AND "), d.Quote(f.RefColumns[0]))
}
