// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/lib/pq"
)

const (
	postgresColumns = `
select c.relname, a.attname, format_type(a.atttypid, a.atttypmod), not a.attnotnull,
       pg_get_expr(d.adbin, d.adrelid)
  from pg_catalog.pg_class c
  join pg_catalog.pg_namespace n
    on n.oid = c.relnamespace
  join pg_catalog.pg_attribute a
    on a.attrelid = c.oid
   and a.attnum > 0
   and not a.attisdropped
  left join pg_catalog.pg_attrdef d
    on d.adrelid = c.oid
   and d.adnum = a.attnum
 where c.relkind = 'r'
   and n.nspname = current_schema()
 order by c.relname, a.attnum;
`
	postgresPrimaryKeys = `
select tc.table_name, kcu.column_name
  from information_schema.table_constraints tc
  join information_schema.key_column_usage kcu
    on kcu.constraint_schema = tc.constraint_schema
   and kcu.constraint_name = tc.constraint_name
 where tc.constraint_type = 'PRIMARY KEY'
   and tc.table_schema = current_schema()
 order by tc.table_name, kcu.ordinal_position;
`
	postgresIndexes = `
select t.relname, i.relname, a.attname, ix.indisunique
  from pg_catalog.pg_index ix
  join pg_catalog.pg_class t
    on t.oid = ix.indrelid
  join pg_catalog.pg_class i
    on i.oid = ix.indexrelid
  join pg_catalog.pg_namespace n
    on n.oid = t.relnamespace
 cross join lateral unnest(ix.indkey) with ordinality as k(attnum, ord)
  join pg_catalog.pg_attribute a
    on a.attrelid = t.oid
   and a.attnum = k.attnum
 where n.nspname = current_schema()
   and not ix.indisprimary
 order by t.relname, i.relname, k.ord;
`
	postgresForeignKeys = `
select cl.relname, con.conname, a.attname, rcl.relname, ra.attname,
       case con.confdeltype
         when 'c' then 'CASCADE'
         when 'n' then 'SET NULL'
         when 'd' then 'SET DEFAULT'
         when 'r' then 'RESTRICT'
         else 'NO ACTION'
       end
  from pg_catalog.pg_constraint con
  join pg_catalog.pg_class cl
    on cl.oid = con.conrelid
  join pg_catalog.pg_namespace n
    on n.oid = cl.relnamespace
  join pg_catalog.pg_class rcl
    on rcl.oid = con.confrelid
 cross join lateral unnest(con.conkey, con.confkey) with ordinality as k(attnum, refattnum, ord)
  join pg_catalog.pg_attribute a
    on a.attrelid = con.conrelid
   and a.attnum = k.attnum
  join pg_catalog.pg_attribute ra
    on ra.attrelid = con.confrelid
   and ra.attnum = k.refattnum
 where con.contype = 'f'
   and n.nspname = current_schema()
 order by cl.relname, con.conname, k.ord;
`
)

// Postgres generates statements for PostgreSQL, scoped to current_schema().
type Postgres struct{}

var _ Dialect = (*Postgres)(nil)

func (d *Postgres) Name() string { return "postgres" }

func (d *Postgres) StorageType(t string) string { return schema.NormalizeType(t) }

func (d *Postgres) Quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

// Introspect reads the connection's current schema.
func (d *Postgres) Introspect(ctx context.Context, q db.Querier) (*schema.Schema, error) {
	const op = "dialect.(Postgres).Introspect"
	return introspect(ctx, q, op, catalogQueries{
		columns:     postgresColumns,
		primaryKeys: postgresPrimaryKeys,
		indexes:     postgresIndexes,
		foreignKeys: postgresForeignKeys,
	})
}

func (d *Postgres) CreateTable(t *schema.Table) string {
	return createTable(d, t)
}

func (d *Postgres) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", d.Quote(table))
}

func (d *Postgres) RenameTable(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(from), d.Quote(to))
}

func (d *Postgres) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), columnDefinition(d, c))
}

func (d *Postgres) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(column))
}

func (d *Postgres) RenameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.Quote(table), d.Quote(from), d.Quote(to))
}

// AlterColumn only emits the clauses that differ, combined into one
// statement.
func (d *Postgres) AlterColumn(table string, from, to *schema.Column) string {
	col := d.Quote(to.Name)
	var clauses []string
	if from == nil || from.Type != to.Type {
		clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", col, to.Type, col, to.Type))
	}
	if from == nil || from.Nullable != to.Nullable {
		if to.Nullable {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", col))
		} else {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", col))
		}
	}
	return fmt.Sprintf("ALTER TABLE %s %s", d.Quote(table), strings.Join(clauses, ", "))
}

func (d *Postgres) AddIndex(table string, i *schema.Index) string {
	return addIndex(d, table, i)
}

func (d *Postgres) DropIndex(_ string, i *schema.Index) string {
	return fmt.Sprintf("DROP INDEX %s", d.Quote(i.Name))
}

func (d *Postgres) AddForeignKey(table string, f *schema.ForeignKey) string {
	return addForeignKey(d, table, f)
}

func (d *Postgres) DropForeignKey(table string, f *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Quote(table), d.Quote(f.Name))
}

func (d *Postgres) OrphanRows(table string, f *schema.ForeignKey) string {
	return orphanRows(d, table, f)
}
