// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package dialect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/schema"
)

const (
	mysqlColumns = `
select c.table_name, c.column_name, c.column_type, c.is_nullable = 'YES', c.column_default
  from information_schema.columns c
  join information_schema.tables t
    on t.table_schema = c.table_schema
   and t.table_name = c.table_name
 where c.table_schema = database()
   and t.table_type = 'BASE TABLE'
 order by c.table_name, c.ordinal_position;
`
	mysqlPrimaryKeys = `
select table_name, column_name
  from information_schema.key_column_usage
 where table_schema = database()
   and constraint_name = 'PRIMARY'
 order by table_name, ordinal_position;
`
	mysqlIndexes = `
select table_name, index_name, column_name, non_unique = 0
  from information_schema.statistics
 where table_schema = database()
   and index_name <> 'PRIMARY'
 order by table_name, index_name, seq_in_index;
`
	mysqlForeignKeys = `
select k.table_name, k.constraint_name, k.column_name,
       k.referenced_table_name, k.referenced_column_name, r.delete_rule
  from information_schema.key_column_usage k
  join information_schema.referential_constraints r
    on r.constraint_schema = k.table_schema
   and r.constraint_name = k.constraint_name
   and r.table_name = k.table_name
 where k.table_schema = database()
   and k.referenced_table_name is not null
 order by k.table_name, k.constraint_name, k.ordinal_position;
`
)

// mysqlExpressionDefault matches catalog defaults that are already
// expressions rather than bare literals.
var mysqlExpressionDefault = regexp.MustCompile(`(?i)^(-?\d+(\.\d+)?|null|current_timestamp(\(\d*\))?|now\(\)|\(.*\)|b'[01]*')$`)

// MySQL generates statements for MySQL 8 and compatible servers.
type MySQL struct{}

var _ Dialect = (*MySQL)(nil)

func (d *MySQL) Name() string { return "mysql" }

// StorageType maps boolean spellings to tinyint(1), which is what MySQL
// creates for them.
func (d *MySQL) StorageType(t string) string {
	t = schema.NormalizeType(t)
	if t == "boolean" {
		return "tinyint(1)"
	}
	return t
}

func (d *MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// Introspect reads the schema selected by the connection's database.
func (d *MySQL) Introspect(ctx context.Context, q db.Querier) (*schema.Schema, error) {
	const op = "dialect.(MySQL).Introspect"
	return introspect(ctx, q, op, catalogQueries{
		columns:        mysqlColumns,
		primaryKeys:    mysqlPrimaryKeys,
		indexes:        mysqlIndexes,
		foreignKeys:    mysqlForeignKeys,
		literalDefault: mysqlLiteralDefault,
	})
}

// information_schema reports string defaults unquoted.
func mysqlLiteralDefault(v string) string {
	if mysqlExpressionDefault.MatchString(v) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (d *MySQL) CreateTable(t *schema.Table) string {
	return createTable(d, t)
}

func (d *MySQL) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", d.Quote(table))
}

func (d *MySQL) RenameTable(from, to string) string {
	return fmt.Sprintf("RENAME TABLE %s TO %s", d.Quote(from), d.Quote(to))
}

func (d *MySQL) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), columnDefinition(d, c))
}

func (d *MySQL) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(column))
}

func (d *MySQL) RenameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.Quote(table), d.Quote(from), d.Quote(to))
}

// AlterColumn restates the whole column, MODIFY COLUMN has no partial form.
func (d *MySQL) AlterColumn(table string, _, to *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Quote(table), columnDefinition(d, to))
}

func (d *MySQL) AddIndex(table string, i *schema.Index) string {
	return addIndex(d, table, i)
}

func (d *MySQL) DropIndex(table string, i *schema.Index) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(i.Name), d.Quote(table))
}

func (d *MySQL) AddForeignKey(table string, f *schema.ForeignKey) string {
	return addForeignKey(d, table, f)
}

func (d *MySQL) DropForeignKey(table string, f *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.Quote(table), d.Quote(f.Name))
}

func (d *MySQL) OrphanRows(table string, f *schema.ForeignKey) string {
	return orphanRows(d, table, f)
}
