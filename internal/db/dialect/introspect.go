// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package dialect

import (
	"context"
	"database/sql"

	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
)

// catalogQueries are the four reads that make up an introspection. Each one
// is ordered so rows for the same table (and index or constraint) are
// adjacent and in position order.
type catalogQueries struct {
	// table, column, type, nullable, default
	columns string
	// table, column
	primaryKeys string
	// table, index, column, unique
	indexes string
	// table, constraint, column, referenced table, referenced column, delete rule
	foreignKeys string

	// literalDefault turns a catalog default into a SQL expression.
	literalDefault func(string) string
}

func introspect(ctx context.Context, q db.Querier, op errors.Op, cq catalogQueries) (*schema.Schema, error) {
	s := &schema.Schema{}
	wrap := func(err error, what string) error {
		return errors.Wrap(ctx, errors.Convert(err), op, errors.WithCode(errors.IntrospectionFailed), errors.WithMsg("unable to read %s", what))
	}

	err := eachRow(ctx, q, cq.columns, func(rows *sql.Rows) error {
		var table, column, typ string
		var nullable bool
		var def sql.NullString
		if err := rows.Scan(&table, &column, &typ, &nullable, &def); err != nil {
			return err
		}
		t := s.Table(table)
		if t == nil {
			t = &schema.Table{Name: table}
			s.Tables = append(s.Tables, t)
		}
		c := &schema.Column{Name: column, Type: typ, Nullable: nullable}
		if def.Valid {
			v := def.String
			if cq.literalDefault != nil {
				v = cq.literalDefault(v)
			}
			c.Default = &v
		}
		t.Columns = append(t.Columns, c)
		return nil
	})
	if err != nil {
		return nil, wrap(err, "columns")
	}

	err = eachRow(ctx, q, cq.primaryKeys, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		if t := s.Table(table); t != nil {
			t.PrimaryKey = append(t.PrimaryKey, column)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "primary keys")
	}

	err = eachRow(ctx, q, cq.indexes, func(rows *sql.Rows) error {
		var table, index, column string
		var unique bool
		if err := rows.Scan(&table, &index, &column, &unique); err != nil {
			return err
		}
		t := s.Table(table)
		if t == nil {
			return nil
		}
		if n := len(t.Indexes); n > 0 && t.Indexes[n-1].Name == index {
			t.Indexes[n-1].Columns = append(t.Indexes[n-1].Columns, column)
			return nil
		}
		t.Indexes = append(t.Indexes, &schema.Index{Name: index, Columns: []string{column}, Unique: unique})
		return nil
	})
	if err != nil {
		return nil, wrap(err, "indexes")
	}

	err = eachRow(ctx, q, cq.foreignKeys, func(rows *sql.Rows) error {
		var table, name, column, refTable, refColumn, onDelete string
		if err := rows.Scan(&table, &name, &column, &refTable, &refColumn, &onDelete); err != nil {
			return err
		}
		t := s.Table(table)
		if t == nil {
			return nil
		}
		if n := len(t.ForeignKeys); n > 0 && t.ForeignKeys[n-1].Name == name {
			fk := t.ForeignKeys[n-1]
			fk.Columns = append(fk.Columns, column)
			fk.RefColumns = append(fk.RefColumns, refColumn)
			return nil
		}
		t.ForeignKeys = append(t.ForeignKeys, &schema.ForeignKey{
			Name:       name,
			Columns:    []string{column},
			RefTable:   refTable,
			RefColumns: []string{refColumn},
			OnDelete:   onDelete,
		})
		return nil
	})
	if err != nil {
		return nil, wrap(err, "foreign keys")
	}

	return s.Normalize(), nil
}

func eachRow(ctx context.Context, q db.Querier, query string, f func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := f(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
