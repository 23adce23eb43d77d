// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/ast"
	"github.com/hashicorp/stagehand/internal/errors"
)

// A target definition file looks like:
//
//	table "orders" {
//	  renamed_from = "purchase_orders"
//	  primary_key  = ["id"]
//
//	  column "id"      { type = "int" }
//	  column "user_id" {
//	    type     = "int"
//	    not_null = true
//	  }
//	  column "note"    { type = "varchar(255)" }
//
//	  index "idx_orders_user" { columns = ["user_id"] }
//
//	  foreign_key "fk_orders_user" {
//	    columns     = ["user_id"]
//	    ref_table   = "users"
//	    ref_columns = ["id"]
//	    on_delete   = "CASCADE"
//	  }
//	}
//
// Columns are nullable unless not_null is set; primary key columns are always
// NOT NULL.

type tableDef struct {
	RenamedFrom string   `hcl:"renamed_from"`
	PrimaryKey  []string `hcl:"primary_key"`
}

type columnDef struct {
	Type        string  `hcl:"type"`
	NotNull     bool    `hcl:"not_null"`
	Default     *string `hcl:"default"`
	RenamedFrom string  `hcl:"renamed_from"`
}

type indexDef struct {
	Columns []string `hcl:"columns"`
	Unique  bool     `hcl:"unique"`
}

type foreignKeyDef struct {
	Columns    []string `hcl:"columns"`
	RefTable   string   `hcl:"ref_table"`
	RefColumns []string `hcl:"ref_columns"`
	OnDelete   string   `hcl:"on_delete"`
}

// LoadDefinition reads and parses a target schema definition file.
func LoadDefinition(ctx context.Context, path string) (*Schema, error) {
	const op = "schema.LoadDefinition"
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to read %s", path))
	}
	s, err := ParseDefinition(ctx, string(d))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithMsg("%s", path))
	}
	return s, nil
}

// ParseDefinition parses a target schema definition. Tables, columns, indexes
// and foreign keys keep the order they are written in.
func ParseDefinition(ctx context.Context, d string) (*Schema, error) {
	const op = "schema.ParseDefinition"
	file, err := hcl.Parse(d)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.DefinitionInvalid))
	}
	list, ok := file.Node.(*ast.ObjectList)
	if !ok {
		return nil, errors.New(ctx, errors.DefinitionInvalid, op, "definition root is not an object")
	}

	s := &Schema{}
	for _, item := range list.Filter("table").Items {
		t, err := parseTable(ctx, item)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		if s.Table(t.Name) != nil {
			return nil, errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("table %q is defined more than once", t.Name))
		}
		s.Tables = append(s.Tables, t)
	}
	if err := s.validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return s.Normalize(), nil
}

func parseTable(ctx context.Context, item *ast.ObjectItem) (*Table, error) {
	const op = "schema.parseTable"
	name, err := itemName(ctx, item, "table")
	if err != nil {
		return nil, err
	}
	var def tableDef
	if err := hcl.DecodeObject(&def, item.Val); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.DefinitionInvalid), errors.WithMsg("table %q", name))
	}
	t := &Table{
		Name:        name,
		RenamedFrom: def.RenamedFrom,
		PrimaryKey:  def.PrimaryKey,
	}
	body, ok := item.Val.(*ast.ObjectType)
	if !ok {
		return nil, errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("table %q must be a block", name))
	}

	for _, ci := range body.List.Filter("column").Items {
		cname, err := itemName(ctx, ci, "column")
		if err != nil {
			return nil, err
		}
		var c columnDef
		if err := hcl.DecodeObject(&c, ci.Val); err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.DefinitionInvalid), errors.WithMsg("column %s.%s", name, cname))
		}
		if t.Column(cname) != nil {
			return nil, errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("column %s.%s is defined more than once", name, cname))
		}
		t.Columns = append(t.Columns, &Column{
			Name:        cname,
			Type:        c.Type,
			Nullable:    !c.NotNull,
			Default:     c.Default,
			RenamedFrom: c.RenamedFrom,
		})
	}

	for _, pk := range t.PrimaryKey {
		if c := t.Column(pk); c != nil {
			c.Nullable = false
		}
	}

	for _, ii := range body.List.Filter("index").Items {
		iname, err := itemName(ctx, ii, "index")
		if err != nil {
			return nil, err
		}
		var i indexDef
		if err := hcl.DecodeObject(&i, ii.Val); err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.DefinitionInvalid), errors.WithMsg("index %q", iname))
		}
		t.Indexes = append(t.Indexes, &Index{Name: iname, Columns: i.Columns, Unique: i.Unique})
	}

	for _, fi := range body.List.Filter("foreign_key").Items {
		fname, err := itemName(ctx, fi, "foreign_key")
		if err != nil {
			return nil, err
		}
		var f foreignKeyDef
		if err := hcl.DecodeObject(&f, fi.Val); err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.DefinitionInvalid), errors.WithMsg("foreign key %q", fname))
		}
		t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
			Name:       fname,
			Columns:    f.Columns,
			RefTable:   f.RefTable,
			RefColumns: f.RefColumns,
			OnDelete:   strings.ToUpper(f.OnDelete),
		})
	}
	return t, nil
}

func itemName(ctx context.Context, item *ast.ObjectItem, kind string) (string, error) {
	const op = "schema.itemName"
	if len(item.Keys) != 1 {
		return "", errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("%s block must have exactly one name label", kind))
	}
	name, ok := item.Keys[0].Token.Value().(string)
	if !ok || name == "" {
		return "", errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("%s block has an invalid name", kind))
	}
	return name, nil
}

func (s *Schema) validate(ctx context.Context) error {
	const op = "schema.(Schema).validate"
	for _, t := range s.Tables {
		if len(t.Columns) == 0 {
			return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("table %q has no columns", t.Name))
		}
		for _, c := range t.Columns {
			if c.Type == "" {
				return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("column %s.%s has no type", t.Name, c.Name))
			}
		}
		for _, pk := range t.PrimaryKey {
			if t.Column(pk) == nil {
				return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("primary key column %s.%s is not defined", t.Name, pk))
			}
		}
		for _, i := range t.Indexes {
			if len(i.Columns) == 0 {
				return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("index %q has no columns", i.Name))
			}
			for _, c := range i.Columns {
				if t.Column(c) == nil {
					return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("index %q references unknown column %s.%s", i.Name, t.Name, c))
				}
			}
		}
		for _, f := range t.ForeignKeys {
			switch {
			case f.RefTable == "":
				return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("foreign key %q has no ref_table", f.Name))
			case len(f.Columns) == 0 || len(f.Columns) != len(f.RefColumns):
				return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("foreign key %q must list the same number of columns and ref_columns", f.Name))
			}
			for _, c := range f.Columns {
				if t.Column(c) == nil {
					return errors.New(ctx, errors.DefinitionInvalid, op, fmt.Sprintf("foreign key %q references unknown column %s.%s", f.Name, t.Name, c))
				}
			}
		}
	}
	return nil
}
