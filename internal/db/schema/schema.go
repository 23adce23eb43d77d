// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package schema holds the normalized representation of a relational schema.
// Both the live database (via a dialect's introspection) and the target
// definition file produce a *Schema, and the change detector diffs the two.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// Schema is an ordered set of tables. Order is definition order for a target
// and name order for an introspected database.
type Schema struct {
	Tables []*Table `json:"tables"`
}

// Table returns the named table, or nil.
func (s *Schema) Table(name string) *Table {
	if s == nil {
		return nil
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// TableNames returns the names of every table in order.
func (s *Schema) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Fingerprint is a stable hex digest of the schema, used to recognize a
// target that has been seen before.
func (s *Schema) Fingerprint() string {
	b, _ := json.Marshal(s)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type Table struct {
	Name        string        `json:"name"`
	RenamedFrom string        `json:"renamedFrom,omitempty"`
	Columns     []*Column     `json:"columns"`
	PrimaryKey  []string      `json:"primaryKey,omitempty"`
	Indexes     []*Index      `json:"indexes,omitempty"`
	ForeignKeys []*ForeignKey `json:"foreignKeys,omitempty"`
}

// Column returns the named column, or nil. Column names compare
// case-insensitively, as they do in both supported databases.
func (t *Table) Column(name string) *Column {
	if t == nil {
		return nil
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// FindIndex returns the index with the same name, or failing that, one
// covering the same columns with the same uniqueness.
func (t *Table) FindIndex(idx *Index) *Index {
	if t == nil || idx == nil {
		return nil
	}
	for _, i := range t.Indexes {
		if strings.EqualFold(i.Name, idx.Name) {
			return i
		}
	}
	for _, i := range t.Indexes {
		if i.Unique == idx.Unique && equalFold(i.Columns, idx.Columns) {
			return i
		}
	}
	return nil
}

// FindForeignKey returns the foreign key with the same name, or failing that,
// one with the same columns and references.
func (t *Table) FindForeignKey(fk *ForeignKey) *ForeignKey {
	if t == nil || fk == nil {
		return nil
	}
	for _, f := range t.ForeignKeys {
		if strings.EqualFold(f.Name, fk.Name) {
			return f
		}
	}
	for _, f := range t.ForeignKeys {
		if strings.EqualFold(f.RefTable, fk.RefTable) &&
			equalFold(f.Columns, fk.Columns) &&
			equalFold(f.RefColumns, fk.RefColumns) {
			return f
		}
	}
	return nil
}

type Column struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Nullable    bool    `json:"nullable"`
	Default     *string `json:"default,omitempty"`
	RenamedFrom string  `json:"renamedFrom,omitempty"`
}

// Clone returns a copy of the column.
func (c *Column) Clone() *Column {
	cp := *c
	if c.Default != nil {
		d := *c.Default
		cp.Default = &d
	}
	return &cp
}

type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

type ForeignKey struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	RefTable   string   `json:"refTable"`
	RefColumns []string `json:"refColumns"`
	OnDelete   string   `json:"onDelete,omitempty"`
}

func equalFold(a, b []string) bool {
	return slices.EqualFunc(a, b, strings.EqualFold)
}
