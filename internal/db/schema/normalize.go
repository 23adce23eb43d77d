// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"regexp"
	"strings"
)

var (
	whitespace = regexp.MustCompile(`\s+`)

	// integer display widths were deprecated in MySQL 8 and are noise for
	// comparison, except tinyint(1) which is how booleans are stored.
	intDisplayWidth = regexp.MustCompile(`^(smallint|mediumint|int|bigint)\(\d+\)`)

	typeAliases = map[string]string{
		"integer":                     "int",
		"int4":                        "int",
		"int8":                        "bigint",
		"int2":                        "smallint",
		"bool":                        "boolean",
		"float8":                      "double",
		"double precision":            "double",
		"float4":                      "real",
		"timestamp without time zone": "timestamp",
		"timestamp with time zone":    "timestamptz",
		"time without time zone":      "time",
	}

	typePrefixAliases = map[string]string{
		"character varying": "varchar",
		"character":         "char",
	}
)

// NormalizeType reduces a column type to a canonical spelling so that the
// live database and a hand-written target definition compare equal when they
// describe the same type.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = whitespace.ReplaceAllString(t, " ")
	t = strings.ReplaceAll(t, " (", "(")
	t = strings.ReplaceAll(t, ", ", ",")
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	for long, short := range typePrefixAliases {
		if strings.HasPrefix(t, long+"(") {
			return short + strings.TrimPrefix(t, long)
		}
	}
	if m := intDisplayWidth.FindStringSubmatch(t); m != nil {
		t = m[1] + strings.TrimPrefix(t, m[0])
	}
	return t
}

// Normalize canonicalizes every column type in place and returns s.
func (s *Schema) Normalize() *Schema {
	if s == nil {
		return nil
	}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			c.Type = NormalizeType(c.Type)
		}
	}
	return s
}
