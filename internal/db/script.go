// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"bytes"
	"context"
	"strings"

	"github.com/golang-migrate/migrate/v4/database/multistmt"
	"github.com/hashicorp/stagehand/internal/errors"
)

// maxScriptSize caps a single script handed to SplitStatements.
const maxScriptSize = 10 * 1 << 20

var statementDelimiter = []byte(";")

// SplitStatements splits a script on semicolons into individual statements.
// Empty statements are dropped. The delimiter is not recognized inside
// quotes, so scripts that embed semicolons in literals must be run as a
// single statement.
func SplitStatements(ctx context.Context, script string) ([]string, error) {
	const op = "db.SplitStatements"
	var stmts []string
	err := multistmt.Parse(strings.NewReader(script), statementDelimiter, maxScriptSize, func(stmt []byte) bool {
		stmt = bytes.TrimSpace(stmt)
		stmt = bytes.TrimSpace(bytes.TrimSuffix(stmt, statementDelimiter))
		if len(stmt) > 0 && !onlyComments(stmt) {
			stmts = append(stmts, string(stmt))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter), errors.WithMsg("unable to split sql script"))
	}
	return stmts, nil
}

func onlyComments(stmt []byte) bool {
	for _, l := range bytes.Split(stmt, []byte("\n")) {
		l = bytes.TrimSpace(l)
		if len(l) > 0 && !bytes.HasPrefix(l, []byte("--")) {
			return false
		}
	}
	return true
}
