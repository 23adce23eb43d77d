// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "single-no-delimiter",
			script: "ALTER TABLE `users` DROP COLUMN `nickname`",
			want:   []string{"ALTER TABLE `users` DROP COLUMN `nickname`"},
		},
		{
			name:   "multiple",
			script: "CREATE TABLE t (id int);\nCREATE INDEX t_id ON t (id);\n",
			want:   []string{"CREATE TABLE t (id int)", "CREATE INDEX t_id ON t (id)"},
		},
		{
			name:   "comments-and-blanks",
			script: "-- down migration\n;\n\nDROP TABLE t;\n-- trailing\n",
			want:   []string{"DROP TABLE t"},
		},
		{
			name:   "empty",
			script: "  \n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitStatements(ctx, tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
