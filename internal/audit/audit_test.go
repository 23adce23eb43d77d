// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var records []Record
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(s.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, s.Err())
	return records
}

func TestLog_Write(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "logs", "migration-audit.log")

	l, err := Open(ctx, path)
	require.NoError(t, err)
	r := NewRecord(ActionForceApply, "all", false)
	require.NoError(t, l.Write(ctx, r))
	require.NoError(t, l.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	// reopening appends
	l, err = Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Write(ctx, Record{Action: ActionForceRollback, Stage: "3", DryRun: true}))
	require.NoError(t, l.Close())

	records := readLines(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, ActionForceApply, records[0].Action)
	assert.Equal(t, "all", records[0].Stage)
	assert.False(t, records[0].DryRun)
	assert.Equal(t, ForceWarning, records[0].Warning)
	assert.NotEmpty(t, records[0].User)
	assert.NotEmpty(t, records[0].Hostname)
	assert.WithinDuration(t, time.Now(), records[0].Timestamp, time.Minute)

	assert.Equal(t, ActionForceRollback, records[1].Action)
	assert.True(t, records[1].DryRun)
	assert.False(t, records[1].Timestamp.IsZero())
}

func TestLog_fields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Write(ctx, NewRecord(ActionForceApply, "2", false)))
	require.NoError(t, l.Close())

	d, err := os.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(d, &fields))
	for _, k := range []string{"timestamp", "action", "user", "hostname", "stage", "dryRun", "warning"} {
		assert.Contains(t, fields, k)
	}
	assert.Len(t, fields, 7)
}

func TestOpen_invalid(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "")
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}
