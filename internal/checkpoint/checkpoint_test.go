// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * time.Minute)
		n++
		return t
	}
}

func TestNewId(t *testing.T) {
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "checkpoint-2025-01-15T09-30-00Z", NewId(ts))
}

func TestManager_Create(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		dir := filepath.Join(t.TempDir(), "checkpoints")
		b := &TestBackuper{Data: "CREATE TABLE users (id int);\n"}
		m, err := NewManager(ctx, dir, b, WithNow(testClock(start)), WithMigrationId(func() string { return "0042_add_nickname" }))
		require.NoError(err)

		info, err := m.Create(ctx, "before stage 3")
		require.NoError(err)
		assert.Equal("checkpoint-2025-01-15T10-30-00Z", info.Id)
		assert.Equal("before stage 3", info.Description)
		assert.Equal("0042_add_nickname", info.MigrationId)
		assert.Equal("mysql", info.Dialect)
		assert.Equal(int64(len(b.Data)), info.SizeBytes)
		assert.NotEmpty(info.ToolVersion)

		d, err := os.ReadFile(filepath.Join(dir, info.BackupFile))
		require.NoError(err)
		assert.Equal(b.Data, string(d))

		got, err := m.Get(ctx, info.Id)
		require.NoError(err)
		assert.Equal(info, got)

		entries, err := os.ReadDir(dir)
		require.NoError(err)
		assert.Len(entries, 2)
	})
	t.Run("dump-fails", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		dir := t.TempDir()
		m, err := NewManager(ctx, dir, &TestBackuper{DumpErr: fmt.Errorf("mysqldump: exit status 2")}, WithNow(testClock(start)))
		require.NoError(err)
		_, err = m.Create(ctx, "")
		require.Error(err)
		assert.True(errors.Match(errors.T(errors.CheckpointCreation), err))
		entries, err := os.ReadDir(dir)
		require.NoError(err)
		assert.Empty(entries)
	})
	t.Run("empty-backup", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		dir := t.TempDir()
		m, err := NewManager(ctx, dir, &TestBackuper{}, WithNow(testClock(start)))
		require.NoError(err)
		_, err = m.Create(ctx, "")
		require.Error(err)
		assert.True(errors.Match(errors.T(errors.CheckpointCreation), err))
		entries, err := os.ReadDir(dir)
		require.NoError(err)
		assert.Empty(entries)
	})
	t.Run("same-second", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, err := NewManager(ctx, t.TempDir(), &TestBackuper{Data: "x"}, WithNow(func() time.Time { return start.Add(300 * time.Millisecond) }))
		require.NoError(err)
		var ids []string
		for i := 0; i < 3; i++ {
			info, err := m.Create(ctx, fmt.Sprintf("take %d", i))
			require.NoError(err)
			assert.Equal(start, info.Timestamp)
			ids = append(ids, info.Id)
		}
		assert.Equal([]string{
			"checkpoint-2025-01-15T10-30-00Z",
			"checkpoint-2025-01-15T10-30-00Z-1",
			"checkpoint-2025-01-15T10-30-00Z-2",
		}, ids)

		infos, err := m.List(ctx)
		require.NoError(err)
		require.Len(infos, 3)
		assert.Equal(ids[2], infos[0].Id)
		assert.Equal(ids[0], infos[2].Id)
		got, err := m.Get(ctx, ids[1])
		require.NoError(err)
		assert.Equal("take 1", got.Description)
	})
}

func TestManager_List(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	dir := t.TempDir()
	m, err := NewManager(ctx, dir, &TestBackuper{Data: "x"}, WithNow(testClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))))
	require.NoError(err)

	first, err := m.Create(ctx, "first")
	require.NoError(err)
	second, err := m.Create(ctx, "second")
	require.NoError(err)
	third, err := m.Create(ctx, "third")
	require.NoError(err)

	// corrupt metadata and a missing backup are both skipped
	require.NoError(os.WriteFile(filepath.Join(dir, "checkpoint-broken.json"), []byte("{"), 0o600))
	require.NoError(os.Remove(filepath.Join(dir, second.BackupFile)))

	infos, err := m.List(ctx)
	require.NoError(err)
	require.Len(infos, 2)
	assert.Equal(third.Id, infos[0].Id)
	assert.Equal(first.Id, infos[1].Id)

	missing, err := NewManager(ctx, filepath.Join(dir, "nope"), &TestBackuper{})
	require.NoError(err)
	infos, err = missing.List(ctx)
	require.NoError(err)
	assert.Empty(infos)
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	setup := func(t *testing.T, s AppSignaler) (*Manager, *TestBackuper, *Info) {
		t.Helper()
		b := &TestBackuper{Data: "DROP TABLE IF EXISTS users;\n"}
		m, err := NewManager(ctx, t.TempDir(), b, WithNow(testClock(start)), WithSignaler(s))
		require.NoError(t, err)
		info, err := m.Create(ctx, "")
		require.NoError(t, err)
		return m, b, info
	}

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := &TestSignaler{}
		m, b, info := setup(t, s)
		c := &TestConfirmer{Answer: true}
		require.NoError(m.Restore(ctx, info.Id, c))
		assert.Equal([]string{"quiesce", "resume", "healthy"}, s.Calls())
		assert.Equal([]string{b.Data}, b.Restored())
		assert.Len(c.Prompts, 1)
	})
	t.Run("not-found", func(t *testing.T) {
		m, _, _ := setup(t, &TestSignaler{})
		err := m.Restore(ctx, "checkpoint-1999-01-01T00-00-00Z", nil)
		require.Error(t, err)
		assert.True(t, errors.Match(errors.T(errors.RecordNotFound), err))
	})
	t.Run("empty-backup", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := &TestSignaler{}
		m, b, info := setup(t, s)
		require.NoError(os.Truncate(filepath.Join(m.Dir(), info.BackupFile), 0))
		err := m.Restore(ctx, info.Id, nil)
		require.Error(err)
		assert.True(errors.Match(errors.T(errors.CheckpointInvalid), err))
		assert.Empty(s.Calls())
		assert.Empty(b.Restored())
	})
	t.Run("quiesce-fails", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := &TestSignaler{QuiesceErr: errors.New(ctx, errors.AppSignalFailed, "test", "no")}
		m, b, info := setup(t, s)
		err := m.Restore(ctx, info.Id, nil)
		require.Error(err)
		assert.True(errors.Match(errors.T(errors.AppSignalFailed), err))
		assert.Empty(b.Restored())
	})
	t.Run("restore-fails", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := &TestSignaler{}
		m, b, info := setup(t, s)
		b.RestoreErr = fmt.Errorf("psql: exit status 3")
		err := m.Restore(ctx, info.Id, nil)
		require.Error(err)
		assert.True(errors.Match(errors.T(errors.RollbackFailed), err))
		assert.Equal([]string{"quiesce"}, s.Calls())
	})
	t.Run("declined", func(t *testing.T) {
		m, _, info := setup(t, &TestSignaler{})
		err := m.Restore(ctx, info.Id, &TestConfirmer{Answer: false})
		require.Error(t, err)
		assert.True(t, errors.Match(errors.T(errors.ConfirmationDeclined), err))
	})
	t.Run("newer-major-version", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, b, info := setup(t, &TestSignaler{})
		info.ToolVersion = "99.0.0"
		require.NoError(writeJSON(m.metadataPath(info.Id), info))
		err := m.Restore(ctx, info.Id, nil)
		require.Error(err)
		assert.True(errors.Match(errors.T(errors.CheckpointInvalid), err))
		assert.Empty(b.Restored())
	})
}
