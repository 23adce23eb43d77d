// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	path := filepath.Join(t.TempDir(), "checkpoints", LedgerFile)
	l := NewLedger(path)

	ok, err := l.Previewed(ctx, "abc")
	require.NoError(err)
	assert.False(ok)

	require.NoError(l.Record(ctx, "abc"))
	ok, err = l.Previewed(ctx, "abc")
	require.NoError(err)
	assert.True(ok)

	// a second ledger on the same file sees the preview
	ok, err = NewLedger(path).Previewed(ctx, "abc")
	require.NoError(err)
	assert.True(ok)
	ok, err = NewLedger(path).Previewed(ctx, "def")
	require.NoError(err)
	assert.False(ok)

	require.NoError(os.WriteFile(path, []byte("not json"), 0o600))
	_, err = l.Previewed(ctx, "abc")
	assert.Error(err)
}

func TestState(t *testing.T) {
	for _, s := range []State{Succeeded, Failed, RolledBack, RollbackFailed} {
		assert.True(t, s.Terminal(), s)
		assert.Empty(t, transitions[s], s)
	}
	for _, s := range []State{Pending, Confirming, Checkpointing, Applying, RollingBack} {
		assert.False(t, s.Terminal(), s)
	}
	assert.True(t, Applying.canTransition(RollingBack))
	assert.False(t, Checkpointing.canTransition(RollingBack))
	assert.Equal(t, 0, (&Report{State: Succeeded}).ExitCode())
	for _, s := range []State{Failed, RolledBack, RollbackFailed} {
		assert.Equal(t, 1, (&Report{State: s}).ExitCode(), s)
	}
}
