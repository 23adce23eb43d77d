// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagSets_Parse(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	var (
		dryRun  bool
		stage   int
		target  string
		ignored []string
	)
	sets := NewFlagSets(cli.NewMockUi())
	f := sets.NewFlagSet("Command Options")
	f.BoolVar(&BoolVar{Name: "dry-run", Target: &dryRun})
	f.IntVar(&IntVar{Name: "stage", Target: &stage})
	f.StringVar(&StringVar{Name: "to-migration", Target: &target})
	f.StringSliceVar(&StringSliceVar{Name: "ignore", Target: &ignored, Default: []string{"__drizzle_migrations"}})

	require.NoError(sets.Parse([]string{"-dry-run", "-stage=2", "--to-migration", "0003_nickname", "-ignore", "a, b", "-ignore=c", "extra"}))
	assert.True(dryRun)
	assert.Equal(2, stage)
	assert.Equal("0003_nickname", target)
	assert.Equal([]string{"a", "b", "c"}, ignored)
	assert.Equal([]string{"extra"}, sets.Args())
	assert.True(sets.IsSet("stage"))
	assert.False(sets.IsSet("missing"))

	help := sets.Help()
	assert.Contains(help, "Command Options:")
	assert.Contains(help, "-stage=<int>")
	assert.Contains(help, "The default is __drizzle_migrations.")
}

func TestFlagSets_ParseInvalid(t *testing.T) {
	var stage int
	sets := NewFlagSets(cli.NewMockUi())
	sets.NewFlagSet("Command Options").IntVar(&IntVar{Name: "stage", Target: &stage})
	err := sets.Parse([]string{"-stage=two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"two" is not an integer`)
}

func TestFlagSet_EnvVar(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("TEST_STAGEHAND_FORCE", "true")
	t.Setenv("TEST_STAGEHAND_FORMAT", "json")
	t.Setenv("TEST_STAGEHAND_TABLES", "users, orders")

	var (
		force  bool
		format string
		tables []string
	)
	sets := NewFlagSets(cli.NewMockUi())
	f := sets.NewFlagSet("Options")
	f.BoolVar(&BoolVar{Name: "force", Target: &force, EnvVar: "TEST_STAGEHAND_FORCE"})
	f.StringVar(&StringVar{Name: "format", Target: &format, Default: "table", EnvVar: "TEST_STAGEHAND_FORMAT"})
	f.StringSliceVar(&StringSliceVar{Name: "tables", Target: &tables, EnvVar: "TEST_STAGEHAND_TABLES"})
	require.NoError(t, sets.Parse(nil))

	assert.True(force)
	assert.Equal("json", format)
	assert.Equal([]string{"users", "orders"}, tables)
	assert.Contains(sets.Help(), "TEST_STAGEHAND_FORMAT")
}

func TestFlagSet_Hidden(t *testing.T) {
	var secret string
	sets := NewFlagSets(cli.NewMockUi())
	sets.NewFlagSet("Options").StringVar(&StringVar{Name: "secret", Target: &secret, Hidden: true})
	require.NoError(t, sets.Parse([]string{"-secret=x"}))
	assert.Equal(t, "x", secret)
	assert.NotContains(t, sets.Help(), "secret")
}
