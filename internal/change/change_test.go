// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package change

import (
	"context"
	"math/rand"
	"testing"

	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		typ       Type
		wantStage Stage
		wantRisk  Risk
	}{
		{typ: CreateTable, wantStage: Stage1, wantRisk: Low},
		{typ: AddColumn, wantStage: Stage1, wantRisk: Low},
		{typ: AddIndex, wantStage: Stage1, wantRisk: Low},
		{typ: AlterColumn, wantStage: Stage2, wantRisk: Medium},
		{typ: AddConstraint, wantStage: Stage2, wantRisk: Medium},
		{typ: Rename, wantStage: Stage3, wantRisk: High},
		{typ: Drop, wantStage: Stage3, wantRisk: High},
		{typ: SetNotNull, wantStage: Stage3, wantRisk: High},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			stage, risk, err := Classify(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStage, stage)
			assert.Equal(t, tt.wantRisk, risk)
			assert.Equal(t, risk, RiskFor(stage))
		})
	}
	// every known type is covered above
	assert.Len(t, classifications, len(tests))
}

func TestClassify_unknown(t *testing.T) {
	t.Parallel()
	for _, typ := range []Type{"", "TRUNCATE", "drop"} {
		stage, risk, err := Classify(typ)
		require.Error(t, err)
		assert.True(t, errors.Match(errors.T(errors.UnknownChangeType), err))
		assert.Zero(t, stage)
		assert.Empty(t, risk)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := New(ctx, Rename, "users", "up", []string{"down"}, "rename it")
	require.NoError(t, err)
	assert.Equal(t, &Change{Stage: Stage3, Type: Rename, Table: "users", SQL: "up", RollbackSQL: []string{"down"}, Risk: High, Description: "rename it"}, c)
	assert.Equal(t, "[stage 3/HIGH] RENAME: rename it", c.String())

	_, err = New(ctx, "MERGE", "users", "up", []string{"down"}, "x")
	assert.True(t, errors.Match(errors.T(errors.UnknownChangeType), err))
	_, err = New(ctx, Drop, "users", "", []string{"down"}, "x")
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
	_, err = New(ctx, Drop, "users", "up", nil, "x")
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
	_, err = New(ctx, Drop, "users", "up", []string{"down", ""}, "x")
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
	_, err = New(ctx, Drop, "users", "up", []string{"down"}, "")
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}

func TestSort_orderingInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	types := []Type{CreateTable, AddColumn, AddIndex, AlterColumn, AddConstraint, Rename, Drop, SetNotNull}
	r := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		var changes []*Change
		n := r.Intn(20)
		for i := 0; i < n; i++ {
			c, err := New(ctx, types[r.Intn(len(types))], "t", "up", []string{"down"}, "change")
			require.NoError(t, err)
			c.Description = string(rune('a' + i))
			changes = append(changes, c)
		}
		input := append([]*Change(nil), changes...)
		Sort(changes)

		for i := 1; i < len(changes); i++ {
			require.LessOrEqual(t, changes[i-1].Stage, changes[i].Stage)
			if changes[i-1].Stage == changes[i].Stage {
				// discovery order is kept within a stage
				require.Less(t, changes[i-1].Description, changes[i].Description)
			}
		}
		assert.ElementsMatch(t, input, changes)
	}
}

func TestFilterAndCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var changes []*Change
	for _, typ := range []Type{AddColumn, AddIndex, AlterColumn, Drop} {
		c, err := New(ctx, typ, "t", "up", []string{"down"}, "x")
		require.NoError(t, err)
		changes = append(changes, c)
	}
	assert.Len(t, Filter(changes, StageAll), 4)
	assert.Len(t, Filter(changes, Stage1), 2)
	assert.Len(t, Filter(changes, Stage2), 1)
	assert.Len(t, Filter(changes, Stage3), 1)
	assert.Equal(t, map[Stage]int{Stage1: 2, Stage2: 1, Stage3: 1}, CountByStage(changes))
	assert.True(t, HasRiskyStage(changes))
	assert.False(t, HasRiskyStage(Filter(changes, Stage1)))
}

func TestParseStage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for _, n := range []int{0, 1, 2, 3} {
		s, err := ParseStage(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, Stage(n), s)
	}
	_, err := ParseStage(ctx, 4)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}
