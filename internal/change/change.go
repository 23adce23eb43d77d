// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package change models the atomic schema mutations between a live database
// and a target definition, and the fixed risk tier each kind of mutation
// carries.
package change

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/hashicorp/stagehand/internal/errors"
)

// Type tags the kind of schema mutation.
type Type string

const (
	CreateTable   Type = "CREATE_TABLE"
	AddColumn     Type = "ADD_COLUMN"
	AddIndex      Type = "ADD_INDEX"
	AlterColumn   Type = "ALTER_COLUMN"
	AddConstraint Type = "ADD_CONSTRAINT"
	Rename        Type = "RENAME"
	Drop          Type = "DROP"
	SetNotNull    Type = "SET_NOT_NULL"
)

// Stage is the risk tier of a change. Lower stages are always applied
// first.
type Stage int

const (
	// StageAll is not a tier; it selects every stage when filtering.
	StageAll Stage = 0

	// Additive and non-breaking.
	Stage1 Stage = 1
	// Type changes and constraints.
	Stage2 Stage = 2
	// Renames, NOT NULL tightening and drops.
	Stage3 Stage = 3
)

// Stages in application order.
var Stages = []Stage{Stage1, Stage2, Stage3}

func (s Stage) String() string {
	if s == StageAll {
		return "all"
	}
	return fmt.Sprintf("stage %d", int(s))
}

// Risk is the display level derived from a Stage.
type Risk string

const (
	Low    Risk = "LOW"
	Medium Risk = "MEDIUM"
	High   Risk = "HIGH"
)

// RiskFor returns the display risk of a stage.
func RiskFor(s Stage) Risk {
	switch s {
	case Stage1:
		return Low
	case Stage2:
		return Medium
	case Stage3:
		return High
	}
	return ""
}

type classification struct {
	stage Stage
	risk  Risk
}

var classifications = map[Type]classification{
	CreateTable:   {Stage1, Low},
	AddColumn:     {Stage1, Low},
	AddIndex:      {Stage1, Low},
	AlterColumn:   {Stage2, Medium},
	AddConstraint: {Stage2, Medium},
	Rename:        {Stage3, High},
	Drop:          {Stage3, High},
	SetNotNull:    {Stage3, High},
}

// Classify returns the stage and risk of a change type. Unknown types are an
// error rather than a default tier.
func Classify(t Type) (Stage, Risk, error) {
	const op = "change.Classify"
	c, ok := classifications[t]
	if !ok {
		return 0, "", errors.New(context.Background(), errors.UnknownChangeType, op, fmt.Sprintf("unknown change type %q", t), errors.WithoutEvent())
	}
	return c.stage, c.risk, nil
}

// Change is one atomic, independently applicable schema mutation. SQL is a
// single statement and is executed as is. RollbackSQL undoes it, one
// statement per element, in order.
type Change struct {
	Stage       Stage    `json:"stage"`
	Type        Type     `json:"type"`
	Table       string   `json:"table"`
	SQL         string   `json:"sql"`
	RollbackSQL []string `json:"rollbackSql"`
	Risk        Risk     `json:"risk"`
	Description string   `json:"description"`
}

// New classifies and returns a Change.
func New(ctx context.Context, t Type, table, sql string, rollbackSQL []string, description string) (*Change, error) {
	const op = "change.New"
	stage, risk, err := Classify(t)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	switch {
	case sql == "":
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing sql")
	case len(rollbackSQL) == 0 || slices.Contains(rollbackSQL, ""):
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing rollback sql")
	case description == "":
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing description")
	}
	return &Change{
		Stage:       stage,
		Type:        t,
		Table:       table,
		SQL:         sql,
		RollbackSQL: rollbackSQL,
		Risk:        risk,
		Description: description,
	}, nil
}

func (c *Change) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", c.Stage, c.Risk, c.Type, c.Description)
}

// Sort orders changes by ascending stage, keeping discovery order within a
// stage.
func Sort(changes []*Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Stage < changes[j].Stage
	})
}

// Filter returns the changes in stage s, or all of them for StageAll.
func Filter(changes []*Change, s Stage) []*Change {
	if s == StageAll {
		return changes
	}
	var filtered []*Change
	for _, c := range changes {
		if c.Stage == s {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// CountByStage returns the number of changes in each stage.
func CountByStage(changes []*Change) map[Stage]int {
	counts := make(map[Stage]int, len(Stages))
	for _, c := range changes {
		counts[c.Stage]++
	}
	return counts
}

// HasRiskyStage reports whether any change is in stage 2 or 3.
func HasRiskyStage(changes []*Change) bool {
	for _, c := range changes {
		if c.Stage >= Stage2 {
			return true
		}
	}
	return false
}

// ParseStage validates a stage selected on the command line. Zero selects
// every stage.
func ParseStage(ctx context.Context, n int) (Stage, error) {
	const op = "change.ParseStage"
	switch s := Stage(n); s {
	case StageAll, Stage1, Stage2, Stage3:
		return s, nil
	default:
		return 0, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("stage must be 1, 2 or 3, got %d", n))
	}
}
