// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package apply

import (
	"encoding/json"

	"github.com/hashicorp/stagehand/internal/change"
	"github.com/hashicorp/stagehand/internal/checkpoint"
)

// Report is the outcome of one apply run.
type Report struct {
	State  State
	DryRun bool
	Stage  change.Stage

	// Changes selected for the run, in application order.
	Changes []*change.Change
	// Applied holds every change whose SQL completed, in order.
	Applied []*change.Change
	// Failed is the change whose SQL failed, if any.
	Failed *change.Change
	// Reverted holds the changes whose inverse SQL ran, in the order it ran.
	Reverted []*change.Change

	Checkpoint *checkpoint.Info
	// Transitions is every state the run passed through.
	Transitions []State
	Err         error
}

// StageSummary counts the changes of one stage.
type StageSummary struct {
	Stage   change.Stage `json:"stage"`
	Risk    change.Risk  `json:"risk"`
	Total   int          `json:"total"`
	Applied int          `json:"applied"`
}

// Summary returns one entry per stage that has changes, in stage order.
func (r *Report) Summary() []StageSummary {
	total := change.CountByStage(r.Changes)
	applied := change.CountByStage(r.Applied)
	var s []StageSummary
	for _, st := range change.Stages {
		if total[st] == 0 {
			continue
		}
		s = append(s, StageSummary{
			Stage:   st,
			Risk:    change.RiskFor(st),
			Total:   total[st],
			Applied: applied[st],
		})
	}
	return s
}

// ExitCode is the process exit code for the run. A run that failed a change
// exits 1 even when the rollback was clean, since the target was not
// reached.
func (r *Report) ExitCode() int {
	if r.State == Succeeded {
		return 0
	}
	return 1
}

type reportJSON struct {
	State        State            `json:"state"`
	DryRun       bool             `json:"dryRun"`
	Stage        change.Stage     `json:"stage,omitempty"`
	Total        int              `json:"total"`
	AppliedCount int              `json:"appliedCount"`
	Summary      []StageSummary   `json:"summary"`
	Changes      []*change.Change `json:"changes"`
	Applied      []*change.Change `json:"applied"`
	Failed       *change.Change   `json:"failed,omitempty"`
	Reverted     []*change.Change `json:"reverted,omitempty"`
	Checkpoint   *checkpoint.Info `json:"checkpoint,omitempty"`
	Transitions  []State          `json:"transitions"`
	Error        string           `json:"error,omitempty"`
}

func (r *Report) MarshalJSON() ([]byte, error) {
	j := reportJSON{
		State:        r.State,
		DryRun:       r.DryRun,
		Stage:        r.Stage,
		Total:        len(r.Changes),
		AppliedCount: len(r.Applied),
		Summary:      r.Summary(),
		Changes:      r.Changes,
		Applied:      r.Applied,
		Failed:       r.Failed,
		Reverted:     r.Reverted,
		Checkpoint:   r.Checkpoint,
		Transitions:  r.Transitions,
	}
	if j.Changes == nil {
		j.Changes = []*change.Change{}
	}
	if j.Applied == nil {
		j.Applied = []*change.Change{}
	}
	if r.Err != nil {
		j.Error = r.Err.Error()
	}
	return json.Marshal(j)
}
