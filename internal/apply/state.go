// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package apply

// State of an apply run.
type State string

const (
	Pending        State = "PENDING"
	Confirming     State = "CONFIRMING"
	Checkpointing  State = "CHECKPOINTING"
	Applying       State = "APPLYING"
	Succeeded      State = "SUCCEEDED"
	Failed         State = "FAILED"
	RollingBack    State = "ROLLING_BACK"
	RolledBack     State = "ROLLED_BACK"
	RollbackFailed State = "ROLLBACK_FAILED"
)

// transitions lists the states reachable from each state. A run may stop
// in Failed from any non-terminal state, which covers a declined
// confirmation or a failed checkpoint.
var transitions = map[State][]State{
	Pending:       {Confirming, Succeeded, Failed},
	Confirming:    {Checkpointing, Applying, Failed},
	Checkpointing: {Applying, Failed},
	Applying:      {Succeeded, Failed, RollingBack},
	RollingBack:   {RolledBack, RollbackFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, RolledBack, RollbackFailed:
		return true
	}
	return false
}

func (s State) canTransition(to State) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}
