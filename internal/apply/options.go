// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package apply

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/audit"
	"github.com/hashicorp/stagehand/internal/change"
	"github.com/hashicorp/stagehand/internal/checkpoint"
)

// getOpts - iterate the inbound Options and return a struct.
func getOpts(opt ...Option) options {
	opts := getDefaultOptions()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option - how Options are passed as arguments.
type Option func(*options)

// options = how options are represented
type options struct {
	withLogger       hclog.Logger
	withCheckpointer Checkpointer
	withConfirmer    checkpoint.Confirmer
	withAudit        audit.Writer
	withLedger       *Ledger

	withDryRun          bool
	withStage           change.Stage
	withCheckpoint      bool
	withRollbackOnError bool
	withForce           bool
	withFingerprint     string
	withStateHook       func(State)
}

func getDefaultOptions() options {
	return options{
		withLogger:          hclog.NewNullLogger(),
		withStage:           change.StageAll,
		withRollbackOnError: true,
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithCheckpointer provides the checkpoint manager used for checkpoints and
// checkpoint restores.
func WithCheckpointer(c Checkpointer) Option {
	return func(o *options) {
		o.withCheckpointer = c
	}
}

// WithConfirmer provides the operator prompt.
func WithConfirmer(c checkpoint.Confirmer) Option {
	return func(o *options) {
		o.withConfirmer = c
	}
}

// WithAuditWriter provides where forced runs are recorded.
func WithAuditWriter(w audit.Writer) Option {
	return func(o *options) {
		o.withAudit = w
	}
}

// WithLedger provides the preview ledger.
func WithLedger(l *Ledger) Option {
	return func(o *options) {
		o.withLedger = l
	}
}

// WithDryRun logs what would run instead of running it.
func WithDryRun(b bool) Option {
	return func(o *options) {
		o.withDryRun = b
	}
}

// WithStage restricts the run to one stage.
func WithStage(s change.Stage) Option {
	return func(o *options) {
		o.withStage = s
	}
}

// WithCheckpoint takes a checkpoint even when no stage 2 or 3 change is
// pending.
func WithCheckpoint(b bool) Option {
	return func(o *options) {
		o.withCheckpoint = b
	}
}

// WithRollbackOnError controls rolling back after a failed change. It
// defaults to true.
func WithRollbackOnError(b bool) Option {
	return func(o *options) {
		o.withRollbackOnError = b
	}
}

// WithForce skips confirmation. Live forced runs are audited.
func WithForce(b bool) Option {
	return func(o *options) {
		o.withForce = b
	}
}

// WithTargetFingerprint identifies the target definition for the preview
// ledger.
func WithTargetFingerprint(f string) Option {
	return func(o *options) {
		o.withFingerprint = f
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(f func(State)) Option {
	return func(o *options) {
		o.withStateHook = f
	}
}
