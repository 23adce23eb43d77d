// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package rollback

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/audit"
	"github.com/hashicorp/stagehand/internal/checkpoint"
	"github.com/hashicorp/stagehand/internal/journal"
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
	withCheckpoints  Checkpoints
	withJournal      *journal.Journal
	withRollbacksDir string
	withConfirmer    checkpoint.Confirmer
	withAudit        audit.Writer

	withDryRun bool
	withForce  bool
}

func getDefaultOptions() options {
	return options{
		withLogger: hclog.NewNullLogger(),
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

// WithCheckpoints provides the checkpoint manager.
func WithCheckpoints(c Checkpoints) Option {
	return func(o *options) {
		o.withCheckpoints = c
	}
}

// WithJournal provides the applied migrations.
func WithJournal(j *journal.Journal) Option {
	return func(o *options) {
		o.withJournal = j
	}
}

// WithRollbacksDir provides the directory holding the down scripts.
func WithRollbacksDir(dir string) Option {
	return func(o *options) {
		o.withRollbacksDir = dir
	}
}

// WithConfirmer provides the operator prompt.
func WithConfirmer(c checkpoint.Confirmer) Option {
	return func(o *options) {
		o.withConfirmer = c
	}
}

// WithAuditWriter provides where forced rollbacks are recorded.
func WithAuditWriter(w audit.Writer) Option {
	return func(o *options) {
		o.withAudit = w
	}
}

// WithDryRun prints the plan without executing it.
func WithDryRun(b bool) Option {
	return func(o *options) {
		o.withDryRun = b
	}
}

// WithForce skips confirmation. Live forced rollbacks are audited.
func WithForce(b bool) Option {
	return func(o *options) {
		o.withForce = b
	}
}
