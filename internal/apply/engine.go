// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package apply

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/stagehand/internal/audit"
	"github.com/hashicorp/stagehand/internal/change"
	"github.com/hashicorp/stagehand/internal/checkpoint"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/errors"
)

// Checkpointer takes and restores checkpoints. *checkpoint.Manager
// satisfies it.
type Checkpointer interface {
	Create(ctx context.Context, description string) (*checkpoint.Info, error)
	Restore(ctx context.Context, id string, c checkpoint.Confirmer) error
}

var _ Checkpointer = (*checkpoint.Manager)(nil)

// Engine applies classified changes to one database.
type Engine struct {
	exec        db.Executor
	checkpoints Checkpointer
	confirmer   checkpoint.Confirmer
	audit       audit.Writer
	ledger      *Ledger
	logger      hclog.Logger
}

// NewEngine returns an Engine running statements through exec. Supported
// options are WithCheckpointer, WithConfirmer, WithAuditWriter, WithLedger
// and WithLogger.
func NewEngine(ctx context.Context, exec db.Executor, opt ...Option) (*Engine, error) {
	const op = "apply.NewEngine"
	if exec == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing executor")
	}
	opts := getOpts(opt...)
	return &Engine{
		exec:        exec,
		checkpoints: opts.withCheckpointer,
		confirmer:   opts.withConfirmer,
		audit:       opts.withAudit,
		ledger:      opts.withLedger,
		logger:      opts.withLogger,
	}, nil
}

// run is the state of a single Run call.
type run struct {
	*Engine
	opts   options
	report *Report
}

func (r *run) transition(ctx context.Context, to State) {
	from := r.report.State
	if !from.canTransition(to) {
		// a programming error, the run continues so the report stays accurate
		r.logger.Error("unexpected apply state transition", "from", from, "to", to)
	}
	r.report.State = to
	r.report.Transitions = append(r.report.Transitions, to)
	r.logger.Debug("apply state", "from", from, "to", to)
	if r.opts.withStateHook != nil {
		r.opts.withStateHook(to)
	}
}

// abort ends the run in Failed before anything was mutated.
func (r *run) abort(ctx context.Context, err error) (*Report, error) {
	r.report.Err = err
	r.transition(ctx, Failed)
	return r.report, err
}

// Run applies changes. The changes are filtered by WithStage and applied in
// stage order, keeping the given order within a stage.
//
// An error is returned only when the run stopped before applying anything:
// invalid changes, a declined confirmation, a failed audit write or a failed
// checkpoint. A failure while applying is reported through the Report's
// State and Err.
//
// Supported options are WithDryRun, WithStage, WithCheckpoint,
// WithRollbackOnError, WithForce, WithTargetFingerprint and WithStateHook.
func (e *Engine) Run(ctx context.Context, changes []*change.Change, opt ...Option) (*Report, error) {
	const op = "apply.(Engine).Run"
	opts := getOpts(opt...)
	selected := append([]*change.Change(nil), change.Filter(changes, opts.withStage)...)
	change.Sort(selected)
	r := &run{
		Engine: e,
		opts:   opts,
		report: &Report{
			State:       Pending,
			DryRun:      opts.withDryRun,
			Stage:       opts.withStage,
			Changes:     selected,
			Transitions: []State{Pending},
		},
	}

	if err := r.auditForce(ctx); err != nil {
		return r.abort(ctx, errors.Wrap(ctx, err, op))
	}

	// validation is identical for dry and live runs
	for _, c := range selected {
		if err := validate(ctx, c); err != nil {
			return r.abort(ctx, errors.Wrap(ctx, err, op))
		}
	}

	if len(selected) == 0 {
		r.logger.Info("no pending changes", "stage", opts.withStage)
		r.transition(ctx, Succeeded)
		return r.report, r.recordPreview(ctx)
	}

	if opts.withForce && !opts.withDryRun && r.ledger != nil && opts.withFingerprint != "" {
		previewed, err := r.ledger.Previewed(ctx, opts.withFingerprint)
		if err != nil {
			return r.abort(ctx, errors.Wrap(ctx, err, op))
		}
		if !previewed {
			return r.abort(ctx, errors.New(ctx, errors.InvalidParameter, op, "this target has never been previewed; run with -dry-run before using -force"))
		}
	}

	r.transition(ctx, Confirming)
	if err := r.confirm(ctx); err != nil {
		return r.abort(ctx, errors.Wrap(ctx, err, op))
	}

	if opts.withCheckpoint || change.HasRiskyStage(selected) {
		r.transition(ctx, Checkpointing)
		if err := r.checkpoint(ctx); err != nil {
			return r.abort(ctx, errors.Wrap(ctx, err, op))
		}
	}

	r.transition(ctx, Applying)
	for _, c := range selected {
		if err := r.applyChange(ctx, c); err != nil {
			r.report.Failed = c
			r.report.Err = errors.Wrap(ctx, err, op, errors.WithCode(errors.ApplyStepFailed), errors.WithMsg("%s failed", c.Stage))
			r.logger.Error("change failed", "stage", c.Stage, "type", c.Type, "table", c.Table, "applied", len(r.report.Applied), "total", len(selected), "error", err)
			r.recover(ctx)
			return r.report, nil
		}
		r.report.Applied = append(r.report.Applied, c)
	}
	r.transition(ctx, Succeeded)
	if opts.withDryRun {
		r.logger.Info("dry run complete, no changes were made", "changes", len(selected))
	} else {
		r.logger.Info("all changes applied", "changes", len(selected))
	}
	return r.report, r.recordPreview(ctx)
}

func validate(ctx context.Context, c *change.Change) error {
	const op = "apply.validate"
	if c == nil {
		return errors.New(ctx, errors.InvalidParameter, op, "nil change")
	}
	stage, _, err := change.Classify(c.Type)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if stage != c.Stage {
		return errors.New(ctx, errors.UnknownChangeType, op, fmt.Sprintf("%s change %q is tagged %s but classifies as %s", c.Type, c.Description, c.Stage, stage))
	}
	if strings.TrimSpace(c.SQL) == "" {
		return errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("change %q has no sql", c.Description))
	}
	return nil
}

// auditForce records a forced live run before anything else happens, so runs
// that turn out to be no-ops or are refused still leave exactly one record.
func (r *run) auditForce(ctx context.Context) error {
	const op = "apply.(run).auditForce"
	if !r.opts.withForce || r.opts.withDryRun {
		return nil
	}
	if r.audit == nil {
		return errors.New(ctx, errors.InvalidConfiguration, op, "-force requires an audit log")
	}
	rec := audit.NewRecord(audit.ActionForceApply, r.opts.withStage.String(), false)
	if err := r.audit.Write(ctx, rec); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithMsg("unable to write audit record"))
	}
	r.logger.Warn("confirmation skipped with -force", "user", rec.User, "hostname", rec.Hostname)
	return nil
}

func (r *run) confirm(ctx context.Context) error {
	const op = "apply.(run).confirm"
	if r.opts.withDryRun || r.opts.withForce {
		return nil
	}
	if r.confirmer == nil {
		return errors.New(ctx, errors.InvalidConfiguration, op, "confirmation required but no prompt available; use -force")
	}
	ok, err := r.confirmer.Confirm(ctx, confirmPrompt(r.report))
	switch {
	case err != nil:
		return errors.Wrap(ctx, err, op)
	case !ok:
		return errors.New(ctx, errors.ConfirmationDeclined, op, "apply cancelled")
	}
	return nil
}

func confirmPrompt(r *Report) string {
	var parts []string
	for _, s := range r.Summary() {
		parts = append(parts, fmt.Sprintf("%d %s (%s)", s.Total, s.Stage, s.Risk))
	}
	return fmt.Sprintf("Apply %d change(s): %s?", len(r.Changes), strings.Join(parts, ", "))
}

func (r *run) checkpoint(ctx context.Context) error {
	const op = "apply.(run).checkpoint"
	if r.opts.withDryRun {
		r.logger.Info("would create checkpoint")
		return nil
	}
	if r.checkpoints == nil {
		return errors.New(ctx, errors.CheckpointCreation, op, "checkpoint required but no checkpoint manager configured")
	}
	desc := fmt.Sprintf("before apply of %d change(s), %s", len(r.report.Changes), r.opts.withStage)
	info, err := r.checkpoints.Create(ctx, desc)
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	r.report.Checkpoint = info
	return nil
}

// applyChange executes the single statement of c.
func (r *run) applyChange(ctx context.Context, c *change.Change) error {
	const op = "apply.(run).applyChange"
	r.logger.Info("applying change", "stage", c.Stage, "risk", c.Risk, "type", c.Type, "table", c.Table, "description", c.Description)
	if r.opts.withDryRun {
		r.logger.Info("would execute", "sql", c.SQL)
		return nil
	}
	r.logger.Debug("executing", "sql", c.SQL)
	if _, err := r.exec.ExecContext(ctx, c.SQL); err != nil {
		return errors.Wrap(ctx, errors.Convert(err), op, errors.WithMsg("%s", c.SQL))
	}
	return nil
}

// recover runs the rollback policy after a failed change.
func (r *run) recover(ctx context.Context) {
	const op = "apply.(run).recover"
	if !r.opts.withRollbackOnError || len(r.report.Applied) == 0 {
		if len(r.report.Applied) > 0 {
			r.logger.Warn("rollback disabled, database is partially applied", "applied", len(r.report.Applied), "total", len(r.report.Changes))
		}
		r.transition(ctx, Failed)
		return
	}
	r.transition(ctx, RollingBack)
	var err error
	if r.report.Checkpoint != nil {
		err = r.restoreCheckpoint(ctx)
	} else {
		err = r.revert(ctx)
	}
	if err != nil {
		combined := multierror.Append(r.report.Err, err)
		r.report.Err = errors.Wrap(ctx, combined, op, errors.WithCode(errors.RollbackFailed), errors.WithMsg("rollback failed after apply error"))
		r.logger.Error("rollback failed, manual intervention required", "error", err)
		r.transition(ctx, RollbackFailed)
		return
	}
	r.transition(ctx, RolledBack)
}

func (r *run) restoreCheckpoint(ctx context.Context) error {
	const op = "apply.(run).restoreCheckpoint"
	id := r.report.Checkpoint.Id
	r.logger.Warn("restoring checkpoint", "checkpoint", id)
	// the operator confirmed this run once already; health is left to the
	// application's health endpoint
	if err := r.checkpoints.Restore(ctx, id, nil); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	r.report.Reverted = append(r.report.Reverted, r.report.Applied...)
	return nil
}

// revert runs the inverse of every applied change, newest first, stopping at
// the first failure.
func (r *run) revert(ctx context.Context) error {
	const op = "apply.(run).revert"
	for i := len(r.report.Applied) - 1; i >= 0; i-- {
		c := r.report.Applied[i]
		if len(c.RollbackSQL) == 0 {
			return errors.New(ctx, errors.RollbackFailed, op, fmt.Sprintf("change %q has no rollback sql", c.Description))
		}
		r.logger.Warn("reverting change", "stage", c.Stage, "type", c.Type, "table", c.Table, "description", c.Description)
		for _, s := range c.RollbackSQL {
			if _, err := r.exec.ExecContext(ctx, s); err != nil {
				return errors.Wrap(ctx, errors.Convert(err), op, errors.WithMsg("%s: %s", c.Description, s))
			}
		}
		r.report.Reverted = append(r.report.Reverted, c)
	}
	return nil
}

func (r *run) recordPreview(ctx context.Context) error {
	const op = "apply.(run).recordPreview"
	if !r.opts.withDryRun || r.ledger == nil || r.opts.withFingerprint == "" {
		return nil
	}
	if err := r.ledger.Record(ctx, r.opts.withFingerprint); err != nil {
		// the preview happened; failing to remember it only costs a rerun
		r.logger.Warn("unable to record preview", "error", errors.Wrap(ctx, err, op))
	}
	return nil
}
