// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package rollback reverts a database to a checkpoint or to the state before
// a journaled migration.
package rollback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/audit"
	"github.com/hashicorp/stagehand/internal/checkpoint"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/hashicorp/stagehand/internal/journal"
)

// downSuffix names the rollback script of a migration.
const downSuffix = ".down.sql"

// Checkpoints finds and restores checkpoints. *checkpoint.Manager satisfies
// it.
type Checkpoints interface {
	Get(ctx context.Context, id string) (*checkpoint.Info, error)
	List(ctx context.Context) ([]*checkpoint.Info, error)
	Restore(ctx context.Context, id string, c checkpoint.Confirmer) error
}

var _ Checkpoints = (*checkpoint.Manager)(nil)

// Kind of rollback.
type Kind string

const (
	ToCheckpointKind Kind = "checkpoint"
	ToMigrationKind  Kind = "migration"
)

// Step is the rollback of one migration.
type Step struct {
	Entry      journal.Entry `json:"entry"`
	File       string        `json:"file,omitempty"`
	Statements []string      `json:"statements,omitempty"`
	// Skipped is set when no rollback script exists for the migration.
	Skipped  bool `json:"skipped"`
	Executed bool `json:"executed"`
}

// Result describes a rollback, planned or done.
type Result struct {
	Kind       Kind             `json:"kind"`
	Target     string           `json:"target"`
	DryRun     bool             `json:"dryRun"`
	Checkpoint *checkpoint.Info `json:"checkpoint,omitempty"`
	Steps      []*Step          `json:"steps,omitempty"`
}

// Skipped returns the steps that had no rollback script.
func (r *Result) Skipped() []*Step {
	var s []*Step
	for _, st := range r.Steps {
		if st.Skipped {
			s = append(s, st)
		}
	}
	return s
}

// Targets are what a rollback can go back to.
type Targets struct {
	Checkpoints []*checkpoint.Info `json:"checkpoints"`
	Migrations  []journal.Entry    `json:"migrations"`
}

// Engine runs rollbacks against one database.
type Engine struct {
	exec         db.Executor
	checkpoints  Checkpoints
	journal      *journal.Journal
	rollbacksDir string
	confirmer    checkpoint.Confirmer
	audit        audit.Writer
	logger       hclog.Logger
}

// NewEngine returns an Engine. exec may be nil when only checkpoints are
// listed or restored. Supported options are WithCheckpoints, WithJournal,
// WithRollbacksDir, WithConfirmer, WithAuditWriter and WithLogger.
func NewEngine(ctx context.Context, exec db.Executor, opt ...Option) (*Engine, error) {
	opts := getOpts(opt...)
	return &Engine{
		exec:         exec,
		checkpoints:  opts.withCheckpoints,
		journal:      opts.withJournal,
		rollbacksDir: opts.withRollbacksDir,
		confirmer:    opts.withConfirmer,
		audit:        opts.withAudit,
		logger:       opts.withLogger,
	}, nil
}

// Targets lists the checkpoints, newest first, and the applied migrations,
// newest first.
func (e *Engine) Targets(ctx context.Context) (*Targets, error) {
	const op = "rollback.(Engine).Targets"
	t := &Targets{}
	if e.checkpoints != nil {
		infos, err := e.checkpoints.List(ctx)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		t.Checkpoints = infos
	}
	if e.journal != nil {
		for i := len(e.journal.Entries) - 1; i >= 0; i-- {
			t.Migrations = append(t.Migrations, e.journal.Entries[i])
		}
	}
	return t, nil
}

// ToCheckpoint restores the checkpoint id. Supported options are WithDryRun
// and WithForce.
func (e *Engine) ToCheckpoint(ctx context.Context, id string, opt ...Option) (*Result, error) {
	const op = "rollback.(Engine).ToCheckpoint"
	opts := getOpts(opt...)
	if err := e.auditForce(ctx, opts); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if e.checkpoints == nil {
		return nil, errors.New(ctx, errors.InvalidConfiguration, op, "no checkpoints directory configured")
	}
	info, err := e.checkpoints.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	r := &Result{Kind: ToCheckpointKind, Target: id, DryRun: opts.withDryRun, Checkpoint: info}
	if opts.withDryRun {
		e.logger.Info("would quiesce the application, restore the checkpoint and resume the application", "checkpoint", id, "backup", info.BackupFile)
		return r, nil
	}
	prompt := fmt.Sprintf("Restore checkpoint %s (%s)? This replaces the entire database.", id, info.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if err := e.confirm(ctx, opts, prompt); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	var c checkpoint.Confirmer
	if !opts.withForce {
		c = e.confirmer
	}
	if err := e.checkpoints.Restore(ctx, id, c); err != nil {
		return r, errors.Wrap(ctx, err, op, errors.WithCode(errors.RollbackFailed))
	}
	return r, nil
}

// ToMigration reverts every migration applied after id, newest first, using
// the stored down scripts. Migrations without a script are skipped with a
// warning. The first failing statement stops the rollback. Rolling back to
// the newest migration does nothing. Supported options are WithDryRun and
// WithForce.
func (e *Engine) ToMigration(ctx context.Context, id string, opt ...Option) (*Result, error) {
	const op = "rollback.(Engine).ToMigration"
	opts := getOpts(opt...)
	if err := e.auditForce(ctx, opts); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if e.journal == nil {
		return nil, errors.New(ctx, errors.InvalidConfiguration, op, "no migration journal configured")
	}
	target, err := e.journal.Find(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	after, err := e.journal.After(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	r := &Result{Kind: ToMigrationKind, Target: target.Name, DryRun: opts.withDryRun}
	if len(after) == 0 {
		e.logger.Info("already at migration, nothing to roll back", "migration", target.Name)
		return r, nil
	}

	for _, entry := range after {
		st := &Step{Entry: entry}
		r.Steps = append(r.Steps, st)
		file, script, err := e.downScript(entry)
		switch {
		case err != nil:
			return r, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
		case file == "":
			st.Skipped = true
			e.logger.Warn("no rollback script for migration, skipping; its changes stay in place", "migration", entry.Name, "id", entry.Id)
			continue
		}
		st.File = file
		st.Statements, err = db.SplitStatements(ctx, script)
		if err != nil {
			return r, errors.Wrap(ctx, err, op, errors.WithMsg("%s", file))
		}
	}

	if opts.withDryRun {
		for _, st := range r.Steps {
			for _, s := range st.Statements {
				e.logger.Info("would execute", "migration", st.Entry.Name, "sql", s)
			}
		}
		return r, nil
	}
	if e.exec == nil {
		return r, errors.New(ctx, errors.InvalidParameter, op, "missing executor")
	}
	prompt := fmt.Sprintf("Roll back %d migration(s) to %s?", len(r.Steps), target.Name)
	if err := e.confirm(ctx, opts, prompt); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	for _, st := range r.Steps {
		if st.Skipped {
			continue
		}
		e.logger.Info("rolling back migration", "migration", st.Entry.Name, "file", st.File)
		for _, s := range st.Statements {
			if _, err := e.exec.ExecContext(ctx, s); err != nil {
				e.logger.Error("rollback halted, manual intervention required", "migration", st.Entry.Name, "error", err)
				return r, errors.Wrap(ctx, errors.Convert(err), op, errors.WithCode(errors.RollbackFailed), errors.WithMsg("migration %s: %s", st.Entry.Name, s))
			}
		}
		st.Executed = true
	}
	if skipped := r.Skipped(); len(skipped) > 0 {
		e.logger.Warn("rollback finished with skipped migrations", "skipped", len(skipped))
	}
	return r, nil
}

// downScript finds the rollback script of a migration by tag, then by
// ordinal. An empty file name means there is none.
func (e *Engine) downScript(entry journal.Entry) (string, string, error) {
	for _, name := range []string{entry.Name + downSuffix, entry.FileName() + downSuffix} {
		path := filepath.Join(e.rollbacksDir, name)
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			continue
		case err != nil:
			return "", "", err
		}
		return path, string(b), nil
	}
	return "", "", nil
}

// auditForce records a forced rollback that is not a dry run. It runs before
// anything else so every such invocation leaves exactly one record, including
// the ones that end up doing nothing.
func (e *Engine) auditForce(ctx context.Context, opts options) error {
	const op = "rollback.(Engine).auditForce"
	if !opts.withForce || opts.withDryRun {
		return nil
	}
	if e.audit == nil {
		return errors.New(ctx, errors.InvalidConfiguration, op, "-force requires an audit log")
	}
	rec := audit.NewRecord(audit.ActionForceRollback, "all", false)
	if err := e.audit.Write(ctx, rec); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithMsg("unable to write audit record"))
	}
	e.logger.Warn("confirmation skipped with -force", "user", rec.User, "hostname", rec.Hostname)
	return nil
}

func (e *Engine) confirm(ctx context.Context, opts options, prompt string) error {
	const op = "rollback.(Engine).confirm"
	if opts.withForce {
		return nil
	}
	if e.confirmer == nil {
		return errors.New(ctx, errors.InvalidConfiguration, op, "confirmation required but no prompt available; use -force")
	}
	ok, err := e.confirmer.Confirm(ctx, prompt)
	switch {
	case err != nil:
		return errors.Wrap(ctx, err, op)
	case !ok:
		return errors.New(ctx, errors.ConfirmationDeclined, op, "rollback cancelled")
	}
	return nil
}
