// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package applycmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/stagehand/internal/apply"
	"github.com/hashicorp/stagehand/internal/change"
	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*Command)(nil)
	_ cli.CommandAutocomplete = (*Command)(nil)
)

// exit ends the process when an interrupt arrives while the database is
// being changed.
var exit = os.Exit

type Command struct {
	*base.Command

	flagDryRun          bool
	flagStage           int
	flagVerbose         bool
	flagCheckpoint      bool
	flagRollbackOnError bool
	flagForce           bool
}

func (c *Command) Synopsis() string {
	return "Apply pending schema changes in stages"
}

func (c *Command) Help() string {
	return base.WrapForHelpText([]string{
		"Usage: stagehand apply [options]",
		"",
		"  Compare the live database with the target schema and apply the differences in three stages:",
		"",
		"    Stage 1 (LOW)     new tables, nullable columns and indexes",
		"    Stage 2 (MEDIUM)  column type changes and new constraints",
		"    Stage 3 (HIGH)    renames, NOT NULL tightening and drops",
		"",
		"  Preview the changes without touching the database:",
		"",
		"    $ stagehand apply -dry-run",
		"",
		"  Apply only the additive changes:",
		"",
		"    $ stagehand apply -stage=1",
		"",
		"  A checkpoint is taken before any stage 2 or 3 change. When a change fails the applied changes are reverted, from the checkpoint when there is one.",
		"",
	}) + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSets {
	set := c.FlagSet(base.FlagSetConfig | base.FlagSetOutputFormat)

	f := set.NewFlagSet("Command Options")

	f.BoolVar(&base.BoolVar{
		Name:   "dry-run",
		Target: &c.flagDryRun,
		Usage:  "Show the changes and the SQL that would run without executing anything.",
	})
	f.IntVar(&base.IntVar{
		Name:       "stage",
		Target:     &c.flagStage,
		Completion: complete.PredictSet("1", "2", "3"),
		Usage:      "Only apply changes of this stage (1, 2 or 3). All stages are applied when not set.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "verbose",
		Target: &c.flagVerbose,
		Usage:  "Print the SQL and rollback SQL of every change.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "checkpoint",
		Target: &c.flagCheckpoint,
		Usage:  "Take a checkpoint before applying, even when no stage 3 change is pending.",
	})
	f.BoolVar(&base.BoolVar{
		Name:    "rollback-on-error",
		Target:  &c.flagRollbackOnError,
		Default: true,
		Usage:   "Revert the applied changes when a change fails.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "force",
		Target: &c.flagForce,
		Usage: "Skip the confirmation prompt. The target must have been previewed with -dry-run first " +
			"and every forced run is recorded in the audit log.",
	})

	return set
}

func (c *Command) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *Command) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}
	c.SetFormat()
	if err := c.Setup(); err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}
	ctx := c.Context

	stage, err := change.ParseStage(ctx, c.flagStage)
	if err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}

	p, err := base.NewProject(ctx, c.Config, c.Logger)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error reading configuration: %w", err))
		return base.CommandFailure
	}
	defer func() {
		if err := p.Close(); err != nil {
			c.Logger.Warn("error closing project", "error", err)
		}
	}()

	target, err := p.Target(ctx)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error loading target schema: %w", err))
		return base.CommandFailure
	}
	detector, err := p.Detector(ctx)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error connecting to database: %w", err))
		return base.CommandFailure
	}
	changes, err := detector.Detect(ctx, target)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error detecting changes: %w", err))
		return base.CommandFailure
	}

	engine, err := c.engine(ctx, p)
	if err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}

	if base.Format(c.UI) == "table" {
		c.printPlan(change.Filter(changes, stage))
	}

	tracker := &stateTracker{state: apply.Pending}
	// the run must not stop midway through a change; an interrupt is handled
	// by watch instead
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go c.watch(tracker, cancel, done)

	report, runErr := engine.Run(runCtx, changes,
		apply.WithDryRun(c.flagDryRun),
		apply.WithStage(stage),
		apply.WithCheckpoint(c.flagCheckpoint),
		apply.WithRollbackOnError(c.flagRollbackOnError),
		apply.WithForce(c.flagForce),
		apply.WithTargetFingerprint(target.Fingerprint()),
		apply.WithStateHook(tracker.set),
	)

	switch base.Format(c.UI) {
	case "json":
		if !c.PrintJson(report) {
			return base.CommandFailure
		}
	default:
		c.printReport(report, runErr)
	}
	if runErr != nil {
		return base.CommandFailure
	}
	return report.ExitCode()
}

func (c *Command) engine(ctx context.Context, p *base.Project) (*apply.Engine, error) {
	conn, err := p.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("Error connecting to database: %w", err)
	}
	opts := []apply.Option{
		apply.WithLogger(c.Logger.Named("apply")),
		apply.WithLedger(p.Ledger()),
	}
	if !c.flagDryRun {
		cp, err := p.Checkpoints(ctx)
		if err != nil {
			return nil, fmt.Errorf("Error configuring checkpoints: %w", err)
		}
		opts = append(opts, apply.WithCheckpointer(cp))
		if c.flagForce {
			l, err := p.AuditLog(ctx)
			if err != nil {
				return nil, fmt.Errorf("Error opening audit log: %w", err)
			}
			opts = append(opts, apply.WithAuditWriter(l))
		}
		if base.Interactive() {
			opts = append(opts, apply.WithConfirmer(&base.UIConfirmer{UI: c.UI}))
		}
	}
	return apply.NewEngine(ctx, conn, opts...)
}

type stateTracker struct {
	mu    sync.Mutex
	state apply.State
}

func (t *stateTracker) set(s apply.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *stateTracker) get() apply.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// watch handles an interrupt during the run. Before anything was changed the
// run is cancelled and stops cleanly. Once statements are running the
// database state is unknown, so the process exits with a recovery notice.
func (c *Command) watch(t *stateTracker, cancel context.CancelFunc, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-c.ShutdownCh:
	}
	switch s := t.get(); s {
	case apply.Applying, apply.RollingBack:
		c.UI.Error(fmt.Sprintf("Interrupted while %s. Statements already sent may have completed and the database may be partially migrated.",
			strings.ToLower(strings.ReplaceAll(string(s), "_", " "))))
		c.UI.Error("Run \"stagehand verify\" and restore the latest checkpoint with \"stagehand rollback -to-checkpoint\" if needed.")
		exit(base.CommandFailure)
	default:
		c.UI.Warn("Interrupted, stopping before any change is applied.")
		cancel()
	}
}

func (c *Command) printPlan(changes []*change.Change) {
	if len(changes) == 0 {
		return
	}
	change.Sort(changes)
	counts := change.CountByStage(changes)
	rows := []string{"Stage|Risk|Changes"}
	for _, s := range change.Stages {
		if counts[s] == 0 {
			continue
		}
		rows = append(rows, fmt.Sprintf("%d|%s|%d", int(s), change.RiskFor(s), counts[s]))
	}
	c.UI.Output("Pending changes:\n")
	c.UI.Output(base.TableOutput(rows, nil))
	c.UI.Output("")
	for _, ch := range changes {
		c.UI.Output(fmt.Sprintf("  %s", ch))
		if c.flagVerbose {
			c.UI.Output(base.WrapMap(6, 0, map[string]any{
				"SQL":      ch.SQL,
				"Rollback": strings.Join(ch.RollbackSQL, "; "),
			}))
		}
	}
	c.UI.Output("")
}

func (c *Command) printReport(r *apply.Report, runErr error) {
	if r == nil {
		c.PrintCliError(runErr)
		return
	}
	if runErr != nil {
		switch {
		case errors.Match(errors.T(errors.ConfirmationDeclined), runErr):
			c.UI.Warn("Apply cancelled, no changes were made.")
		default:
			c.PrintCliError(fmt.Errorf("Error applying changes: %w", runErr))
		}
		return
	}
	if len(r.Changes) == 0 {
		c.UI.Output("No pending changes, the database matches the target schema.")
		if r.DryRun {
			c.UI.Output("\nDry run complete, no changes were made.")
		}
		return
	}

	state := string(r.State)
	switch r.State {
	case apply.Succeeded:
		state = base.Success(state)
	case apply.RolledBack:
		state = base.Warning(state)
	default:
		state = base.Failure(state)
	}
	m := map[string]any{
		"State":   state,
		"Applied": fmt.Sprintf("%d of %d", len(r.Applied), len(r.Changes)),
	}
	if r.Checkpoint != nil {
		m["Checkpoint"] = r.Checkpoint.Id
	}
	if r.Failed != nil {
		m["Failed"] = r.Failed.String()
	}
	if len(r.Reverted) > 0 {
		m["Reverted"] = len(r.Reverted)
	}
	c.UI.Output("Result:")
	c.UI.Output(base.WrapMap(2, 0, m))

	rows := []string{"Stage|Risk|Applied"}
	for _, s := range r.Summary() {
		rows = append(rows, fmt.Sprintf("%d|%s|%d of %d", int(s.Stage), s.Risk, s.Applied, s.Total))
	}
	c.UI.Output("\nStages:")
	c.UI.Output(base.TableOutput(rows, nil))

	switch r.State {
	case apply.Succeeded:
		if r.DryRun {
			c.UI.Output("\nDry run complete, no changes were made.")
			return
		}
		c.UI.Output("\nRun \"stagehand verify\" to check the migrated schema.")
	case apply.RolledBack:
		c.UI.Error(fmt.Sprintf("\n%s\nThe applied changes were reverted.", r.Err))
	case apply.Failed:
		c.UI.Error(fmt.Sprintf("\n%s", r.Err))
		if len(r.Applied) > 0 {
			c.UI.Error("The database is partially migrated. Run \"stagehand verify\" before retrying.")
		}
	case apply.RollbackFailed:
		c.UI.Error(fmt.Sprintf("\n%s", r.Err))
		c.UI.Error("Rollback failed, manual intervention is required. Restore a checkpoint with \"stagehand rollback -to-checkpoint\".")
	}
}
