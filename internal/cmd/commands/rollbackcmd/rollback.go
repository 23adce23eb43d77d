// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package rollbackcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/hashicorp/stagehand/internal/rollback"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*Command)(nil)
	_ cli.CommandAutocomplete = (*Command)(nil)
)

type Command struct {
	*base.Command

	flagToCheckpoint string
	flagToMigration  string
	flagList         bool
	flagDryRun       bool
	flagVerbose      bool
	flagForce        bool
}

func (c *Command) Synopsis() string {
	return "Roll the database back to a checkpoint or migration"
}

func (c *Command) Help() string {
	return base.WrapForHelpText([]string{
		"Usage: stagehand rollback [options]",
		"",
		"  List what the database can be rolled back to:",
		"",
		"    $ stagehand rollback -list",
		"",
		"  Restore a checkpoint. This replaces the entire database with the checkpoint's backup:",
		"",
		"    $ stagehand rollback -to-checkpoint=checkpoint-2025-01-02T03-04-05Z",
		"",
		"  Revert every migration applied after a journaled migration, newest first, using the rollback scripts:",
		"",
		"    $ stagehand rollback -to-migration=0003_add_nickname",
		"",
		"  Migrations without a rollback script are skipped with a warning.",
		"",
	}) + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSets {
	set := c.FlagSet(base.FlagSetConfig | base.FlagSetOutputFormat)

	f := set.NewFlagSet("Command Options")

	f.StringVar(&base.StringVar{
		Name:       "to-checkpoint",
		Target:     &c.flagToCheckpoint,
		Completion: complete.PredictAnything,
		Usage:      "Id of the checkpoint to restore.",
	})
	f.StringVar(&base.StringVar{
		Name:       "to-migration",
		Target:     &c.flagToMigration,
		Completion: complete.PredictAnything,
		Usage:      "Tag or index of the journaled migration to roll back to. Migrations applied after it are reverted.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "list",
		Target: &c.flagList,
		Usage:  "List the available checkpoints and migrations.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "dry-run",
		Target: &c.flagDryRun,
		Usage:  "Show what would be rolled back without changing anything.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "verbose",
		Target: &c.flagVerbose,
		Usage:  "Print the statements of every rollback script.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "force",
		Target: &c.flagForce,
		Usage:  "Skip the confirmation prompt. Every forced rollback is recorded in the audit log.",
	})

	return set
}

func (c *Command) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *Command) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

// validate checks that the flags name exactly one action.
func (c *Command) validate() error {
	targets := 0
	if c.flagToCheckpoint != "" {
		targets++
	}
	if c.flagToMigration != "" {
		targets++
	}
	switch {
	case c.flagList && targets > 0:
		return fmt.Errorf("-list cannot be combined with -to-checkpoint or -to-migration")
	case c.flagList:
		return nil
	case targets == 0:
		return fmt.Errorf("one of -to-checkpoint, -to-migration or -list is required")
	case targets > 1:
		return fmt.Errorf("-to-checkpoint and -to-migration are mutually exclusive")
	}
	return nil
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}
	if err := c.validate(); err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}
	c.SetFormat()
	if err := c.Setup(); err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}
	ctx := c.Context

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

	engine, err := c.engine(ctx, p)
	if err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}

	if c.flagList {
		targets, err := engine.Targets(ctx)
		if err != nil {
			c.PrintCliError(fmt.Errorf("Error listing rollback targets: %w", err))
			return base.CommandFailure
		}
		if base.Format(c.UI) == "json" {
			if !c.PrintJson(targets) {
				return base.CommandFailure
			}
			return base.CommandSuccess
		}
		c.printTargets(targets)
		return base.CommandSuccess
	}

	opts := []rollback.Option{rollback.WithDryRun(c.flagDryRun), rollback.WithForce(c.flagForce)}
	var result *rollback.Result
	switch {
	case c.flagToCheckpoint != "":
		result, err = engine.ToCheckpoint(ctx, c.flagToCheckpoint, opts...)
	default:
		result, err = engine.ToMigration(ctx, c.flagToMigration, opts...)
	}

	if base.Format(c.UI) == "json" {
		if result != nil && !c.PrintJson(result) {
			return base.CommandFailure
		}
		if err != nil {
			c.PrintCliError(err)
			return base.CommandFailure
		}
		return base.CommandSuccess
	}
	if result != nil {
		c.printResult(result)
	}
	if err != nil {
		switch {
		case errors.Match(errors.T(errors.ConfirmationDeclined), err):
			c.UI.Warn("Rollback cancelled, no changes were made.")
		case errors.Match(errors.T(errors.RollbackFailed), err):
			c.PrintCliError(fmt.Errorf("Rollback failed, manual intervention is required: %w", err))
		default:
			c.PrintCliError(fmt.Errorf("Error rolling back: %w", err))
		}
		return base.CommandFailure
	}
	return base.CommandSuccess
}

func (c *Command) engine(ctx context.Context, p *base.Project) (*rollback.Engine, error) {
	cp, err := p.Checkpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("Error configuring checkpoints: %w", err)
	}
	opts := []rollback.Option{
		rollback.WithLogger(c.Logger.Named("rollback")),
		rollback.WithCheckpoints(cp),
		rollback.WithRollbacksDir(p.Config.RollbacksDir),
	}
	j, err := p.Journal(ctx)
	switch {
	case err == nil:
		opts = append(opts, rollback.WithJournal(j))
	case c.flagToMigration != "":
		return nil, fmt.Errorf("Error loading migration journal: %w", err)
	default:
		c.Logger.Debug("no migration journal", "error", err)
	}
	if c.flagForce && !c.flagDryRun && !c.flagList {
		l, err := p.AuditLog(ctx)
		if err != nil {
			return nil, fmt.Errorf("Error opening audit log: %w", err)
		}
		opts = append(opts, rollback.WithAuditWriter(l))
	}
	if base.Interactive() {
		opts = append(opts, rollback.WithConfirmer(&base.UIConfirmer{UI: c.UI}))
	}

	// only migration rollbacks run statements against the live database
	var exec db.Executor
	if c.flagToMigration != "" && !c.flagDryRun {
		conn, err := p.Database(ctx)
		if err != nil {
			return nil, fmt.Errorf("Error connecting to database: %w", err)
		}
		exec = conn
	}
	return rollback.NewEngine(ctx, exec, opts...)
}

func (c *Command) printTargets(t *rollback.Targets) {
	c.UI.Output("Checkpoints:")
	if len(t.Checkpoints) == 0 {
		c.UI.Output("  No checkpoints found.")
	} else {
		rows := []string{"Id|Age|Migration|Size|Description"}
		now := time.Now()
		for _, info := range t.Checkpoints {
			rows = append(rows, fmt.Sprintf("%s|%s|%s|%d|%s",
				info.Id, base.HumanDuration(now.Sub(info.Timestamp).Truncate(time.Second)), info.MigrationId, info.SizeBytes, info.Description))
		}
		c.UI.Output(base.TableOutput(rows, nil))
	}
	c.UI.Output("\nMigrations:")
	if len(t.Migrations) == 0 {
		c.UI.Output("  No journaled migrations found.")
		return
	}
	rows := []string{"Index|Tag|Applied"}
	for _, e := range t.Migrations {
		rows = append(rows, fmt.Sprintf("%d|%s|%s", e.Id, e.Name, e.Timestamp.Format(time.RFC3339)))
	}
	c.UI.Output(base.TableOutput(rows, nil))
}

func (c *Command) printResult(r *rollback.Result) {
	if r.DryRun {
		defer c.UI.Output("\nDry run complete, no changes were made.")
	}
	switch r.Kind {
	case rollback.ToCheckpointKind:
		m := map[string]any{"Checkpoint": r.Target}
		if r.Checkpoint != nil {
			m["Created"] = r.Checkpoint.Timestamp.Format(time.RFC3339)
			m["Backup"] = r.Checkpoint.BackupFile
			if r.Checkpoint.MigrationId != "" {
				m["Migration"] = r.Checkpoint.MigrationId
			}
		}
		c.UI.Output(base.WrapMap(2, 0, m))
		return
	}
	if len(r.Steps) == 0 {
		c.UI.Output(fmt.Sprintf("Already at migration %s, nothing to roll back.", r.Target))
		return
	}
	c.UI.Output(fmt.Sprintf("Rolling back to migration %s:", r.Target))
	for _, st := range r.Steps {
		status := "reverted"
		switch {
		case st.Skipped:
			status = base.Warning("skipped, no rollback script")
		case r.DryRun:
			status = "would revert"
		case !st.Executed:
			status = base.Failure("not reverted")
		}
		c.UI.Output(fmt.Sprintf("  %s: %s", st.Entry.Name, status))
		if c.flagVerbose {
			c.UI.Output(base.WrapSlice(6, st.Statements))
		}
	}
}
