// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package verifycmd

import (
	"fmt"

	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/hashicorp/stagehand/internal/verify"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*Command)(nil)
	_ cli.CommandAutocomplete = (*Command)(nil)
)

var categories = []verify.Category{
	verify.SchemaCategory,
	verify.ConstraintCategory,
	verify.IndexCategory,
	verify.DataCategory,
}

type Command struct {
	*base.Command

	flagVerbose          bool
	flagJson             bool
	flagCheckConstraints bool
	flagCheckIndexes     bool
	flagCheckData        bool
}

func (c *Command) Synopsis() string {
	return "Check the live database against the expected schema"
}

func (c *Command) Help() string {
	return base.WrapForHelpText([]string{
		"Usage: stagehand verify [options]",
		"",
		"  Run the post-migration checks: required tables and columns, backup scripts, foreign keys, indexes and optionally orphaned rows:",
		"",
		"    $ stagehand verify -check-data",
		"",
		"  Every check runs even when an earlier one fails. The command exits 1 when any check failed.",
		"",
	}) + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSets {
	set := c.FlagSet(base.FlagSetConfig | base.FlagSetOutputFormat)

	f := set.NewFlagSet("Command Options")

	f.BoolVar(&base.BoolVar{
		Name:   "verbose",
		Target: &c.flagVerbose,
		Usage:  "Print the details of passing checks too.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "json",
		Target: &c.flagJson,
		Usage:  "Print the result as JSON. Shorthand for -format=json.",
	})
	f.BoolVar(&base.BoolVar{
		Name:    "check-constraints",
		Target:  &c.flagCheckConstraints,
		Default: true,
		Usage:   "Check that the foreign keys of the target schema exist.",
	})
	f.BoolVar(&base.BoolVar{
		Name:    "check-indexes",
		Target:  &c.flagCheckIndexes,
		Default: true,
		Usage:   "Check that the indexes of the target schema exist.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   "check-data",
		Target: &c.flagCheckData,
		Usage:  "Look for rows whose foreign keys reference missing parents. This scans the referencing tables.",
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

	conn, err := p.Database(ctx)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error connecting to database: %w", err))
		return base.CommandFailure
	}

	vc := c.Config.Verify
	cfg := verify.Config{
		RequiredTables:   vc.RequiredTables,
		VersionColumn:    vc.VersionColumn,
		VersionTables:    vc.VersionTables,
		SoftDeleteColumn: vc.SoftDeleteColumn,
		SoftDeleteTables: vc.SoftDeleteTables,
		BackupScripts:    vc.BackupScripts,
		IgnoreTables:     c.Config.IgnoreTables,
	}
	// without a target only the configured checks run
	if target, err := p.Target(ctx); err != nil {
		c.Logger.Warn("target schema not loaded, comparison checks are skipped", "error", err)
	} else {
		cfg.Target = target
	}

	v, err := verify.NewVerifier(ctx, p.Dialect, conn, cfg, verify.WithLogger(c.Logger.Named("verify")))
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error configuring verification: %w", err))
		return base.CommandFailure
	}
	result := v.Verify(ctx,
		verify.WithConstraints(c.flagCheckConstraints),
		verify.WithIndexes(c.flagCheckIndexes),
		verify.WithData(c.flagCheckData),
	)

	if c.flagJson || base.Format(c.UI) == "json" {
		if !c.PrintJson(result) {
			return base.CommandFailure
		}
		return result.ExitCode()
	}
	c.printResult(result)
	return result.ExitCode()
}

func status(s verify.Status) string {
	switch s {
	case verify.Pass:
		return base.Success(string(s))
	case verify.Fail:
		return base.Failure(string(s))
	default:
		return base.Warning(string(s))
	}
}

func (c *Command) printResult(r *verify.Result) {
	for _, cat := range categories {
		checks := r.ByCategory(cat)
		if len(checks) == 0 {
			continue
		}
		c.UI.Output(fmt.Sprintf("%s checks:", cat))
		for _, ch := range checks {
			c.UI.Output(fmt.Sprintf("  [%s] %s: %s", status(ch.Status), ch.Name, ch.Message))
			if len(ch.Details) > 0 && (ch.Status == verify.Fail || c.flagVerbose) {
				c.UI.Output(base.WrapSlice(6, ch.Details))
			}
		}
		c.UI.Output("")
	}
	summary := fmt.Sprintf("%d passed, %d failed, %d skipped", r.Passed, r.Failed, r.Skipped)
	if r.Status == verify.Fail {
		c.UI.Error(fmt.Sprintf("Verification %s: %s", base.Failure("failed"), summary))
		return
	}
	c.UI.Output(fmt.Sprintf("Verification %s: %s", base.Success("passed"), summary))
}
