// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpointscmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/stagehand/internal/checkpoint"
	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*Command)(nil)
	_ cli.CommandAutocomplete = (*Command)(nil)
)

type Command struct {
	*base.Command

	Func string

	flagDescription string
}

func (c *Command) Synopsis() string {
	switch c.Func {
	case "list":
		return "List checkpoints"
	case "create":
		return "Take a checkpoint of the database"
	}
	return "Manage database checkpoints"
}

func (c *Command) Help() string {
	switch c.Func {
	case "list":
		return base.WrapForHelpText([]string{
			"Usage: stagehand checkpoints list [options]",
			"",
			"  List the checkpoints in the checkpoints directory, newest first:",
			"",
			"    $ stagehand checkpoints list",
			"",
		}) + c.Flags().Help()
	case "create":
		return base.WrapForHelpText([]string{
			"Usage: stagehand checkpoints create [options]",
			"",
			"  Take a full backup of the database and record it as a checkpoint:",
			"",
			"    $ stagehand checkpoints create -description=\"before release 42\"",
			"",
		}) + c.Flags().Help()
	}
	return base.WrapForHelpText([]string{
		"Usage: stagehand checkpoints <subcommand> [options] [args]",
		"",
		"  This command groups subcommands for managing checkpoints. A checkpoint is a full backup of the database plus a metadata file. Restore one with \"stagehand rollback -to-checkpoint\".",
		"",
		"  Please see the individual subcommand help for detailed usage information.",
	})
}

func (c *Command) Flags() *base.FlagSets {
	if c.Func == "" {
		return nil
	}
	set := c.FlagSet(base.FlagSetConfig | base.FlagSetOutputFormat)
	if c.Func == "create" {
		f := set.NewFlagSet("Command Options")
		f.StringVar(&base.StringVar{
			Name:       "description",
			Target:     &c.flagDescription,
			Default:    "manual checkpoint",
			Completion: complete.PredictAnything,
			Usage:      "Description stored with the checkpoint.",
		})
	}
	return set
}

func (c *Command) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *Command) AutocompleteFlags() complete.Flags {
	if c.Func == "" {
		return nil
	}
	return c.Flags().Completions()
}

func (c *Command) Run(args []string) int {
	if c.Func == "" {
		return cli.RunResultHelp
	}
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
	m, err := p.Checkpoints(ctx)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error configuring checkpoints: %w", err))
		return base.CommandFailure
	}

	switch c.Func {
	case "list":
		return c.list(ctx, m)
	default:
		return c.create(ctx, m)
	}
}

func (c *Command) list(ctx context.Context, m *checkpoint.Manager) int {
	infos, err := m.List(ctx)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error listing checkpoints: %w", err))
		return base.CommandFailure
	}
	if base.Format(c.UI) == "json" {
		if !c.PrintJson(infos) {
			return base.CommandFailure
		}
		return base.CommandSuccess
	}
	if len(infos) == 0 {
		c.UI.Output(fmt.Sprintf("No checkpoints found in %s.", m.Dir()))
		return base.CommandSuccess
	}
	rows := []string{"Id|Created|Migration|Size|Description"}
	for _, info := range infos {
		rows = append(rows, fmt.Sprintf("%s|%s|%s|%d|%s",
			info.Id, info.Timestamp.Format(time.RFC3339), info.MigrationId, info.SizeBytes, info.Description))
	}
	c.UI.Output(base.TableOutput(rows, nil))
	return base.CommandSuccess
}

func (c *Command) create(ctx context.Context, m *checkpoint.Manager) int {
	info, err := m.Create(ctx, c.flagDescription)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error creating checkpoint: %w", err))
		return base.CommandFailure
	}
	if base.Format(c.UI) == "json" {
		if !c.PrintJson(info) {
			return base.CommandFailure
		}
		return base.CommandSuccess
	}
	c.UI.Output(fmt.Sprintf("Checkpoint %s created.", base.Success(info.Id)))
	details := map[string]any{
		"Backup":      info.BackupFile,
		"Size":        info.SizeBytes,
		"Description": info.Description,
	}
	if info.MigrationId != "" {
		details["Migration"] = info.MigrationId
	}
	c.UI.Output(base.WrapMap(2, 0, details))
	return base.CommandSuccess
}
