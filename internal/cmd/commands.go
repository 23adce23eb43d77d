// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package cmd

import (
	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/hashicorp/stagehand/internal/cmd/commands/applycmd"
	"github.com/hashicorp/stagehand/internal/cmd/commands/checkpointscmd"
	"github.com/hashicorp/stagehand/internal/cmd/commands/rollbackcmd"
	"github.com/hashicorp/stagehand/internal/cmd/commands/verifycmd"
	"github.com/hashicorp/stagehand/internal/cmd/commands/version"
	"github.com/mitchellh/cli"
)

// Commands is the mapping of all the available commands.
var Commands map[string]cli.CommandFactory

func initCommands(ui cli.Ui) {
	Commands = map[string]cli.CommandFactory{
		"apply": func() (cli.Command, error) {
			return &applycmd.Command{
				Command: base.NewCommand(ui),
			}, nil
		},
		"rollback": func() (cli.Command, error) {
			return &rollbackcmd.Command{
				Command: base.NewCommand(ui),
			}, nil
		},
		"verify": func() (cli.Command, error) {
			return &verifycmd.Command{
				Command: base.NewCommand(ui),
			}, nil
		},

		"checkpoints": func() (cli.Command, error) {
			return &checkpointscmd.Command{
				Command: base.NewCommand(ui),
			}, nil
		},
		"checkpoints list": func() (cli.Command, error) {
			return &checkpointscmd.Command{
				Command: base.NewCommand(ui),
				Func:    "list",
			}, nil
		},
		"checkpoints create": func() (cli.Command, error) {
			return &checkpointscmd.Command{
				Command: base.NewCommand(ui),
				Func:    "create",
			}, nil
		},

		"version": func() (cli.Command, error) {
			return &version.Command{
				Command: base.NewCommand(ui),
			}, nil
		},
	}
}
