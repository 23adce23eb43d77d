// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package version

import (
	"github.com/hashicorp/stagehand/internal/cmd/base"
	ver "github.com/hashicorp/stagehand/version"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*Command)(nil)
	_ cli.CommandAutocomplete = (*Command)(nil)
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version of the local Stagehand binary"
}

func (c *Command) Help() string {
	return base.WrapForHelpText([]string{
		"Usage: stagehand version",
		"",
		"  This command displays the version of the local Stagehand binary.",
		"",
	}) + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSets {
	return c.FlagSet(base.FlagSetOutputFormat)
}

func (c *Command) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *Command) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.PrintCliError(err)
		return base.CommandFailure
	}
	c.SetFormat()

	verInfo := ver.Get()
	if base.Format(c.UI) == "json" {
		if !c.PrintJson(verInfo) {
			return base.CommandFailure
		}
		return base.CommandSuccess
	}

	m := map[string]any{}
	if verInfo.Revision != "" {
		m["Git Revision"] = verInfo.Revision
	}
	if verInfo.Version != "" {
		m["Version Number"] = verInfo.VersionNumber()
	}
	if verInfo.VersionMetadata != "" {
		m["Metadata"] = verInfo.VersionMetadata
	}
	if verInfo.BuildDate != "" {
		m["Build Date"] = verInfo.BuildDate
	}

	c.UI.Output(base.WrapForHelpText([]string{
		"",
		"Version information:",
		base.WrapMap(2, 0, m),
		"",
	}))
	return base.CommandSuccess
}
