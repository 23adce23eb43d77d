// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"strings"

	"github.com/mitchellh/cli"
)

// UIConfirmer asks a yes or no question through the UI. Anything but "y" or
// "yes" is a no.
type UIConfirmer struct {
	UI cli.Ui
}

func (c *UIConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	answer, err := c.UI.Ask(prompt + " [y/N]:")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
