// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package verifycmd

import (
	"context"
	"strings"
	"testing"

	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/hashicorp/stagehand/internal/verify"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
)

func testCommand() (*Command, *cli.MockUi) {
	ui := cli.NewMockUi()
	return &Command{Command: &base.Command{
		UI:         ui,
		ShutdownCh: make(chan struct{}),
		Context:    context.Background(),
	}}, ui
}

func TestCommand_Flags(t *testing.T) {
	c, _ := testCommand()
	assert.NoError(t, c.Flags().Parse([]string{"-check-indexes=false", "-json"}))
	assert.True(t, c.flagJson)
	assert.True(t, c.flagCheckConstraints)
	assert.False(t, c.flagCheckIndexes)
	assert.False(t, c.flagCheckData)
}

func TestCommand_RunBadFlag(t *testing.T) {
	c, ui := testCommand()
	assert.Equal(t, base.CommandFailure, c.Run([]string{"-check-data=maybe"}))
	assert.NotEmpty(t, ui.ErrorWriter.String())
}

func TestCommand_printResult(t *testing.T) {
	t.Run("failed", func(t *testing.T) {
		assert := assert.New(t)
		c, ui := testCommand()
		c.printResult(&verify.Result{
			Status: verify.Fail, Passed: 1, Failed: 1, Skipped: 1,
			Checks: []*verify.Check{
				{Name: "table users", Category: verify.SchemaCategory, Status: verify.Pass, Message: "table users exists"},
				{
					Name: "foreign keys", Category: verify.ConstraintCategory, Status: verify.Fail,
					Message: "1 foreign key(s) missing", Details: []string{"orders.user_id -> users.id"},
				},
				{Name: "orphan rows", Category: verify.DataCategory, Status: verify.Skip, Message: "data checks disabled"},
			},
		})
		out := ui.OutputWriter.String()
		assert.Contains(out, "SCHEMA checks:")
		assert.Contains(out, "table users: table users exists")
		assert.Contains(out, "      orders.user_id -> users.id")
		assert.Contains(out, "data checks disabled")
		assert.NotContains(out, "INDEX checks:")
		assert.Less(strings.Index(out, "SCHEMA"), strings.Index(out, "CONSTRAINT"))
		assert.Contains(ui.ErrorWriter.String(), "1 passed, 1 failed, 1 skipped")
	})
	t.Run("passed-details-only-when-verbose", func(t *testing.T) {
		result := &verify.Result{
			Status: verify.Pass, Passed: 1,
			Checks: []*verify.Check{
				{Name: "indexes", Category: verify.IndexCategory, Status: verify.Pass, Message: "2 index(es) present", Details: []string{"users_email_idx"}},
			},
		}
		c, ui := testCommand()
		c.printResult(result)
		assert.NotContains(t, ui.OutputWriter.String(), "users_email_idx")
		assert.Contains(t, ui.OutputWriter.String(), "1 passed, 0 failed, 0 skipped")

		c, ui = testCommand()
		c.flagVerbose = true
		c.printResult(result)
		assert.Contains(t, ui.OutputWriter.String(), "users_email_idx")
	})
}
