// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hashicorp/stagehand/internal/cmd/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupEnv(t *testing.T) {
	tests := []struct {
		name       string
		in         []string
		env        string
		wantArgs   []string
		wantFormat string
	}{
		{name: "default", in: []string{"apply"}, wantArgs: []string{"apply"}, wantFormat: "table"},
		{name: "flag", in: []string{"verify", "-format=JSON"}, wantArgs: []string{"verify", "-format=JSON"}, wantFormat: "json"},
		{name: "flag-separate", in: []string{"verify", "-format", "json"}, wantArgs: []string{"verify", "-format", "json"}, wantFormat: "json"},
		{name: "env", in: []string{"apply"}, env: "json", wantArgs: []string{"apply"}, wantFormat: "json"},
		{name: "flag-wins", in: []string{"apply", "-format=table"}, env: "json", wantArgs: []string{"apply", "-format=table"}, wantFormat: "table"},
		{name: "version-shortcut", in: []string{"-v"}, wantArgs: []string{"version"}, wantFormat: "table"},
		{name: "after-terminator", in: []string{"apply", "--", "-format=json"}, wantArgs: []string{"apply", "--", "-format=json"}, wantFormat: "table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(base.EnvStagehandCLIFormat, tt.env)
			args, format := setupEnv(tt.in)
			assert.Equal(t, tt.wantArgs, args)
			assert.Equal(t, tt.wantFormat, format)
		})
	}
}

func testRun(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv(base.EnvStagehandCLINoColor, "1")
	t.Setenv(base.EnvStagehandCLIFormat, "")
	var stdout, stderr bytes.Buffer
	code := RunCustom(args, &RunOptions{
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return code, stdout.String(), stderr.String()
}

func TestRunCustom(t *testing.T) {
	t.Run("version-json", func(t *testing.T) {
		code, out, _ := testRun(t, "version", "-format=json")
		require.Equal(t, base.CommandSuccess, code)
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Contains(t, got, "version")
	})
	t.Run("invalid-format", func(t *testing.T) {
		code, _, errOut := testRun(t, "version", "-format=yaml")
		assert.Equal(t, base.CommandFailure, code)
		assert.Contains(t, errOut, "Invalid output format: yaml")
	})
	t.Run("help", func(t *testing.T) {
		_, _, errOut := testRun(t, "-help")
		assert.Contains(t, errOut, "Migration Commands:")
		assert.Contains(t, errOut, "apply")
		assert.Contains(t, errOut, "checkpoints")
		assert.NotContains(t, errOut, "checkpoints list")
	})
	t.Run("checkpoints-parent", func(t *testing.T) {
		code, _, errOut := testRun(t, "checkpoints")
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "stagehand checkpoints <subcommand>")
		assert.Contains(t, errOut, "list")
	})
}
