// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

const (
	// CommandSuccess is the exit code when the command did what was asked.
	CommandSuccess = 0
	// CommandFailure is the exit code for every failure: bad flags or
	// configuration, a declined confirmation, a failed or rolled back apply
	// and a failing verification.
	CommandFailure = 1
)

const (
	EnvStagehandConfig     = `STAGEHAND_CONFIG`
	EnvStagehandLogLevel   = `STAGEHAND_LOG_LEVEL`
	EnvStagehandCLINoColor = `STAGEHAND_CLI_NO_COLOR`
	EnvStagehandCLIFormat  = `STAGEHAND_CLI_FORMAT`
)
