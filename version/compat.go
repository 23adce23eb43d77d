// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package version

import (
	"fmt"

	gvers "github.com/hashicorp/go-version"
)

// GetReleaseVersion returns the running binary's version.
func GetReleaseVersion() (*gvers.Version, error) {
	return gvers.NewVersion(Get().VersionNumber())
}

// CheckpointCompatible reports whether a checkpoint written by the binary at
// writtenBy can be restored by this one. Checkpoints are plain SQL dumps, so
// anything from the same major version or older is accepted.
func CheckpointCompatible(writtenBy string) (bool, error) {
	current, err := GetReleaseVersion()
	if err != nil {
		return false, err
	}
	return checkpointCompatible(current, writtenBy)
}

func checkpointCompatible(current *gvers.Version, writtenBy string) (bool, error) {
	if writtenBy == "" {
		// written before versions were recorded
		return true, nil
	}
	written, err := gvers.NewVersion(writtenBy)
	if err != nil {
		return false, fmt.Errorf("invalid checkpoint tool version %q: %w", writtenBy, err)
	}
	major := current.Segments()[0]
	constraint, err := gvers.NewConstraint(fmt.Sprintf("< %d.0.0", major+1))
	if err != nil {
		return false, err
	}
	return constraint.Check(written.Core()), nil
}
