// Package cozysync holds version and debug globals shared across the
// reconciliation core, mirroring how mutagen's pkg/mutagen package holds
// equivalent ambient state for its synchronization engine.
package cozysync

import "fmt"

const (
	// VersionMajor represents the current major version of the core.
	VersionMajor = 0
	// VersionMinor represents the current minor version of the core.
	VersionMinor = 1
	// VersionPatch represents the current patch version of the core.
	VersionPatch = 0
)

// Version is the formatted version string for the core.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}
