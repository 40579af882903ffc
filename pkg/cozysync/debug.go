package cozysync

import "os"

// DebugEnabled controls whether or not debug-level logging is enabled for the
// core. It is set automatically based on the COZY_SYNC_DEBUG environment
// variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("COZY_SYNC_DEBUG") == "1"
}
