// Package buildinfo carries the build metadata stamped into the snapwall
// binary. The CLI folds it into --version output and the status endpoint
// reports StartTime so kiosk supervisors can spot silent restarts.
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when this snapwall binary was compiled
	CommitTime string // last commit time of the built tree
	CommitHash string // short commit hash of the built tree
)

// StartTime is recorded once when the wall process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)
