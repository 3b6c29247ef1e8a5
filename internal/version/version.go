// Package version carries build metadata set with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "dev"                           // ex: v0.1.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-10-16T18:42:00Z
	GoVersion = runtime.Version()
)

// String formats the metadata for the startup banner.
func String() string {
	return fmt.Sprintf("linkpocket %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
