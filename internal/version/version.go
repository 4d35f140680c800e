// Package version reports the datadash build, set with
// -ldflags "-X github.com/blackwhitehere/acme-data-dash/internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build info for the version command and server logs.
func String() string {
	return fmt.Sprintf("datadash %s (commit %s, built %s)", Version, Commit, Date)
}
