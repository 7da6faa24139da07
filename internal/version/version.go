// Package version carries build identification, populated via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line version summary for logs and -version.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
