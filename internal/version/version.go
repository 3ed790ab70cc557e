package version

import "fmt"

// These variables are set at build time via ldflags
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the version string (commit-hash based, no semver)
func String() string {
	return fmt.Sprintf("stagetrack dev (commit: %s, built: %s)", shortCommit(), BuildTime)
}

// UserAgent identifies outgoing API requests.
func UserAgent() string {
	return "stagetrack/" + shortCommit()
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
