// Package version holds build information for the tracker binary.
//
// Set at link time:
//
//	go build -ldflags "-X github.com/rickgao/portfolio-tracker/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/portfolio-tracker/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/portfolio-tracker/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/tracker
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info is the build information in structured form.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("tracker %s (%s) built %s with %s", Version, Commit, BuildTime, runtime.Version())
}
