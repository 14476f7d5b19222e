// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/routerx/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/routerx/internal/version.Code=100 \
//	                   -X github.com/rickgao/routerx/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/routerx/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Version and Code together form the stamp that invalidates the route table cache.
package version

import (
	"strconv"

	"github.com/rickgao/routerx/internal/cache"
)

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Code is a monotonically increasing build number. ldflags can only set
	// strings, so it is parsed on use.
	Code = "0"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// Stamp returns the cache stamp of this build. An unparseable Code counts as 0.
func Stamp() cache.Stamp {
	code, err := strconv.Atoi(Code)
	if err != nil {
		code = 0
	}
	return cache.Stamp{Name: Version, Code: code}
}
