// Package version derives the build identity stamped into logs, the
// health endpoint, and outbound User-Agent headers.
//
// Resolution order: -ldflags override, then VCS revision from build
// info, then "dev" for non-git builds and `go test`.
package version

import "runtime/debug"

// AppName prefixes version strings and outbound User-Agent headers.
const AppName = "scout"

// gitCommitOverride is injected with -ldflags for container builds
// where the .git directory is not present.
var gitCommitOverride string

// GitCommit is the short commit hash identifying this build.
var GitCommit = resolveCommit()

func resolveCommit() string {
	if gitCommitOverride != "" {
		return short(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "scout/<commit>", the form used as the User-Agent by
// the signals and publisher clients.
func Full() string {
	return AppName + "/" + GitCommit
}
