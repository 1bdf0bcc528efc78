// Package version derives the build identifier reported in logs and by the
// health endpoint. An -ldflags override wins over the VCS revision baked into
// the binary; with neither, the build reports as "dev".
package version

import "runtime/debug"

// AppName prefixes version strings and user agents.
const AppName = "agora"

// gitCommitOverride is injected with -ldflags for container builds that have
// no .git directory.
var gitCommitOverride string

// GitCommit is the short (8 char) commit hash of this build.
var GitCommit = resolveCommit()

func resolveCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "agora/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
