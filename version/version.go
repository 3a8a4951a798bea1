// Package version exposes the build identity of the binary, for the
// startup log and the admin surface.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags; Commit and BuildTime fall back to
// the module build info when unset.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info is the JSON shape served by the admin version endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Get resolves the build identity, preferring ldflags values over the
// VCS stamps embedded by the toolchain.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// Short returns "version" or "version-commit[-dirty]" for log lines.
func Short() string {
	info := Get()
	if info.Commit == "" {
		return info.Version
	}
	if info.Dirty {
		return fmt.Sprintf("%s-%s-dirty", info.Version, info.Commit)
	}
	return fmt.Sprintf("%s-%s", info.Version, info.Commit)
}
