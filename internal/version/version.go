// Package version reports build information. The variables are set with
// -ldflags at release time; otherwise the Go build info stamped by the
// toolchain is used.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = ""
	GitCommit = ""
	BuildDate = ""
)

const develop = "develop"

type BuildInfo struct {
	Version   string `json:"version,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, bi)
	}
	if info.Version == "" {
		info.Version = develop
	}
	return info
}

// fromBuildInfo fills fields the linker flags left empty.
func fromBuildInfo(info BuildInfo, bi *debug.BuildInfo) BuildInfo {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String is the one-line form, e.g. "v1.2.0 (3f2c1ab, 2024-02-01T09:00:00Z)".
func (b BuildInfo) String() string {
	if b.GitCommit == "" {
		return b.Version
	}
	commit := b.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if b.Modified {
		commit += "-dirty"
	}
	if b.BuildDate == "" {
		return fmt.Sprintf("%s (%s)", b.Version, commit)
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, b.BuildDate)
}
