package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Overridden with -ldflags -X.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

const shortCommit = 7

// Info is the build a process runs.
type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit,omitempty"`
	GoVersion string    `json:"go_version"`
	BuildDate time.Time `json:"build_date,omitzero"`
	IsDirty   bool      `json:"is_dirty"`
}

// IsRelease reports whether the build carries a real, clean version.
func (i *Info) IsRelease() bool {
	return i.Version != "dev" && !i.IsDirty && !strings.Contains(i.Version, "dirty")
}

// GetVersionInfo combines the -ldflags values with the VCS stamp the
// toolchain embeds. Explicit -ldflags values take precedence.
func GetVersionInfo() *Info {
	info := &Info{Version: Version, GitCommit: GitCommit}
	info.BuildDate, _ = time.Parse(time.RFC3339, BuildTime)

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		vcs := make(map[string]string, len(bi.Settings))
		for _, s := range bi.Settings {
			vcs[s.Key] = s.Value
		}
		if info.GitCommit == "" {
			info.GitCommit = vcs["vcs.revision"]
		}
		if info.BuildDate.IsZero() {
			info.BuildDate, _ = time.Parse(time.RFC3339, vcs["vcs.time"])
		}
		info.IsDirty = vcs["vcs.modified"] == "true"
	}

	if len(info.GitCommit) > shortCommit {
		info.GitCommit = info.GitCommit[:shortCommit]
	}
	return info
}

// GetShortVersion is the version a service reports: version, then commit
// and a dirty marker when known, joined by dashes.
func GetShortVersion() string {
	info := GetVersionInfo()
	s := info.Version
	if info.GitCommit != "" {
		s += "-" + info.GitCommit
	}
	if info.IsDirty {
		s += "-dirty"
	}
	return s
}

// String is the line a program prints for --version.
func String(program string) string {
	info := GetVersionInfo()
	line := fmt.Sprintf("%s %s", program, GetShortVersion())

	var details []string
	if info.GoVersion != "" {
		details = append(details, info.GoVersion)
	}
	if !info.BuildDate.IsZero() {
		details = append(details, "built "+info.BuildDate.UTC().Format(time.RFC3339))
	}
	if len(details) == 0 {
		return line
	}
	return line + " (" + strings.Join(details, ", ") + ")"
}
