// Package version reports build metadata.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is set via ldflags. Without it the module version from the
	// build info is used.
	Version = "dev"
	// GitCommit is set via ldflags.
	GitCommit = "unknown"
	// BuildDate is set via ldflags.
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"v0.3.1"`
	GitCommit string `json:"git_commit" example:"4f1c2ab"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z"`
	GoVersion string `json:"go_version" example:"go1.24.11"`
	Platform  string `json:"platform" example:"linux/arm64"`
	Framework string `json:"framework,omitempty" example:"gstreamer" doc:"Media framework realizing graphs"`
}

// Get returns the build information. framework names the media
// framework in use, if any.
func Get(framework string) Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Framework: framework,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && info.GitCommit == "unknown" && len(s.Value) >= 7 {
				info.GitCommit = s.Value[:7]
			}
		}
	}
	return info
}

// String returns the application version string.
func String() string {
	return Get("").Version
}
