// Package version reports which mosaic build is running.
//
// Release builds stamp Version, Commit and Date through ldflags, for example
//
//	go build -ldflags "-X github.com/Aman-CERP/mosaic/pkg/version.Version=v0.3.0" ./cmd/mosaic
//
// Binaries installed with `go install` carry no ldflags; for those the module
// version and the VCS stamp embedded by the Go toolchain are used instead.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Version is the release of mosaic, "dev" when unstamped.
var Version = "dev"

var (
	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// Date is the build time in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go release that compiled the binary.
	GoVersion = runtime.Version()
)

// BuildInfo is the JSON form of `mosaic version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var resolve = sync.OnceValue(func() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}
	return info
})

// fromBuildInfo fills the fields ldflags left unset from the toolchain stamp.
func fromBuildInfo(info *BuildInfo, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String is the one-line form printed by `mosaic version`.
func String() string {
	info := resolve()
	s := fmt.Sprintf("mosaic %s (commit: %s, built: %s, go: %s)",
		info.Version, info.Commit, info.Date, info.GoVersion)
	if info.Modified {
		s += " +modified"
	}
	return s
}

// Short returns the version alone.
func Short() string {
	return resolve().Version
}

// GetInfo returns the resolved build information.
func GetInfo() BuildInfo {
	return resolve()
}
