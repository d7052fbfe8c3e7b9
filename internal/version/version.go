// Package version reports which build of the meshquote binaries is running.
//
// Release builds set the variables below with ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/meshquote-api/internal/version.Version=1.0.0 ..."
//
// Builds without ldflags (go build, go install) fall back to the module
// version and VCS stamp embedded by the toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

const devVersion = "0.0.0-dev"

// Product prefixes the name of every meshquote binary.
const Product = "meshquote"

// Build-time variables set via ldflags
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = devVersion

	// Commit is the git commit SHA
	Commit = "unknown"

	// Date is the build date in RFC3339 format
	Date = "unknown"

	// Dirty indicates if the git tree was dirty at build time
	Dirty = "false"
)

// Info holds all version information
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var readBuildInfo = sync.OnceValues(debug.ReadBuildInfo)

// Get returns the version info. Values not set by ldflags are taken from the
// embedded build info when available.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := readBuildInfo(); ok {
		info = info.withBuildInfo(bi)
	}
	return info
}

// withBuildInfo fills the fields ldflags left at their defaults.
func (i Info) withBuildInfo(bi *debug.BuildInfo) Info {
	if i.Version == devVersion {
		v := strings.TrimPrefix(bi.Main.Version, "v")
		if before, found := strings.CutSuffix(v, "+dirty"); found {
			v = before
			i.Dirty = true
		}
		if v != "" && v != "(devel)" {
			i.Version = v
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "unknown" {
				i.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if i.Date == "unknown" {
				i.Date = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				i.Dirty = true
			}
		}
	}
	return i
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns a human-readable version string
func (i Info) String() string {
	dirty := ""
	if i.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s) built %s", i.Version, i.Commit, dirty, i.Date)
}

// Short returns a short version string (version only)
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// UserAgent identifies a meshquote binary on outbound requests, e.g.
// "meshquote-api/1.4.0 (go1.25.5; linux/amd64)".
func (i Info) UserAgent(binary string) string {
	return fmt.Sprintf("%s-%s/%s (%s; %s)", Product, binary, i.Short(), i.GoVersion, i.Platform)
}
