package version

import (
	"runtime"
	"runtime/debug"
	"testing"
)

// ========================================
// Get() Tests
// ========================================

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" || info.Commit == "" || info.Date == "" {
		t.Errorf("Get() = %+v, want every field populated", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; info.Platform != want {
		t.Errorf("Platform = %q, want %q", info.Platform, want)
	}
}

// ========================================
// Build info fallback Tests
// ========================================

func TestWithBuildInfo(t *testing.T) {
	dev := Info{Version: devVersion, Commit: "unknown", Date: "unknown"}
	stamp := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "4f1c2a9e7b3d5c6e8f0a1b2c3d4e5f6a7b8c9d0e"},
		{Key: "vcs.time", Value: "2026-10-05T10:15:00Z"},
		{Key: "vcs.modified", Value: "false"},
	}

	tests := []struct {
		name string
		base Info
		bi   debug.BuildInfo
		want Info
	}{
		{
			name: "go install of a tag",
			base: dev,
			bi:   debug.BuildInfo{Main: debug.Module{Version: "v1.4.0"}, Settings: stamp},
			want: Info{Version: "1.4.0", Commit: "4f1c2a9e7b3d", Date: "2026-10-05T10:15:00Z"},
		},
		{
			name: "local build",
			base: dev,
			bi:   debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: Info{Version: devVersion, Commit: "unknown", Date: "unknown"},
		},
		{
			name: "dirty pseudo-version",
			base: dev,
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v0.0.0-20261005101500-4f1c2a9e7b3d+dirty"},
				Settings: []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}},
			},
			want: Info{Version: "0.0.0-20261005101500-4f1c2a9e7b3d", Commit: "unknown", Date: "unknown", Dirty: true},
		},
		{
			name: "ldflags win",
			base: Info{Version: "2.0.0", Commit: "abc1234", Date: "2026-10-01T00:00:00Z"},
			bi:   debug.BuildInfo{Main: debug.Module{Version: "v1.4.0"}, Settings: stamp},
			want: Info{Version: "2.0.0", Commit: "abc1234", Date: "2026-10-01T00:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.base.withBuildInfo(&tt.bi); got != tt.want {
				t.Errorf("withBuildInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ========================================
// Formatting Tests
// ========================================

func TestInfo_Short(t *testing.T) {
	if got := (Info{Version: "1.4.0"}).Short(); got != "1.4.0" {
		t.Errorf("Short() = %q, want 1.4.0", got)
	}
	if got := (Info{Version: "1.4.0", Dirty: true}).Short(); got != "1.4.0-dirty" {
		t.Errorf("Short() = %q, want 1.4.0-dirty", got)
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "1.4.0", Commit: "4f1c2a9e7b3d", Date: "2026-10-05T10:15:00Z", Dirty: true}
	want := "1.4.0 (4f1c2a9e7b3d-dirty) built 2026-10-05T10:15:00Z"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestInfo_UserAgent(t *testing.T) {
	info := Info{Version: "1.4.0", GoVersion: "go1.25.5", Platform: "linux/amd64"}
	want := "meshquote-api/1.4.0 (go1.25.5; linux/amd64)"
	if got := info.UserAgent("api"); got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
