package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() = %+v, fields should not be empty", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if Get() != info {
		t.Error("Get() should be stable")
	}
}

func TestFill(t *testing.T) {
	tests := []struct {
		name string
		in   Info
		bi   debug.BuildInfo
		want Info
	}{
		{
			name: "vcs settings",
			in:   Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
			bi: debug.BuildInfo{
				Main: debug.Module{Version: "v1.4.0"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef"},
					{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			want: Info{Version: "v1.4.0", Commit: "0123456789ab", BuildTime: "2026-01-02T03:04:05Z", Modified: true},
		},
		{
			name: "ldflags win",
			in:   Info{Version: "v2.0.0", Commit: "abc", BuildTime: "today"},
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v1.4.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fff"}},
			},
			want: Info{Version: "v2.0.0", Commit: "abc", BuildTime: "today"},
		},
		{
			name: "devel module",
			in:   Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
			bi:   debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			fill(&got, &tt.bi)
			if got != tt.want {
				t.Errorf("fill() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	s := String()
	info := Get()
	if !strings.HasPrefix(s, info.Version+" ("+info.Commit) {
		t.Errorf("String() = %q", s)
	}
	if !strings.HasSuffix(s, " with "+info.GoVersion) {
		t.Errorf("String() = %q, want go version suffix", s)
	}
}
