package version

import (
	"strings"
	"testing"
	"time"
)

func setVars(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, GitCommit, BuildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, GitCommit, BuildTime = version, commit, buildTime
}

func TestGetVersionInfo(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		commit      string
		buildTime   string
		wantRelease bool
		wantCommit  string
	}{
		{"dev build", "dev", "", "", false, ""},
		{"release", "1.2.0", "abcdef1234567", "2024-03-01T10:00:00Z", true, "abcdef1"},
		{"dirty version", "1.2.0-dirty", "abc", "", false, "abc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setVars(t, tc.version, tc.commit, tc.buildTime)
			info := GetVersionInfo()
			if info.Version != tc.version {
				t.Errorf("Version = %q", info.Version)
			}
			if info.IsRelease() != (tc.wantRelease && !info.IsDirty) {
				t.Errorf("IsRelease = %v, want %v", info.IsRelease(), tc.wantRelease)
			}
			if tc.commit != "" && info.GitCommit != tc.wantCommit {
				t.Errorf("GitCommit = %q, want %q", info.GitCommit, tc.wantCommit)
			}
			if tc.buildTime != "" {
				want, _ := time.Parse(time.RFC3339, tc.buildTime)
				if !info.BuildDate.Equal(want) {
					t.Errorf("BuildDate = %v, want %v", info.BuildDate, want)
				}
			}
		})
	}
}

func TestGetShortVersion(t *testing.T) {
	setVars(t, "1.0.0", "abc1234", "")
	got := GetShortVersion()
	if !strings.HasPrefix(got, "1.0.0-abc1234") {
		t.Errorf("expected prefix '1.0.0-abc1234', got %q", got)
	}
}

func TestString(t *testing.T) {
	setVars(t, "2.0.0", "", "2024-03-01T10:00:00Z")
	got := String("calculator-client")
	if !strings.HasPrefix(got, "calculator-client 2.0.0") {
		t.Errorf("unexpected version line %q", got)
	}
	if !strings.Contains(got, "built 2024-03-01T10:00:00Z") {
		t.Errorf("expected build time in %q", got)
	}
}
