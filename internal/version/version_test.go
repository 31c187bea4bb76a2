package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"dev", "none", "unknown", "dev (development build)"},
		{"v1.2.0", "abc1234", "2026-01-31", "v1.2.0 (commit: abc1234, built: 2026-01-31)"},
	}

	for _, tt := range tests {
		if got := FormatVersion(tt.version, tt.commit, tt.date); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.version, got, tt.want)
		}
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version != Version {
		t.Errorf("expected version %s, got %s", Version, info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected go version %s, got %s", runtime.Version(), info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("platform should be os/arch, got %s", info.Platform)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "casebank/"+Version {
		t.Errorf("unexpected user agent %s", got)
	}
}
