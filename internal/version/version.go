/*
Package version provides casebank build information.

Values are set via ldflags during build:

	-X github.com/khanglvm/casebank/internal/version.Version=v1.0.0
	-X github.com/khanglvm/casebank/internal/version.Commit=abc1234
	-X github.com/khanglvm/casebank/internal/version.Date=2026-01-31

If not set via ldflags, defaults to "dev" build.
*/
package version

import "runtime"

// Version information (set via ldflags during build)
var (
	// Version is the current version (e.g., v1.0.1)
	Version = "dev"
	// Commit is the git commit hash (short form)
	Commit = "none"
	// Date is the build date in UTC (YYYY-MM-DD)
	Date = "unknown"
)

// Info is the build information in a serializable form.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the current build information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion returns version information as a formatted string
func GetVersion() string {
	return FormatVersion(Version, Commit, Date)
}

// FormatVersion formats version components into a display string
func FormatVersion(version, commit, date string) string {
	if version == "dev" {
		return version + " (development build)"
	}
	return version + " (commit: " + commit + ", built: " + date + ")"
}

// UserAgent identifies casebank in outgoing HTTP requests.
func UserAgent() string {
	return "casebank/" + Version
}
