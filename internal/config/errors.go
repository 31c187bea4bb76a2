package config

import "fmt"

// SettingError names the setting that failed validation.
type SettingError struct {
	Setting string // dotted path, e.g. "retrieval.limit"
	Reason  string
}

func (e *SettingError) Error() string {
	return e.Setting + " " + e.Reason
}

// PermissionError reports a config file or directory casebank cannot access.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string // Suggested fix command
	Details string // Additional context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied (cannot %s config): %s\n", e.Op, e.Path)
	if e.Details != "" {
		msg += e.Details + "\n"
	}
	msg += "💡 Fix: " + e.Fix
	return msg
}

// ConfigNotFoundError reports a missing config file. LoadOrCreate treats it
// as "use defaults".
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s\n\n💡 %s", e.Path, e.Hint)
}

// InvalidConfigError reports a config file that does not parse or holds an
// unusable setting. Err is the parse error or *SettingError, when known.
type InvalidConfigError struct {
	Path    string
	Message string
	Hint    string
	Err     error
}

func (e *InvalidConfigError) Error() string {
	msg := fmt.Sprintf("invalid config: %s\n", e.Path)
	if e.Message != "" {
		msg += e.Message + "\n"
	}
	if e.Hint != "" {
		msg += "💡 " + e.Hint
	}
	return msg
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }
