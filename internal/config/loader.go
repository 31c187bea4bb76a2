package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a config file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	// FormatKDL is read-only.
	FormatKDL Format = "kdl"
)

// FormatOf picks the encoding from the file extension. Unknown extensions are JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".kdl":
		return FormatKDL
	default:
		return FormatJSON
	}
}

// LoadFrom reads config with enhanced error handling. Missing settings take
// their defaults and the result is validated.
func LoadFrom(path string) (*Config, error) {
	// Check file existence first
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "Run 'casebank config init' to create configuration",
			}
		}
		return nil, fmt.Errorf("failed to access config: %w", err)
	}

	// Check read permissions
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PermissionError{
				Path:    path,
				Op:      "read",
				Fix:     getReadPermissionFix(path),
				Details: getPermissionDetails(path),
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := FormatOf(path)
	cfg, err := decode(data, format)
	if err != nil {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: fmt.Sprintf("%s parse error: %v", strings.ToUpper(string(format)), err),
			Hint:    "Restore from .bak file if available",
			Err:     err,
		}
	}

	if err := cfg.Settings.Validate(); err != nil {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: err.Error(),
			Hint:    "Fix the setting or remove it to use the default",
			Err:     err,
		}
	}

	return cfg, nil
}

func decode(data []byte, format Format) (*Config, error) {
	if format == FormatKDL {
		cfg, err := decodeKDL(data)
		if err != nil {
			return nil, err
		}
		cfg.Settings.applyDefaults()
		return cfg, nil
	}

	var cfg Config
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	case FormatTOML:
		err = toml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, err
	}

	// Initialize nil settings
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings()
	}
	cfg.Settings.applyDefaults()

	return &cfg, nil
}

func encode(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(cfg)
	case FormatTOML:
		return toml.Marshal(cfg)
	case FormatKDL:
		return nil, fmt.Errorf("cannot encode %s", format)
	default:
		return json.MarshalIndent(cfg, "", "  ")
	}
}

// getReadPermissionFix returns platform-specific fix command
func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default: // unix-like
		return fmt.Sprintf("Run: chmod 644 %s", path)
	}
}

// getPermissionDetails checks file ownership and permissions
func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
