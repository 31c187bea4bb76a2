// Package config handles loading, saving, and validating casebank configuration.
//
// Configuration is stored in ~/.casebank.json by default. The same schema may be
// written as YAML (.yaml, .yml) or TOML (.toml), or read from KDL (.kdl); the
// format is chosen by file extension. Environment variables (optionally from a .env file) override the
// file.
//
// Schema:
//
//	{
//	  "settings": {
//	    "dataDir": "~/.casebank",
//	    "embedder": {"type": "hashing", "dimension": 384},
//	    "retrieval": {"limit": 5, "oversample": 4, "strongMatch": 0.75},
//	    "recency": {"halfLifeHours": 336, "horizonDays": 180},
//	    "timeouts": {"embedSeconds": 10, "writeSeconds": 5},
//	    "commit": {"workers": 4, "queueSize": 1000, "maxAttempts": 3, "backoffMillis": 100},
//	    "seeds": {"dir": "", "patterns": ["**/*.json"]}
//	  }
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Embedder types.
const (
	EmbedderHashing = "hashing"
	EmbedderOllama  = "ollama"
)

// DefaultConfigFile is the config file name inside the home directory.
const DefaultConfigFile = ".casebank.json"

// Config represents the root configuration structure.
type Config struct {
	// Settings contains every engine option.
	Settings *Settings `json:"settings" yaml:"settings" toml:"settings"`
}

// Settings contains global configuration options.
type Settings struct {
	// DataDir holds the SQLite database. A leading ~ expands to the home directory.
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty" toml:"dataDir,omitempty"`

	Embedder  EmbedderSettings  `json:"embedder" yaml:"embedder" toml:"embedder"`
	Retrieval RetrievalSettings `json:"retrieval" yaml:"retrieval" toml:"retrieval"`
	Recency   RecencySettings   `json:"recency" yaml:"recency" toml:"recency"`
	Timeouts  TimeoutSettings   `json:"timeouts" yaml:"timeouts" toml:"timeouts"`
	Commit    CommitSettings    `json:"commit" yaml:"commit" toml:"commit"`
	Seeds     SeedSettings      `json:"seeds" yaml:"seeds" toml:"seeds"`
}

// EmbedderSettings selects the embedding backend.
type EmbedderSettings struct {
	// Type is "hashing" (local, deterministic) or "ollama".
	Type      string `json:"type" yaml:"type" toml:"type"`
	Dimension int    `json:"dimension" yaml:"dimension" toml:"dimension"`

	// BaseURL and Model are used by the ollama backend only.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" toml:"baseURL,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
}

// RetrievalSettings tunes ranking.
type RetrievalSettings struct {
	Limit       int     `json:"limit" yaml:"limit" toml:"limit"`
	Oversample  int     `json:"oversample" yaml:"oversample" toml:"oversample"`
	StrongMatch float64 `json:"strongMatch" yaml:"strongMatch" toml:"strongMatch"`
}

// RecencySettings shapes the recency signal.
type RecencySettings struct {
	HalfLifeHours int `json:"halfLifeHours" yaml:"halfLifeHours" toml:"halfLifeHours"`
	HorizonDays   int `json:"horizonDays" yaml:"horizonDays" toml:"horizonDays"`
}

// TimeoutSettings bounds embedding calls and durable writes.
type TimeoutSettings struct {
	EmbedSeconds int `json:"embedSeconds" yaml:"embedSeconds" toml:"embedSeconds"`
	WriteSeconds int `json:"writeSeconds" yaml:"writeSeconds" toml:"writeSeconds"`
}

// CommitSettings configures the background committer.
type CommitSettings struct {
	Workers       int `json:"workers" yaml:"workers" toml:"workers"`
	QueueSize     int `json:"queueSize" yaml:"queueSize" toml:"queueSize"`
	MaxAttempts   int `json:"maxAttempts" yaml:"maxAttempts" toml:"maxAttempts"`
	BackoffMillis int `json:"backoffMillis" yaml:"backoffMillis" toml:"backoffMillis"`
}

// SeedSettings points at sample files ingested on startup and watched while serving.
type SeedSettings struct {
	Dir      string   `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty" toml:"patterns,omitempty"`
}

// NewConfig creates a configuration with default settings.
func NewConfig() *Config {
	return &Config{Settings: DefaultSettings()}
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		DataDir: "~/.casebank",
		Embedder: EmbedderSettings{
			Type:      EmbedderHashing,
			Dimension: 384,
			BaseURL:   "http://localhost:11434",
			Model:     "nomic-embed-text",
		},
		Retrieval: RetrievalSettings{
			Limit:       5,
			Oversample:  4,
			StrongMatch: 0.75,
		},
		Recency: RecencySettings{
			HalfLifeHours: 336,
			HorizonDays:   180,
		},
		Timeouts: TimeoutSettings{
			EmbedSeconds: 10,
			WriteSeconds: 5,
		},
		Commit: CommitSettings{
			Workers:       4,
			QueueSize:     1000,
			MaxAttempts:   3,
			BackoffMillis: 100,
		},
		Seeds: SeedSettings{
			Patterns: []string{"**/*.json"},
		},
	}
}

// applyDefaults fills zero values left by a partial config file.
func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.DataDir == "" {
		s.DataDir = d.DataDir
	}
	if s.Embedder.Type == "" {
		s.Embedder.Type = d.Embedder.Type
	}
	if s.Embedder.Dimension == 0 {
		s.Embedder.Dimension = d.Embedder.Dimension
	}
	if s.Embedder.BaseURL == "" {
		s.Embedder.BaseURL = d.Embedder.BaseURL
	}
	if s.Embedder.Model == "" {
		s.Embedder.Model = d.Embedder.Model
	}
	if s.Retrieval.Limit == 0 {
		s.Retrieval.Limit = d.Retrieval.Limit
	}
	if s.Retrieval.Oversample == 0 {
		s.Retrieval.Oversample = d.Retrieval.Oversample
	}
	if s.Retrieval.StrongMatch == 0 {
		s.Retrieval.StrongMatch = d.Retrieval.StrongMatch
	}
	if s.Recency.HalfLifeHours == 0 {
		s.Recency.HalfLifeHours = d.Recency.HalfLifeHours
	}
	if s.Recency.HorizonDays == 0 {
		s.Recency.HorizonDays = d.Recency.HorizonDays
	}
	if s.Timeouts.EmbedSeconds == 0 {
		s.Timeouts.EmbedSeconds = d.Timeouts.EmbedSeconds
	}
	if s.Timeouts.WriteSeconds == 0 {
		s.Timeouts.WriteSeconds = d.Timeouts.WriteSeconds
	}
	if s.Commit.Workers == 0 {
		s.Commit.Workers = d.Commit.Workers
	}
	if s.Commit.QueueSize == 0 {
		s.Commit.QueueSize = d.Commit.QueueSize
	}
	if s.Commit.MaxAttempts == 0 {
		s.Commit.MaxAttempts = d.Commit.MaxAttempts
	}
	if s.Commit.BackoffMillis == 0 {
		s.Commit.BackoffMillis = d.Commit.BackoffMillis
	}
	if len(s.Seeds.Patterns) == 0 {
		s.Seeds.Patterns = d.Seeds.Patterns
	}
}

// ResolvedDataDir returns DataDir with a leading ~ expanded.
func (s *Settings) ResolvedDataDir() (string, error) {
	return expandHome(s.DataDir)
}

// ResolvedSeedDir returns Seeds.Dir with a leading ~ expanded, or "" when unset.
func (s *Settings) ResolvedSeedDir() (string, error) {
	if s.Seeds.Dir == "" {
		return "", nil
	}
	return expandHome(s.Seeds.Dir)
}

// EmbedTimeout returns the per-call embedding timeout.
func (s *Settings) EmbedTimeout() time.Duration {
	return time.Duration(s.Timeouts.EmbedSeconds) * time.Second
}

// WriteTimeout returns the durable-write timeout.
func (s *Settings) WriteTimeout() time.Duration {
	return time.Duration(s.Timeouts.WriteSeconds) * time.Second
}

// RecencyHalfLife returns the recency half-life.
func (s *Settings) RecencyHalfLife() time.Duration {
	return time.Duration(s.Recency.HalfLifeHours) * time.Hour
}

// RecencyHorizon returns the age beyond which recency is zero.
func (s *Settings) RecencyHorizon() time.Duration {
	return time.Duration(s.Recency.HorizonDays) * 24 * time.Hour
}

// CommitBackoff returns the delay before the first commit retry.
func (s *Settings) CommitBackoff() time.Duration {
	return time.Duration(s.Commit.BackoffMillis) * time.Millisecond
}

// GetDefaultConfigPath returns the path to ~/.casebank.json
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigFile), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadOrCreate reads the configuration at path, or returns defaults when the
// file does not exist. An empty path means the default path.
func LoadOrCreate(path string) (*Config, error) {
	if path == "" {
		p, err := GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		var notFound *ConfigNotFoundError
		if errors.As(err, &notFound) {
			return NewConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
