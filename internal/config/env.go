package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvDataDir     = "CASEBANK_DATA_DIR"
	EnvEmbedder    = "CASEBANK_EMBEDDER"
	EnvOllamaURL   = "CASEBANK_OLLAMA_URL"
	EnvOllamaModel = "CASEBANK_OLLAMA_MODEL"
	EnvLimit       = "CASEBANK_LIMIT"
)

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from CASEBANK_* variables and re-validates.
func (s *Settings) ApplyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv(EnvEmbedder); v != "" {
		s.Embedder.Type = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvOllamaURL); v != "" {
		s.Embedder.BaseURL = v
	}
	if v := os.Getenv(EnvOllamaModel); v != "" {
		s.Embedder.Model = v
	}
	if v := os.Getenv(EnvLimit); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLimit, err)
		}
		s.Retrieval.Limit = n
	}
	return s.Validate()
}

// Validate rejects settings the engine cannot run with. Failures are *SettingError.
func (s *Settings) Validate() error {
	switch s.Embedder.Type {
	case EmbedderHashing, EmbedderOllama:
	default:
		return invalid("embedder.type", "must be %q or %q, got %q", EmbedderHashing, EmbedderOllama, s.Embedder.Type)
	}
	if s.Embedder.Dimension <= 0 {
		return invalid("embedder.dimension", "must be positive, got %d", s.Embedder.Dimension)
	}
	if s.Retrieval.Limit <= 0 {
		return invalid("retrieval.limit", "must be positive, got %d", s.Retrieval.Limit)
	}
	if s.Retrieval.Oversample <= 0 {
		return invalid("retrieval.oversample", "must be positive, got %d", s.Retrieval.Oversample)
	}
	if s.Retrieval.StrongMatch < 0 || s.Retrieval.StrongMatch > 1 {
		return invalid("retrieval.strongMatch", "must be within [0, 1], got %v", s.Retrieval.StrongMatch)
	}
	if s.Recency.HalfLifeHours <= 0 {
		return invalid("recency.halfLifeHours", "must be positive, got %d", s.Recency.HalfLifeHours)
	}
	if s.Recency.HorizonDays <= 0 {
		return invalid("recency.horizonDays", "must be positive, got %d", s.Recency.HorizonDays)
	}
	if s.Commit.MaxAttempts <= 0 {
		return invalid("commit.maxAttempts", "must be positive, got %d", s.Commit.MaxAttempts)
	}
	return nil
}

func invalid(setting, format string, args ...interface{}) error {
	return &SettingError{Setting: setting, Reason: fmt.Sprintf(format, args...)}
}
