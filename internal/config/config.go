// Package config loads MoodMatch settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	// DefaultStateDirName is created under the home directory when no state dir is set.
	DefaultStateDirName = ".moodmatch"
	// DefaultDBFileName is the SQLite journal inside the state directory.
	DefaultDBFileName = "moodmatch.db"

	AnalyzerAPI    = "api"
	AnalyzerOpenAI = "openai"
)

// Config is the full client configuration.
type Config struct {
	APIURL          string        `env:"MOODMATCH_API_URL"          env-default:"http://localhost:8001"`
	UserID          string        `env:"MOODMATCH_USER_ID"          env-default:"student_ananya"`
	Analyzer        string        `env:"MOODMATCH_ANALYZER"         env-default:"api"`
	OpenAIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIModel     string        `env:"MOODMATCH_OPENAI_MODEL"     env-default:"gpt-4o-mini"`
	AnimationPolicy string        `env:"MOODMATCH_ANIMATION_POLICY" env-default:"sequential"`
	StepInterval    time.Duration `env:"MOODMATCH_STEP_INTERVAL"    env-default:"1.5s"`
	RequestTimeout  time.Duration `env:"MOODMATCH_REQUEST_TIMEOUT"  env-default:"20s"`
	StateDir        string        `env:"MOODMATCH_STATE_DIR"`
	DBDSN           string        `env:"MOODMATCH_DB_DSN"`
	LogLevel        string        `env:"MOODMATCH_LOG_LEVEL"        env-default:"info"`
}

// Load reads an optional .env file, then the environment, fills derived defaults and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	slog.Debug("environment variables loaded",
		"api_url", cfg.APIURL,
		"analyzer", cfg.Analyzer,
		"openai_key_set", cfg.OpenAIKey != "",
		"policy", cfg.AnimationPolicy,
		"state_dir", cfg.StateDir,
		"dsn_set", cfg.DBDSN != "")
	return &cfg, nil
}

// ApplyDefaults fills the state directory and journal DSN when they are unset.
func (c *Config) ApplyDefaults() {
	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = os.TempDir()
		}
		c.StateDir = filepath.Join(home, DefaultStateDirName)
	}
	if c.DBDSN == "" {
		c.DBDSN = filepath.Join(c.StateDir, DefaultDBFileName)
	}
	c.Analyzer = strings.ToLower(strings.TrimSpace(c.Analyzer))
	c.AnimationPolicy = strings.ToLower(strings.TrimSpace(c.AnimationPolicy))
}

// Validate checks values that cleanenv cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api url %q must be an http(s) URL", c.APIURL)
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user id must not be empty")
	}
	switch c.Analyzer {
	case AnalyzerAPI:
	case AnalyzerOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("analyzer %q requires OPENAI_API_KEY", AnalyzerOpenAI)
		}
	default:
		return fmt.Errorf("analyzer must be %q or %q (got %q)", AnalyzerAPI, AnalyzerOpenAI, c.Analyzer)
	}
	if c.AnimationPolicy != "sequential" && c.AnimationPolicy != "concurrent" {
		return fmt.Errorf("animation policy must be sequential or concurrent (got %q)", c.AnimationPolicy)
	}
	if c.StepInterval < 0 {
		return fmt.Errorf("step interval must be >= 0 (got %s)", c.StepInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0 (got %s)", c.RequestTimeout)
	}
	return nil
}

// ParseLogLevel maps a level name to slog.Level. Unknown names fall back to info.
func ParseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
