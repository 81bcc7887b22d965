package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	DBPath    string `yaml:"db"`
	DataDir   string `yaml:"dataDir"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	// LogFile receives logs while the TUI owns the terminal. Empty means
	// next to the database.
	LogFile string `yaml:"logFile"`

	Session struct {
		AllowCountMismatch    bool   `yaml:"allowCountMismatch"`
		StallTimeout          string `yaml:"stallTimeout"`
		ModuleDangerSeconds   int    `yaml:"moduleDangerSeconds"`
		QuestionDangerSeconds int    `yaml:"questionDangerSeconds"`
	} `yaml:"session"`

	Sets struct {
		CacheTTL         string `yaml:"cacheTTL"`
		ListeningSeconds int    `yaml:"listeningSeconds"`
	} `yaml:"sets"`

	Redis struct {
		URL string `yaml:"url"`
		TTL string `yaml:"ttl"`
	} `yaml:"redis"`
}

// Load builds the configuration from, lowest precedence first: defaults, the
// YAML file at path (or $EXAMRUN_CONFIG), then environment variables. A .env
// file in the working directory is loaded if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &Config{
		DataDir:   "./data",
		LogLevel:  "info",
		LogFormat: "pretty",
	}
	cfg.Sets.CacheTTL = "10m"
	cfg.Redis.TTL = "2h"

	explicit := path != ""
	if !explicit {
		path = os.Getenv("EXAMRUN_CONFIG")
		explicit = path != ""
	}
	if explicit {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if data, err := os.ReadFile("examrun.yaml"); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config examrun.yaml: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.DBPath = getEnv("EXAMRUN_DB", cfg.DBPath)
	cfg.DataDir = getEnv("EXAMRUN_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("EXAMRUN_LOG_FILE", cfg.LogFile)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Session.AllowCountMismatch = getEnvBool("EXAMRUN_ALLOW_COUNT_MISMATCH", cfg.Session.AllowCountMismatch)
	cfg.Session.StallTimeout = getEnv("EXAMRUN_STALL_TIMEOUT", cfg.Session.StallTimeout)
	cfg.Sets.ListeningSeconds = getEnvInt("EXAMRUN_LISTENING_SECONDS", cfg.Sets.ListeningSeconds)

	return cfg, nil
}

// StallTimeout is the component watchdog duration; zero disables it.
func (c *Config) StallTimeout() time.Duration {
	return Duration(c.Session.StallTimeout, 0)
}

// CacheTTL is how long loaded question sets stay cached.
func (c *Config) CacheTTL() time.Duration {
	return Duration(c.Sets.CacheTTL, 10*time.Minute)
}

// RedisTTL is how long the proctor display hash outlives its last update.
func (c *Config) RedisTTL() time.Duration {
	return Duration(c.Redis.TTL, 2*time.Hour)
}

// Duration parses a duration string or returns the fallback if empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
