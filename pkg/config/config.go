// Package config loads the service configuration from defaults, an optional
// YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/duynguyendang/outgassing/pkg/fuzzy"
	"github.com/duynguyendang/outgassing/pkg/query"
)

// Environment variables that override file values.
const (
	EnvDataset        = "OUTGASSING_DATASET"
	EnvLogLevel       = "OUTGASSING_LOG_LEVEL"
	EnvMatchProfile   = "OUTGASSING_MATCH_PROFILE"
	EnvMatchThreshold = "OUTGASSING_MATCH_THRESHOLD"
	EnvPort           = "PORT"
)

const DefaultDatasetPath = "data/Outgassing_Db_rows.csv"

type Config struct {
	DatasetPath string       `yaml:"dataset_path"`
	LogLevel    string       `yaml:"log_level"`
	HTTP        HTTPConfig   `yaml:"http"`
	Engine      EngineConfig `yaml:"engine"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// EngineConfig mirrors query.Config in file form. MatchThreshold, when set,
// takes precedence over the threshold implied by MatchProfile.
type EngineConfig struct {
	MatchProfile         string   `yaml:"match_profile"`
	MatchThreshold       *float64 `yaml:"match_threshold"`
	DefaultCompliantOnly bool     `yaml:"default_compliant_only"`
	IncludeDetails       bool     `yaml:"include_details"`
	DefaultLimit         int      `yaml:"default_limit"`
	MatchCacheSize       int      `yaml:"match_cache_size"`
	TopApplications      int      `yaml:"top_applications"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatasetPath: DefaultDatasetPath,
		LogLevel:    "info",
		HTTP:        HTTPConfig{Addr: ":8080"},
		Engine: EngineConfig{
			MatchProfile:    query.ProfileRaw,
			DefaultLimit:    query.DefaultLimit,
			MatchCacheSize:  fuzzy.DefaultCacheSize,
			TopApplications: query.DefaultTopApplications,
		},
	}
}

// Load builds a Config. An empty path skips the file; a missing named file
// is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataset); v != "" {
		c.DatasetPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvMatchProfile); v != "" {
		c.Engine.MatchProfile = v
	}
	if v := os.Getenv(EnvMatchThreshold); v != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMatchThreshold, v, err)
		}
		c.Engine.MatchThreshold = &t
	}
	if port := os.Getenv(EnvPort); port != "" {
		c.HTTP.Addr = ":" + port
	}
	return nil
}

// Validate checks values that cannot be caught by the YAML decoder.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatasetPath) == "" {
		errs = append(errs, errors.New("dataset_path is required"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := query.Profile(c.Engine.MatchProfile); err != nil {
		errs = append(errs, err)
	}
	if t := c.Engine.MatchThreshold; t != nil && (math.IsNaN(*t) || math.IsInf(*t, 0)) {
		errs = append(errs, errors.New("engine.match_threshold must be a finite number"))
	}
	if c.Engine.DefaultLimit < 0 {
		errs = append(errs, errors.New("engine.default_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// Query resolves the engine section into a query.Config.
func (c Config) Query() (query.Config, error) {
	qc, err := query.Profile(c.Engine.MatchProfile)
	if err != nil {
		return query.Config{}, err
	}
	if c.Engine.MatchThreshold != nil {
		t := *c.Engine.MatchThreshold
		qc.MatchThreshold = &t
	}
	qc.DefaultCompliantOnly = c.Engine.DefaultCompliantOnly
	qc.IncludeDetails = c.Engine.IncludeDetails
	if c.Engine.DefaultLimit > 0 {
		qc.DefaultLimit = c.Engine.DefaultLimit
	}
	// Zero is meaningful here: it disables the cache.
	qc.MatchCacheSize = c.Engine.MatchCacheSize
	if c.Engine.TopApplications > 0 {
		qc.TopApplications = c.Engine.TopApplications
	}
	return qc, nil
}

// ParseLevel maps a log level name to its slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
