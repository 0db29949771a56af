// Package config handles moltrack configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
	"github.com/aidanlsb/moltrack/internal/validation"
)

// Config represents the moltrack configuration file.
type Config struct {
	Database   DatabaseConfig   `toml:"database" json:"database"`
	Chemistry  ChemistryConfig  `toml:"chemistry" json:"chemistry"`
	Validation ValidationConfig `toml:"validation" json:"validation"`
	Log        LogConfig        `toml:"log" json:"log"`
	Metrics    MetricsConfig    `toml:"metrics" json:"metrics"`
	Audit      AuditConfig      `toml:"audit" json:"audit"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `toml:"dsn" json:"dsn"`
}

// ChemistryConfig points at the external chemistry engine and sets the
// search defaults that depend on it.
type ChemistryConfig struct {
	Endpoint              string  `toml:"endpoint" json:"endpoint"`
	Timeout               string  `toml:"timeout" json:"timeout"`
	Sensitivity           string  `toml:"sensitivity" json:"sensitivity"`
	SimilarityMetric      string  `toml:"similarity_metric" json:"similarity_metric"`
	DefaultThreshold      float64 `toml:"default_threshold" json:"default_threshold"`
	AllowDefaultThreshold bool    `toml:"allow_default_threshold" json:"allow_default_threshold"`
}

// ValidationConfig tunes the validation engine.
type ValidationConfig struct {
	CacheSize     int    `toml:"cache_size" json:"cache_size"`
	ErrorHandling string `toml:"error_handling" json:"error_handling"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled"`
	Namespace string `toml:"namespace" json:"namespace"`
}

// AuditConfig controls the schema change history.
type AuditConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path defaults to audit.log next to a sqlite database file.
	Path string `toml:"path" json:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: defaultDSN()},
		Chemistry: ChemistryConfig{
			Timeout:          "10s",
			Sensitivity:      string(chem.AllLayers),
			SimilarityMetric: string(chem.Tanimoto),
			DefaultThreshold: 0.7,
		},
		Validation: ValidationConfig{
			CacheSize:     validation.DefaultCacheSize,
			ErrorHandling: string(validation.RejectAll),
		},
		Log:     LogConfig{Level: "warn", Format: "text"},
		Metrics: MetricsConfig{Namespace: "moltrack"},
		Audit:   AuditConfig{Enabled: true},
	}
}

// Load loads the configuration from the default location.
// Returns the default config if the file doesn't exist.
func Load() (*Config, error) {
	configPath := DefaultPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Default(), nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from a specific path. Keys missing from
// the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	config := Default()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks enum-valued settings.
func (c *Config) Validate() error {
	if _, err := sqlutil.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if _, err := chem.ParseSensitivity(c.Chemistry.Sensitivity); err != nil {
		return err
	}
	if _, err := chem.ParseMetric(c.Chemistry.SimilarityMetric); err != nil {
		return err
	}
	if t := c.Chemistry.DefaultThreshold; t < 0 || t > 1 {
		return fmt.Errorf("chemistry.default_threshold %v must be between 0 and 1", t)
	}
	if _, err := c.Chemistry.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := validation.ParsePolicy(c.Validation.ErrorHandling); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// TimeoutDuration parses the chemistry request timeout. Empty means 10s.
func (c ChemistryConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid chemistry.timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// NewLogger builds the configured slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DefaultPath returns the default config file path:
// $XDG_CONFIG_HOME/moltrack/config.toml, falling back to
// ~/.config/moltrack/config.toml and then the OS config directory.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "moltrack", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "moltrack", "config.toml")
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "moltrack", "config.toml")
	}
	return filepath.Join(".", "config.toml")
}

func defaultDSN() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "moltrack", "moltrack.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "moltrack", "moltrack.db")
	}
	return "moltrack.db"
}

// CreateDefault writes a default config file to path if none exists and
// returns whether it was created.
func CreateDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := SaveTo(path, Default()); err != nil {
		return false, err
	}
	return true, nil
}
