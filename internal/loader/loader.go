// Package loader handles configuration file loading, validation, and application.
//
// This package is responsible for:
//   - Loading an optional .env file and the YAML configuration file
//   - Expanding environment variables
//   - Resolving include patterns for options files
//   - Applying TPLOT_* environment overrides
//   - Converting the configuration into the settings of each component
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/source"
	"github.com/xtxerr/tplot/internal/storage/parquet"
	"github.com/xtxerr/tplot/internal/storage/query"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig    = "TPLOT_CONFIG"
	EnvSession   = "TPLOT_SESSION"
	EnvLogLevel  = "TPLOT_LOG_LEVEL"
	EnvLogFormat = "TPLOT_LOG_FORMAT"
)

// =============================================================================
// Load
// =============================================================================

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Variables already set are kept. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults
// otherwise. An empty path uses $TPLOT_CONFIG, then tplot.yaml.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	explicit := path != ""
	if path == "" {
		path = "tplot.yaml"
	}

	cfg, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration content on top of the defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, fmt.Sprintf("parse config: %v", err))
	}
	cfg.baseDir = "."
	return cfg, nil
}

// ApplyEnv applies TPLOT_* environment overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvSession); v != "" {
		c.Session.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
}

// OptionsFiles resolves the include patterns to file paths, in order.
func (c *Config) OptionsFiles() ([]string, error) {
	var out []string
	for _, pattern := range c.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(c.baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// LoadOptionsFiles parses every included options file.
func (c *Config) LoadOptionsFiles() ([]*options.File, error) {
	paths, err := c.OptionsFiles()
	if err != nil {
		return nil, err
	}
	files := make([]*options.File, 0, len(paths))
	for _, p := range paths {
		f, err := options.LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("load include %q: %w", p, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs.AddField("log.format", "must be text or json")
	}

	if cfg.Session.Dir == "" {
		errs.AddMissing("session.dir")
	}
	if _, err := parquet.ParseCompressionType(cfg.Session.Compression); err != nil {
		errs.AddField("session.compression", "must be none, snappy, zstd, lz4 or gzip")
	}
	if cfg.Session.RowGroupSize < 0 {
		errs.AddField("session.row_group_size", "cannot be negative")
	}

	if ws := cfg.Figure.WindowSize; ws != nil && (len(ws) != 2 || ws[0] <= 0 || ws[1] <= 0) {
		errs.AddField("figure.window_size", "must be two positive numbers")
	}
	if cfg.Figure.DPI < 0 {
		errs.AddField("figure.dpi", "cannot be negative")
	}

	if cfg.Query.Threads < 0 {
		errs.AddField("query.threads", "cannot be negative")
	}
	if cfg.Query.Timeout < 0 {
		errs.AddField("query.timeout", "cannot be negative")
	}

	if cfg.SNMP.Count < 0 {
		errs.AddField("snmp.count", "cannot be negative")
	}

	if errs.HasErrors() {
		return errs.Err()
	}

	// The figure defaults must also pass the global options checks.
	if err := cfg.Global().Validate(); err != nil {
		return errors.Wrap(err, "figure")
	}
	return nil
}

// =============================================================================
// Conversion: Config → component settings
// =============================================================================

// Logging returns the slog level and whether JSON output is used.
func (c *Config) Logging() (slog.Level, bool) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	return level, strings.EqualFold(c.Log.Format, "json")
}

// ParquetOptions converts the session settings to Parquet writer options.
func (c *Config) ParquetOptions() parquet.Options {
	opts := parquet.DefaultOptions()
	if ct, err := parquet.ParseCompressionType(c.Session.Compression); err == nil {
		opts.Compression = ct
	}
	if c.Session.RowGroupSize > 0 {
		opts.RowGroupSize = c.Session.RowGroupSize
	}
	return opts
}

// QueryConfig converts the query settings.
func (c *Config) QueryConfig() query.Config {
	qc := query.DefaultConfig()
	if c.Query.MemoryLimit != "" {
		qc.MemoryLimit = c.Query.MemoryLimit
	}
	if c.Query.Threads > 0 {
		qc.Threads = c.Query.Threads
	}
	if c.Query.Timeout > 0 {
		qc.Timeout = c.Query.Timeout.Std()
	}
	if c.Query.MaxRows > 0 {
		qc.MaxRows = c.Query.MaxRows
	}
	return qc
}

// Global returns the default figure options with the figure section
// applied. It is used for new sessions.
func (c *Config) Global() options.Global {
	g := options.DefaultGlobal()
	f := c.Figure
	if len(f.WindowSize) == 2 {
		g.WindowSize = []float64{f.WindowSize[0], f.WindowSize[1]}
	}
	if f.DPI > 0 {
		g.DPI = f.DPI
	}
	if f.AxisFontSize > 0 {
		g.AxisFontSize = f.AxisFontSize
	}
	if f.XMargin != nil {
		g.XMargin = *f.XMargin
	}
	if f.YMargin != nil {
		g.YMargin = *f.YMargin
	}
	if f.TimeFormat != "" {
		g.TimeFormat = f.TimeFormat
	}
	return g
}

// SNMPDefaults fills unset fields of a capture configuration.
func (c *Config) SNMPDefaults(sc *source.SNMPConfig) {
	if sc.Community == "" && sc.SecurityName == "" {
		sc.Community = c.SNMP.Community
	}
	if sc.TimeoutMs == 0 {
		sc.TimeoutMs = c.SNMP.TimeoutMs
	}
	if sc.Retries == 0 {
		sc.Retries = c.SNMP.Retries
	}
	if sc.Interval == 0 && c.SNMP.IntervalMs > 0 {
		sc.Interval = time.Duration(c.SNMP.IntervalMs) * time.Millisecond
	}
	if sc.Count == 0 {
		sc.Count = c.SNMP.Count
	}
	if sc.Window == 0 && sc.Follow {
		sc.Window = c.SNMP.Window
	}
}
