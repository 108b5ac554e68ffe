// Package loader - Configuration Types
//
// Defines the YAML configuration structure for tplot:
//
//	log:      level and format of the CLI's structured logs
//	session:  where the registry is kept between runs, Parquet settings
//	figure:   defaults for the global figure options
//	query:    DuckDB limits
//	snmp:     capture defaults
//	include:  options files applied to every session
package loader

import (
	"fmt"
	"time"

	"github.com/xtxerr/tplot/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for tplot.
type Config struct {
	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Session configures the session directory.
	Session SessionConfig `yaml:"session"`

	// Figure holds figure defaults.
	Figure FigureConfig `yaml:"figure"`

	// Query configures DuckDB.
	Query QueryConfig `yaml:"query"`

	// SNMP holds capture defaults.
	SNMP SNMPConfig `yaml:"snmp"`

	// Include lists options files (glob patterns, relative to the config
	// file) that are applied after a session is loaded.
	Include []string `yaml:"include,omitempty"`

	// baseDir is the directory of the loaded config file.
	baseDir string
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Env: TPLOT_LOG_LEVEL
	Level string `yaml:"level"`

	// Format is text or json.
	// Env: TPLOT_LOG_FORMAT
	Format string `yaml:"format"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Dir is the session directory.
	// Env: TPLOT_SESSION
	Dir string `yaml:"dir"`

	// Compression is none, snappy, zstd, lz4 or gzip.
	Compression string `yaml:"compression"`

	// RowGroupSize is the maximum number of rows per Parquet row group.
	RowGroupSize int `yaml:"row_group_size"`
}

// FigureConfig holds the defaults of the global figure options.
type FigureConfig struct {
	WindowSize   []float64 `yaml:"window_size,omitempty"`
	DPI          int       `yaml:"dpi,omitempty"`
	AxisFontSize float64   `yaml:"axis_font_size,omitempty"`
	XMargin      *float64  `yaml:"xmargin,omitempty"`
	YMargin      *float64  `yaml:"ymargin,omitempty"`
	TimeFormat   string    `yaml:"time_format,omitempty"`
}

// QueryConfig configures DuckDB.
type QueryConfig struct {
	MemoryLimit string   `yaml:"memory_limit"`
	Threads     int      `yaml:"threads"`
	Timeout     Duration `yaml:"timeout"`
	MaxRows     int      `yaml:"max_rows"`
}

// SNMPConfig holds capture defaults.
type SNMPConfig struct {
	Community  string `yaml:"community,omitempty"`
	TimeoutMs  uint32 `yaml:"timeout_ms"`
	Retries    uint32 `yaml:"retries"`
	IntervalMs uint32 `yaml:"interval_ms"`
	Count      int    `yaml:"count"`
	Window     int    `yaml:"window"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Session: SessionConfig{
			Dir:          config.DefaultSessionDir,
			Compression:  config.DefaultCompression,
			RowGroupSize: config.DefaultRowGroupSize,
		},
		Query: QueryConfig{
			MemoryLimit: config.DefaultQueryMemoryLimit,
			Threads:     config.DefaultQueryThreads,
			Timeout:     Duration(config.DefaultQueryTimeout),
			MaxRows:     config.DefaultMaxQueryRows,
		},
		SNMP: SNMPConfig{
			TimeoutMs:  config.DefaultSNMPTimeoutMs,
			Retries:    config.DefaultSNMPRetries,
			IntervalMs: config.DefaultSNMPIntervalMs,
			Count:      config.DefaultSNMPCount,
			Window:     config.DefaultSNMPWindow,
		},
	}
}

// =============================================================================
// Duration
// =============================================================================

// Duration is a time.Duration that unmarshals from "30s" style strings or
// from integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			var secs int
			if _, scanErr := fmt.Sscanf(s, "%d", &secs); scanErr != nil {
				return fmt.Errorf("invalid duration %q: %w", s, err)
			}
			parsed = time.Duration(secs) * time.Second
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int
	if err := unmarshal(&secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %w", err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
