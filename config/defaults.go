// Package config provides configuration defaults for tplot.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via tplot.yaml or environment variables.
package config

import "time"

// =============================================================================
// Figure Defaults
// =============================================================================

const (
	// DefaultWindowWidth is the figure width in points.
	// Override via config: figure.window_size[0]
	DefaultWindowWidth = 800

	// DefaultWindowHeight is the figure height in points.
	// Override via config: figure.window_size[1]
	DefaultWindowHeight = 600

	// DefaultDPI is the resolution used for raster output formats.
	// Override via config: figure.dpi
	DefaultDPI = 96

	// DefaultAxisFontSize is the tick label font size in points.
	// Override via config: figure.axis_font_size
	DefaultAxisFontSize = 10

	// DefaultTitleFontSize is the figure title font size in points.
	DefaultTitleFontSize = 14

	// DefaultLineWidth is the trace line width in points when no thick
	// option is set.
	DefaultLineWidth = 1.0

	// DefaultMarkerSize is the glyph radius in points.
	DefaultMarkerSize = 3.0

	// DefaultXMargin is the left/right figure padding as a fraction of the width.
	// Override via config: figure.xmargin
	DefaultXMargin = 0.02

	// DefaultYMargin is the top/bottom figure padding as a fraction of the height.
	// Override via config: figure.ymargin
	DefaultYMargin = 0.02

	// DefaultPanelGap is the vertical gap between stacked panels in points.
	DefaultPanelGap = 4

	// DefaultSpecColors is the number of palette colors for spectrograms.
	DefaultSpecColors = 64

	// DefaultTimeFormat is the tick label layout for time axes.
	// Override via config: figure.time_format
	DefaultTimeFormat = "2006-01-02\n15:04:05"

	// DefaultOutputFormat is used when plotting to a writer without an
	// explicit format.
	DefaultOutputFormat = "png"

	// MaxParallelRenders bounds how many output files are encoded at once.
	MaxParallelRenders = 4
)

// =============================================================================
// Session Defaults
// =============================================================================

const (
	// DefaultSessionDir is where the CLI keeps the registry between runs.
	// Override via config: session.dir or TPLOT_SESSION
	DefaultSessionDir = ".tplot"

	// DefaultCompression is the Parquet compression codec for sessions.
	// Override via config: session.compression
	DefaultCompression = "zstd"

	// DefaultRowGroupSize is the Parquet row group size.
	// Override via config: session.row_group_size
	DefaultRowGroupSize = 100000

	// VariablesFile and SamplesFile are the Parquet files inside a session dir.
	VariablesFile = "variables.parquet"
	SamplesFile   = "samples.parquet"
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryMemoryLimit is passed to DuckDB's memory_limit setting.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "512MB"

	// DefaultQueryThreads is DuckDB's worker thread count.
	// Override via config: query.threads
	DefaultQueryThreads = 2

	// DefaultQueryTimeout bounds a single SQL statement.
	// Override via config: query.timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultMaxQueryRows caps rows returned by ExecuteSQL.
	// Override via config: query.max_rows
	DefaultMaxQueryRows = 100000
)

// =============================================================================
// SNMP Defaults
// =============================================================================

const (
	// DefaultSNMPPort is the agent UDP port.
	DefaultSNMPPort = 161

	// DefaultSNMPTimeoutMs is the timeout for a single SNMP request.
	// Override via config: snmp.timeout_ms
	DefaultSNMPTimeoutMs = 5000

	// DefaultSNMPRetries is the number of retry attempts after timeout.
	// Override via config: snmp.retries
	DefaultSNMPRetries = 2

	// DefaultSNMPIntervalMs is the default capture interval.
	// Override via config: snmp.interval_ms
	DefaultSNMPIntervalMs = 1000

	// DefaultSNMPCount is the default number of samples captured.
	// Override via config: snmp.count
	DefaultSNMPCount = 60

	// DefaultSNMPWindow is the number of most recent samples a --follow
	// capture keeps. Override via config: snmp.window
	DefaultSNMPWindow = 3600
)

// =============================================================================
// Wire Defaults
// =============================================================================

const (
	// DefaultMaxMessageSize limits a single protobuf message on the export
	// stream to prevent OOM on malformed input.
	DefaultMaxMessageSize = 64 * 1024 * 1024
)

// =============================================================================
// Aggregation Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the relative accuracy of percentile sketches.
	DefaultSketchAccuracy = 0.01
)
