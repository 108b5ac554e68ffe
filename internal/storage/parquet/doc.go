// Package parquet persists a registry as a session directory of Parquet
// files.
//
// A session holds two files:
//   - variables.parquet: one row per variable (kind, shape, bins,
//     components, options and metadata as YAML), plus the figure options
//     and the session id in the file metadata
//   - samples.parquet: every value in long format (name, row, col,
//     time_ns, value, error), which DuckDB can query directly
//
// Compression is configurable (none, snappy, zstd, lz4, gzip).
package parquet
