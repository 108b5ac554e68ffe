package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the maximum number of rows per row group
	RowGroupSize int

	// PageSize is the target page buffer size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

var compressionNames = map[CompressionType]string{
	CompressionNone:   "none",
	CompressionSnappy: "snappy",
	CompressionZstd:   "zstd",
	CompressionLZ4:    "lz4",
	CompressionGzip:   "gzip",
}

func (c CompressionType) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("compression(%d)", int(c))
}

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	ct, _ := ParseCompressionType(config.DefaultCompression)
	return Options{
		Compression:  ct,
		RowGroupSize: config.DefaultRowGroupSize,
		PageSize:     1024 * 1024,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "gzip":
		return CompressionGzip, nil
	case "none", "":
		return CompressionNone, nil
	default:
		return CompressionZstd, errors.NewInvalidValue("compression", s, "expected none, snappy, zstd, lz4 or gzip")
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// =============================================================================
// Writer
// =============================================================================

// Writer writes rows of type T to a Parquet file. The file is written to a
// temporary path and renamed into place on Close, so readers never observe
// a partial file.
type Writer[T any] struct {
	mu       sync.Mutex
	path     string
	tmp      string
	file     *os.File
	writer   *parquet.GenericWriter[T]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer for path. Metadata is stored as file
// key/value metadata.
func NewWriter[T any](path string, opts Options, metadata map[string]string) (*Writer[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("create directory: %v", err))
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("create file: %v", err))
	}

	wopts := []parquet.WriterOption{parquet.Compression(getCompression(opts.Compression))}
	if opts.RowGroupSize > 0 {
		wopts = append(wopts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}
	if opts.PageSize > 0 {
		wopts = append(wopts, parquet.PageBufferSize(opts.PageSize))
	}
	for k, v := range metadata {
		wopts = append(wopts, parquet.KeyValueMetadata(k, v))
	}

	return &Writer[T]{
		path:   path,
		tmp:    tmp,
		file:   f,
		writer: parquet.NewGenericWriter[T](f, wopts...),
	}, nil
}

// Write appends rows to the file.
func (w *Writer[T]) Write(rows []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrWriteClosed
	}
	if len(rows) == 0 {
		return nil
	}

	n, err := w.writer.Write(rows)
	w.rowCount += int64(n)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, fmt.Sprintf("write rows: %v", err))
	}
	return nil
}

// Close flushes the file and moves it into place.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		os.Remove(w.tmp)
		return errors.Wrap(errors.ErrStorage, fmt.Sprintf("close writer: %v", err))
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmp)
		return errors.Wrap(errors.ErrStorage, fmt.Sprintf("close file: %v", err))
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		os.Remove(w.tmp)
		return errors.Wrap(errors.ErrStorage, fmt.Sprintf("rename: %v", err))
	}
	return nil
}

// Abort discards the partially written file.
func (w *Writer[T]) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.file.Close()
	os.Remove(w.tmp)
}

// RowCount returns the number of rows written.
func (w *Writer[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the final file path.
func (w *Writer[T]) Path() string {
	return w.path
}
