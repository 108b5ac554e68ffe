package parquet

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/tplot/internal/errors"
)

const readBufferSize = 1 << 20

// Reader reads rows of type T from a Parquet file.
type Reader[T any] struct {
	file   *os.File
	meta   *parquet.File
	reader *parquet.GenericReader[T]
	path   string
}

// NewReader opens a Parquet file for reading. A missing file yields
// errors.ErrNotFound.
func NewReader[T any](path string) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("open file: %v", err))
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("stat file: %v", err))
	}

	meta, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(readBufferSize))
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("%s: %v", path, err))
	}

	return &Reader[T]{
		file:   f,
		meta:   meta,
		reader: parquet.NewGenericReader[T](f),
		path:   path,
	}, nil
}

// Read reads up to n rows. It returns io.EOF once the file is exhausted.
func (r *Reader[T]) Read(n int) ([]T, error) {
	rows := make([]T, n)
	count, err := r.reader.Read(rows)
	if count > 0 && err == io.EOF {
		err = nil
	}
	return rows[:count], err
}

// ReadAll reads every remaining row.
func (r *Reader[T]) ReadAll() ([]T, error) {
	out := make([]T, 0, r.reader.NumRows())
	buf := make([]T, 4096)
	for {
		n, err := r.reader.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("read %s: %v", r.path, err))
		}
		if n == 0 {
			return out, nil
		}
	}
}

// Lookup returns a file key/value metadata entry.
func (r *Reader[T]) Lookup(key string) (string, bool) {
	return r.meta.Lookup(key)
}

// NumRows returns the total row count of the file.
func (r *Reader[T]) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader and the underlying file.
func (r *Reader[T]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader[T]) Path() string {
	return r.path
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
	Columns []string
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("%s: %v", path, err))
	}

	info := &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: pf.NumRows(),
	}
	for _, field := range pf.Schema().Fields() {
		info.Columns = append(info.Columns, field.Name())
	}
	return info, nil
}
