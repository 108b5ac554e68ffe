// Package query runs SQL over saved sessions with DuckDB.
//
// The session's Parquet files are exposed as two views: samples (long
// format, with a TIMESTAMP column "time" derived from time_ns) and
// variables. Query results can be stored back into the registry as new
// variables.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/storage/parquet"
	"github.com/xtxerr/tplot/internal/tvar"
	"github.com/xtxerr/tplot/internal/validation"
)

var log = logging.Component("query")

// Config holds DuckDB settings.
type Config struct {
	MemoryLimit string
	Threads     int
	Timeout     time.Duration
	MaxRows     int
}

// DefaultConfig returns the query defaults.
func DefaultConfig() Config {
	return Config{
		MemoryLimit: config.DefaultQueryMemoryLimit,
		Threads:     config.DefaultQueryThreads,
		Timeout:     config.DefaultQueryTimeout,
		MaxRows:     config.DefaultMaxQueryRows,
	}
}

// Service provides SQL over a saved session.
type Service struct {
	mu sync.RWMutex

	config  Config
	db      *sql.DB
	session *parquet.Session
	reg     *registry.Registry
	group   singleflight.Group

	queries atomic.Int64
	rows    atomic.Int64
	errs    atomic.Int64
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// Result is a query result with ordered columns.
type Result struct {
	Columns   []string
	Rows      [][]interface{}
	Truncated bool
}

// New creates a query service over session. Variables created by
// LoadVariable are stored in reg.
func New(cfg Config, session *parquet.Session, reg *registry.Registry) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open duckdb: %v", err)
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", escape(cfg.MemoryLimit))); err != nil {
			db.Close()
			return nil, errors.Wrapf(errors.ErrDatabase, "set memory limit: %v", err)
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads=%d", cfg.Threads)); err != nil {
			db.Close()
			return nil, errors.Wrapf(errors.ErrDatabase, "set threads: %v", err)
		}
	}

	s := &Service{config: cfg, db: db, session: session, reg: reg}
	if err := s.Refresh(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Refresh (re)creates the samples and variables views. Views are only
// created for files that exist.
func (s *Service) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	views := []struct {
		name, path, extra string
	}{
		{"samples", s.session.SamplesPath(), ", make_timestamp(time_ns // 1000) AS time"},
		{"variables", s.session.VariablesPath(), ""},
	}
	for _, v := range views {
		if _, err := os.Stat(v.path); err != nil {
			continue
		}
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT *%s FROM read_parquet('%s')", v.name, v.extra, escape(v.path))
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(errors.ErrDatabase, "create view %s: %v", v.name, err)
		}
	}
	return nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Query runs a SQL statement and returns at most Config.MaxRows rows.
func (s *Service) Query(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	res, err := s.query(ctx, query, args...)
	if err != nil {
		s.errs.Add(1)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(errors.ErrTimeout, "query exceeded %s", s.config.Timeout)
		}
		return nil, errors.Wrapf(errors.ErrDatabase, "%v", err)
	}
	s.queries.Add(1)
	s.rows.Add(int64(len(res.Rows)))
	return res, nil
}

func (s *Service) query(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: columns}
	for rows.Next() {
		if s.config.MaxRows > 0 && len(res.Rows) >= s.config.MaxRows {
			res.Truncated = true
			break
		}
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}

// ExecuteSQL executes a raw SQL query and returns the rows as maps keyed
// by column name.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	res, err := s.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(res.Rows))
	for _, values := range res.Rows {
		row := make(map[string]interface{}, len(res.Columns))
		for i, col := range res.Columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, nil
}

// =============================================================================
// Variables from queries
// =============================================================================

// LoadVariable runs query and stores the result as variable name. The
// first column is the time (TIMESTAMP, Unix seconds or a time string); the
// remaining columns are numeric traces. NULL values become NaN.
func (s *Service) LoadVariable(ctx context.Context, name, query string) error {
	res, err := s.Query(ctx, query)
	if err != nil {
		return err
	}
	d, err := ToData(res)
	if err != nil {
		return errors.Wrapf(err, "query result for '%s'", name)
	}
	d.Metadata = map[string]interface{}{"query": query}
	if err := s.reg.Store(name, d); err != nil {
		return err
	}
	log.Info("stored query result", "name", name, "samples", len(d.Times), "traces", len(res.Columns)-1)
	return nil
}

// ToData converts a query result into variable data.
func ToData(res *Result) (tvar.Data, error) {
	if len(res.Columns) < 2 {
		return tvar.Data{}, errors.Wrapf(errors.ErrShapeMismatch, "expected a time column and at least one value column, got %d columns", len(res.Columns))
	}
	if len(res.Rows) == 0 {
		return tvar.Data{}, errors.ErrEmptyData
	}

	d := tvar.Data{
		Times:  make([]time.Time, len(res.Rows)),
		Values: make([][]float64, len(res.Rows)),
	}
	for i, row := range res.Rows {
		t, err := toTime(row[0])
		if err != nil {
			return tvar.Data{}, errors.Wrapf(err, "row %d", i)
		}
		d.Times[i] = t
		vals := make([]float64, len(row)-1)
		for j, raw := range row[1:] {
			if vals[j], err = toFloat(raw); err != nil {
				return tvar.Data{}, errors.Wrapf(err, "row %d column %s", i, res.Columns[j+1])
			}
		}
		d.Values[i] = vals
	}
	return d, nil
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return options.ParseTime(t)
	case nil:
		return time.Time{}, errors.Wrap(errors.ErrInvalidTime, "NULL time")
	default:
		f, err := toFloat(v)
		if err != nil || math.IsNaN(f) {
			return time.Time{}, errors.Wrapf(errors.ErrInvalidTime, "%v (%T)", v, v)
		}
		return options.FromUnixSeconds(f), nil
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	case interface{ Float64() float64 }:
		return n.Float64(), nil
	default:
		return math.NaN(), errors.Wrapf(errors.ErrInvalidOption, "non-numeric value %v (%T)", v, v)
	}
}

// =============================================================================
// Saved samples
// =============================================================================

// Samples reads a variable's data straight from the saved samples file.
// Concurrent calls for the same name share one query.
func (s *Service) Samples(ctx context.Context, name string) (tvar.Data, error) {
	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		return s.samples(ctx, name)
	})
	if err != nil {
		return tvar.Data{}, err
	}
	return v.(tvar.Data), nil
}

func (s *Service) samples(ctx context.Context, name string) (tvar.Data, error) {
	res, err := s.Query(ctx, `
		SELECT row, col, time_ns, value, error
		FROM samples
		WHERE name = $1
		ORDER BY row, col
	`, name)
	if err != nil {
		return tvar.Data{}, err
	}
	if len(res.Rows) == 0 {
		return tvar.Data{}, errors.NewVariableNotFound(name)
	}

	var d tvar.Data
	var errs []float64
	for _, r := range res.Rows {
		row, _ := toFloat(r[0])
		col, _ := toFloat(r[1])
		ns, _ := toFloat(r[2])
		i, j := int(row), int(col)
		if i >= len(d.Values) {
			d.Times = append(d.Times, time.Unix(0, int64(ns)).UTC())
			d.Values = append(d.Values, nil)
		}
		val, _ := toFloat(r[3])
		d.Values[i] = append(d.Values[i], val)
		if j == 0 && r[4] != nil {
			if errs == nil {
				errs = make([]float64, 0, len(res.Rows))
			}
			for len(errs) < i {
				errs = append(errs, math.NaN())
			}
			e, _ := toFloat(r[4])
			errs = append(errs, e)
		}
	}
	if errs != nil {
		for len(errs) < len(d.Times) {
			errs = append(errs, math.NaN())
		}
		d.Errors = errs
	}
	return d, nil
}

// SavedVariables lists the saved variables whose name starts with prefix,
// in saved order, with the number of stored values of each.
func (s *Service) SavedVariables(ctx context.Context, prefix string) (*Result, error) {
	return s.Query(ctx, `
		SELECT v.name, v.kind, v.rows, v.cols, count(smp.value) AS "values"
		FROM variables v
		LEFT JOIN samples smp ON smp.name = v.name
		WHERE v.name LIKE ? ESCAPE '\'
		GROUP BY v."index", v.name, v.kind, v.rows, v.cols
		ORDER BY v."index"`, validation.SafeLikePrefix(prefix))
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queries.Load(),
		RowsReturned:    s.rows.Load(),
		Errors:          s.errs.Load(),
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
