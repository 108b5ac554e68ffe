package parquet

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/tvar"
)

var log = logging.Component("session")

// File metadata keys of variables.parquet.
const (
	metaSessionID = "tplot.session_id"
	metaSavedAt   = "tplot.saved_at"
	metaGlobal    = "tplot.global"
	metaVersion   = "tplot.version"

	formatVersion = "1"
)

// VariableRow describes one variable. Options, metadata and links are
// stored as YAML documents.
type VariableRow struct {
	Index      int32     `parquet:"index"`
	Name       string    `parquet:"name,zstd"`
	Kind       string    `parquet:"kind,dict"`
	Rows       int32     `parquet:"rows"`
	Cols       int32     `parquet:"cols"`
	Bins       []float64 `parquet:"bins"`
	Components []string  `parquet:"components"`
	Metadata   string    `parquet:"metadata,zstd"`
	Options    string    `parquet:"options,zstd"`
	Links      string    `parquet:"links,zstd"`
	CreatedNs  int64     `parquet:"created_ns"`
}

// SampleRow is one value of one variable in long format. Error is only set
// on column 0 of variables that carry error bars.
type SampleRow struct {
	Name   string   `parquet:"name,dict,zstd"`
	Row    int32    `parquet:"row"`
	Col    int32    `parquet:"col"`
	TimeNs int64    `parquet:"time_ns"`
	Value  float64  `parquet:"value"`
	Error  *float64 `parquet:"error,optional"`
}

// Info summarizes a saved session.
type Info struct {
	ID        string
	Dir       string
	SavedAt   time.Time
	Variables int
	Samples   int64
}

// Session persists a registry in a directory of Parquet files.
type Session struct {
	dir  string
	opts Options
	id   string
}

// Open returns the session stored in dir. Nothing is read until Load.
func Open(dir string, opts Options) *Session {
	if dir == "" {
		dir = config.DefaultSessionDir
	}
	return &Session{dir: dir, opts: opts}
}

// Dir returns the session directory.
func (s *Session) Dir() string { return s.dir }

// ID returns the session id, empty before the first Load or Save.
func (s *Session) ID() string { return s.id }

// VariablesPath returns the path of variables.parquet.
func (s *Session) VariablesPath() string { return filepath.Join(s.dir, config.VariablesFile) }

// SamplesPath returns the path of samples.parquet.
func (s *Session) SamplesPath() string { return filepath.Join(s.dir, config.SamplesFile) }

// Exists reports whether a session has been saved in the directory.
func (s *Session) Exists() bool {
	_, err := os.Stat(s.VariablesPath())
	return err == nil
}

// =============================================================================
// Save
// =============================================================================

// Save writes the registry contents to the session directory, replacing
// any previous save. The session id is kept across saves.
func (s *Session) Save(reg *registry.Registry) (Info, error) {
	return s.SaveVariables(reg.Variables(), reg.Global())
}

// SaveVariables writes vars and the figure options g.
func (s *Session) SaveVariables(vars []*tvar.Variable, g options.Global) (Info, error) {
	if s.id == "" {
		s.id = uuid.NewString()
	}
	info := Info{ID: s.id, Dir: s.dir, SavedAt: time.Now().UTC(), Variables: len(vars)}

	globalYAML, err := options.Marshal(g)
	if err != nil {
		return info, errors.Wrap(err, "encode global options")
	}

	varRows := make([]VariableRow, 0, len(vars))
	for i, v := range vars {
		row, err := toVariableRow(int32(i), v)
		if err != nil {
			return info, err
		}
		varRows = append(varRows, row)
	}

	// variables.parquet is moved into place last; it marks a session as saved.
	sw, err := NewWriter[SampleRow](s.SamplesPath(), s.opts, nil)
	if err != nil {
		return info, err
	}
	for _, v := range vars {
		if err := sw.Write(toSampleRows(v)); err != nil {
			sw.Abort()
			return info, errors.Wrapf(err, "variable '%s'", v.Name)
		}
	}
	if err := sw.Close(); err != nil {
		return info, err
	}
	info.Samples = sw.RowCount()

	vw, err := NewWriter[VariableRow](s.VariablesPath(), s.opts, map[string]string{
		metaSessionID: s.id,
		metaSavedAt:   info.SavedAt.Format(time.RFC3339Nano),
		metaGlobal:    globalYAML,
		metaVersion:   formatVersion,
	})
	if err != nil {
		return info, err
	}
	if err := vw.Write(varRows); err != nil {
		vw.Abort()
		return info, err
	}
	if err := vw.Close(); err != nil {
		return info, err
	}

	log.Debug("session saved", "dir", s.dir, "session_id", s.id,
		"variables", info.Variables, "samples", info.Samples)
	return info, nil
}

func toVariableRow(index int32, v *tvar.Variable) (VariableRow, error) {
	row := VariableRow{
		Index:      index,
		Name:       v.Name,
		Kind:       string(v.Kind()),
		Bins:       v.Bins,
		Components: v.Components,
		CreatedNs:  v.Created.UnixNano(),
	}
	if v.HasData() {
		row.Rows = int32(v.Len())
		row.Cols = int32(v.Cols())
	}

	var err error
	if row.Options, err = options.Marshal(v.Options); err != nil {
		return row, errors.Wrapf(err, "variable '%s': encode options", v.Name)
	}
	if len(v.Metadata) > 0 {
		if row.Metadata, err = marshalYAML(v.Metadata); err != nil {
			return row, errors.Wrapf(err, "variable '%s': encode metadata", v.Name)
		}
	}
	if len(v.Links) > 0 {
		if row.Links, err = marshalYAML(v.Links); err != nil {
			return row, errors.Wrapf(err, "variable '%s': encode links", v.Name)
		}
	}
	return row, nil
}

func toSampleRows(v *tvar.Variable) []SampleRow {
	if !v.HasData() {
		return nil
	}
	n, cols := v.Len(), v.Cols()
	rows := make([]SampleRow, 0, n*cols)
	for i := 0; i < n; i++ {
		ts := v.Times[i].UnixNano()
		for j := 0; j < cols; j++ {
			r := SampleRow{
				Name:   v.Name,
				Row:    int32(i),
				Col:    int32(j),
				TimeNs: ts,
				Value:  v.Values.At(i, j),
			}
			if j == 0 && len(v.Errors) > 0 {
				e := v.Errors[i]
				r.Error = &e
			}
			rows = append(rows, r)
		}
	}
	return rows
}

func marshalYAML(v interface{}) (string, error) {
	out, err := yaml.Marshal(v)
	return string(out), err
}

// =============================================================================
// Load
// =============================================================================

// Load reads the saved session into reg, replacing its contents. A
// directory without a session yields errors.ErrSessionNotFound.
func (s *Session) Load(reg *registry.Registry) (Info, error) {
	vars, g, info, err := s.LoadVariables()
	if err != nil {
		return info, err
	}
	reg.Restore(vars, g)
	return info, nil
}

// LoadVariables reads the saved variables in their saved order together
// with the figure options.
func (s *Session) LoadVariables() ([]*tvar.Variable, options.Global, Info, error) {
	g := options.DefaultGlobal()
	info := Info{Dir: s.dir}

	vr, err := NewReader[VariableRow](s.VariablesPath())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, g, info, fmt.Errorf("%s: %w", s.dir, errors.ErrSessionNotFound)
		}
		return nil, g, info, err
	}
	defer vr.Close()

	if id, ok := vr.Lookup(metaSessionID); ok {
		s.id = id
		info.ID = id
	}
	if at, ok := vr.Lookup(metaSavedAt); ok {
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, at)
	}
	if v, ok := vr.Lookup(metaVersion); ok && v != formatVersion {
		return nil, g, info, errors.Wrapf(errors.ErrStorage, "unsupported session format %s", v)
	}
	if gy, ok := vr.Lookup(metaGlobal); ok {
		if g, err = options.UnmarshalGlobal(gy); err != nil {
			return nil, options.DefaultGlobal(), info, err
		}
	}

	varRows, err := vr.ReadAll()
	if err != nil {
		return nil, g, info, err
	}
	sort.Slice(varRows, func(i, j int) bool { return varRows[i].Index < varRows[j].Index })

	samples, err := s.readSamples()
	if err != nil {
		return nil, g, info, err
	}

	vars := make([]*tvar.Variable, 0, len(varRows))
	for _, row := range varRows {
		v, err := fromRows(row, samples[row.Name])
		if err != nil {
			return nil, g, info, err
		}
		info.Samples += int64(len(samples[row.Name]))
		vars = append(vars, v)
	}
	info.Variables = len(vars)

	log.Debug("session loaded", "dir", s.dir, "session_id", info.ID, "variables", info.Variables)
	return vars, g, info, nil
}

func (s *Session) readSamples() (map[string][]SampleRow, error) {
	sr, err := NewReader[SampleRow](s.SamplesPath())
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	rows, err := sr.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]SampleRow)
	for _, r := range rows {
		out[r.Name] = append(out[r.Name], r)
	}
	return out, nil
}

func fromRows(row VariableRow, samples []SampleRow) (*tvar.Variable, error) {
	opts, err := options.UnmarshalOptions(row.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "variable '%s'", row.Name)
	}
	md := map[string]interface{}{}
	if row.Metadata != "" {
		if err := yaml.Unmarshal([]byte(row.Metadata), &md); err != nil {
			return nil, errors.Wrapf(errors.ErrStorage, "variable '%s': decode metadata: %v", row.Name, err)
		}
	}
	links := map[string]string{}
	if row.Links != "" {
		if err := yaml.Unmarshal([]byte(row.Links), &links); err != nil {
			return nil, errors.Wrapf(errors.ErrStorage, "variable '%s': decode links: %v", row.Name, err)
		}
	}

	v := &tvar.Variable{
		Name:       row.Name,
		Components: row.Components,
		Metadata:   md,
		Options:    opts,
		Links:      links,
		Created:    time.Unix(0, row.CreatedNs).UTC(),
	}
	if tvar.Kind(row.Kind) == tvar.KindPseudo {
		return v, nil
	}

	n, cols := int(row.Rows), int(row.Cols)
	if n == 0 || cols == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "variable '%s'", row.Name)
	}
	if len(samples) != n*cols {
		return nil, errors.Wrapf(errors.NewLengthMismatch("samples", n*cols, len(samples)), "variable '%s'", row.Name)
	}

	v.Times = make([]time.Time, n)
	flat := make([]float64, n*cols)
	var errs []float64
	for _, smp := range samples {
		i, j := int(smp.Row), int(smp.Col)
		if i < 0 || i >= n || j < 0 || j >= cols {
			return nil, errors.Wrapf(errors.ErrStorage, "variable '%s': sample (%d,%d) out of range", row.Name, i, j)
		}
		flat[i*cols+j] = smp.Value
		if j == 0 {
			v.Times[i] = time.Unix(0, smp.TimeNs).UTC()
			if smp.Error != nil {
				if errs == nil {
					errs = make([]float64, n)
					for k := range errs {
						errs[k] = math.NaN()
					}
				}
				errs[i] = *smp.Error
			}
		}
	}
	v.Values = mat.NewDense(n, cols, flat)
	v.Errors = errs
	if len(row.Bins) > 0 {
		v.Bins = row.Bins
	}
	v.RefreshYRange()
	return v, nil
}

// Remove deletes the session files.
func (s *Session) Remove() error {
	for _, p := range []string{s.VariablesPath(), s.SamplesPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.ErrStorage, err.Error())
		}
	}
	s.id = ""
	return nil
}

// String describes the session for logs and the CLI.
func (i Info) String() string {
	return fmt.Sprintf("session %s (%s): %d variables, %d samples", i.ID, i.Dir, i.Variables, i.Samples)
}
