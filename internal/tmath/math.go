package tmath

import (
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/storage/aggregate"
	"github.com/xtxerr/tplot/internal/tvar"
)

var log = logging.Component("tmath")

// Math runs the derived-variable operations against a registry. Results
// are stored back under a new name or, when no name is given, over the
// input.
type Math struct {
	reg *registry.Registry
}

// New binds the operations to reg.
func New(reg *registry.Registry) *Math {
	return &Math{reg: reg}
}

func (m *Math) store(v *tvar.Variable, name string) (string, error) {
	v.Name = name
	if err := m.reg.Put(v); err != nil {
		return "", err
	}
	log.Debug("derived variable stored", "name", name, "samples", v.Len(), "traces", v.Cols())
	return name, nil
}

func orDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// =============================================================================
// Two-variable operations
// =============================================================================

// Interp interpolates name2 onto name1's times and stores the result as
// name1+"_tinterp", or over name2 when replace is set.
func (m *Math) Interp(name1, name2 string, replace bool) (string, error) {
	v1, err := m.reg.Variable(name1)
	if err != nil {
		return "", err
	}
	v2, err := m.reg.Variable(name2)
	if err != nil {
		return "", err
	}
	out, err := Interp(v1, v2)
	if err != nil {
		return "", err
	}
	if replace {
		return m.store(out, v2.Name)
	}
	return m.store(out, v1.Name+"_tinterp")
}

// Arith computes name1 op name2. Without newName the result overwrites
// name1.
func (m *Math) Arith(op Op, name1, name2, newName string) (string, error) {
	v1, err := m.reg.Variable(name1)
	if err != nil {
		return "", err
	}
	v2, err := m.reg.Variable(name2)
	if err != nil {
		return "", err
	}
	out, err := Arith(op, v1, v2)
	if err != nil {
		return "", err
	}
	return m.store(out, orDefault(newName, v1.Name))
}

// Add stores name1 + name2.
func (m *Math) Add(name1, name2, newName string) (string, error) {
	return m.Arith(OpAdd, name1, name2, newName)
}

// Subtract stores name1 - name2.
func (m *Math) Subtract(name1, name2, newName string) (string, error) {
	return m.Arith(OpSubtract, name1, name2, newName)
}

// Multiply stores name1 * name2.
func (m *Math) Multiply(name1, name2, newName string) (string, error) {
	return m.Arith(OpMultiply, name1, name2, newName)
}

// Divide stores name1 / name2.
func (m *Math) Divide(name1, name2, newName string) (string, error) {
	return m.Arith(OpDivide, name1, name2, newName)
}

// Crop restricts both variables to their common time range. With replace
// the inputs are overwritten, otherwise the results are stored with a
// "_cropped" suffix.
func (m *Math) Crop(name1, name2 string, replace bool) ([]string, error) {
	v1, err := m.reg.Variable(name1)
	if err != nil {
		return nil, err
	}
	v2, err := m.reg.Variable(name2)
	if err != nil {
		return nil, err
	}
	a, b, err := Crop(v1, v2)
	if err != nil {
		return nil, err
	}

	suffix := "_cropped"
	if replace {
		suffix = ""
	}
	n1, err := m.store(a, v1.Name+suffix)
	if err != nil {
		return nil, err
	}
	n2, err := m.store(b, v2.Name+suffix)
	if err != nil {
		return nil, err
	}
	return []string{n1, n2}, nil
}

// =============================================================================
// Single-variable operations
// =============================================================================

// Clip replaces values outside [lo, hi] with NaN for every variable
// matching names. newNames, when given, must pair up with the matches.
func (m *Math) Clip(names []string, lo, hi float64, newNames []string) ([]string, error) {
	return m.each(names, newNames, "", func(v *tvar.Variable) (*tvar.Variable, error) {
		return Clip(v, lo, hi)
	})
}

// TimeClip keeps the samples inside [start, end]. Results are stored with
// suffix (default "-tclip") unless overwrite is set or newNames are given.
// Variables without data in the range, or entirely inside it, are skipped.
func (m *Math) TimeClip(names []string, start, end time.Time, newNames []string, suffix string, overwrite bool) ([]string, error) {
	if start.After(end) {
		return nil, errors.Wrapf(errors.ErrInvalidRange, "time_clip start %s is after end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if overwrite {
		suffix = ""
	} else if len(newNames) == 0 {
		suffix = orDefault(suffix, "-tclip")
	}

	return m.each(names, newNames, suffix, func(v *tvar.Variable) (*tvar.Variable, error) {
		s, e, ok := v.Trange()
		if ok && !start.After(s) && !end.Before(e) {
			log.Debug("time range covers all data", "name", v.Name)
			return v.Clone(), nil
		}
		out, err := TimeClip(v, start, end)
		if errors.Is(err, errors.ErrNoOverlap) {
			log.Warn("no data in time range, skipping", "name", v.Name)
			return nil, nil
		}
		return out, err
	})
}

// Deflag treats flagged values in name. Without newName the result
// overwrites name.
func (m *Math) Deflag(name string, flags []float64, method DeflagMethod, fill float64, newName string) (string, error) {
	v, err := m.reg.Variable(name)
	if err != nil {
		return "", err
	}
	out, err := Deflag(v, flags, method, fill)
	if err != nil {
		return "", err
	}
	return m.store(out, orDefault(newName, v.Name))
}

// Flatten divides name by its per-trace mean, optionally computed over
// window. The default result name is name+"_flattened".
func (m *Math) Flatten(name string, window *options.TimeRange, newName string) (string, error) {
	v, err := m.reg.Variable(name)
	if err != nil {
		return "", err
	}
	out, err := Flatten(v, window)
	if err != nil {
		return "", err
	}
	return m.store(out, orDefault(newName, v.Name+"_flattened"))
}

// InterpNaN fills interior NaN runs of name. Without newName the result
// overwrites name.
func (m *Math) InterpNaN(name string, limit int, newName string) (string, error) {
	v, err := m.reg.Variable(name)
	if err != nil {
		return "", err
	}
	out, err := InterpNaN(v, limit)
	if err != nil {
		return "", err
	}
	return m.store(out, orDefault(newName, v.Name))
}

// AvgRes averages name over windows of n samples. Without newName the
// result overwrites name.
func (m *Math) AvgRes(name string, n int, newName string) (string, error) {
	v, err := m.reg.Variable(name)
	if err != nil {
		return "", err
	}
	out, err := AvgRes(v, n)
	if err != nil {
		return "", err
	}
	return m.store(out, orDefault(newName, v.Name))
}

// Resample aggregates name into time buckets of the given width. The
// default result name is name+"_resampled".
func (m *Math) Resample(name string, width time.Duration, stats []aggregate.Stat, newName string) (string, error) {
	v, err := m.reg.Variable(name)
	if err != nil {
		return "", err
	}
	out, err := aggregate.Resample(v, width, stats)
	if err != nil {
		return "", err
	}
	return m.store(out, orDefault(newName, v.Name+"_resampled"))
}

// SubtractAverage removes the per-trace mean of every matching variable.
// Results get the suffix "-d" unless overwrite is set or newNames pair up
// with the matches.
func (m *Math) SubtractAverage(names, newNames []string, overwrite bool) ([]string, error) {
	return m.subtractCenter(names, newNames, overwrite, false)
}

// SubtractMedian is SubtractAverage with the median; the suffix is "-m".
func (m *Math) SubtractMedian(names, newNames []string, overwrite bool) ([]string, error) {
	return m.subtractCenter(names, newNames, overwrite, true)
}

func (m *Math) subtractCenter(names, newNames []string, overwrite, median bool) ([]string, error) {
	suffix := "-d"
	if median {
		suffix = "-m"
	}
	if overwrite {
		suffix, newNames = "", nil
	}
	return m.each(names, newNames, suffix, func(v *tvar.Variable) (*tvar.Variable, error) {
		return SubtractAverage(v, median)
	})
}

// each applies fn to every variable matching names. Results are stored
// under the paired newNames when they match the number of inputs, and
// otherwise under the input name plus suffix. fn may return nil to skip a
// variable.
func (m *Math) each(names, newNames []string, suffix string, fn func(*tvar.Variable) (*tvar.Variable, error)) ([]string, error) {
	matched := m.reg.Names(names...)
	if len(matched) == 0 {
		return nil, errors.NewVariableNotFound(joinNames(names))
	}
	if len(newNames) > 0 && len(newNames) != len(matched) {
		log.Warn("new names do not match the variables, using suffix",
			"variables", len(matched), "new_names", len(newNames), "suffix", suffix)
		newNames = nil
	}

	var stored []string
	for i, name := range matched {
		v, err := m.reg.Variable(name)
		if err != nil {
			return stored, err
		}
		out, err := fn(v)
		if err != nil {
			return stored, err
		}
		if out == nil {
			continue
		}
		target := name + suffix
		if len(newNames) > 0 {
			target = newNames[i]
		}
		n, err := m.store(out, target)
		if err != nil {
			return stored, err
		}
		stored = append(stored, n)
	}
	return stored, nil
}

// =============================================================================
// Vector operations
// =============================================================================

// JoinVec joins the traces of names into one variable called newName
// (default "a-b_joined"). With merge set and newName already stored, the
// joined samples are appended to the existing variable in time order.
func (m *Math) JoinVec(names []string, newName string, merge bool) (string, error) {
	vars := make([]*tvar.Variable, 0, len(names))
	for _, n := range names {
		v, err := m.reg.Variable(n)
		if err != nil {
			return "", err
		}
		vars = append(vars, v)
	}
	newName = orDefault(newName, JoinedName(names))

	joined, err := JoinVec(newName, vars)
	if err != nil {
		return "", err
	}
	if merge {
		if existing, err := m.reg.Variable(newName); err == nil {
			if joined, err = Merge(existing, joined); err != nil {
				return "", err
			}
		}
	}
	return m.store(joined, newName)
}

// SplitVec splits name into one variable per trace. The prefix defaults
// to name. A single-trace variable is left alone and its name returned.
func (m *Math) SplitVec(name, prefix string, suffixes []string, polar bool) ([]string, error) {
	v, err := m.reg.Variable(name)
	if err != nil {
		return nil, err
	}
	if v.Cols() == 1 && !v.IsPseudo() {
		return []string{v.Name}, nil
	}
	if len(suffixes) == 0 {
		suffixes = SplitSuffixes(v.Cols(), polar)
	}
	parts, err := SplitVec(v, orDefault(prefix, v.Name), suffixes)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		n, err := m.store(p, p.Name)
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	return out, nil
}
