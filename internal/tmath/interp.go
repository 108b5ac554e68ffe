package tmath

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/tvar"
)

// Interp linearly interpolates every trace of src onto the sample times of
// ref. Target times outside src's time range become NaN.
func Interp(ref, src *tvar.Variable) (*tvar.Variable, error) {
	if ref.IsPseudo() || src.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "interpolate '%s' onto '%s'", src.Name, ref.Name)
	}
	if src.Len() < 2 {
		if src.Len() == 1 && sameTimes(ref, src) {
			return src.Clone(), nil
		}
		return nil, errors.Wrapf(errors.ErrNotEnoughPoints, "interpolate '%s': %d samples", src.Name, src.Len())
	}
	if sameTimes(ref, src) {
		return src.Clone(), nil
	}

	xs := src.Seconds()
	targets := ref.Seconds()
	cols := src.Cols()
	out := mat.NewDense(len(targets), cols, nil)
	for j := 0; j < cols; j++ {
		col := src.Col(j)
		for i, t := range targets {
			out.Set(i, j, interpAt(xs, col, t))
		}
	}

	result := src.WithValues(ref.Times, out)
	result.Name = ref.Name + "_tinterp"
	return result, nil
}

// interpAt evaluates the piecewise linear function through (xs, ys) at t.
// xs must be sorted ascending.
func interpAt(xs, ys []float64, t float64) float64 {
	n := len(xs)
	if n == 0 || t < xs[0] || t > xs[n-1] {
		return math.NaN()
	}
	k := sort.SearchFloat64s(xs, t)
	if k < n && xs[k] == t {
		return ys[k]
	}
	x0, x1 := xs[k-1], xs[k]
	y0, y1 := ys[k-1], ys[k]
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(t-x0)/(x1-x0)
}

func sameTimes(a, b *tvar.Variable) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Times {
		if !a.Times[i].Equal(b.Times[i]) {
			return false
		}
	}
	return true
}

// InterpNaN fills NaN runs inside each trace by linear interpolation in
// time. Leading and trailing NaNs are kept. When limit is positive, runs
// longer than limit samples are left untouched.
func InterpNaN(v *tvar.Variable, limit int) (*tvar.Variable, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "interp_nan '%s'", v.Name)
	}
	xs := v.Seconds()
	out := mat.DenseCopyOf(v.Values)
	rows, cols := out.Dims()

	for j := 0; j < cols; j++ {
		col := v.Col(j)
		i := 0
		for i < rows {
			if !math.IsNaN(col[i]) {
				i++
				continue
			}
			start := i
			for i < rows && math.IsNaN(col[i]) {
				i++
			}
			end := i // first valid index after the run, or rows
			if start == 0 || end == rows {
				continue
			}
			if limit > 0 && end-start > limit {
				continue
			}
			x0, x1 := xs[start-1], xs[end]
			y0, y1 := col[start-1], col[end]
			for k := start; k < end; k++ {
				if x1 == x0 {
					out.Set(k, j, y0)
					continue
				}
				out.Set(k, j, y0+(y1-y0)*(xs[k]-x0)/(x1-x0))
			}
		}
	}
	return v.WithValues(v.Times, out), nil
}
