package render

import (
	"math"

	"github.com/xtxerr/tplot/internal/tvar"
)

// specGrid exposes a spectrogram variable as a plotter.GridXYZ: columns
// are samples, rows are bins. Bins are presented in ascending order.
type specGrid struct {
	x    []float64
	y    []float64
	z    [][]float64 // [sample][bin], already transformed
	desc bool
}

func newSpecGrid(v *tvar.Variable, zlog bool) *specGrid {
	g := &specGrid{x: v.Seconds(), y: append([]float64(nil), v.Bins...)}
	n := len(g.y)
	g.desc = n > 1 && g.y[0] > g.y[n-1]
	if g.desc {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			g.y[i], g.y[j] = g.y[j], g.y[i]
		}
	}

	g.z = make([][]float64, v.Len())
	for i := range g.z {
		row := v.Row(i)
		for j, val := range row {
			if zlog {
				row[j] = logOrNaN(val)
			}
		}
		g.z[i] = row
	}
	return g
}

func logOrNaN(v float64) float64 {
	if v <= 0 {
		return math.NaN()
	}
	return math.Log10(v)
}

func (g *specGrid) Dims() (c, r int) { return len(g.x), len(g.y) }
func (g *specGrid) X(c int) float64  { return g.x[c] }
func (g *specGrid) Y(r int) float64  { return g.y[r] }

func (g *specGrid) Z(c, r int) float64 {
	if g.desc {
		r = len(g.y) - 1 - r
	}
	return g.z[c][r]
}

// zRange returns the finite extent of the grid values.
func (g *specGrid) zRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range g.z {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			ok = true
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi, ok
}

// barGrid is a single-column grid spanning [min, max], used to draw a
// color bar with the same palette as the heat map.
type barGrid struct {
	min, max float64
	n        int
	zlog     bool
}

func (b barGrid) Dims() (c, r int) { return 2, b.n }
func (b barGrid) X(c int) float64  { return float64(c) }

// Y returns bin centers in data units; on a log z axis the bins are
// spaced geometrically.
func (b barGrid) Y(r int) float64 {
	v := b.Z(0, r)
	if b.zlog {
		return math.Pow(10, v)
	}
	return v
}

func (b barGrid) Z(_, r int) float64 {
	return b.min + (b.max-b.min)*float64(r)/float64(b.n-1)
}
