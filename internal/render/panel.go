package render

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
)

// panel is one stacked plot of the figure. For a pseudo-variable comps
// holds its base variables; otherwise comps holds the variable itself.
// Components without data in the time window are nil.
type panel struct {
	name   string
	pseudo bool
	opts   options.Options
	comps  []*tvar.Variable
}

func isSpec(v *tvar.Variable) bool {
	return v.Options.Spec && len(v.Bins) > 0
}

// hasSpec reports whether any component is drawn as a spectrogram.
func (p panel) hasSpec() bool {
	for _, c := range p.comps {
		if c != nil && isSpec(c) {
			return true
		}
	}
	return false
}

// build creates the plot of p and, for spectrogram panels, its color bar.
func (f *figure) build(p panel, bottom bool) (*plot.Plot, *plot.Plot) {
	pl := plot.New()
	f.styleAxes(pl, p, bottom)

	var override *options.Options
	if p.pseudo {
		override = &p.opts
	}

	var bar *plot.Plot
	trace := 0
	if !p.opts.NoData {
		for _, c := range p.comps {
			if c == nil {
				continue
			}
			if isSpec(c) {
				if cb := f.addHeatMap(pl, c, p); cb != nil && bar == nil {
					bar = cb
				}
				continue
			}
			trace = f.addLines(pl, c, p, override, trace)
		}
	}

	pl.X.Min, pl.X.Max = f.xmin, f.xmax
	lo, hi := f.yLimits(p)
	pl.Y.Min, pl.Y.Max = lo, hi
	return pl, bar
}

func (f *figure) styleAxes(pl *plot.Plot, p panel, bottom bool) {
	scale := 1.0
	if p.opts.CharSize > 0 {
		scale = p.opts.CharSize
	}
	size := vg.Points(f.g.AxisFontSize * scale)
	pl.X.Tick.Label.Font.Size = size
	pl.Y.Tick.Label.Font.Size = size
	pl.X.Label.TextStyle.Font.Size = size
	pl.Y.Label.TextStyle.Font.Size = size
	pl.Legend.TextStyle.Font.Size = size
	pl.Legend.Top = true
	pl.Title.TextStyle.Font.Size = size * 1.2
	pl.Title.Text = p.opts.Title

	ytitle := p.opts.YTitle
	if ytitle == "" && !p.hasSpec() {
		ytitle = p.name
	}
	if p.opts.YSubtitle != "" {
		ytitle += "\n" + p.opts.YSubtitle
	}
	pl.Y.Label.Text = ytitle

	var xt plot.Ticker = plot.TimeTicks{Format: f.g.TimeFormat, Time: plot.UTCUnixTime}
	if bottom {
		pl.X.Label.Text = p.opts.XTitle
	} else {
		xt = unlabeled{xt}
	}
	pl.X.Tick.Marker = xt

	var yt plot.Ticker = plot.DefaultTicks{}
	if p.opts.YLog {
		pl.Y.Scale = plot.LogScale{}
		yt = plot.LogTicks{Prec: -1}
	}
	if len(p.opts.YMajorTicks) > 0 {
		yt = majorTicks(p.opts.YMajorTicks)
	}
	if p.opts.YMinorTickInterval > 0 {
		yt = withMinor{major: yt, interval: p.opts.YMinorTickInterval}
	}
	pl.Y.Tick.Marker = yt

	if !p.opts.Border {
		pl.X.LineStyle.Width = 0
		pl.Y.LineStyle.Width = 0
	}
}

// addLines draws every trace of v and returns the next global trace index.
func (f *figure) addLines(pl *plot.Plot, v *tvar.Variable, p panel, override *options.Options, trace int) int {
	gap := v.Options.DataGap
	if gap == 0 {
		gap = p.opts.DataGap
	}
	if gap == 0 {
		gap = f.g.DataGap
	}
	ylog := p.opts.YLog || v.Options.YLog
	xs := v.Seconds()

	for j := 0; j < v.Cols(); j++ {
		style := resolveStyle(v.Options, override, j, trace)
		if style.Label == "" && p.pseudo {
			style.Label = v.Name
			if v.Cols() > 1 {
				style.Label = fmt.Sprintf("%s[%d]", v.Name, j)
			}
		}
		trace++

		segs := segments(xs, v.Col(j), gap, ylog)
		for _, seg := range segs {
			if !style.NoLine && len(seg) > 1 {
				l, err := plotter.NewLine(seg)
				if err != nil {
					log.Warn("skipping line segment", "name", v.Name, "error", err)
					continue
				}
				l.LineStyle = style.lineStyle()
				pl.Add(l)
			}
			if style.ShowGlyphs || (!style.NoLine && len(seg) == 1) {
				s, err := plotter.NewScatter(seg)
				if err != nil {
					log.Warn("skipping markers", "name", v.Name, "error", err)
					continue
				}
				s.GlyphStyle = style.glyphStyle()
				if s.GlyphStyle.Shape == nil {
					s.GlyphStyle.Shape = glyphFor("")
					s.GlyphStyle.Radius = style.Width
				}
				pl.Add(s)
			}
		}

		if style.Label != "" {
			if thumb, err := plotter.NewLine(plotter.XYs{}); err == nil {
				thumb.LineStyle = style.lineStyle()
				if style.NoLine {
					thumb.LineStyle.Width = 0
				}
				pl.Legend.Add(style.Label, thumb)
			}
		}
	}
	return trace
}

// segments splits a trace into drawable runs. A run ends at a NaN or
// infinite value, at a non-positive value on a log axis, and where
// consecutive samples are more than gap seconds apart.
func segments(xs, ys []float64, gap float64, ylog bool) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) || (ylog && y <= 0) {
			flush()
			continue
		}
		if gap > 0 && len(cur) > 0 && xs[i]-cur[len(cur)-1].X > gap {
			flush()
		}
		cur = append(cur, plotter.XY{X: xs[i], Y: y})
	}
	flush()
	return out
}

// addHeatMap draws v as a spectrogram and returns its color bar. Data that
// cannot be drawn (all NaN, fewer than two samples or bins) leaves the
// panel empty.
func (f *figure) addHeatMap(pl *plot.Plot, v *tvar.Variable, p panel) *plot.Plot {
	zlog := v.Options.ZLog || p.opts.ZLog
	g := newSpecGrid(v, zlog)
	if c, r := g.Dims(); c < 2 || r < 2 {
		log.Warn("spectrogram needs at least two samples and two bins", "name", v.Name)
		return nil
	}

	lo, hi, ok := g.zRange()
	if zlo, zhi, user := v.Options.ZLimits(); user {
		lo, hi, ok = zlo, zhi, true
		if zlog {
			lo, hi = logOrNaN(lo), logOrNaN(hi)
			ok = !math.IsNaN(lo) && !math.IsNaN(hi)
		}
	}
	if !ok {
		log.Warn("spectrogram has no finite data", "name", v.Name)
		return nil
	}
	if lo == hi {
		hi = lo + 1
	}

	pal := paletteFor(v.Options.Colormap, config.DefaultSpecColors)
	colors := pal.Colors()
	hm := plotter.NewHeatMap(g, pal)
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]
	pl.Add(hm)

	return f.colorBar(v, p, pal, lo, hi, zlog)
}

func (f *figure) colorBar(v *tvar.Variable, p panel, pal palette.Palette, lo, hi float64, zlog bool) *plot.Plot {
	cb := plot.New()
	bar := plotter.NewHeatMap(barGrid{min: lo, max: hi, n: config.DefaultSpecColors, zlog: zlog}, pal)
	bar.Min, bar.Max = lo, hi
	cb.Add(bar)
	cb.HideX()

	ztitle := v.Options.ZTitle
	if p.opts.ZTitle != "" {
		ztitle = p.opts.ZTitle
	}
	if ztitle == "" {
		ztitle = v.Name
	}
	if sub := v.Options.ZSubtitle; sub != "" {
		ztitle += "\n" + sub
	}
	cb.Y.Label.Text = ztitle

	size := vg.Points(f.g.AxisFontSize)
	cb.Y.Tick.Label.Font.Size = size
	cb.Y.Label.TextStyle.Font.Size = size

	if zlog {
		cb.Y.Scale = plot.LogScale{}
		cb.Y.Tick.Marker = plot.LogTicks{Prec: -1}
		cb.Y.Min, cb.Y.Max = math.Pow(10, lo), math.Pow(10, hi)
	} else {
		cb.Y.Min, cb.Y.Max = lo, hi
	}
	return cb
}

// yLimits returns the y range of p: the user range when set, otherwise the
// union of the component ranges.
func (f *figure) yLimits(p panel) (float64, float64) {
	if p.opts.YRangeUser && len(p.opts.YRange) == 2 {
		return sanitizeRange(p.opts.YRange[0], p.opts.YRange[1], p.opts.YLog)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range p.comps {
		if c == nil {
			continue
		}
		var clo, chi float64
		var ok bool
		switch {
		case c.Options.YRangeUser && len(c.Options.YRange) == 2:
			clo, chi, ok = c.Options.YRange[0], c.Options.YRange[1], true
		case isSpec(c):
			clo, chi, ok = minMax(c.Bins)
		case p.opts.YLog:
			clo, chi, ok = positiveRange(c)
		default:
			clo, chi, ok = c.DataRange()
		}
		if ok {
			lo, hi = math.Min(lo, clo), math.Max(hi, chi)
		}
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		if p.opts.YLog {
			return 1, 10
		}
		return 0, 1
	}
	return sanitizeRange(lo, hi, p.opts.YLog)
}

func sanitizeRange(lo, hi float64, ylog bool) (float64, float64) {
	if lo > hi {
		lo, hi = hi, lo
	}
	if ylog {
		if hi <= 0 {
			return 1, 10
		}
		if lo <= 0 {
			lo = hi / 1000
		}
		if lo == hi {
			return lo / 10, hi * 10
		}
		return lo, hi
	}
	if lo == hi {
		pad := math.Abs(lo) * 0.1
		if pad == 0 {
			pad = 1
		}
		return lo - pad, hi + pad
	}
	return lo, hi
}

func minMax(xs []float64) (float64, float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return lo, hi, !math.IsInf(lo, 0)
}

func positiveRange(v *tvar.Variable) (float64, float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for j := 0; j < v.Cols(); j++ {
		for _, x := range v.Col(j) {
			if x > 0 && !math.IsInf(x, 0) {
				lo, hi = math.Min(lo, x), math.Max(hi, x)
			}
		}
	}
	return lo, hi, !math.IsInf(lo, 0)
}
