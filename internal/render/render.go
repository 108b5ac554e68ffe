// Package render draws registry variables with gonum/plot.
//
// A figure stacks one panel per requested variable. All panels share the
// time axis; panel heights follow each variable's panel_size. Line data
// draws one line per trace, spectrogram data draws a heat map with a color
// bar, and pseudo-variables overplot their components in one panel.
package render

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/tvar"
)

var log = logging.Component("render")

// formats maps file extensions to output formats.
var formats = map[string]string{
	"png":  "png",
	"jpg":  "jpg",
	"jpeg": "jpg",
	"tif":  "tiff",
	"tiff": "tiff",
	"svg":  "svg",
	"pdf":  "pdf",
	"eps":  "eps",
}

// Request describes where a figure goes.
type Request struct {
	// Outputs are file paths; the format follows the extension. A path
	// without extension gets ".png".
	Outputs []string

	// Writer, when set, receives one figure in Format.
	Writer io.Writer
	Format string

	// Width and Height in pixels override the window_size figure option.
	Width, Height float64
}

// Renderer draws figures from a registry.
type Renderer struct {
	reg      *registry.Registry
	parallel int
}

// New creates a renderer reading from reg.
func New(reg *registry.Registry) *Renderer {
	return &Renderer{reg: reg, parallel: config.MaxParallelRenders}
}

// Plot draws names and writes the figure to every output of req. It
// returns the paths written. Names may be glob patterns; a name that
// matches nothing fails with ErrVariableNotFound before anything is drawn.
// Without outputs the figure is drawn and discarded.
func (r *Renderer) Plot(ctx context.Context, names []string, req Request) ([]string, error) {
	resolved, err := r.resolve(names)
	if err != nil {
		return nil, err
	}
	fig, err := r.snapshot(resolved, req)
	if err != nil {
		return nil, err
	}

	if req.Writer != nil {
		format := req.Format
		if format == "" {
			format = config.DefaultOutputFormat
		}
		if err := fig.writeTo(req.Writer, format); err != nil {
			return nil, err
		}
	}
	if len(req.Outputs) == 0 {
		if req.Writer == nil {
			return nil, fig.writeTo(io.Discard, config.DefaultOutputFormat)
		}
		return nil, nil
	}

	paths := make([]string, len(req.Outputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, out := range req.Outputs {
		i, out := i, out
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := fig.writeFile(out)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("figure written", "variables", len(resolved), "outputs", len(paths))
	return paths, nil
}

func (r *Renderer) resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "nothing to plot")
	}
	var out []string
	for _, n := range names {
		matched := r.reg.Names(n)
		if len(matched) == 0 {
			return nil, errors.NewVariableNotFound(n)
		}
		out = append(out, matched...)
	}
	return out, nil
}

// snapshot copies everything the figure needs out of the registry so
// outputs can be drawn concurrently.
func (r *Renderer) snapshot(names []string, req Request) (*figure, error) {
	f := &figure{g: r.reg.Global()}
	if req.Width > 0 && req.Height > 0 {
		f.g.WindowSize = []float64{req.Width, req.Height}
	}

	for _, name := range names {
		v, err := r.reg.Variable(name)
		if err != nil {
			return nil, err
		}
		comps, err := r.reg.Components(name)
		if err != nil {
			return nil, err
		}
		f.panels = append(f.panels, panel{
			name:   v.Name,
			pseudo: v.IsPseudo(),
			opts:   v.Options,
			comps:  comps,
		})
	}

	f.timeWindow()
	return f, nil
}

// =============================================================================
// Figure
// =============================================================================

type figure struct {
	g          options.Global
	panels     []panel
	xmin, xmax float64
}

// timeWindow fixes the shared x range and restricts every component to it.
func (f *figure) timeWindow() {
	var start, end time.Time
	if xr := f.g.XRange; xr != nil {
		start, end = xr.Start, xr.End
	} else {
		for _, p := range f.panels {
			for _, c := range p.comps {
				s, e, ok := c.Trange()
				if !ok {
					continue
				}
				if start.IsZero() || s.Before(start) {
					start = s
				}
				if e.After(end) {
					end = e
				}
			}
		}
	}

	f.xmin, f.xmax = tvar.Seconds(start), tvar.Seconds(end)
	if start.IsZero() {
		now := float64(time.Now().Unix())
		f.xmin, f.xmax = now-1, now
	}
	if f.xmin == f.xmax {
		f.xmin, f.xmax = f.xmin-1, f.xmax+1
	}

	if f.g.XRange == nil {
		return
	}
	for i := range f.panels {
		for j, c := range f.panels[i].comps {
			lo, hi := c.IndexRange(start, end)
			if lo >= hi {
				f.panels[i].comps[j] = nil
				continue
			}
			if lo == 0 && hi == c.Len() {
				continue
			}
			sliced, err := c.Slice(lo, hi)
			if err != nil {
				f.panels[i].comps[j] = nil
				continue
			}
			f.panels[i].comps[j] = sliced
		}
	}
}

func (f *figure) size() (vg.Length, vg.Length, int) {
	dpi := f.g.DPI
	if dpi <= 0 {
		dpi = config.DefaultDPI
	}
	w, h := float64(config.DefaultWindowWidth), float64(config.DefaultWindowHeight)
	if len(f.g.WindowSize) == 2 {
		w, h = f.g.WindowSize[0], f.g.WindowSize[1]
	}
	return vg.Length(w / float64(dpi)) * vg.Inch, vg.Length(h / float64(dpi)) * vg.Inch, dpi
}

// writeFile draws the figure into path and returns the path written.
func (f *figure) writeFile(path string) (string, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return "", err
	}
	if filepath.Ext(path) == "" {
		path += "." + format
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "create %s", dir)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	if err := f.writeTo(file, format); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", path)
	}
	log.Debug("figure saved", "path", path, "format", format)
	return path, nil
}

// writeTo draws the figure in format and writes it to w. Panics from the
// plotting library are returned as ErrRender.
func (f *figure) writeTo(w io.Writer, format string) (err error) {
	format = strings.ToLower(format)
	if mapped, ok := formats[format]; ok {
		format = mapped
	} else {
		return errors.Wrapf(errors.ErrUnsupportedFormat, "%q", format)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrRender, "%v", r)
		}
	}()

	width, height, dpi := f.size()
	c, err := newCanvas(format, width, height, dpi)
	if err != nil {
		return errors.Wrapf(errors.ErrRender, "%v", err)
	}
	f.draw(draw.New(c))
	if _, err := c.WriteTo(w); err != nil {
		return errors.Wrapf(errors.ErrRender, "write %s: %v", format, err)
	}
	return nil
}

func newCanvas(format string, w, h vg.Length, dpi int) (vg.CanvasWriterTo, error) {
	switch format {
	case "png":
		return vgimg.PngCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}, nil
	case "jpg":
		return vgimg.JpegCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}, nil
	case "tiff":
		return vgimg.TiffCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}, nil
	default:
		return draw.NewFormattedCanvas(w, h, format)
	}
}

// draw lays the figure out on dc: title on top, panels stacked by
// panel_size, color bars on the right, timestamp bottom right.
func (f *figure) draw(dc draw.Canvas) {
	rect := dc.Rectangle
	mx := vg.Length(f.g.XMargin) * (rect.Max.X - rect.Min.X)
	my := vg.Length(f.g.YMargin) * (rect.Max.Y - rect.Min.Y)
	inner := vg.Rectangle{
		Min: vg.Point{X: rect.Min.X + mx, Y: rect.Min.Y + my},
		Max: vg.Point{X: rect.Max.X - mx, Y: rect.Max.Y - my},
	}
	fontSize := vg.Points(f.g.AxisFontSize)

	if f.g.Title != "" {
		sty := textStyle(fontSize * 1.4)
		sty.XAlign = text.XCenter
		sty.YAlign = text.YTop
		dc.FillText(sty, vg.Point{X: (inner.Min.X + inner.Max.X) / 2, Y: inner.Max.Y}, f.g.Title)
		inner.Max.Y -= fontSize * 2.4
	}
	if f.g.Timestamp != "" {
		sty := textStyle(fontSize * 0.8)
		sty.XAlign = text.XRight
		sty.YAlign = text.YBottom
		dc.FillText(sty, vg.Point{X: inner.Max.X, Y: inner.Min.Y}, f.g.Timestamp)
		inner.Min.Y += fontSize * 1.5
	}

	var barW vg.Length
	total := 0.0
	for _, p := range f.panels {
		total += p.opts.PanelSize
		if p.hasSpec() {
			barW = (inner.Max.X - inner.Min.X) * 0.12
		}
	}
	if total <= 0 {
		total = 1
	}

	height := inner.Max.Y - inner.Min.Y
	top := inner.Max.Y
	for i, p := range f.panels {
		h := height * vg.Length(p.opts.PanelSize/total)
		pl, bar := f.build(p, i == len(f.panels)-1)
		pl.Draw(draw.Canvas{Canvas: dc.Canvas, Rectangle: vg.Rectangle{
			Min: vg.Point{X: inner.Min.X, Y: top - h},
			Max: vg.Point{X: inner.Max.X - barW, Y: top},
		}})
		if bar != nil {
			bar.Draw(draw.Canvas{Canvas: dc.Canvas, Rectangle: vg.Rectangle{
				Min: vg.Point{X: inner.Max.X - barW + fontSize, Y: top - h},
				Max: vg.Point{X: inner.Max.X, Y: top},
			}})
		}
		top -= h
	}
}

// textStyle returns the default plot text style at size.
func textStyle(size vg.Length) text.Style {
	sty := plot.New().Title.TextStyle
	sty.Font.Size = size
	return sty
}

// FormatFromPath returns the output format for a file name. A name without
// extension selects the default format.
func FormatFromPath(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return config.DefaultOutputFormat, nil
	}
	format, ok := formats[ext]
	if !ok {
		return "", errors.Wrapf(errors.ErrUnsupportedFormat, "%q", filepath.Ext(path))
	}
	return format, nil
}

// SupportedFormats lists the accepted file extensions.
func SupportedFormats() []string {
	return []string{"png", "jpg", "jpeg", "tif", "tiff", "svg", "pdf", "eps"}
}
