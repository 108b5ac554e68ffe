package render

import (
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
)

// Single-letter color codes.
var shortColors = map[string]color.Color{
	"r": colornames.Red,
	"g": colornames.Green,
	"b": colornames.Blue,
	"c": colornames.Cyan,
	"m": colornames.Magenta,
	"y": colornames.Yellow,
	"k": colornames.Black,
	"w": colornames.White,
}

// ParseColor accepts SVG color names, single-letter codes and #rgb or
// #rrggbb hex values.
func ParseColor(s string) (color.Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := shortColors[name]; ok {
		return c, nil
	}
	if c, ok := colornames.Map[name]; ok {
		return c, nil
	}
	if strings.HasPrefix(name, "#") {
		hex := name[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) == 6 {
			if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
				return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
			}
		}
	}
	return nil, errors.NewInvalidOption("color", s, "unknown color")
}

// withAlpha returns c with its opacity scaled by alpha.
func withAlpha(c color.Color, alpha float64) color.Color {
	if alpha >= 1 {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * alpha)
	return n
}

// traceStyle is the resolved look of one trace.
type traceStyle struct {
	Label      string
	Color      color.Color
	Width      vg.Length
	Dashes     []vg.Length
	NoLine     bool
	Glyph      draw.GlyphDrawer
	GlyphSize  vg.Length
	ShowGlyphs bool
}

func (s traceStyle) lineStyle() draw.LineStyle {
	return draw.LineStyle{Color: s.Color, Width: s.Width, Dashes: s.Dashes}
}

func (s traceStyle) glyphStyle() draw.GlyphStyle {
	return draw.GlyphStyle{Color: s.Color, Radius: s.GlyphSize, Shape: s.Glyph}
}

// resolveStyle computes the style of trace local of a variable with opts.
// Entries in override (the options of an enclosing overplot) are looked up
// by the global trace index and win over the variable's own.
func resolveStyle(opts options.Options, override *options.Options, local, global int) traceStyle {
	s := traceStyle{
		Color:     plotutil.Color(global),
		Width:     vg.Points(1),
		GlyphSize: vg.Points(3),
	}

	pickString := func(own func(options.Options, int) (string, bool)) (string, bool) {
		if override != nil {
			if v, ok := own(*override, global); ok {
				return v, true
			}
		}
		return own(opts, local)
	}
	pickFloat := func(own func(options.Options, int) (float64, bool)) (float64, bool) {
		if override != nil {
			if v, ok := own(*override, global); ok {
				return v, true
			}
		}
		return own(opts, local)
	}

	if name, ok := pickString(options.Options.ColorAt); ok {
		if c, err := ParseColor(name); err == nil {
			s.Color = c
		} else {
			log.Warn("ignoring color", "color", name, "error", err)
		}
	}
	s.Color = withAlpha(s.Color, opts.Alpha)

	if w, ok := pickFloat(options.Options.ThickAt); ok {
		s.Width = vg.Points(w)
	}
	if style, ok := pickString(options.Options.LineStyleAt); ok {
		if style == "none" {
			s.NoLine = true
		} else if pattern, ok := options.DashPattern(style); ok {
			for _, d := range pattern {
				s.Dashes = append(s.Dashes, vg.Points(d))
			}
		}
	}

	marker, hasMarker := pickString(options.Options.MarkerAt)
	if size, ok := pickFloat(options.Options.MarkerSizeAt); ok {
		s.GlyphSize = vg.Points(size)
	}
	symbols := opts.Symbols || (override != nil && override.Symbols)
	if hasMarker || symbols {
		s.ShowGlyphs = true
		s.Glyph = glyphFor(marker)
	}
	if symbols {
		s.NoLine = true
	}

	if label, ok := opts.LegendAt(local); ok {
		s.Label = label
	}
	if override != nil {
		if label, ok := override.LegendAt(global); ok {
			s.Label = label
		}
	}
	return s
}

func glyphFor(marker string) draw.GlyphDrawer {
	switch marker {
	case "ring":
		return draw.RingGlyph{}
	case "square":
		return draw.SquareGlyph{}
	case "box":
		return draw.BoxGlyph{}
	case "triangle":
		return draw.TriangleGlyph{}
	case "cross":
		return draw.CrossGlyph{}
	case "plus":
		return draw.PlusGlyph{}
	case "pyramid":
		return draw.PyramidGlyph{}
	default:
		return draw.CircleGlyph{}
	}
}

// paletteFor returns n colors of the named colormap; unknown names fall
// back to heat.
func paletteFor(name string, n int) palette.Palette {
	var cm palette.ColorMap
	switch name {
	case "rainbow":
		return palette.Rainbow(n, palette.Blue, palette.Red, 1, 1, 1)
	case "bluered":
		cm = moreland.SmoothBlueRed()
	case "kindlmann":
		cm = moreland.Kindlmann()
	case "blackbody":
		cm = moreland.BlackBody()
	default:
		return palette.Heat(n, 1)
	}
	cm.SetMax(1)
	cm.SetMin(0)
	return cm.Palette(n)
}
