// Package options holds the per-variable and figure-wide plot options.
//
// Options are plain data: they are stored alongside each variable, saved
// with the session, and interpreted by the render package. Setters accept
// loosely typed values (CLI strings, YAML scalars, Go slices) and convert
// them; every mutation is validated with struct tags.
package options

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/validation"
)

// Line styles by name. The numeric aliases 0-6 map onto this list in order.
var lineStyles = []string{
	"solid_line",
	"dot",
	"dash",
	"dash_dot",
	"dash_dot_dot_dot",
	"long_dash",
	"none",
}

// Dash patterns in points for each named line style.
var dashPatterns = map[string][]float64{
	"solid_line":       nil,
	"dot":              {2, 4},
	"dash":             {6, 6},
	"dash_dot":         {6, 4, 2, 4},
	"dash_dot_dot_dot": {6, 4, 2, 4, 2, 4, 2, 4},
	"long_dash":        {10, 10},
}

// Markers understood by the renderer.
var markers = []string{"circle", "ring", "square", "box", "triangle", "cross", "plus", "pyramid"}

// Colormaps understood by the renderer.
var colormaps = []string{"heat", "rainbow", "bluered", "kindlmann", "blackbody"}

// Options are the plot options of a single variable.
//
// Per-trace options (Color, LegendNames, LineStyle, Thick, Marker,
// MarkerSize) are indexed by trace. A single entry applies to all traces.
type Options struct {
	Color       []string  `yaml:"color,omitempty"`
	LegendNames []string  `yaml:"legend_names,omitempty"`
	LineStyle   []string  `yaml:"line_style,omitempty" validate:"dive,linestyle"`
	Thick       []float64 `yaml:"thick,omitempty" validate:"dive,gt=0"`
	Marker      []string  `yaml:"marker,omitempty" validate:"dive,marker"`
	MarkerSize  []float64 `yaml:"marker_size,omitempty" validate:"dive,gt=0"`
	Symbols     bool      `yaml:"symbols,omitempty"`
	NoData      bool      `yaml:"nodata,omitempty"`

	YLog   bool      `yaml:"ylog,omitempty"`
	ZLog   bool      `yaml:"zlog,omitempty"`
	Spec   bool      `yaml:"spec,omitempty"`
	YRange []float64 `yaml:"yrange,omitempty" validate:"omitempty,len=2"`
	ZRange []float64 `yaml:"zrange,omitempty" validate:"omitempty,len=2"`

	// YRangeUser is set when the y range came from the user rather than
	// from the data.
	YRangeUser bool `yaml:"yrange_user,omitempty"`

	XTitle    string `yaml:"xtitle,omitempty"`
	YTitle    string `yaml:"ytitle,omitempty"`
	ZTitle    string `yaml:"ztitle,omitempty"`
	YSubtitle string `yaml:"ysubtitle,omitempty"`
	ZSubtitle string `yaml:"zsubtitle,omitempty"`
	Title     string `yaml:"title,omitempty"`
	Name      string `yaml:"name,omitempty"`

	YMajorTicks        []float64 `yaml:"y_major_ticks,omitempty"`
	YMinorTickInterval float64   `yaml:"y_minor_tick_interval,omitempty" validate:"gte=0"`

	PanelSize float64 `yaml:"panel_size" validate:"gt=0,lte=1"`
	Alpha     float64 `yaml:"alpha" validate:"gte=0,lte=1"`
	Border    bool    `yaml:"border"`
	DataGap   float64 `yaml:"data_gap,omitempty" validate:"gte=0"`
	CharSize  float64 `yaml:"char_size,omitempty" validate:"gte=0"`
	Colormap  string  `yaml:"colormap,omitempty" validate:"omitempty,colormap"`
}

// Default returns the options a freshly stored variable starts with.
func Default() Options {
	return Options{
		PanelSize: 1,
		Alpha:     1,
		Border:    true,
	}
}

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	c := o
	c.Color = cloneStrings(o.Color)
	c.LegendNames = cloneStrings(o.LegendNames)
	c.LineStyle = cloneStrings(o.LineStyle)
	c.Thick = cloneFloats(o.Thick)
	c.Marker = cloneStrings(o.Marker)
	c.MarkerSize = cloneFloats(o.MarkerSize)
	c.YRange = cloneFloats(o.YRange)
	c.ZRange = cloneFloats(o.ZRange)
	c.YMajorTicks = cloneFloats(o.YMajorTicks)
	return c
}

// ResetForOverplot clears the axis, line and extra options so that the
// component variables of an overplot keep their own styling. Options set on
// the overplot afterwards override the components.
func (o *Options) ResetForOverplot() {
	title := o.Title
	*o = Default()
	o.Title = title
}

// Validate checks o against its struct tags.
func (o Options) Validate() error {
	return validation.Struct(o)
}

// =============================================================================
// Per-trace accessors
// =============================================================================

// ColorAt returns the color for trace i, if set.
func (o Options) ColorAt(i int) (string, bool) { return stringAt(o.Color, i) }

// LegendAt returns the legend label for trace i, if set.
func (o Options) LegendAt(i int) (string, bool) {
	if i < len(o.LegendNames) {
		return o.LegendNames[i], true
	}
	return "", false
}

// LineStyleAt returns the line style name for trace i, if set.
func (o Options) LineStyleAt(i int) (string, bool) { return stringAt(o.LineStyle, i) }

// ThickAt returns the line width for trace i, if set.
func (o Options) ThickAt(i int) (float64, bool) { return floatAt(o.Thick, i) }

// MarkerAt returns the marker for trace i, if set.
func (o Options) MarkerAt(i int) (string, bool) { return stringAt(o.Marker, i) }

// MarkerSizeAt returns the marker size for trace i, if set.
func (o Options) MarkerSizeAt(i int) (float64, bool) { return floatAt(o.MarkerSize, i) }

// YLimits returns the configured y range.
func (o Options) YLimits() (min, max float64, ok bool) {
	if len(o.YRange) != 2 {
		return 0, 0, false
	}
	return o.YRange[0], o.YRange[1], true
}

// ZLimits returns the configured z range.
func (o Options) ZLimits() (min, max float64, ok bool) {
	if len(o.ZRange) != 2 {
		return 0, 0, false
	}
	return o.ZRange[0], o.ZRange[1], true
}

// DashPattern returns the dash lengths in points for a line style name.
func DashPattern(style string) ([]float64, bool) {
	d, ok := dashPatterns[style]
	return d, ok
}

func stringAt(s []string, i int) (string, bool) {
	switch {
	case len(s) == 0:
		return "", false
	case i < len(s):
		return s[i], true
	default:
		return s[len(s)-1], true
	}
}

func floatAt(s []float64, i int) (float64, bool) {
	switch {
	case len(s) == 0:
		return 0, false
	case i < len(s):
		return s[i], true
	default:
		return s[len(s)-1], true
	}
}

// =============================================================================
// Setters
// =============================================================================

// Set applies a single named option. Option names are case-insensitive and
// accept the aliases labels, linestyle, y_range, z_range and charsize.
// The options are left unchanged if the result does not validate.
func (o *Options) Set(option string, value interface{}) error {
	next := o.Clone()
	if err := next.set(strings.ToLower(strings.TrimSpace(option)), value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*o = next
	return nil
}

// SetAll applies several options at once. Either all of them apply or
// none do.
func (o *Options) SetAll(values map[string]interface{}) error {
	next := o.Clone()
	verrs := errors.NewValidationErrors()
	for _, option := range sortedKeys(values) {
		verrs.Add(next.set(strings.ToLower(strings.TrimSpace(option)), values[option]))
	}
	if err := verrs.Err(); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*o = next
	return nil
}

func (o *Options) set(option string, value interface{}) error {
	var err error
	switch option {
	case "color":
		o.Color, err = toStrings(value)
	case "legend_names", "labels":
		o.LegendNames, err = toStrings(value)
	case "line_style", "linestyle":
		o.LineStyle, err = toLineStyles(value)
	case "thick":
		o.Thick, err = toFloats(value)
	case "marker":
		o.Marker, err = toStrings(value)
	case "marker_size":
		o.MarkerSize, err = toFloats(value)
	case "symbols":
		o.Symbols, err = toBool(value)
	case "nodata":
		o.NoData, err = toBool(value)
	case "ylog":
		o.YLog, err = toBool(value)
	case "zlog":
		o.ZLog, err = toBool(value)
	case "spec":
		o.Spec, err = toBool(value)
	case "yrange", "y_range":
		o.YRange, err = toRange(value)
		o.YRangeUser = err == nil
	case "zrange", "z_range":
		o.ZRange, err = toRange(value)
	case "xtitle":
		o.XTitle, err = toString(value)
	case "ytitle":
		o.YTitle, err = toString(value)
	case "ztitle":
		o.ZTitle, err = toString(value)
	case "ysubtitle":
		o.YSubtitle, err = toString(value)
	case "zsubtitle":
		o.ZSubtitle, err = toString(value)
	case "title":
		o.Title, err = toString(value)
	case "name":
		o.Name, err = toString(value)
	case "y_major_ticks":
		o.YMajorTicks, err = toFloats(value)
	case "y_minor_tick_interval":
		o.YMinorTickInterval, err = toFloat(value)
	case "panel_size":
		o.PanelSize, err = toFloat(value)
	case "alpha":
		o.Alpha, err = toFloat(value)
	case "border":
		o.Border, err = toBool(value)
	case "data_gap":
		o.DataGap, err = toFloat(value)
	case "char_size", "charsize":
		o.CharSize, err = toFloat(value)
	case "colormap":
		o.Colormap, err = toString(value)
	default:
		return errors.NewInvalidOption(option, value, "unknown option")
	}
	if err != nil {
		return errors.NewInvalidOption(option, value, err.Error())
	}
	return nil
}

// Names returns every option name Set accepts, aliases included.
func Names() []string {
	return []string{
		"alpha", "border", "char_size", "charsize", "color", "colormap",
		"data_gap", "labels", "legend_names", "line_style", "linestyle",
		"marker", "marker_size", "name", "nodata", "panel_size", "spec",
		"symbols", "thick", "title", "xtitle", "y_major_ticks",
		"y_minor_tick_interval", "y_range", "ylog", "yrange", "ysubtitle",
		"ytitle", "z_range", "zlog", "zrange", "zsubtitle", "ztitle",
	}
}

func toLineStyles(value interface{}) ([]string, error) {
	raw, err := toStrings(value)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if n, err := strconv.Atoi(s); err == nil {
			if n < 0 || n >= len(lineStyles) {
				return nil, fmt.Errorf("line style %d out of range 0-%d", n, len(lineStyles)-1)
			}
			s = lineStyles[n]
		}
		out[i] = s
	}
	return out, nil
}

func toRange(value interface{}) ([]float64, error) {
	r, err := toFloats(value)
	if err != nil {
		return nil, err
	}
	if len(r) != 2 {
		return nil, fmt.Errorf("expected [min, max], got %d values", len(r))
	}
	return r, nil
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}
