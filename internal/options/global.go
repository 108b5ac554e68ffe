package options

import (
	"strings"
	"time"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/validation"
)

// TimeRange is a closed interval of UTC times.
type TimeRange struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// NewTimeRange returns the range [start, end]; end must be after start.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !end.After(start) {
		return TimeRange{}, errors.Wrapf(errors.ErrInvalidRange, "%s is not after %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return TimeRange{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls within the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Global are figure-wide options that apply to every plot.
type Global struct {
	Title        string    `yaml:"title,omitempty"`
	XMargin      float64   `yaml:"xmargin" validate:"gte=0,lt=0.5"`
	YMargin      float64   `yaml:"ymargin" validate:"gte=0,lt=0.5"`
	WindowSize   []float64 `yaml:"window_size" validate:"len=2,dive,gt=0"`
	AxisFontSize float64   `yaml:"axis_font_size" validate:"gt=0"`
	DataGap      float64   `yaml:"data_gap,omitempty" validate:"gte=0"`
	DPI          int       `yaml:"dpi" validate:"gt=0"`
	TimeFormat   string    `yaml:"time_format,omitempty"`

	// XRange is the time window shown on the shared x axis. Nil means the
	// full extent of the plotted data.
	XRange *TimeRange `yaml:"x_range,omitempty"`

	// XRangeLast is the window that was active before the latest Xlim call.
	XRangeLast *TimeRange `yaml:"x_range_last,omitempty"`

	// XRangeFull is the first window ever set with Xlim.
	XRangeFull *TimeRange `yaml:"x_range_full,omitempty"`

	// Timestamp, when non-empty, is printed in the figure corner.
	Timestamp string `yaml:"timestamp,omitempty"`
}

// DefaultGlobal returns the figure options used until changed.
func DefaultGlobal() Global {
	return Global{
		XMargin:      config.DefaultXMargin,
		YMargin:      config.DefaultYMargin,
		WindowSize:   []float64{config.DefaultWindowWidth, config.DefaultWindowHeight},
		AxisFontSize: config.DefaultAxisFontSize,
		DPI:          config.DefaultDPI,
		TimeFormat:   config.DefaultTimeFormat,
	}
}

// Clone returns a deep copy of g.
func (g Global) Clone() Global {
	c := g
	c.WindowSize = cloneFloats(g.WindowSize)
	c.XRange = cloneRange(g.XRange)
	c.XRangeLast = cloneRange(g.XRangeLast)
	c.XRangeFull = cloneRange(g.XRangeFull)
	return c
}

// Validate checks g against its struct tags.
func (g Global) Validate() error {
	return validation.Struct(g)
}

// Xlim sets the shared x range. The previous range becomes the "last"
// range; the first range ever set is remembered as the "full" range.
func (g *Global) Xlim(start, end time.Time) error {
	r, err := NewTimeRange(start, end)
	if err != nil {
		return err
	}
	if g.XRange != nil {
		g.XRangeLast = cloneRange(g.XRange)
	} else {
		g.XRangeFull = cloneRange(&r)
		g.XRangeLast = cloneRange(&r)
	}
	g.XRange = &r
	return nil
}

// Tlimit switches the x range: "full" shows all data, "last" restores the
// range before the latest Xlim.
func (g *Global) Tlimit(arg string) error {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "full":
		g.XRange = nil
	case "last":
		if g.XRangeLast == nil {
			return errors.NewInvalidOption("tlimit", arg, "no previous range")
		}
		last := cloneRange(g.XRangeLast)
		g.XRangeLast = cloneRange(g.XRange)
		g.XRange = last
	default:
		return errors.NewInvalidOption("tlimit", arg, "expected full or last")
	}
	return nil
}

// SetTimestamp turns the figure timestamp on (stamped with now) or off.
func (g *Global) SetTimestamp(on bool, now time.Time) {
	if on {
		g.Timestamp = now.Format("2006-01-02 150405")
	} else {
		g.Timestamp = ""
	}
}

// Set applies a single named figure option.
func (g *Global) Set(option string, value interface{}) error {
	next := g.Clone()
	if err := next.set(strings.ToLower(strings.TrimSpace(option)), value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*g = next
	return nil
}

// SetAll applies several figure options at once, all or nothing.
func (g *Global) SetAll(values map[string]interface{}) error {
	next := g.Clone()
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
	*g = next
	return nil
}

func (g *Global) set(option string, value interface{}) error {
	var err error
	switch option {
	case "title":
		g.Title, err = toString(value)
	case "xmargin":
		g.XMargin, err = toFloat(value)
	case "ymargin":
		g.YMargin, err = toFloat(value)
	case "window_size", "wsize":
		g.WindowSize, err = toFloats(value)
	case "axis_font_size":
		g.AxisFontSize, err = toFloat(value)
	case "data_gap":
		g.DataGap, err = toFloat(value)
	case "dpi":
		var f float64
		f, err = toFloat(value)
		g.DPI = int(f)
	case "time_format":
		g.TimeFormat, err = toString(value)
	case "x_range", "xrange":
		var ts []time.Time
		if ts, err = toTimes(value); err == nil {
			if len(ts) != 2 {
				return errors.NewInvalidOption(option, value, "expected [start, end]")
			}
			return g.Xlim(ts[0], ts[1])
		}
	case "timestamp":
		var on bool
		if on, err = toBool(value); err == nil {
			g.SetTimestamp(on, time.Now())
		}
	default:
		return errors.NewInvalidOption(option, value, "unknown figure option")
	}
	if err != nil {
		return errors.NewInvalidOption(option, value, err.Error())
	}
	return nil
}

// GlobalNames returns every option name Global.Set accepts.
func GlobalNames() []string {
	return []string{
		"axis_font_size", "data_gap", "dpi", "time_format", "timestamp",
		"title", "window_size", "x_range", "xmargin", "ymargin",
	}
}

func cloneRange(r *TimeRange) *TimeRange {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
