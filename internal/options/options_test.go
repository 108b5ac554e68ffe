package options

import (
	"testing"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
)

func TestSetConversions(t *testing.T) {
	o := Default()

	tests := []struct {
		option string
		value  interface{}
		check  func(Options) bool
	}{
		{"color", "red,blue", func(o Options) bool { return len(o.Color) == 2 && o.Color[1] == "blue" }},
		{"Labels", []interface{}{"x", "y", "z"}, func(o Options) bool { return len(o.LegendNames) == 3 }},
		{"linestyle", 2, func(o Options) bool { return o.LineStyle[0] == "dash" }},
		{"line_style", "dot,long_dash", func(o Options) bool { return o.LineStyle[1] == "long_dash" }},
		{"thick", 2.5, func(o Options) bool { return o.Thick[0] == 2.5 }},
		{"ylog", "on", func(o Options) bool { return o.YLog }},
		{"zlog", 1, func(o Options) bool { return o.ZLog }},
		{"y_range", "1,10", func(o Options) bool { return o.YRange[0] == 1 && o.YRange[1] == 10 && o.YRangeUser }},
		{"zrange", []float64{0.1, 100}, func(o Options) bool { return o.ZRange[1] == 100 }},
		{"panel_size", "0.5", func(o Options) bool { return o.PanelSize == 0.5 }},
		{"ytitle", "|B| [nT]", func(o Options) bool { return o.YTitle == "|B| [nT]" }},
		{"colormap", "rainbow", func(o Options) bool { return o.Colormap == "rainbow" }},
		{"marker", "circle", func(o Options) bool { return o.Marker[0] == "circle" }},
	}

	for _, tt := range tests {
		t.Run(tt.option, func(t *testing.T) {
			if err := o.Set(tt.option, tt.value); err != nil {
				t.Fatalf("Set(%s) error: %v", tt.option, err)
			}
			if !tt.check(o) {
				t.Errorf("Set(%s, %v) did not apply: %+v", tt.option, tt.value, o)
			}
		})
	}
}

func TestSetRejects(t *testing.T) {
	tests := []struct {
		option string
		value  interface{}
	}{
		{"panel_size", 0.0},
		{"panel_size", 1.5},
		{"alpha", -0.1},
		{"alpha", 2},
		{"line_style", "zigzag"},
		{"line_style", 9},
		{"yrange", "1"},
		{"marker", "star"},
		{"colormap", "jet"},
		{"thick", "abc"},
		{"no_such_option", 1},
	}

	for _, tt := range tests {
		o := Default()
		before := o.Clone()
		err := o.Set(tt.option, tt.value)
		if err == nil {
			t.Errorf("Set(%s, %v) expected error", tt.option, tt.value)
			continue
		}
		if !errors.Is(err, errors.ErrInvalidOption) {
			t.Errorf("Set(%s, %v) expected ErrInvalidOption, got %v", tt.option, tt.value, err)
		}
		if o.PanelSize != before.PanelSize || o.Alpha != before.Alpha || len(o.LineStyle) != 0 {
			t.Errorf("Set(%s, %v) modified options on failure", tt.option, tt.value)
		}
	}
}

func TestSetAllIsAtomic(t *testing.T) {
	o := Default()
	err := o.SetAll(map[string]interface{}{
		"ytitle":     "ok",
		"panel_size": 3,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if o.YTitle != "" {
		t.Errorf("expected no partial application, got ytitle=%q", o.YTitle)
	}
}

func TestPerTraceAccessors(t *testing.T) {
	o := Default()
	if _, ok := o.ColorAt(0); ok {
		t.Error("expected no color")
	}
	o.Color = []string{"red", "green"}
	if c, _ := o.ColorAt(1); c != "green" {
		t.Errorf("ColorAt(1)=%s", c)
	}
	if c, _ := o.ColorAt(5); c != "green" {
		t.Errorf("ColorAt(5) should repeat the last entry, got %s", c)
	}
	o.LegendNames = []string{"a"}
	if _, ok := o.LegendAt(1); ok {
		t.Error("legend names must not repeat")
	}
}

func TestResetForOverplot(t *testing.T) {
	o := Default()
	o.Color = []string{"red"}
	o.YLog = true
	o.PanelSize = 0.3
	o.Title = "keep"
	o.ResetForOverplot()

	if len(o.Color) != 0 || o.YLog || o.PanelSize != 1 {
		t.Errorf("expected reset options, got %+v", o)
	}
	if o.Title != "keep" {
		t.Errorf("expected title kept, got %q", o.Title)
	}
}

func TestGlobalXlimTlimit(t *testing.T) {
	g := DefaultGlobal()
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := g.Xlim(t0.Add(time.Hour), t0); !errors.Is(err, errors.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	if err := g.Xlim(t0, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := g.Xlim(t0, t0.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if g.XRange.Duration() != 10*time.Minute {
		t.Errorf("expected 10m range, got %v", g.XRange.Duration())
	}
	if g.XRangeFull.Duration() != time.Hour {
		t.Errorf("expected full range 1h, got %v", g.XRangeFull.Duration())
	}

	if err := g.Tlimit("last"); err != nil {
		t.Fatal(err)
	}
	if g.XRange.Duration() != time.Hour {
		t.Errorf("expected last range 1h, got %v", g.XRange.Duration())
	}

	if err := g.Tlimit("full"); err != nil {
		t.Fatal(err)
	}
	if g.XRange != nil {
		t.Error("expected nil range after tlimit full")
	}

	if err := g.Tlimit("sideways"); err == nil {
		t.Error("expected error for unknown tlimit")
	}
}

func TestGlobalSet(t *testing.T) {
	g := DefaultGlobal()
	if err := g.Set("window_size", "1024,768"); err != nil {
		t.Fatal(err)
	}
	if g.WindowSize[0] != 1024 {
		t.Errorf("expected width 1024, got %v", g.WindowSize)
	}
	if err := g.Set("x_range", []string{"2020-01-01", "2020-01-02"}); err != nil {
		t.Fatal(err)
	}
	if g.XRange == nil || g.XRange.Duration() != 24*time.Hour {
		t.Errorf("unexpected x range %+v", g.XRange)
	}
	if err := g.Set("timestamp", true); err != nil || g.Timestamp == "" {
		t.Errorf("expected timestamp set, err=%v", err)
	}
	if err := g.Set("xmargin", 0.7); err == nil {
		t.Error("expected xmargin out of range")
	}
	if err := g.Set("window_size", "10"); err == nil {
		t.Error("expected window_size length error")
	}
}

func TestParseFile(t *testing.T) {
	t.Setenv("TPLOT_TEST_TITLE", "From env")
	f, err := ParseFile([]byte(`
global:
  title: ${TPLOT_TEST_TITLE}
  window_size: [640, 480]
variables:
  B_gse:
    yrange: [-10, 10]
    color: [red, green, blue]
`))
	if err != nil {
		t.Fatal(err)
	}

	g := DefaultGlobal()
	if err := f.ApplyGlobal(&g); err != nil {
		t.Fatal(err)
	}
	if g.Title != "From env" || g.WindowSize[1] != 480 {
		t.Errorf("unexpected global %+v", g)
	}

	o := Default()
	if err := o.SetAll(f.Variables["B_gse"]); err != nil {
		t.Fatal(err)
	}
	if len(o.Color) != 3 || o.YRange[0] != -10 {
		t.Errorf("unexpected options %+v", o)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	o := Default()
	o.Color = []string{"red"}
	o.YRange = []float64{1, 2}
	s, err := Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalOptions(s)
	if err != nil {
		t.Fatal(err)
	}
	if back.Color[0] != "red" || back.YRange[1] != 2 || back.PanelSize != 1 {
		t.Errorf("unexpected options after round trip: %+v", back)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	for _, in := range []string{"2021-03-04T05:06:07Z", "2021-03-04 05:06:07", "1614834367"} {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("ParseTime(%q) error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, expected %v", in, got, want)
		}
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error")
	}
}
