package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/plot"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/registry"
	tptest "github.com/xtxerr/tplot/internal/testing"
	"github.com/xtxerr/tplot/internal/tvar"
)

var t0 = time.Date(2016, 11, 1, 0, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	n := 50
	times := make([]time.Time, n)
	line := make([][]float64, n)
	spec := make([][]float64, n)
	for i := range times {
		times[i] = t0.Add(time.Duration(i) * time.Minute)
		x := float64(i) / 5
		line[i] = []float64{math.Sin(x), math.Cos(x)}
		spec[i] = []float64{1 + x, 2 + x, 3 + x, 4 + x}
	}
	line[10][0] = math.NaN()

	if err := reg.Store("line", tvar.Data{Times: times, Values: line}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Store("spec", tvar.Data{Times: times, Values: spec, Bins: []float64{10, 20, 40, 80}}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetOptions([]string{"spec"}, map[string]interface{}{"spec": true, "zlog": true, "ylog": true}); err != nil {
		t.Fatal(err)
	}
	if err := reg.StorePseudo("both", "line", "spec"); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestPlotUnknownVariable(t *testing.T) {
	r := New(testRegistry(t))
	var buf bytes.Buffer
	_, err := r.Plot(context.Background(), []string{"line", "ghost"}, Request{Writer: &buf})
	if !errors.Is(err, errors.ErrVariableNotFound) {
		t.Errorf("expected ErrVariableNotFound, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing must be rendered when a name is unknown")
	}
}

func TestPlotPNG(t *testing.T) {
	reg := testRegistry(t)
	_ = reg.SetGlobal("title", "overview")
	reg.Timestamp(true)
	_ = reg.SetOption([]string{"line"}, "color", "red,#00f")
	_ = reg.SetOption([]string{"line"}, "legend_names", "sin,cos")

	var buf bytes.Buffer
	if _, err := New(reg).Plot(context.Background(), []string{"line", "spec", "both"}, Request{Writer: &buf}); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Errorf("expected PNG output, got %d bytes", buf.Len())
	}
}

func TestPlotFormats(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		format string
		magic  string
	}{
		{"svg", "<?xml"},
		{"pdf", "%PDF"},
		{"jpeg", "\xff\xd8"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := New(reg).Plot(context.Background(), []string{"line"}, Request{Writer: &buf, Format: tt.format})
			if err != nil {
				t.Fatalf("Plot failed: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte(tt.magic)) {
				t.Errorf("expected %q header, got %q", tt.magic, buf.Bytes()[:8])
			}
		})
	}

	var buf bytes.Buffer
	_, err := New(reg).Plot(context.Background(), []string{"line"}, Request{Writer: &buf, Format: "bmp"})
	if !errors.Is(err, errors.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPlotFiles(t *testing.T) {
	reg := testRegistry(t)
	_ = reg.Xlim(t0.Add(10*time.Minute), t0.Add(20*time.Minute))

	dir := t.TempDir()
	outputs := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "sub", "b.svg"),
		filepath.Join(dir, "c"),
	}
	paths, err := New(reg).Plot(context.Background(), []string{"l*", "spec"}, Request{Outputs: outputs})
	if err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	if paths[2] != filepath.Join(dir, "c.png") {
		t.Errorf("expected default extension, got %s", paths[2])
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			t.Errorf("missing output %s: %v", p, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("empty output %s", p)
		}
	}
}

func TestPlotAllNaNSpectrogram(t *testing.T) {
	reg := registry.New()
	times := []time.Time{t0, t0.Add(time.Second), t0.Add(2 * time.Second)}
	nan := math.NaN()
	values := [][]float64{{nan, nan}, {nan, nan}, {nan, nan}}
	if err := reg.Store("empty", tvar.Data{Times: times, Values: values, Bins: []float64{1, 2}}); err != nil {
		t.Fatal(err)
	}
	_ = reg.SetOption([]string{"empty"}, "spec", true)

	var buf bytes.Buffer
	if _, err := New(reg).Plot(context.Background(), []string{"empty"}, Request{Writer: &buf}); err != nil {
		t.Fatalf("all-NaN spectrogram must render: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected an image")
	}
}

func TestPlotWithoutOutput(t *testing.T) {
	paths, err := New(testRegistry(t)).Plot(context.Background(), []string{"both"}, Request{})
	if err != nil || len(paths) != 0 {
		t.Errorf("expected no paths and no error, got %v %v", paths, err)
	}
}

func TestPlotConcurrent(t *testing.T) {
	reg := registry.New()
	if err := reg.Store("wave", tptest.Wave(60)); err != nil {
		t.Fatal(err)
	}
	r := New(reg)

	gt := tptest.NewGoroutineTest(t, time.Minute)
	for i := 0; i < 4; i++ {
		i := i
		gt.Go(func(ctx context.Context) error {
			if i%2 == 0 {
				return reg.Store("ramp", tptest.Ramp(20+i, 2))
			}
			var buf bytes.Buffer
			if _, err := r.Plot(ctx, []string{"wave"}, Request{Writer: &buf, Format: "svg"}); err != nil {
				return err
			}
			if buf.Len() == 0 {
				return fmt.Errorf("plot %d: empty figure", i)
			}
			return nil
		})
	}
	gt.Wait()
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
		err  bool
	}{
		{"out.PNG", "png", false},
		{"out.jpeg", "jpg", false},
		{"out.tif", "tiff", false},
		{"out", "png", false},
		{"out.gif", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("FormatFromPath(%s) = %q, %v", tt.path, got, err)
		}
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"r", color.RGBA{R: 0xff, A: 0xff}},
		{"Red", color.RGBA{R: 0xff, A: 0xff}},
		{"#0000ff", color.RGBA{B: 0xff, A: 0xff}},
		{"#0f0", color.RGBA{G: 0xff, A: 0xff}},
	}
	for _, tt := range tests {
		c, err := ParseColor(tt.in)
		if err != nil {
			t.Errorf("ParseColor(%s): %v", tt.in, err)
			continue
		}
		r, g, b, a := c.RGBA()
		wr, wg, wb, wa := tt.want.RGBA()
		if r != wr || g != wg || b != wb || a != wa {
			t.Errorf("ParseColor(%s) = %v, expected %v", tt.in, c, tt.want)
		}
	}
	if _, err := ParseColor("octarine"); !errors.Is(err, errors.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

func TestSegments(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 10, 11}
	ys := []float64{1, 2, math.NaN(), 4, 5, -1}

	if got := len(segments(xs, ys, 0, false)); got != 2 {
		t.Errorf("expected NaN split into 2 runs, got %d", got)
	}
	if got := len(segments(xs, ys, 5, false)); got != 3 {
		t.Errorf("expected data gap split into 3 runs, got %d", got)
	}
	segs := segments(xs, ys, 5, true)
	if len(segs) != 3 || len(segs[2]) != 1 {
		t.Errorf("expected non-positive value dropped on log axis, got %v", segs)
	}
}

func TestTickers(t *testing.T) {
	ticks := unlabeled{plot.DefaultTicks{}}.Ticks(0, 10)
	for _, tk := range ticks {
		if tk.Label != "" {
			t.Fatalf("expected unlabeled ticks, got %q", tk.Label)
		}
	}

	major := majorTicks([]float64{0, 5, 10})
	all := withMinor{major: major, interval: 1}.Ticks(0, 10)
	if len(all) != 11 {
		t.Errorf("expected 3 major + 8 minor ticks, got %d", len(all))
	}
}

func TestPaletteFor(t *testing.T) {
	for _, name := range []string{"heat", "rainbow", "bluered", "kindlmann", "blackbody", ""} {
		if n := len(paletteFor(name, 16).Colors()); n != 16 {
			t.Errorf("palette %q: expected 16 colors, got %d", name, n)
		}
	}
}
