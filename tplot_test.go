package tplot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	tptest "github.com/xtxerr/tplot/internal/testing"
)

func sampleTimes(n int) []time.Time { return tptest.Times(n, time.Minute) }

func TestWorkspace_StoreGet(t *testing.T) {
	ws := New()
	times := sampleTimes(3)

	if err := ws.StoreSeries("v", times, []float64{1, 2, 3}, []float64{4, 5, 6}); err != nil {
		t.Fatalf("StoreSeries failed: %v", err)
	}
	d, err := ws.Get("v")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(d.Times) != 3 || len(d.Values[0]) != 2 {
		t.Fatalf("expected 3x2 data, got %dx%d", len(d.Times), len(d.Values[0]))
	}
	if d.Values[2][1] != 6 {
		t.Errorf("expected 6, got %v", d.Values[2][1])
	}

	// Last write wins.
	if err := ws.StoreSeries("v", times, []float64{7, 8, 9}); err != nil {
		t.Fatalf("StoreSeries failed: %v", err)
	}
	d, _ = ws.Get("v")
	if len(d.Values[0]) != 1 || d.Values[0][0] != 7 {
		t.Errorf("expected the second store to replace the first, got %v", d.Values)
	}
}

func TestWorkspace_Errors(t *testing.T) {
	ws := New()

	if err := ws.StoreSeries("v", sampleTimes(3), []float64{1, 2}); !errors.Is(err, errors.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := ws.Get("missing"); !errors.Is(err, errors.ErrVariableNotFound) {
		t.Errorf("expected ErrVariableNotFound, got %v", err)
	}
	if _, err := ws.Plot(context.Background(), []string{"missing"}); !errors.Is(err, errors.ErrVariableNotFound) {
		t.Errorf("expected ErrVariableNotFound from Plot, got %v", err)
	}
}

func TestWorkspace_Plot(t *testing.T) {
	ws := New()
	if err := ws.StoreSeries("v", sampleTimes(10), []float64{1, 3, 2, 5, 4, 6, 5, 8, 7, 9}); err != nil {
		t.Fatal(err)
	}
	if err := ws.SetOptions([]string{"v"}, map[string]interface{}{"ytitle": "counts"}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "fig.svg")
	paths, err := ws.Plot(context.Background(), []string{"v"}, path)
	if err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != path {
		t.Fatalf("expected [%s], got %v", path, paths)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("expected a non-empty figure")
	}

	var buf bytes.Buffer
	if _, err := ws.PlotWith(context.Background(), []string{"v"}, PlotRequest{Writer: &buf, Format: "png"}); err != nil {
		t.Fatalf("PlotWith failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("expected a PNG image")
	}
}

func TestWorkspace_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	ws := New()
	if err := ws.StoreSeries("a", sampleTimes(4), []float64{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := ws.StoreSeries("b", sampleTimes(4), []float64{10, 20, 30, 40}); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Arith(OpAdd, "a", "b", "sum"); err != nil {
		t.Fatal(err)
	}
	if err := ws.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	other := New()
	if err := other.Load(dir); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	names := other.Names()
	if len(names) != 3 || names[2] != "sum" {
		t.Fatalf("expected [a b sum], got %v", names)
	}
	d, err := other.Get("sum")
	if err != nil {
		t.Fatal(err)
	}
	if d.Values[3][0] != 44 {
		t.Errorf("expected 44, got %v", d.Values[3][0])
	}
}

func TestDefaultWorkspace(t *testing.T) {
	defer Default().Delete()

	if err := Store("x", Data{Times: sampleTimes(2), Values: [][]float64{{1}, {2}}}); err != nil {
		t.Fatal(err)
	}
	d, err := Get("x")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Times) != 2 {
		t.Errorf("expected 2 samples, got %d", len(d.Times))
	}
	if _, err := Plot(context.Background(), []string{"x"}); err != nil {
		t.Errorf("Plot failed: %v", err)
	}
}
