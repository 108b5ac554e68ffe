package parquet

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/tvar"
)

var t0 = time.Date(2016, 11, 1, 0, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	times := []time.Time{t0, t0.Add(time.Second), t0.Add(2 * time.Second)}
	line := tvar.Data{
		Times:    times,
		Values:   [][]float64{{1, 10}, {math.NaN(), 20}, {3, 30}},
		Errors:   []float64{0.1, 0.2, 0.3},
		Metadata: map[string]interface{}{"units": "nT", "probe": 2},
	}
	if err := reg.Store("b_gse", line); err != nil {
		t.Fatal(err)
	}
	spec := tvar.Data{
		Times:  times,
		Values: [][]float64{{1, 2}, {3, 4}, {5, 6}},
		Bins:   []float64{100, 200},
	}
	if err := reg.Store("spec", spec); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetOptions([]string{"spec"}, map[string]interface{}{"spec": true, "ytitle": "Energy"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.StorePseudo("both", "b_gse", "spec"); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetGlobal("title", "session test"); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		in      string
		want    CompressionType
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"Snappy", CompressionSnappy, false},
		{"zstd", CompressionZstd, false},
		{"lz4", CompressionLZ4, false},
		{"gzip", CompressionGzip, false},
		{"brotli", CompressionZstd, true},
	}
	for _, tt := range tests {
		got, err := ParseCompressionType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompressionType(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCompressionType(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestWriterAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "samples.parquet")

	w, err := NewWriter[SampleRow](path, DefaultOptions(), map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	rows := []SampleRow{
		{Name: "a", Row: 0, TimeNs: t0.UnixNano(), Value: 1},
		{Name: "a", Row: 1, TimeNs: t0.Add(time.Second).UnixNano(), Value: 2},
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file must not appear before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(rows); !errors.Is(err, errors.ErrWriteClosed) {
		t.Errorf("expected ErrWriteClosed, got %v", err)
	}
	if w.RowCount() != 2 {
		t.Errorf("expected 2 rows written, got %d", w.RowCount())
	}

	r, err := NewReader[SampleRow](path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if v, ok := r.Lookup("k"); !ok || v != "v" {
		t.Errorf("expected metadata k=v, got %q %v", v, ok)
	}
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 || got[1].Value != 2 || got[1].Error != nil {
		t.Errorf("unexpected rows: %+v", got)
	}

	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if info.NumRows != 2 || len(info.Columns) != 6 {
		t.Errorf("unexpected file info: %+v", info)
	}
}

func TestReaderChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.parquet")
	w, err := NewWriter[SampleRow](path, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rows := make([]SampleRow, 5)
	for i := range rows {
		rows[i] = SampleRow{Name: "a", Row: int32(i), TimeNs: t0.Add(time.Duration(i) * time.Second).UnixNano(), Value: float64(i)}
	}
	if err := w.Write(rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader[SampleRow](path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if r.NumRows() != 5 {
		t.Errorf("expected 5 rows, got %d", r.NumRows())
	}

	var got []SampleRow
	for {
		chunk, err := r.Read(2)
		got = append(got, chunk...)
		if err == io.EOF || len(chunk) == 0 {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if len(got) != 5 || got[4].Value != 4 {
		t.Errorf("expected 5 rows ending in 4, got %+v", got)
	}
}

func TestWriterAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.parquet")
	w, err := NewWriter[SampleRow](path, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Abort()
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("aborted writer must remove its temporary file")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for _, c := range []string{"none", "snappy", "zstd", "lz4", "gzip"} {
		t.Run(c, func(t *testing.T) {
			ct, _ := ParseCompressionType(c)
			opts := DefaultOptions()
			opts.Compression = ct

			dir := t.TempDir()
			reg := testRegistry(t)
			s := Open(dir, opts)
			saved, err := s.Save(reg)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if saved.Variables != 3 || saved.Samples != 12 {
				t.Errorf("expected 3 variables and 12 samples, got %+v", saved)
			}

			loaded := registry.New()
			info, err := Open(dir, opts).Load(loaded)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if info.ID != saved.ID {
				t.Errorf("expected session id %s, got %s", saved.ID, info.ID)
			}
			assertSameRegistry(t, reg, loaded)
		})
	}
}

func assertSameRegistry(t *testing.T, want, got *registry.Registry) {
	t.Helper()

	wn, gn := want.Names(), got.Names()
	if len(wn) != len(gn) {
		t.Fatalf("expected names %v, got %v", wn, gn)
	}
	for i := range wn {
		if wn[i] != gn[i] {
			t.Errorf("order: expected %v, got %v", wn, gn)
			break
		}
	}

	wd, _ := want.Get("b_gse")
	gd, err := got.Get("b_gse")
	if err != nil {
		t.Fatalf("Get b_gse: %v", err)
	}
	for i := range wd.Times {
		if !wd.Times[i].Equal(gd.Times[i]) {
			t.Errorf("time %d: expected %v, got %v", i, wd.Times[i], gd.Times[i])
		}
		for j := range wd.Values[i] {
			w, g := wd.Values[i][j], gd.Values[i][j]
			if w != g && !(math.IsNaN(w) && math.IsNaN(g)) {
				t.Errorf("value (%d,%d): expected %v, got %v", i, j, w, g)
			}
		}
		if wd.Errors[i] != gd.Errors[i] {
			t.Errorf("error %d: expected %v, got %v", i, wd.Errors[i], gd.Errors[i])
		}
	}
	if gd.Metadata["units"] != "nT" || gd.Metadata["probe"] != 2 {
		t.Errorf("metadata not restored: %v", gd.Metadata)
	}

	spec, err := got.Variable("spec")
	if err != nil {
		t.Fatalf("Variable spec: %v", err)
	}
	if !spec.Options.Spec || spec.Options.YTitle != "Energy" {
		t.Errorf("options not restored: %+v", spec.Options)
	}
	if len(spec.Bins) != 2 || spec.Bins[1] != 200 {
		t.Errorf("bins not restored: %v", spec.Bins)
	}

	both, err := got.Variable("both")
	if err != nil {
		t.Fatalf("Variable both: %v", err)
	}
	if !both.IsPseudo() || len(both.Components) != 2 || both.Components[1] != "spec" {
		t.Errorf("pseudo-variable not restored: %+v", both.Components)
	}

	if got.Global().Title != "session test" {
		t.Errorf("global options not restored: %q", got.Global().Title)
	}
}

func TestSessionKeepsID(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t)

	s := Open(dir, DefaultOptions())
	first, err := s.Save(reg)
	if err != nil {
		t.Fatal(err)
	}

	s2 := Open(dir, DefaultOptions())
	if _, err := s2.Load(registry.New()); err != nil {
		t.Fatal(err)
	}
	second, err := s2.Save(reg)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("expected session id to survive a reload, got %s then %s", first.ID, second.ID)
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "none"), DefaultOptions())
	if s.Exists() {
		t.Error("expected no session")
	}
	_, err := s.Load(registry.New())
	if !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRemoveSession(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, DefaultOptions())
	if _, err := s.Save(testRegistry(t)); err != nil {
		t.Fatal(err)
	}
	if !s.Exists() {
		t.Fatal("expected saved session")
	}
	if err := s.Remove(); err != nil {
		t.Fatal(err)
	}
	if s.Exists() {
		t.Error("expected session to be removed")
	}
}
