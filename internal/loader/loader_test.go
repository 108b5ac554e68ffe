package loader

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/source"
	"github.com/xtxerr/tplot/internal/storage/parquet"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TPLOT_TEST_DIR", "/data/sessions")
	path := writeFile(t, dir, "tplot.yaml", `
log:
  level: debug
  format: json
session:
  dir: ${TPLOT_TEST_DIR}
  compression: snappy
figure:
  window_size: [1024, 768]
  dpi: 150
  xmargin: 0
query:
  timeout: 5s
  threads: 4
snmp:
  community: public
  interval_ms: 250
include:
  - "opts/*.yaml"
`)
	if err := os.MkdirAll(filepath.Join(dir, "opts"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "opts"), "a.yaml", "global:\n  title: A\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Session.Dir != "/data/sessions" {
		t.Errorf("expected env expansion, got %q", cfg.Session.Dir)
	}
	if level, json := cfg.Logging(); level != slog.LevelDebug || !json {
		t.Errorf("expected debug/json, got %v/%v", level, json)
	}
	if cfg.ParquetOptions().Compression != parquet.CompressionSnappy {
		t.Errorf("expected snappy, got %v", cfg.ParquetOptions().Compression)
	}
	if qc := cfg.QueryConfig(); qc.Timeout != 5*time.Second || qc.Threads != 4 {
		t.Errorf("unexpected query config: %+v", qc)
	}
	g := cfg.Global()
	if g.WindowSize[0] != 1024 || g.DPI != 150 || g.XMargin != 0 {
		t.Errorf("unexpected figure defaults: %+v", g)
	}

	files, err := cfg.LoadOptionsFiles()
	if err != nil {
		t.Fatalf("LoadOptionsFiles: %v", err)
	}
	if len(files) != 1 || files[0].Global["title"] != "A" {
		t.Errorf("unexpected options files: %+v", files)
	}

	sc := source.SNMPConfig{Host: "h", OID: "1.3"}
	cfg.SNMPDefaults(&sc)
	if sc.Community != "public" || sc.Interval != 250*time.Millisecond {
		t.Errorf("unexpected SNMP defaults: %+v", sc)
	}
}

func TestLoadOrDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvConfig, "")

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Session.Dir != ".tplot" {
		t.Errorf("expected default session dir, got %q", cfg.Session.Dir)
	}

	if _, err := LoadOrDefault("missing.yaml"); err == nil {
		t.Error("expected error for an explicit missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvSession, "/tmp/s")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Session.Dir != "/tmp/s" || cfg.Log.Level != "error" || cfg.Log.Format != "json" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "TPLOT_TEST_FROM_DOTENV=yes\n")
	t.Setenv("TPLOT_TEST_FROM_DOTENV", "")
	os.Unsetenv("TPLOT_TEST_FROM_DOTENV")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if os.Getenv("TPLOT_TEST_FROM_DOTENV") != "yes" {
		t.Error("expected variable from .env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"level", "log: {level: loud}"},
		{"format", "log: {format: xml}"},
		{"compression", "session: {compression: brotli}"},
		{"window", "figure: {window_size: [100]}"},
		{"margin", "figure: {xmargin: 0.7}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if err := Validate(cfg); !errors.IsValidation(err) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}

	if _, err := Parse([]byte("log: [")); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.Session.Dir = ""
	if err := Validate(cfg); !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("expected ErrMissingField for an empty session dir, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"query: {timeout: 2m}": 2 * time.Minute,
		"query: {timeout: 45}": 45 * time.Second,
	} {
		cfg, err := Parse([]byte(in))
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if cfg.Query.Timeout.Std() != want {
			t.Errorf("%q: expected %v, got %v", in, want, cfg.Query.Timeout.Std())
		}
	}
}
