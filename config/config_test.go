package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/errors"
	"github.com/wippyai/filter-bridge/tile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filterbridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Buffer.AxisOrder != "channel_last" {
		t.Errorf("Expected channel_last, got %q", cfg.Buffer.AxisOrder)
	}
	if !cfg.Wasm.Enabled {
		t.Error("Expected wasm enabled by default")
	}
	if cfg.Tiles.Rows != tile.RowsPerBand {
		t.Errorf("Expected %d rows per band, got %d", tile.RowsPerBand, cfg.Tiles.Rows)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
libraries:
  search_paths: [/opt/filters, ./lib]
  preload: [blur.so]
  self: true
buffer:
  axis_order: channel_first
wasm:
  memory_limit_pages: 256
  wasi: true
  threads: true
tiles:
  workers: 4
  rows: 32
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Libraries.SearchPaths) != 2 || cfg.Libraries.SearchPaths[0] != "/opt/filters" {
		t.Errorf("Unexpected search paths %v", cfg.Libraries.SearchPaths)
	}
	if len(cfg.Libraries.Preload) != 1 || cfg.Libraries.Preload[0] != "blur.so" {
		t.Errorf("Unexpected preload %v", cfg.Libraries.Preload)
	}
	if !cfg.Libraries.Self {
		t.Error("Expected self to be set")
	}
	order, err := cfg.Buffer.Order()
	if err != nil || order != buffer.ChannelFirst {
		t.Errorf("Expected channel_first, got %v (%v)", order, err)
	}
	if !cfg.Wasm.Enabled {
		t.Error("Expected wasm enabled from defaults")
	}
	if cfg.Wasm.MemoryLimitPages != 256 || !cfg.Wasm.WASI || !cfg.Wasm.Threads {
		t.Errorf("Unexpected wasm config %+v", cfg.Wasm)
	}

	opts := cfg.Tiles.Options("blur")
	if opts.Symbol != "blur" || opts.Workers != 4 || opts.Rows != 32 {
		t.Errorf("Unexpected tile options %+v", opts)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "tiles:\n  workers: 4\n")
	t.Setenv("FILTERBRIDGE_TILES_WORKERS", "9")
	t.Setenv("FILTERBRIDGE_BUFFER_AXIS_ORDER", "cxy")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tiles.Workers != 9 {
		t.Errorf("Expected env to override workers to 9, got %d", cfg.Tiles.Workers)
	}
	if order, _ := cfg.Buffer.Order(); order != buffer.ChannelFirst {
		t.Errorf("Expected channel_first from env, got %v", order)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without a config file should use defaults: %v", err)
	}
	if cfg.Tiles.Rows != tile.RowsPerBand {
		t.Errorf("Expected default rows, got %d", cfg.Tiles.Rows)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		kind errors.Kind
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			kind: errors.KindNotFound,
		},
		{
			name: "bad axis order",
			path: func(t *testing.T) string { return writeConfig(t, "buffer:\n  axis_order: diagonal\n") },
			kind: errors.KindInvalidInput,
		},
		{
			name: "negative workers",
			path: func(t *testing.T) string { return writeConfig(t, "tiles:\n  workers: -1\n") },
			kind: errors.KindOutOfBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: tt.kind}) {
				t.Errorf("Expected config %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := expandPath("~/filters"); got != filepath.Join(home, "filters") {
		t.Errorf("Expected home expansion, got %q", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("Expected absolute path unchanged, got %q", got)
	}
}

func TestLoggingBuild(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bridge.log")
	log, err := LoggingConfig{Level: "info", Format: "json", File: logFile}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	log.Info("library loaded")
	_ = log.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("Expected log output in file")
	}

	tests := []struct {
		name string
		cfg  LoggingConfig
	}{
		{"bad level", LoggingConfig{Level: "loud"}},
		{"bad format", LoggingConfig{Level: "info", Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Build()
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
				t.Errorf("Expected invalid_input, got %v", err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	w := WasmConfig{MemoryLimitPages: 64, CacheDir: "/tmp/cache", WASI: true, Threads: true}
	ec := w.EngineConfig(nil)
	if ec.MemoryLimitPages != 64 || ec.CacheDir != "/tmp/cache" || !ec.EnableWASI || !ec.EnableThreads {
		t.Errorf("Unexpected engine config %+v", ec)
	}
}
