// Package config loads filterbridge settings.
// Priority: environment (FILTERBRIDGE_*) > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/engine"
	"github.com/wippyai/filter-bridge/errors"
	"github.com/wippyai/filter-bridge/tile"
)

// EnvPrefix prefixes every environment override, e.g. FILTERBRIDGE_TILES_WORKERS.
const EnvPrefix = "FILTERBRIDGE"

// Config is the full application configuration.
type Config struct {
	Libraries LibrariesConfig `mapstructure:"libraries"`
	Buffer    BufferConfig    `mapstructure:"buffer"`
	Wasm      WasmConfig      `mapstructure:"wasm"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// LibrariesConfig controls the library manager.
type LibrariesConfig struct {
	// SearchPaths are tried for relative library paths.
	SearchPaths []string `mapstructure:"search_paths"`
	// Preload lists libraries loaded at startup.
	Preload []string `mapstructure:"preload"`
	// Self registers the host process under the self key at startup.
	Self bool `mapstructure:"self"`
}

// BufferConfig controls descriptor construction.
type BufferConfig struct {
	// AxisOrder is "channel_last" (x, y, c) or "channel_first" (c, x, y).
	AxisOrder string `mapstructure:"axis_order"`
}

// Order parses AxisOrder.
func (c BufferConfig) Order() (buffer.AxisOrder, error) {
	return buffer.ParseAxisOrder(c.AxisOrder)
}

// WasmConfig controls the portable filter engine.
type WasmConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages"`
	CacheDir         string `mapstructure:"cache_dir"`
	WASI             bool   `mapstructure:"wasi"`
	Threads          bool   `mapstructure:"threads"`
}

// EngineConfig converts to an engine configuration.
func (c WasmConfig) EngineConfig(log *zap.Logger) *engine.Config {
	return &engine.Config{
		Logger:           log,
		CacheDir:         c.CacheDir,
		MemoryLimitPages: c.MemoryLimitPages,
		EnableWASI:       c.WASI,
		EnableThreads:    c.Threads,
	}
}

// TilesConfig controls banded execution.
type TilesConfig struct {
	// Workers bounds concurrent bands. 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
	// Rows is the band height.
	Rows int `mapstructure:"rows"`
}

// Options converts to tile options for symbol.
func (c TilesConfig) Options(symbol string) tile.Options {
	return tile.Options{Symbol: symbol, Workers: c.Workers, Rows: c.Rows}
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is json or console.
	Format string `mapstructure:"format"`
	// File receives log output. Empty means stderr.
	File string `mapstructure:"file"`
}

// Build creates the logger described by c.
func (c LoggingConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.Level).
			Cause(err).
			Detail("logging.level").
			Build()
	}

	var zc zap.Config
	switch strings.ToLower(c.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console", "text":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.Format).
			Detail("logging.format must be json or console").
			Build()
	}

	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	if c.File != "" {
		zc.OutputPaths = []string{c.File}
	}
	return zc.Build()
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Buffer:  BufferConfig{AxisOrder: "channel_last"},
		Wasm:    WasmConfig{Enabled: true},
		Tiles:   TilesConfig{Rows: tile.RowsPerBand},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("libraries.search_paths", []string{})
	v.SetDefault("libraries.preload", []string{})
	v.SetDefault("libraries.self", d.Libraries.Self)
	v.SetDefault("buffer.axis_order", d.Buffer.AxisOrder)
	v.SetDefault("wasm.enabled", d.Wasm.Enabled)
	v.SetDefault("wasm.memory_limit_pages", d.Wasm.MemoryLimitPages)
	v.SetDefault("wasm.cache_dir", d.Wasm.CacheDir)
	v.SetDefault("wasm.wasi", d.Wasm.WASI)
	v.SetDefault("wasm.threads", d.Wasm.Threads)
	v.SetDefault("tiles.workers", d.Tiles.Workers)
	v.SetDefault("tiles.rows", d.Tiles.Rows)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// New returns a viper instance with defaults, environment binding and, when path
// is set, that config file. Without a path it searches ./filterbridge.yaml and
// $HOME/.filterbridge/config.yaml and tolerates their absence.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config "+path)
		}
		return v, nil
	}

	v.SetConfigName("filterbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".filterbridge"))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config")
		}
	}
	return v, nil
}

// Load reads the configuration. See New for the lookup rules.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	for i, p := range cfg.Libraries.SearchPaths {
		cfg.Libraries.SearchPaths[i] = expandPath(p)
	}
	cfg.Wasm.CacheDir = expandPath(cfg.Wasm.CacheDir)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed by the field types.
func (c *Config) Validate() error {
	if _, err := c.Buffer.Order(); err != nil {
		return err
	}
	if c.Tiles.Workers < 0 {
		return errors.OutOfBounds(errors.PhaseConfig, "tiles.workers must not be negative", c.Tiles.Workers)
	}
	if c.Tiles.Rows < 0 {
		return errors.OutOfBounds(errors.PhaseConfig, "tiles.rows must not be negative", c.Tiles.Rows)
	}
	return nil
}

func expandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func (c *Config) String() string {
	return fmt.Sprintf("libraries=%v buffer=%s wasm=%v tiles=%d/%d logging=%s/%s",
		c.Libraries.SearchPaths, c.Buffer.AxisOrder, c.Wasm.Enabled,
		c.Tiles.Workers, c.Tiles.Rows, c.Logging.Level, c.Logging.Format)
}
