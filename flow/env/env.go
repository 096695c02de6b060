// Package env builds the process-level runtime of a pipeline application
// from configuration: the lane and timer of the core.Environment, the
// operator capacity, the default batch settings and the logger.
//
// Configuration is layered with koanf, later sources overriding earlier
// ones: built-in defaults, config files (YAML or JSON), MINRX_ environment
// variables and command-line flags.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	kenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/lguimbarda/min-rx/flow/aggregate"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/sched"
	"github.com/lguimbarda/min-rx/flow/timing"
)

// EnvPrefix is the prefix of environment variables read by Load.
// MINRX_LOG_LEVEL sets log.level.
const EnvPrefix = "MINRX_"

// Lane kinds.
const (
	LaneImmediate = "immediate"
	LaneSerial    = "serial"
	LanePool      = "pool"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("env: invalid config")

// Config is the process-level configuration.
type Config struct {
	Lane     string      `koanf:"lane"`
	Workers  int         `koanf:"workers"`
	Backlog  int         `koanf:"backlog"`
	Capacity int         `koanf:"capacity"`
	Batch    BatchConfig `koanf:"batch"`
	Log      LogConfig   `koanf:"log"`
}

// BatchConfig holds the defaults of the aggregate and timing operators.
type BatchConfig struct {
	Size       int           `koanf:"size"`
	Timeout    time.Duration `koanf:"timeout"`
	BufferSize int           `koanf:"buffer"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console or json
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"lane":          LaneImmediate,
		"workers":       0,
		"backlog":       sched.DefaultBacklog,
		"capacity":      core.DefaultCapacity,
		"batch.size":    0,
		"batch.timeout": "0s",
		"batch.buffer":  0,
		"log.level":     "info",
		"log.format":    "console",
	}
}

// Flags declares the command-line flags Load understands on a new flag set.
func Flags(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.StringSlice("config", nil, "path to one or more config files (merged in order)")
	f.String("lane", LaneImmediate, "lane running deferred work: immediate, serial or pool")
	f.Int("workers", 0, "pool lane workers, 0 for one per CPU")
	f.Int("backlog", sched.DefaultBacklog, "tasks a lane may queue")
	f.Int("capacity", core.DefaultCapacity, "values an operator may hold back")
	f.Int("batch.size", 0, "default batch size of aggregate operators")
	f.Duration("batch.timeout", 0, "default batch timeout of aggregate operators")
	f.Int("batch.buffer", 0, "default bound of overflow buffers")
	f.String("log.level", "info", "log level")
	f.String("log.format", "console", "log format: console or json")
	return f
}

// Load parses args with f and merges defaults, the files named by the
// config flag, MINRX_ environment variables and the flags set explicitly.
func Load(f *flag.FlagSet, args []string) (Config, error) {
	if err := f.Parse(args); err != nil {
		return Config{}, fmt.Errorf("env: parse flags: %w", err)
	}
	ko := koanf.New(".")
	if err := ko.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("env: load defaults: %w", err)
	}
	files, _ := f.GetStringSlice("config")
	for _, path := range files {
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := ko.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("env: read %s: %w", path, err)
		}
	}
	if err := ko.Load(kenv.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("env: read environment: %w", err)
	}
	if err := ko.Load(posflag.Provider(f, ".", ko), nil); err != nil {
		return Config{}, fmt.Errorf("env: read flags: %w", err)
	}

	var cfg Config
	if err := ko.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("env: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// envKey maps MINRX_BATCH_SIZE to batch.size.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file %q", ErrInvalidConfig, path)
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Lane {
	case LaneImmediate, LaneSerial, LanePool:
	default:
		return fmt.Errorf("%w: unknown lane %q", ErrInvalidConfig, c.Lane)
	}
	if c.Workers < 0 || c.Backlog < 0 || c.Capacity < 0 {
		return fmt.Errorf("%w: workers, backlog and capacity must not be negative", ErrInvalidConfig)
	}
	if c.Batch.Size < 0 || c.Batch.Timeout < 0 || c.Batch.BufferSize < 0 {
		return fmt.Errorf("%w: batch settings must not be negative", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Logger builds the logger described by cfg, writing to w.
func Logger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Runtime is what a configuration builds: an environment for operators,
// a logger and the default batch settings.
type Runtime struct {
	Environment core.Environment
	Logger      zerolog.Logger
	Aggregate   *aggregate.AggregateConfig
	Timing      *timing.TimingConfig

	lane io.Closer
}

// New builds the runtime for cfg. Lanes other than immediate start
// goroutines bound to ctx; Close stops them.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := Logger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		Environment: core.Environment{Timer: core.SystemTimer, Capacity: cfg.Capacity},
		Logger:      logger,
		Aggregate:   aggregate.NewConfig(aggregate.WithBatchSize(cfg.Batch.Size), aggregate.WithBatchTimeout(cfg.Batch.Timeout)),
		Timing:      &timing.TimingConfig{BufferSize: cfg.Batch.BufferSize},
	}
	laneCtx := logger.WithContext(ctx)
	switch cfg.Lane {
	case LaneSerial:
		lane := sched.NewSerial(laneCtx, cfg.Backlog)
		r.Environment.Lane, r.lane = lane, lane
	case LanePool:
		lane := sched.NewPool(laneCtx, cfg.Workers, cfg.Backlog)
		r.Environment.Lane, r.lane = lane, lane
	default:
		r.Environment.Lane = core.Immediate
	}
	logger.Debug().Str("lane", cfg.Lane).Int("capacity", cfg.Capacity).Msg("runtime ready")
	return r, nil
}

// Context attaches the logger, the environment and the operator defaults
// to ctx, ready to subscribe pipelines with.
func (r *Runtime) Context(ctx context.Context) context.Context {
	ctx = r.Logger.WithContext(ctx)
	ctx = core.WithEnvironment(ctx, r.Environment)
	ctx = core.WithConfig(ctx, r.Aggregate)
	return core.WithConfig(ctx, r.Timing)
}

// Close stops the lane, letting queued tasks finish.
func (r *Runtime) Close() error {
	if r.lane == nil {
		return nil
	}
	return r.lane.Close()
}
