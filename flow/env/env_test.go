package env_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/aggregate"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/env"
	"github.com/lguimbarda/min-rx/flow/sched"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := env.Load(env.Flags("test"), nil)
	require.NoError(t, err)
	assert.Equal(t, env.LaneImmediate, cfg.Lane)
	assert.Equal(t, core.DefaultCapacity, cfg.Capacity)
	assert.Equal(t, sched.DefaultBacklog, cfg.Backlog)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_Layers(t *testing.T) {
	yamlFile := writeFile(t, "base.yaml", `
lane: serial
capacity: 64
batch:
  size: 10
  timeout: 250ms
log:
  level: warn
`)
	jsonFile := writeFile(t, "override.json", `{"capacity": 32, "log": {"format": "json"}}`)
	t.Setenv("MINRX_BATCH_SIZE", "20")
	t.Setenv("MINRX_LOG_LEVEL", "debug")

	cfg, err := env.Load(env.Flags("test"), []string{
		"--config", yamlFile, "--config", jsonFile,
		"--log.level", "error",
	})
	require.NoError(t, err)

	assert.Equal(t, env.LaneSerial, cfg.Lane, "from the yaml file")
	assert.Equal(t, 32, cfg.Capacity, "later files win")
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Timeout)
	assert.Equal(t, 20, cfg.Batch.Size, "environment beats files")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "error", cfg.Log.Level, "flags beat the environment")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"lane", []string{"--lane", "threads"}},
		{"capacity", []string{"--capacity=-1"}},
		{"log level", []string{"--log.level", "loud"}},
		{"log format", []string{"--log.format", "xml"}},
		{"file type", []string{"--config", "settings.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Load(env.Flags("test"), tt.args)
			assert.ErrorIs(t, err, env.ErrInvalidConfig)
		})
	}

	_, err := env.Load(env.Flags("test"), []string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := env.Logger(env.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	logger, err = env.Logger(env.LogConfig{Level: "info", Format: "console"}, &buf)
	require.NoError(t, err)
	logger.Info().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNew(t *testing.T) {
	cfg, err := env.Load(env.Flags("test"), []string{"--lane", "serial", "--capacity", "8", "--batch.size", "2"})
	require.NoError(t, err)

	rt, err := env.New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	assert.IsType(t, &sched.Serial{}, rt.Environment.Lane)
	assert.Equal(t, 8, rt.Environment.Capacity)

	ctx := rt.Context(context.Background())
	assert.Equal(t, 8, core.EnvironmentFrom(ctx).Capacity)
	got, err := core.Slice(ctx, aggregate.Buffer[int](0).Apply(flow.Range(0, 5)))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, got, "the batch size comes from the config")
}

func TestNew_Immediate(t *testing.T) {
	rt, err := env.New(context.Background(), env.Config{Lane: env.LaneImmediate, Log: env.LogConfig{Level: "info", Format: "json"}})
	require.NoError(t, err)
	assert.Equal(t, core.Immediate, rt.Environment.Lane)
	assert.NoError(t, rt.Close())

	_, err = env.New(context.Background(), env.Config{Lane: "nope"})
	assert.ErrorIs(t, err, env.ErrInvalidConfig)
}
