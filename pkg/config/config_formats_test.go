package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigTOML(t *testing.T) {
	cfg, err := LoadConfig("../../config.toml")
	require.NoError(t, err, "config.toml should load")

	assert.Equal(t, 4, cfg.Decoder.Threads)
	assert.Equal(t, 16, cfg.Pool.MaxBuffers)
	assert.Equal(t, 256, cfg.Cdef.WindowHeight)
	assert.Equal(t, 640, cfg.Stream.Width)
	assert.Equal(t, 360, cfg.Stream.Height)
	assert.Equal(t, []int{0, 9, 22, 45, 63}, cfg.Stream.YStrengths)
	assert.Equal(t, int64(42), cfg.Stream.Seed)
	assert.Equal(t, 10, cfg.Dump.Every)
	assert.Equal(t, "redis:6379", cfg.Dump.Redis.Address)
	assert.Equal(t, 5, cfg.Dump.Circuit.MaxFailures)
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, 2*time.Second, cfg.MemoryCheckInterval())
}

func TestConfigParity(t *testing.T) {
	content := `{
  "decoder": {"threads": 4},
  "pool": {"max_buffers": 16, "display_queue": 4},
  "cdef": {"window_height": 256},
  "stream": {"width": 640, "height": 360, "y_strengths": [0, 9, 22, 45, 63], "uv_strengths": [0, 4, 9, 18, 36], "seed": 42}
}`
	cfgJSON, err := LoadConfig(writeTemp(t, "config-*.json", content))
	require.NoError(t, err)
	cfgTOML, err := LoadConfig("../../config.toml")
	require.NoError(t, err)

	assert.Equal(t, cfgTOML.Decoder.Threads, cfgJSON.Decoder.Threads)
	assert.Equal(t, cfgTOML.Pool.MaxBuffers, cfgJSON.Pool.MaxBuffers)
	assert.Equal(t, cfgTOML.Cdef.WindowHeight, cfgJSON.Cdef.WindowHeight)
	assert.Equal(t, cfgTOML.Stream.Width, cfgJSON.Stream.Width)
	assert.Equal(t, cfgTOML.Stream.YStrengths, cfgJSON.Stream.YStrengths)
	assert.Equal(t, cfgTOML.Stream.Seed, cfgJSON.Stream.Seed)
}
