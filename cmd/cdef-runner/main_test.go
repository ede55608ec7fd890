package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T3-Labs/edge-av1/pkg/config"
	"github.com/T3-Labs/edge-av1/pkg/frame"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Stream.Width = 64
	cfg.Stream.Height = 64
	cfg.Stream.Frames = 2
	cfg.Dump.Enabled = true
	cfg.Dump.Directory = t.TempDir()
	return cfg
}

func TestRunDumpsFrames(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, run(cfg, "test"))

	entries, err := os.ReadDir(cfg.Dump.Directory)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunReturnsPipelineError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pool.MaxBuffers = 1

	err := run(cfg, "test")
	assert.ErrorIs(t, err, frame.ErrPoolExhausted)
}

func TestRunRejectsBadDumpDirectory(t *testing.T) {
	cfg := testConfig(t)
	blocker := cfg.Dump.Directory + "/file"
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Dump.Directory = blocker + "/dumps"

	assert.Error(t, run(cfg, "test"))
}
