package memcontrol

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

// fakeSampler reports heapMB megabytes of heap.
type fakeSampler struct {
	heapMB atomic.Uint64
}

func (f *fakeSampler) sample() Usage {
	return Usage{HeapBytes: f.heapMB.Load() << 20, FrameBytes: 1 << 20}
}

func TestNewController(t *testing.T) {
	c := NewController(1024, nil)

	cfg := c.Config()
	assert.Equal(t, uint64(1024), cfg.MaxMemoryMB)
	assert.Equal(t, 60.0, cfg.WarningPercent)
	assert.Equal(t, MemoryNormal, c.Level())
}

func TestNewControllerAutoBudget(t *testing.T) {
	c := NewController(0, nil)
	assert.GreaterOrEqual(t, c.Config().MaxMemoryMB, uint64(512))
}

func TestMemoryLevelString(t *testing.T) {
	assert.Equal(t, "NORMAL", MemoryNormal.String())
	assert.Equal(t, "WARNING", MemoryWarning.String())
	assert.Equal(t, "CRITICAL", MemoryCritical.String())
	assert.Equal(t, "EMERGENCY", MemoryEmergency.String())
	assert.Equal(t, "UNKNOWN", MemoryLevel(7).String())
}

func TestDetermineLevel(t *testing.T) {
	c := NewController(1024, nil)

	tests := []struct {
		percent  float64
		expected MemoryLevel
	}{
		{50.0, MemoryNormal},
		{59.9, MemoryNormal},
		{60.0, MemoryWarning},
		{74.9, MemoryWarning},
		{75.0, MemoryCritical},
		{84.9, MemoryCritical},
		{85.0, MemoryEmergency},
		{95.0, MemoryEmergency},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, c.determineLevel(tt.percent), "%.1f%%", tt.percent)
	}
}

func TestCheckTracksLevelAndDelay(t *testing.T) {
	f := &fakeSampler{}
	c := NewController(100, f.sample)

	tests := []struct {
		heapMB uint64
		level  MemoryLevel
		delay  time.Duration
	}{
		{10, MemoryNormal, 0},
		{65, MemoryWarning, 10 * time.Millisecond},
		{80, MemoryCritical, 100 * time.Millisecond},
		{90, MemoryEmergency, 500 * time.Millisecond},
		{20, MemoryNormal, 0},
	}
	for _, tt := range tests {
		f.heapMB.Store(tt.heapMB)
		stats := c.Check()
		assert.Equal(t, tt.level, stats.Level, "%d MB", tt.heapMB)
		assert.Equal(t, tt.level, c.Level())
		assert.Equal(t, tt.delay, c.ThrottleDelay())
		assert.Equal(t, float64(tt.level), testutil.ToFloat64(metrics.MemoryLevel))
	}
	assert.Equal(t, uint64(1<<20), c.Stats().FrameBytes)
}

func TestCallbacksFireOnLevelChange(t *testing.T) {
	f := &fakeSampler{}
	c := NewController(100, f.sample)

	var critical int
	c.RegisterCallback(MemoryCritical, func(s MemoryStats) {
		critical++
		assert.Equal(t, MemoryCritical, s.Level)
	})

	f.heapMB.Store(80)
	c.Check()
	c.Check()
	assert.Equal(t, 1, critical, "callbacks fire only on a change")

	f.heapMB.Store(10)
	c.Check()
	f.heapMB.Store(80)
	c.Check()
	assert.Equal(t, 2, critical)
}

func TestRunSamplesUntilCancelled(t *testing.T) {
	f := &fakeSampler{}
	f.heapMB.Store(70)
	c := NewController(100, f.sample)
	c.UpdateConfig(ThresholdConfig{
		MaxMemoryMB:      100,
		WarningPercent:   60,
		CriticalPercent:  75,
		EmergencyPercent: 85,
		CheckInterval:    5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Level() == MemoryWarning }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
