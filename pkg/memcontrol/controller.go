// Package memcontrol tracks memory pressure against a budget and tells the
// decode loop how long to back off between frames.
package memcontrol

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

type MemoryLevel int

const (
	MemoryNormal MemoryLevel = iota
	MemoryWarning
	MemoryCritical
	MemoryEmergency
)

func (ml MemoryLevel) String() string {
	switch ml {
	case MemoryNormal:
		return "NORMAL"
	case MemoryWarning:
		return "WARNING"
	case MemoryCritical:
		return "CRITICAL"
	case MemoryEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Usage is one memory sample. FrameBytes is the pixel storage held by frame
// buffer pools; HeapBytes is the Go heap, which includes it.
type Usage struct {
	HeapBytes  uint64
	FrameBytes uint64
	NumGC      uint32
}

// Sampler reads current usage.
type Sampler func() Usage

// RuntimeSampler reads the Go heap. FrameBytes is left zero.
func RuntimeSampler() Usage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Usage{HeapBytes: ms.HeapAlloc, NumGC: ms.NumGC}
}

type MemoryStats struct {
	Usage
	UsagePercent float64
	Level        MemoryLevel
	Timestamp    time.Time
}

type ThresholdConfig struct {
	MaxMemoryMB      uint64
	WarningPercent   float64
	CriticalPercent  float64
	EmergencyPercent float64
	CheckInterval    time.Duration
}

// Controller classifies samples into levels. Level changes are logged,
// published as a gauge and reported to registered callbacks.
type Controller struct {
	mu        sync.RWMutex
	config    ThresholdConfig
	sample    Sampler
	log       *zap.SugaredLogger
	level     MemoryLevel
	stats     MemoryStats
	callbacks map[MemoryLevel][]func(MemoryStats)
	lastGC    time.Time
}

// NewController budgets maxMemoryMB, or three quarters of the memory the
// runtime has obtained from the OS (at least 512 MB) when zero.
func NewController(maxMemoryMB uint64, sample Sampler) *Controller {
	if maxMemoryMB == 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		maxMemoryMB = max(uint64(float64(ms.Sys>>20)*0.75), 512)
	}
	if sample == nil {
		sample = RuntimeSampler
	}

	c := &Controller{
		config: ThresholdConfig{
			MaxMemoryMB:      maxMemoryMB,
			WarningPercent:   60.0,
			CriticalPercent:  75.0,
			EmergencyPercent: 85.0,
			CheckInterval:    2 * time.Second,
		},
		sample:    sample,
		log:       logger.L().With("component", "memcontrol"),
		callbacks: make(map[MemoryLevel][]func(MemoryStats)),
	}
	metrics.MemoryLevel.Set(float64(MemoryNormal))
	c.log.Infow("Memory controller ready",
		"max_memory_mb", maxMemoryMB,
		"warning_percent", c.config.WarningPercent,
		"critical_percent", c.config.CriticalPercent,
		"emergency_percent", c.config.EmergencyPercent)
	return c
}

// Run samples every CheckInterval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Config().CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check()
		}
	}
}

// Check takes one sample, updates the level and reacts to it.
func (c *Controller) Check() MemoryStats {
	usage := c.sample()

	c.mu.Lock()
	percent := float64(usage.HeapBytes>>20) / float64(c.config.MaxMemoryMB) * 100
	stats := MemoryStats{
		Usage:        usage,
		UsagePercent: percent,
		Level:        c.determineLevel(percent),
		Timestamp:    time.Now(),
	}
	c.stats = stats
	old := c.level
	c.level = stats.Level
	var notify []func(MemoryStats)
	if old != stats.Level {
		notify = append(notify, c.callbacks[stats.Level]...)
	}
	c.mu.Unlock()

	metrics.MemoryUsagePercent.Set(percent)
	metrics.MemoryHeapMB.Set(float64(usage.HeapBytes >> 20))
	metrics.MemoryFrameMB.Set(float64(usage.FrameBytes >> 20))
	if old != stats.Level {
		metrics.MemoryLevel.Set(float64(stats.Level))
		c.log.Warnw("Memory level changed",
			"old_level", old.String(),
			"new_level", stats.Level.String(),
			"usage_percent", percent,
			"heap_mb", usage.HeapBytes>>20,
			"frame_mb", usage.FrameBytes>>20)
		for _, cb := range notify {
			cb(stats)
		}
	}
	if stats.Level >= MemoryCritical {
		c.reclaim(stats)
	}
	return stats
}

func (c *Controller) determineLevel(usagePercent float64) MemoryLevel {
	switch {
	case usagePercent >= c.config.EmergencyPercent:
		return MemoryEmergency
	case usagePercent >= c.config.CriticalPercent:
		return MemoryCritical
	case usagePercent >= c.config.WarningPercent:
		return MemoryWarning
	default:
		return MemoryNormal
	}
}

// reclaim returns freed memory to the OS at most every five seconds.
func (c *Controller) reclaim(stats MemoryStats) {
	c.mu.Lock()
	if time.Since(c.lastGC) < 5*time.Second {
		c.mu.Unlock()
		return
	}
	c.lastGC = time.Now()
	c.mu.Unlock()

	start := time.Now()
	debug.FreeOSMemory()
	metrics.MemoryReclaims.Inc()
	c.log.Infow("Memory reclaimed",
		"level", stats.Level.String(),
		"heap_mb", stats.HeapBytes>>20,
		"duration", time.Since(start))
}

func (c *Controller) Stats() MemoryStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Controller) Level() MemoryLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// ThrottleDelay is how long the decoder should wait before starting the next
// frame at the current level.
func (c *Controller) ThrottleDelay() time.Duration {
	switch c.Level() {
	case MemoryWarning:
		return 10 * time.Millisecond
	case MemoryCritical:
		return 100 * time.Millisecond
	case MemoryEmergency:
		return 500 * time.Millisecond
	default:
		return 0
	}
}

// RegisterCallback runs cb on the checking goroutine whenever the level
// changes to level.
func (c *Controller) RegisterCallback(level MemoryLevel, cb func(MemoryStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[level] = append(c.callbacks[level], cb)
}

func (c *Controller) Config() ThresholdConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *Controller) UpdateConfig(config ThresholdConfig) {
	c.mu.Lock()
	c.config = config
	c.mu.Unlock()
	c.log.Infow("Memory thresholds updated",
		"max_memory_mb", config.MaxMemoryMB,
		"warning_percent", config.WarningPercent,
		"critical_percent", config.CriticalPercent,
		"emergency_percent", config.EmergencyPercent)
}
