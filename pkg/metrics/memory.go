package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MemoryUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_av1_memory_usage_percent",
		Help: "Heap usage as a percentage of the memory budget",
	})

	MemoryHeapMB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_av1_memory_heap_mb",
		Help: "Go heap in megabytes",
	})

	MemoryFrameMB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_av1_memory_frame_mb",
		Help: "Frame buffer pixel storage in megabytes",
	})

	MemoryLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_av1_memory_level",
		Help: "Memory pressure level (0=normal, 1=warning, 2=critical, 3=emergency)",
	})

	MemoryReclaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_av1_memory_reclaims_total",
		Help: "Forced returns of freed memory to the OS",
	})

	DecodeThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_av1_decode_throttled_total",
		Help: "Frames delayed by memory pressure",
	})
)
