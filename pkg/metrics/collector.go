package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PoolBuffers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_av1_pool_buffers",
			Help: "Frame buffers tracked by the pool",
		},
		[]string{"pool"},
	)

	PoolBuffersInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_av1_pool_buffers_in_use",
			Help: "Frame buffers currently handed out",
		},
		[]string{"pool"},
	)

	PoolAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_av1_pool_acquisitions_total",
			Help: "GetFreeBuffer calls by outcome (reused, grown, exhausted)",
		},
		[]string{"pool", "result"},
	)

	PoolReallocs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_av1_pool_reallocs_total",
			Help: "Pixel storage allocations through the allocator callback",
		},
		[]string{"pool", "status"},
	)

	PoolReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_av1_pool_releases_total",
			Help: "Allocator release callbacks issued",
		},
		[]string{"pool"},
	)

	PoolAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_av1_pool_aborts_total",
			Help: "Abort sweeps over in-use buffers",
		},
		[]string{"pool"},
	)

	AllocatorBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_av1_internal_allocator_bytes",
			Help: "Bytes held by the internal frame buffer allocator",
		},
		[]string{"pool"},
	)

	CdefPassLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_av1_cdef_pass_seconds",
			Help:    "Duration of a CDEF pass over one frame",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"mode"},
	)

	CdefBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_av1_cdef_blocks_total",
			Help: "8x8 CDEF blocks by outcome (skipped, zero_strength, filtered)",
		},
		[]string{"outcome"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_av1_worker_pool_queue_size",
			Help: "Current worker pool queue length",
		},
		[]string{"pool_name"},
	)

	WorkerPoolProcessing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_av1_worker_pool_processing",
			Help: "Jobs currently running",
		},
		[]string{"pool_name"},
	)

	DisplayQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_av1_display_queue_size",
		Help: "Finished frames waiting for display",
	})

	FramesDumped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_av1_frames_dumped_total",
			Help: "Frame dumps written by sink",
		},
		[]string{"sink", "status"},
	)

	DumpSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_av1_dump_size_bytes",
		Help:    "Compressed frame dump size",
		Buckets: []float64{1024, 5120, 10240, 51200, 102400, 512000, 1048576, 4194304},
	})

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_av1_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker_name"},
	)
)
