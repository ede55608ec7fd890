// Package runner drives a synthetic decode loop through the frame buffer
// pool, the CDEF filter, the display queue and the dump writer.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/T3-Labs/edge-av1/internal/dump"
	"github.com/T3-Labs/edge-av1/pkg/buffer"
	"github.com/T3-Labs/edge-av1/pkg/cdef"
	"github.com/T3-Labs/edge-av1/pkg/config"
	"github.com/T3-Labs/edge-av1/pkg/frame"
	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/memcontrol"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
	"github.com/T3-Labs/edge-av1/pkg/worker"
)

// keyFrameInterval spaces key frames in the synthetic stream.
const keyFrameInterval = 30

type Stats struct {
	Decoded     int64
	Displayed   int64
	Dropped     int64
	Dumped      int64
	DumpErrors  int64
	FilterTasks int64
	Throttled   int64
}

func (s Stats) String() string {
	return fmt.Sprintf("Decoded: %d, Displayed: %d, Dropped: %d, Dumped: %d (errors: %d), Row tasks: %d, Throttled: %d",
		s.Decoded, s.Displayed, s.Dropped, s.Dumped, s.DumpErrors, s.FilterTasks, s.Throttled)
}

// Runner owns one stream's decode resources. It is single use.
type Runner struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	pool    *frame.BufferPool
	workers *worker.Pool
	filter  *cdef.Filter
	queue   *buffer.DisplayQueue
	dumper  *dump.Writer
	memory  *memcontrol.Controller

	monochrome   bool
	subsamplingX int
	subsamplingY int
	rows4x4      int
	columns4x4   int
	params       cdef.Params
	index        *frame.Array2D[int8]
	skip         *cdef.SkipGrid
	synth        *synthesizer

	stats Stats
}

// New builds the pipeline described by cfg. dumper may be nil.
func New(ctx context.Context, cfg *config.Config, dumper *dump.Writer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := cfg.Stream
	monochrome, ssx, ssy, err := s.Format()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:          cfg,
		log:          logger.L().With("component", "runner"),
		pool:         frame.NewBufferPool(frame.Callbacks{}, cfg.Pool.MaxBuffers),
		queue:        buffer.NewDisplayQueue(cfg.Pool.DisplayQueue),
		dumper:       dumper,
		monochrome:   monochrome,
		subsamplingX: ssx,
		subsamplingY: ssy,
		rows4x4:      frame.AlignedSize(s.Height) >> 2,
		columns4x4:   frame.AlignedSize(s.Width) >> 2,
		params:       cdef.NewParams(s.Bitdepth, s.Damping, s.YStrengths, s.UVStrengths),
		index:        &frame.Array2D[int8]{},
		synth: &synthesizer{
			rng:      rand.New(rand.NewSource(s.Seed)),
			bitdepth: s.Bitdepth,
			skipPct:  s.SkipPercent,
			indices:  len(s.YStrengths),
		},
	}
	r.pool.SetStrideAlignment(cfg.Pool.StrideAlignment)
	if err := r.pool.OnFrameBufferSizeChanged(s.Bitdepth, frame.ComposeImageFormat(monochrome, ssx, ssy),
		s.Width, s.Height, frame.UniformBorders(cfg.Pool.Borders)); err != nil {
		r.pool.Close()
		return nil, err
	}
	if cfg.Memory.Enabled {
		r.memory = memcontrol.NewController(uint64(cfg.Memory.MaxMB), r.sampleMemory)
		thresholds := r.memory.Config()
		thresholds.CheckInterval = cfg.MemoryCheckInterval()
		r.memory.UpdateConfig(thresholds)
	}

	rows, columns := cdef.IndexGridSize(r.rows4x4, r.columns4x4)
	if err := r.index.Reset(rows, columns); err != nil {
		r.pool.Close()
		return nil, err
	}
	if r.skip, err = cdef.NewSkipGrid(r.rows4x4, r.columns4x4); err != nil {
		r.pool.Close()
		return nil, err
	}

	var scheduler cdef.Scheduler
	if cfg.Decoder.Threads > 0 && !cfg.Cdef.RowLag {
		r.workers = worker.NewPool(ctx, "cdef", cfg.Decoder.Threads, cfg.Decoder.QueueLength)
		scheduler = r.workers
	}
	r.filter, err = cdef.NewFilter(scheduler, cdef.Options{
		WindowWidth:  cfg.Cdef.WindowWidth,
		WindowHeight: cfg.Cdef.WindowHeight,
	})
	if err != nil {
		r.shutdownWorkers()
		r.pool.Close()
		return nil, err
	}
	return r, nil
}

// Run decodes cfg.Stream.Frames frames or stops early when ctx is cancelled.
// Every buffer is back in the pool when Run returns.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.display(ctx)
	}()

	r.log.Infow("Decode started",
		"frames", r.cfg.Stream.Frames,
		"width", r.cfg.Stream.Width,
		"height", r.cfg.Stream.Height,
		"bitdepth", r.cfg.Stream.Bitdepth,
		"subsampling", r.cfg.Stream.Subsampling,
		"cdef", r.cfg.Cdef.Enabled,
		"row_lag", r.cfg.Cdef.RowLag,
		"threaded", r.filter.Threaded())

	if r.memory != nil {
		memCtx, stopMemory := context.WithCancel(ctx)
		defer stopMemory()
		go r.memory.Run(memCtx)
	}

	var runErr error
	for seq := int64(0); seq < int64(r.cfg.Stream.Frames); seq++ {
		if err := r.throttle(ctx); err != nil {
			runErr = err
			break
		}
		handle, err := r.decodeFrame(seq)
		if err != nil {
			runErr = fmt.Errorf("frame %d: %w", seq, err)
			break
		}
		atomic.AddInt64(&r.stats.Decoded, 1)
		err = r.queue.Push(buffer.DisplayFrame{Handle: handle, Sequence: seq, Timestamp: time.Now()})
		if errors.Is(err, buffer.ErrFrameDropped) {
			atomic.AddInt64(&r.stats.Dropped, 1)
		}
	}

	// Wake the display side out of any progress wait before draining.
	if ctx.Err() != nil {
		r.pool.Abort()
	}
	r.queue.Close()
	wg.Wait()
	r.shutdownWorkers()
	r.pool.Close()

	stats := r.Stats()
	r.log.Infow("Decode finished",
		"stats", stats.String(),
		"queue", r.queue.Stats().String())
	return stats, runErr
}

func (r *Runner) Stats() Stats {
	return Stats{
		Decoded:     atomic.LoadInt64(&r.stats.Decoded),
		Displayed:   atomic.LoadInt64(&r.stats.Displayed),
		Dropped:     atomic.LoadInt64(&r.stats.Dropped),
		Dumped:      atomic.LoadInt64(&r.stats.Dumped),
		DumpErrors:  atomic.LoadInt64(&r.stats.DumpErrors),
		FilterTasks: atomic.LoadInt64(&r.stats.FilterTasks),
		Throttled:   atomic.LoadInt64(&r.stats.Throttled),
	}
}

// PoolStats exposes the frame buffer pool counters for monitoring.
func (r *Runner) PoolStats() frame.PoolStats {
	return r.pool.Stats()
}

func (r *Runner) WorkerStats() (worker.PoolStats, bool) {
	if r.workers == nil {
		return worker.PoolStats{}, false
	}
	return r.workers.Stats(), true
}

// throttle backs off while memory is under pressure.
func (r *Runner) throttle(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.memory == nil {
		return nil
	}
	delay := r.memory.ThrottleDelay()
	if delay == 0 {
		return nil
	}
	atomic.AddInt64(&r.stats.Throttled, 1)
	metrics.DecodeThrottled.Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) sampleMemory() memcontrol.Usage {
	usage := memcontrol.RuntimeSampler()
	usage.FrameBytes = uint64(r.pool.AllocatorBytes())
	return usage
}

func (r *Runner) shutdownWorkers() {
	if r.workers != nil {
		r.workers.Close()
	}
}

func (r *Runner) acquire(frameType frame.FrameType) (*frame.Handle, error) {
	s := r.cfg.Stream
	handle, err := r.pool.GetFreeBuffer()
	if err != nil {
		return nil, err
	}
	fb := handle.Buffer()
	err = fb.Realloc(s.Bitdepth, r.monochrome, s.Width, s.Height, r.subsamplingX, r.subsamplingY,
		frame.UniformBorders(r.cfg.Pool.Borders))
	if err == nil {
		err = fb.SetFrameDimensions(&frame.FrameHeader{
			FrameType:         frameType,
			UpscaledWidth:     s.Width,
			Width:             s.Width,
			Height:            s.Height,
			RenderWidth:       s.Width,
			RenderHeight:      s.Height,
			Rows4x4:           r.rows4x4,
			Columns4x4:        r.columns4x4,
			RefreshFrameFlags: 1,
		})
	}
	if err != nil {
		handle.Release()
		return nil, err
	}
	fb.SetFrameState(frame.FrameStateStarted)
	return handle, nil
}

// decodeFrame reconstructs one frame superblock row by superblock row and
// returns the handle of the displayable output.
func (r *Runner) decodeFrame(seq int64) (*frame.Handle, error) {
	frameType := frame.FrameTypeInter
	if seq%keyFrameInterval == 0 {
		frameType = frame.FrameTypeKey
	}
	recon, err := r.acquire(frameType)
	if err != nil {
		return nil, err
	}
	if frameType == frame.FrameTypeKey {
		recon.Buffer().SetContentLightLevel(frame.ContentLightLevel{
			MaxContentLightLevel:      1000,
			MaxFrameAverageLightLevel: 400,
		})
	}
	if !r.cfg.Cdef.Enabled {
		r.reconstruct(recon, seq, nil)
		recon.Buffer().SetFrameState(frame.FrameStateDecoded)
		return recon, nil
	}

	out, err := r.acquire(frameType)
	if err != nil {
		recon.Release()
		return nil, err
	}
	r.synth.fillSide(r.index, r.skip)
	in := &cdef.Frame{
		Source:      recon.Buffer().Buffer(),
		Destination: out.Buffer().Buffer(),
		Rows4x4:     r.rows4x4,
		Columns4x4:  r.columns4x4,
		Index:       r.index,
		Skip:        r.skip,
		Params:      r.params,
	}

	if r.cfg.Cdef.RowLag {
		graph := r.filter.NewRowGraph(in)
		r.reconstruct(recon, seq, func(row4x4, sb4x4 int, last bool) {
			tasks := graph.ApplySuperBlockRow(row4x4, sb4x4, last)
			atomic.AddInt64(&r.stats.FilterTasks, int64(len(tasks)))
			// Rows above the lag are final.
			if last {
				out.Buffer().SetProgress(r.cfg.Stream.Height - 1)
			} else {
				out.Buffer().SetProgress(4*(row4x4+sb4x4-2) - 1)
			}
		})
	} else {
		r.reconstruct(recon, seq, nil)
		r.filter.Apply(in)
		out.Buffer().SetProgress(r.cfg.Stream.Height - 1)
	}

	recon.Buffer().SetFrameState(frame.FrameStateDecoded)
	recon.Release()
	out.Buffer().SetFrameState(frame.FrameStateDecoded)
	return out, nil
}

// reconstruct paints the frame one superblock row at a time, publishing
// progress and calling onRow after each row.
func (r *Runner) reconstruct(h *frame.Handle, seq int64, onRow func(row4x4, sb4x4 int, last bool)) {
	fb := h.Buffer()
	yuv := fb.Buffer()
	sb := r.cfg.Stream.SuperblockSize
	sb4x4 := sb >> 2
	height := r.cfg.Stream.Height
	for y := 0; y < height; y += sb {
		y1 := min(y+sb, height)
		r.synth.paintRows(yuv, seq, y, y1)
		fb.SetProgress(y1 - 1)
		if onRow != nil {
			onRow(y>>2, sb4x4, y1 == height)
		}
	}
}

// display plays the consumer: it takes finished frames, samples them for
// dumping and hands the buffers back to the pool.
func (r *Runner) display(ctx context.Context) {
	for {
		f, ok := r.queue.PopBlocking(ctx)
		if !ok {
			return
		}
		if f.Handle.Buffer().WaitUntilDecoded() && r.dumper != nil && r.dumper.Due(f.Sequence) {
			if err := r.dumper.Dump(ctx, r.pool.ID(), f.Sequence, f.Handle.Buffer().Buffer()); err != nil {
				atomic.AddInt64(&r.stats.DumpErrors, 1)
			} else {
				atomic.AddInt64(&r.stats.Dumped, 1)
			}
		}
		atomic.AddInt64(&r.stats.Displayed, 1)
		f.Handle.Release()
	}
}
