package cdef

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/T3-Labs/edge-av1/pkg/assert"
	"github.com/T3-Labs/edge-av1/pkg/dsp"
	"github.com/T3-Labs/edge-av1/pkg/frame"
	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

var ErrInvalidWindow = errors.New("cdef window must be a non-negative multiple of 64")

type Options struct {
	// WindowWidth and WindowHeight size the staging window of the threaded
	// pass in luma samples. Zero picks the aligned frame width and one
	// 64-row unit per worker plus one for the caller.
	WindowWidth  int
	WindowHeight int

	// Dsp overrides the kernel table. When nil the table for the frame's bit
	// depth comes from dsp.GetDspTable.
	Dsp *dsp.Dsp
}

// Filter applies CDEF to whole frames, optionally spreading 64-row units of
// a window across a Scheduler, or row by row through a RowGraph.
type Filter struct {
	scheduler Scheduler
	opts      Options
	log       *zap.SugaredLogger

	blocks sync.Pool

	skipped      prometheus.Counter
	zeroStrength prometheus.Counter
	filtered     prometheus.Counter
}

// cdefBlock holds the bordered source of one 64x64 unit for every plane.
type cdefBlock [3 * blockPlaneSize]uint16

// NewFilter returns a filter. A nil scheduler makes Apply run on the calling
// goroutine only, writing straight into the destination.
func NewFilter(scheduler Scheduler, opts Options) (*Filter, error) {
	if opts.WindowWidth < 0 || opts.WindowWidth%64 != 0 || opts.WindowHeight < 0 || opts.WindowHeight%64 != 0 {
		return nil, fmt.Errorf("window %dx%d: %w", opts.WindowWidth, opts.WindowHeight, ErrInvalidWindow)
	}
	f := &Filter{
		scheduler:    scheduler,
		opts:         opts,
		log:          logger.L().With("component", "cdef"),
		skipped:      metrics.CdefBlocks.WithLabelValues("skipped"),
		zeroStrength: metrics.CdefBlocks.WithLabelValues("zero_strength"),
		filtered:     metrics.CdefBlocks.WithLabelValues("filtered"),
	}
	f.blocks.New = func() any { return new(cdefBlock) }
	f.log.Infow("CDEF filter ready",
		"threaded", scheduler != nil,
		"window_width", opts.WindowWidth,
		"window_height", opts.WindowHeight)
	return f, nil
}

// Threaded reports whether Apply fans out over a scheduler.
func (f *Filter) Threaded() bool {
	return f.scheduler != nil
}

// Apply filters the whole frame. Every sample of Destination covered by the
// 4x4 grid is written.
func (f *Filter) Apply(in *Frame) {
	start := time.Now()
	p := f.newPass(in)
	mode := "direct"
	if f.scheduler != nil {
		mode = "threaded"
		p.applyThreaded()
	} else {
		p.applyDirect()
	}
	elapsed := time.Since(start)
	metrics.CdefPassLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	f.log.Debugw("CDEF pass done",
		"mode", mode,
		"rows4x4", in.Rows4x4,
		"columns4x4", in.Columns4x4,
		"duration", elapsed)
}

func (f *Filter) table(bitdepth int) *dsp.Dsp {
	table := f.opts.Dsp
	if table == nil {
		table = dsp.GetDspTable(bitdepth)
	}
	assert.Assertf(table != nil && table.Bitdepth == bitdepth, "no CDEF kernels for bitdepth %d", bitdepth)
	return table
}

func (f *Filter) getBlock() *cdefBlock {
	return f.blocks.Get().(*cdefBlock)
}

func (f *Filter) putBlock(b *cdefBlock) {
	f.blocks.Put(b)
}

type unitStats struct {
	skipped, zeroStrength, filtered int
}

func (f *Filter) record(s *unitStats) {
	if s.skipped > 0 {
		f.skipped.Add(float64(s.skipped))
	}
	if s.zeroStrength > 0 {
		f.zeroStrength.Add(float64(s.zeroStrength))
	}
	if s.filtered > 0 {
		f.filtered.Add(float64(s.filtered))
	}
}

// runner is a pass bound to one frame and pixel type.
type runner interface {
	applyDirect()
	applyThreaded()
	applyRows(row4x4, height4x4 int)
}

func validateFrame(in *Frame) {
	src, dst := in.Source, in.Destination
	assert.Assertf(src != nil && dst != nil, "CDEF frame without source or destination")
	assert.Assertf(src != dst, "CDEF source and destination must be distinct buffers")
	assert.Assertf(src.BitDepth() == dst.BitDepth() && src.IsMonochrome() == dst.IsMonochrome() &&
		src.SubsamplingX() == dst.SubsamplingX() && src.SubsamplingY() == dst.SubsamplingY() &&
		src.Width(frame.PlaneY) == dst.Width(frame.PlaneY) && src.Height(frame.PlaneY) == dst.Height(frame.PlaneY),
		"CDEF source and destination geometry differ")
	assert.Assertf(in.Rows4x4 > 0 && in.Columns4x4 > 0 && in.Rows4x4%2 == 0 && in.Columns4x4%2 == 0,
		"CDEF 4x4 grid %dx%d", in.Rows4x4, in.Columns4x4)
	assert.Assertf(4*in.Rows4x4 <= frame.AlignedSize(src.Height(frame.PlaneY)) &&
		4*in.Columns4x4 <= frame.AlignedSize(src.Width(frame.PlaneY)),
		"CDEF 4x4 grid %dx%d exceeds the allocated frame", in.Rows4x4, in.Columns4x4)
	rows, columns := IndexGridSize(in.Rows4x4, in.Columns4x4)
	assert.Assertf(in.Index != nil && in.Index.Rows() >= rows && in.Index.Columns() >= columns,
		"CDEF index grid smaller than %dx%d", rows, columns)
	assert.Assertf(in.Skip != nil, "CDEF frame without skip map")
}

func (f *Filter) newPass(in *Frame) runner {
	validateFrame(in)
	bitdepth := in.Source.BitDepth()
	table := f.table(bitdepth)
	if bitdepth == 8 {
		p := &pass[uint8]{direction: table.CdefDirection8, filter: table.CdefFilter8}
		for plane := 0; plane < in.Source.NumPlanes(); plane++ {
			p.src[plane] = planeView[uint8]{data: in.Source.Data(plane), stride: in.Source.Stride(plane)}
			p.dst[plane] = planeView[uint8]{data: in.Destination.Data(plane), stride: in.Destination.Stride(plane)}
		}
		p.init(f, in)
		return p
	}
	p := &pass[uint16]{direction: table.CdefDirection16, filter: table.CdefFilter16}
	for plane := 0; plane < in.Source.NumPlanes(); plane++ {
		p.src[plane] = planeView[uint16]{data: in.Source.Data16(plane), stride: in.Source.Stride(plane) / 2}
		p.dst[plane] = planeView[uint16]{data: in.Destination.Data16(plane), stride: in.Destination.Stride(plane) / 2}
	}
	p.init(f, in)
	return p
}
