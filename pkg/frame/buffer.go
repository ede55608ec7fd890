package frame

import (
	"sync"
	"sync/atomic"

	"github.com/T3-Labs/edge-av1/pkg/assert"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

// FrameBuffer is one pool slot: decoded pixel storage plus the metadata later
// frames read back when they use it as a reference. Slots are created and
// recycled only by their BufferPool and reach callers through a Handle.
type FrameBuffer struct {
	pool *BufferPool
	refs atomic.Int32

	// Guarded by pool.mu.
	inUse           bool
	privateTag      any
	privateTagValid bool

	yuv YuvBuffer

	upscaledWidth int
	frameWidth    int
	frameHeight   int
	renderWidth   int
	renderHeight  int
	rows4x4       int
	columns4x4    int

	segmentation    Segmentation
	globalMotion    [NumReferenceFrameTypes]GlobalMotion
	frameContext    SymbolContext
	referenceInfo   ReferenceInfo
	segmentationMap Array2D[int8]

	mu          sync.Mutex
	cond        *sync.Cond
	progressRow int
	frameState  FrameState
	abort       bool

	contentLightLevel ContentLightLevel
	masteringDisplay  MasteringDisplayColorVolume
	itutT35           ItutT35
	hdrCllSet         bool
	hdrMdcvSet        bool
	itutT35Set        bool
}

func newFrameBuffer(pool *BufferPool) *FrameBuffer {
	b := &FrameBuffer{pool: pool}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Realloc allocates pixel storage through the pool's allocator. All Reallocs
// of a pool are serialized because the allocator callback need not be
// reentrant. Calling Realloc while the buffer still holds storage is a bug.
func (b *FrameBuffer) Realloc(bitdepth int, monochrome bool, width, height, subsamplingX, subsamplingY int, borders Borders) error {
	pool := b.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	assert.Assertf(!b.privateTagValid, "Realloc on a frame buffer that still holds allocator storage")
	tag, err := b.yuv.Realloc(bitdepth, monochrome, width, height, subsamplingX, subsamplingY,
		borders, pool.strideAlignment, pool.getFrameBuffer, pool.privateData)
	if err != nil {
		if tag != nil {
			pool.releaseFrameBuffer(pool.privateData, tag)
			metrics.PoolReleases.WithLabelValues(pool.id).Inc()
		}
		metrics.PoolReallocs.WithLabelValues(pool.id, "error").Inc()
		pool.log.Warnw("Frame buffer allocation failed",
			"bitdepth", bitdepth,
			"width", width,
			"height", height,
			"error", err)
		return err
	}
	b.privateTag = tag
	b.privateTagValid = true
	metrics.PoolReallocs.WithLabelValues(pool.id, "ok").Inc()
	return nil
}

// SetFrameDimensions records the frame geometry and sizes the per-frame grids.
func (b *FrameBuffer) SetFrameDimensions(header *FrameHeader) error {
	b.upscaledWidth = header.UpscaledWidth
	b.frameWidth = header.Width
	b.frameHeight = header.Height
	b.renderWidth = header.RenderWidth
	b.renderHeight = header.RenderHeight
	b.rows4x4 = header.Rows4x4
	b.columns4x4 = header.Columns4x4
	if header.RefreshFrameFlags != 0 && !IsIntraFrame(header.FrameType) {
		if err := b.referenceInfo.Reset(b.rows4x4>>1, b.columns4x4>>1); err != nil {
			return err
		}
	}
	return b.segmentationMap.Reset(b.rows4x4, b.columns4x4)
}

// SetGlobalMotions copies the warp parameters of the inter reference types.
func (b *FrameBuffer) SetGlobalMotions(globalMotions *[NumReferenceFrameTypes]GlobalMotion) {
	for ref := ReferenceFrameLast; ref <= ReferenceFrameAlternate; ref++ {
		b.globalMotion[ref].Params = globalMotions[ref].Params
	}
}

// SetFrameContext keeps a copy of context as the starting state for frames
// that load their probabilities from this one.
func (b *FrameBuffer) SetFrameContext(context SymbolContext) {
	b.frameContext = context.Clone()
	b.frameContext.ResetIntraFrameYModeCdf()
	b.frameContext.ResetCounters()
}

func (b *FrameBuffer) FrameContext() SymbolContext { return b.frameContext }

func copySegmentationParameters(from, to *Segmentation) {
	to.FeatureEnabled = from.FeatureEnabled
	to.FeatureData = from.FeatureData
	to.SegmentIDPreSkip = from.SegmentIDPreSkip
	to.LastActiveSegmentID = from.LastActiveSegmentID
}

func (b *FrameBuffer) GetSegmentationParameters(segmentation *Segmentation) {
	copySegmentationParameters(&b.segmentation, segmentation)
}

func (b *FrameBuffer) SetSegmentationParameters(segmentation *Segmentation) {
	copySegmentationParameters(segmentation, &b.segmentation)
}

func (b *FrameBuffer) Buffer() *YuvBuffer                               { return &b.yuv }
func (b *FrameBuffer) GlobalMotion(ref ReferenceFrameType) GlobalMotion { return b.globalMotion[ref] }
func (b *FrameBuffer) ReferenceInfo() *ReferenceInfo                    { return &b.referenceInfo }
func (b *FrameBuffer) SegmentationMap() *Array2D[int8]                  { return &b.segmentationMap }
func (b *FrameBuffer) UpscaledWidth() int                               { return b.upscaledWidth }
func (b *FrameBuffer) FrameWidth() int                                  { return b.frameWidth }
func (b *FrameBuffer) FrameHeight() int                                 { return b.frameHeight }
func (b *FrameBuffer) RenderWidth() int                                 { return b.renderWidth }
func (b *FrameBuffer) RenderHeight() int                                { return b.renderHeight }
func (b *FrameBuffer) Rows4x4() int                                     { return b.rows4x4 }
func (b *FrameBuffer) Columns4x4() int                                  { return b.columns4x4 }

// resetProgress clears the per-frame decode state of a recycled slot.
func (b *FrameBuffer) resetProgress() {
	b.mu.Lock()
	b.progressRow = -1
	b.frameState = FrameStateUnknown
	b.abort = false
	b.mu.Unlock()
	b.hdrCllSet = false
	b.hdrMdcvSet = false
	b.itutT35Set = false
}

// SetProgress publishes that every row up to and including row is decoded.
func (b *FrameBuffer) SetProgress(row int) {
	b.mu.Lock()
	b.progressRow = row
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *FrameBuffer) SetFrameState(state FrameState) {
	b.mu.Lock()
	b.frameState = state
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *FrameBuffer) FrameState() FrameState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameState
}

// WaitUntil blocks until row is decoded. It returns false when the buffer was
// aborted instead.
func (b *FrameBuffer) WaitUntil(row int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.progressRow < row && !b.abort {
		b.cond.Wait()
	}
	return !b.abort
}

// WaitUntilDecoded blocks until the whole frame is decoded or aborted.
func (b *FrameBuffer) WaitUntilDecoded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.frameState != FrameStateDecoded && !b.abort {
		b.cond.Wait()
	}
	return !b.abort
}

// Abort wakes every waiter; in-flight decoding is not interrupted.
func (b *FrameBuffer) Abort() {
	b.mu.Lock()
	b.abort = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *FrameBuffer) Aborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.abort
}

func (b *FrameBuffer) SetContentLightLevel(cll ContentLightLevel) {
	b.contentLightLevel = cll
	b.hdrCllSet = true
}

func (b *FrameBuffer) SetMasteringDisplayColorVolume(mdcv MasteringDisplayColorVolume) {
	b.masteringDisplay = mdcv
	b.hdrMdcvSet = true
}

func (b *FrameBuffer) SetItutT35(t35 ItutT35) {
	b.itutT35 = ItutT35{
		CountryCode:          t35.CountryCode,
		CountryCodeExtension: t35.CountryCodeExtension,
		Payload:              append([]byte(nil), t35.Payload...),
	}
	b.itutT35Set = true
}

func (b *FrameBuffer) ContentLightLevel() (ContentLightLevel, bool) {
	return b.contentLightLevel, b.hdrCllSet
}

func (b *FrameBuffer) MasteringDisplayColorVolume() (MasteringDisplayColorVolume, bool) {
	return b.masteringDisplay, b.hdrMdcvSet
}

func (b *FrameBuffer) ItutT35() (ItutT35, bool) {
	return b.itutT35, b.itutT35Set
}

// Handle is one holder's reference to a FrameBuffer. Every Handle must be
// released exactly once; the buffer returns to its pool when the last one is.
type Handle struct {
	buffer   *FrameBuffer
	released atomic.Bool
}

func newHandle(b *FrameBuffer) *Handle {
	b.refs.Store(1)
	return &Handle{buffer: b}
}

func (h *Handle) Buffer() *FrameBuffer {
	return h.buffer
}

// Clone returns an additional handle for another holder.
func (h *Handle) Clone() *Handle {
	assert.Assertf(!h.released.Load(), "Clone of a released frame buffer handle")
	h.buffer.refs.Add(1)
	return &Handle{buffer: h.buffer}
}

func (h *Handle) Release() {
	assert.Assertf(h.released.CompareAndSwap(false, true), "frame buffer handle released twice")
	refs := h.buffer.refs.Add(-1)
	assert.Assertf(refs >= 0, "frame buffer reference count underflow")
	if refs == 0 {
		h.buffer.pool.ReturnUnusedBuffer(h.buffer)
	}
}
