package frame

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/T3-Labs/edge-av1/pkg/assert"
	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

// BufferPool owns the decoder's frame buffers. One mutex serializes the free
// scan, every Realloc, Abort and the return of buffers, because the allocator
// callbacks are not required to be reentrant.
type BufferPool struct {
	id  string
	log *zap.SugaredLogger

	mu         sync.Mutex
	buffers    []*FrameBuffer
	maxBuffers int
	closed     bool

	sizeChanged        SizeChangedFunc
	getFrameBuffer     GetFrameBufferFunc
	releaseFrameBuffer ReleaseFrameBufferFunc
	privateData        any
	strideAlignment    int

	internal *InternalFrameBufferList
}

// NewBufferPool creates a pool. maxBuffers bounds the number of slots; zero
// means unbounded.
func NewBufferPool(callbacks Callbacks, maxBuffers int) *BufferPool {
	id := uuid.NewString()
	p := &BufferPool{
		id:              id,
		log:             logger.L().With("pool", id),
		maxBuffers:      maxBuffers,
		strideAlignment: DefaultStrideAlignment,
	}
	if callbacks.GetFrameBuffer != nil {
		assert.Assertf(callbacks.ReleaseFrameBuffer != nil, "GetFrameBuffer callback registered without ReleaseFrameBuffer")
		p.sizeChanged = callbacks.SizeChanged
		p.getFrameBuffer = callbacks.GetFrameBuffer
		p.releaseFrameBuffer = callbacks.ReleaseFrameBuffer
		p.privateData = callbacks.PrivateData
	} else {
		p.internal = NewInternalFrameBufferList(id)
		p.sizeChanged = onInternalFrameBufferSizeChanged
		p.getFrameBuffer = getInternalFrameBuffer
		p.releaseFrameBuffer = releaseInternalFrameBuffer
		p.privateData = p.internal
	}

	p.log.Infow("Frame buffer pool created",
		"external_allocator", p.internal == nil,
		"max_buffers", maxBuffers)
	return p
}

func (p *BufferPool) ID() string {
	return p.id
}

// AllocatorBytes reports the storage held by the internal allocator, or zero
// when callbacks supply the storage.
func (p *BufferPool) AllocatorBytes() int {
	if p.internal == nil {
		return 0
	}
	return p.internal.Bytes()
}

// SetStrideAlignment changes the plane stride alignment used by later
// Realloc calls. alignment must be a power of two.
func (p *BufferPool) SetStrideAlignment(alignment int) {
	assert.Assertf(alignment > 0 && alignment&(alignment-1) == 0, "stride alignment %d is not a power of two", alignment)
	p.mu.Lock()
	p.strideAlignment = alignment
	p.mu.Unlock()
}

// OnFrameBufferSizeChanged forwards a sequence-level size change to the
// allocator so it can pre-size its storage.
func (p *BufferPool) OnFrameBufferSizeChanged(bitdepth int, format ImageFormat, width, height int, borders Borders) error {
	if p.sizeChanged == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sizeChanged(p.privateData, bitdepth, format, width, height, borders, p.strideAlignment); err != nil {
		return fmt.Errorf("%w: %v", ErrSizeChanged, err)
	}
	return nil
}

// GetFreeBuffer hands out an unused buffer, growing the pool when every slot
// is taken. The returned handle must be released by its holder.
func (p *BufferPool) GetFreeBuffer() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	for _, buffer := range p.buffers {
		if !buffer.inUse {
			buffer.inUse = true
			buffer.resetProgress()
			p.updateGauges()
			metrics.PoolAcquisitions.WithLabelValues(p.id, "reused").Inc()
			return newHandle(buffer), nil
		}
	}

	if p.maxBuffers > 0 && len(p.buffers) >= p.maxBuffers {
		metrics.PoolAcquisitions.WithLabelValues(p.id, "exhausted").Inc()
		p.log.Errorw("No free frame buffer", "buffers", len(p.buffers))
		return nil, ErrPoolExhausted
	}

	buffer := newFrameBuffer(p)
	buffer.inUse = true
	buffer.resetProgress()
	p.buffers = append(p.buffers, buffer)
	p.updateGauges()
	metrics.PoolAcquisitions.WithLabelValues(p.id, "grown").Inc()
	p.log.Debugw("Frame buffer pool grown", "buffers", len(p.buffers))
	return newHandle(buffer), nil
}

// ReturnUnusedBuffer puts buffer back on the free list and releases its
// allocator storage. Handles call it when their last holder lets go.
func (p *BufferPool) ReturnUnusedBuffer(buffer *FrameBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	assert.Assertf(buffer.inUse, "returning a frame buffer that is not in use")
	buffer.inUse = false
	if buffer.privateTagValid {
		p.releaseFrameBuffer(p.privateData, buffer.privateTag)
		buffer.privateTag = nil
		buffer.privateTagValid = false
		metrics.PoolReleases.WithLabelValues(p.id).Inc()
	}
	p.updateGauges()
}

// Abort signals every in-use buffer so threads waiting on decode progress give
// up. Buffers stay in use until their handles are released.
func (p *BufferPool) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()

	aborted := 0
	for _, buffer := range p.buffers {
		if buffer.inUse {
			buffer.Abort()
			aborted++
		}
	}
	metrics.PoolAborts.WithLabelValues(p.id).Inc()
	p.log.Infow("Frame buffers aborted", "aborted", aborted)
}

// Close tears the pool down. A buffer still in use means a handle outlived
// the decoder, which is fatal.
func (p *BufferPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, buffer := range p.buffers {
		if buffer.inUse {
			p.log.Errorw("Frame buffer still in use at destruction time", "slot", i)
			panic(fmt.Sprintf("frame buffer pool %s: slot %d still in use at destruction time", p.id, i))
		}
	}
	p.closed = true
	p.buffers = nil
	p.updateGauges()
	p.log.Infow("Frame buffer pool closed")
}

func (p *BufferPool) updateGauges() {
	inUse := 0
	for _, buffer := range p.buffers {
		if buffer.inUse {
			inUse++
		}
	}
	metrics.PoolBuffers.WithLabelValues(p.id).Set(float64(len(p.buffers)))
	metrics.PoolBuffersInUse.WithLabelValues(p.id).Set(float64(inUse))
}

func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Buffers: len(p.buffers), MaxBuffers: p.maxBuffers}
	for _, buffer := range p.buffers {
		if buffer.inUse {
			stats.InUse++
		}
		if buffer.privateTagValid {
			stats.Allocated++
		}
	}
	return stats
}

type PoolStats struct {
	Buffers    int
	InUse      int
	Allocated  int
	MaxBuffers int
}

func (ps PoolStats) String() string {
	return fmt.Sprintf("Buffers: %d (in use: %d, allocated: %d, max: %d)",
		ps.Buffers, ps.InUse, ps.Allocated, ps.MaxBuffers)
}
