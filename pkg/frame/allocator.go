package frame

import (
	"fmt"
	"sync"

	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

// SizeChangedFunc lets an external allocator pre-size its storage before the
// per-frame allocations of a new sequence.
type SizeChangedFunc func(privateData any, bitdepth int, format ImageFormat, width, height int, borders Borders, strideAlignment int) error

// GetFrameBufferFunc returns storage for one frame. The returned PrivateTag is
// handed back verbatim to ReleaseFrameBufferFunc.
type GetFrameBufferFunc func(privateData any, info *BufferInfo) (*AllocatedBuffer, error)

type ReleaseFrameBufferFunc func(privateData any, privateTag any)

// Callbacks is the allocator triple registered with a BufferPool. When
// GetFrameBuffer is nil the pool uses its internal allocator and ignores the
// other two callbacks.
type Callbacks struct {
	SizeChanged        SizeChangedFunc
	GetFrameBuffer     GetFrameBufferFunc
	ReleaseFrameBuffer ReleaseFrameBufferFunc
	PrivateData        any
}

// BufferInfo describes the layout an allocator must provide. Strides and
// sizes are in bytes and include the borders.
type BufferInfo struct {
	BitDepth        int
	Format          ImageFormat
	Width           int
	Height          int
	Borders         Borders
	StrideAlignment int

	SubsamplingX int
	SubsamplingY int
	UVWidth      int
	UVHeight     int
	UVBorders    Borders
	YStride      int
	UVStride     int
	YPlaneSize   int
	UVPlaneSize  int
}

func (i *BufferInfo) PixelSize() int {
	if i.BitDepth > 8 {
		return 2
	}
	return 1
}

// TotalSize is the number of bytes needed for all planes.
func (i *BufferInfo) TotalSize() int {
	return i.YPlaneSize + 2*i.UVPlaneSize
}

type AllocatedBuffer struct {
	Plane      [3][]byte
	Stride     [3]int
	PrivateTag any
}

func align(x, n int) int {
	return (x + n - 1) &^ (n - 1)
}

// AlignedSize rounds a luma dimension up to the 8 sample granularity that
// allocations are made with.
func AlignedSize(n int) int {
	return align(n, 8)
}

// ComputeBufferInfo derives plane strides and sizes. Visible dimensions are
// rounded up to a multiple of 8 so that every 8x8 block is backed by storage.
func ComputeBufferInfo(bitdepth int, format ImageFormat, width, height int, borders Borders, strideAlignment int) (*BufferInfo, error) {
	if bitdepth != 8 && bitdepth != 10 && bitdepth != 12 {
		return nil, fmt.Errorf("bitdepth %d: %w", bitdepth, ErrInvalidDimensions)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("size %dx%d: %w", width, height, ErrInvalidDimensions)
	}
	if strideAlignment <= 0 || strideAlignment&(strideAlignment-1) != 0 {
		return nil, fmt.Errorf("stride alignment %d: %w", strideAlignment, ErrInvalidDimensions)
	}
	if borders.Left < 0 || borders.Right < 0 || borders.Top < 0 || borders.Bottom < 0 {
		return nil, fmt.Errorf("negative border %+v: %w", borders, ErrInvalidDimensions)
	}

	info := &BufferInfo{
		BitDepth:        bitdepth,
		Format:          format,
		Width:           width,
		Height:          height,
		Borders:         borders,
		StrideAlignment: strideAlignment,
	}
	switch format {
	case ImageFormatYUV444:
	case ImageFormatYUV422:
		info.SubsamplingX = 1
	case ImageFormatYUV420, ImageFormatMonochrome400:
		info.SubsamplingX, info.SubsamplingY = 1, 1
	default:
		return nil, fmt.Errorf("image format %d: %w", format, ErrInvalidDimensions)
	}
	if (info.SubsamplingX != 0 && (borders.Left|borders.Right)&1 != 0) ||
		(info.SubsamplingY != 0 && (borders.Top|borders.Bottom)&1 != 0) {
		return nil, fmt.Errorf("odd border %+v with subsampling: %w", borders, ErrInvalidDimensions)
	}

	pixelSize := info.PixelSize()
	alignedWidth := align(width, 8)
	alignedHeight := align(height, 8)
	info.YStride = align((borders.Left+alignedWidth+borders.Right)*pixelSize, strideAlignment)
	info.YPlaneSize = info.YStride * (borders.Top + alignedHeight + borders.Bottom)

	if format != ImageFormatMonochrome400 {
		info.UVWidth = alignedWidth >> info.SubsamplingX
		info.UVHeight = alignedHeight >> info.SubsamplingY
		info.UVBorders = Borders{
			Left:   borders.Left >> info.SubsamplingX,
			Right:  borders.Right >> info.SubsamplingX,
			Top:    borders.Top >> info.SubsamplingY,
			Bottom: borders.Bottom >> info.SubsamplingY,
		}
		uv := info.UVBorders
		info.UVStride = align((uv.Left+info.UVWidth+uv.Right)*pixelSize, strideAlignment)
		info.UVPlaneSize = info.UVStride * (uv.Top + info.UVHeight + uv.Bottom)
	}
	return info, nil
}

type internalBuffer struct {
	data  []byte
	inUse bool
}

// InternalFrameBufferList is the allocator installed when the caller registers
// no callbacks. Released storage is kept and handed to the next request that
// fits, growing a slot only when a larger frame arrives.
type InternalFrameBufferList struct {
	pool    string
	mu      sync.Mutex
	buffers []*internalBuffer
	bytes   int
}

// NewInternalFrameBufferList creates an allocator whose byte gauge is
// labelled with pool.
func NewInternalFrameBufferList(pool string) *InternalFrameBufferList {
	return &InternalFrameBufferList{pool: pool}
}

func (l *InternalFrameBufferList) OnSizeChanged(bitdepth int, format ImageFormat, width, height int, borders Borders, strideAlignment int) error {
	_, err := ComputeBufferInfo(bitdepth, format, width, height, borders, strideAlignment)
	return err
}

func (l *InternalFrameBufferList) GetFrameBuffer(info *BufferInfo) (*AllocatedBuffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buffer *internalBuffer
	for _, b := range l.buffers {
		if !b.inUse {
			buffer = b
			break
		}
	}
	if buffer == nil {
		buffer = &internalBuffer{}
		l.buffers = append(l.buffers, buffer)
	}

	size := info.TotalSize()
	if len(buffer.data) < size {
		l.bytes += size - len(buffer.data)
		buffer.data = make([]byte, size)
		metrics.AllocatorBytes.WithLabelValues(l.pool).Set(float64(l.bytes))
	}
	buffer.inUse = true

	out := &AllocatedBuffer{PrivateTag: buffer}
	out.Plane[0] = buffer.data[:info.YPlaneSize:info.YPlaneSize]
	out.Stride[0] = info.YStride
	if info.UVPlaneSize > 0 {
		u := info.YPlaneSize
		v := u + info.UVPlaneSize
		out.Plane[1] = buffer.data[u:v:v]
		out.Plane[2] = buffer.data[v : v+info.UVPlaneSize : v+info.UVPlaneSize]
		out.Stride[1] = info.UVStride
		out.Stride[2] = info.UVStride
	}
	return out, nil
}

func (l *InternalFrameBufferList) Release(tag any) {
	buffer, ok := tag.(*internalBuffer)
	if !ok {
		return
	}
	l.mu.Lock()
	buffer.inUse = false
	l.mu.Unlock()
}

// Len reports how many storage slots the list has created.
func (l *InternalFrameBufferList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffers)
}

func onInternalFrameBufferSizeChanged(privateData any, bitdepth int, format ImageFormat, width, height int, borders Borders, strideAlignment int) error {
	return privateData.(*InternalFrameBufferList).OnSizeChanged(bitdepth, format, width, height, borders, strideAlignment)
}

func getInternalFrameBuffer(privateData any, info *BufferInfo) (*AllocatedBuffer, error) {
	return privateData.(*InternalFrameBufferList).GetFrameBuffer(info)
}

func releaseInternalFrameBuffer(privateData any, privateTag any) {
	privateData.(*InternalFrameBufferList).Release(privateTag)
}

// Bytes reports the storage held across all slots.
func (l *InternalFrameBufferList) Bytes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bytes
}
