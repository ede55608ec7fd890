package frame

import (
	"fmt"
	"unsafe"
)

const (
	PlaneY = iota
	PlaneU
	PlaneV
	MaxPlanes
)

// YuvBuffer is a view over allocator-provided pixel storage. Plane slices start
// at the first visible sample; samples above and to the left live in the
// border and are reachable only through the underlying allocation.
type YuvBuffer struct {
	bitdepth     int
	monochrome   bool
	subsamplingX int
	subsamplingY int
	info         *BufferInfo

	alloc  [MaxPlanes][]byte
	buffer [MaxPlanes][]byte
	stride [MaxPlanes]int
	width  [MaxPlanes]int
	height [MaxPlanes]int
	border [MaxPlanes]Borders
}

// Realloc lays out storage for the given geometry through getFrameBuffer and
// returns the allocator's private tag.
func (y *YuvBuffer) Realloc(bitdepth int, monochrome bool, width, height, subsamplingX, subsamplingY int,
	borders Borders, strideAlignment int, getFrameBuffer GetFrameBufferFunc, privateData any) (any, error) {
	format := ComposeImageFormat(monochrome, subsamplingX, subsamplingY)
	info, err := ComputeBufferInfo(bitdepth, format, width, height, borders, strideAlignment)
	if err != nil {
		return nil, err
	}
	if info.SubsamplingX != subsamplingX || info.SubsamplingY != subsamplingY {
		return nil, fmt.Errorf("subsampling %d,%d: %w", subsamplingX, subsamplingY, ErrInvalidDimensions)
	}

	allocated, err := getFrameBuffer(privateData, info)
	if err != nil {
		return nil, fmt.Errorf("get frame buffer: %w: %v", ErrAllocationFailed, err)
	}
	if allocated == nil {
		return nil, fmt.Errorf("get frame buffer returned nil: %w", ErrAllocationFailed)
	}

	planes := 1
	if !monochrome {
		planes = MaxPlanes
	}
	for plane := 0; plane < planes; plane++ {
		stride, size := info.YStride, info.YPlaneSize
		if plane != PlaneY {
			stride, size = info.UVStride, info.UVPlaneSize
		}
		if allocated.Stride[plane] < stride || len(allocated.Plane[plane]) < size {
			return allocated.PrivateTag, fmt.Errorf("plane %d: stride %d size %d, need %d/%d: %w",
				plane, allocated.Stride[plane], len(allocated.Plane[plane]), stride, size, ErrAllocationFailed)
		}
	}

	pixelSize := info.PixelSize()
	for plane := 0; plane < planes; plane++ {
		b := info.Borders
		w, h := width, height
		if plane != PlaneY {
			b = info.UVBorders
			w = (width + subsamplingX) >> subsamplingX
			h = (height + subsamplingY) >> subsamplingY
		}
		stride := allocated.Stride[plane]
		y.alloc[plane] = allocated.Plane[plane]
		y.buffer[plane] = allocated.Plane[plane][b.Top*stride+b.Left*pixelSize:]
		y.stride[plane] = stride
		y.width[plane] = w
		y.height[plane] = h
		y.border[plane] = b
	}
	for plane := planes; plane < MaxPlanes; plane++ {
		y.alloc[plane], y.buffer[plane] = nil, nil
		y.stride[plane], y.width[plane], y.height[plane] = 0, 0, 0
		y.border[plane] = Borders{}
	}

	y.bitdepth = bitdepth
	y.monochrome = monochrome
	y.subsamplingX = subsamplingX
	y.subsamplingY = subsamplingY
	y.info = info
	return allocated.PrivateTag, nil
}

func (y *YuvBuffer) BitDepth() int      { return y.bitdepth }
func (y *YuvBuffer) IsMonochrome() bool { return y.monochrome }
func (y *YuvBuffer) SubsamplingX() int  { return y.subsamplingX }
func (y *YuvBuffer) SubsamplingY() int  { return y.subsamplingY }
func (y *YuvBuffer) Info() *BufferInfo  { return y.info }

func (y *YuvBuffer) NumPlanes() int {
	if y.monochrome {
		return 1
	}
	return MaxPlanes
}

func (y *YuvBuffer) PixelSize() int {
	if y.bitdepth > 8 {
		return 2
	}
	return 1
}

// Data returns the plane starting at its first visible sample.
func (y *YuvBuffer) Data(plane int) []byte { return y.buffer[plane] }

// Stride is in bytes.
func (y *YuvBuffer) Stride(plane int) int        { return y.stride[plane] }
func (y *YuvBuffer) Width(plane int) int         { return y.width[plane] }
func (y *YuvBuffer) Height(plane int) int        { return y.height[plane] }
func (y *YuvBuffer) Borders(plane int) Borders   { return y.border[plane] }
func (y *YuvBuffer) Allocation(plane int) []byte { return y.alloc[plane] }

// Data16 reinterprets a high bitdepth plane as samples.
func (y *YuvBuffer) Data16(plane int) []uint16 {
	b := y.buffer[plane]
	if len(b) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}
