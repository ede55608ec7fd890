package cdef

import (
	"github.com/T3-Labs/edge-av1/pkg/dsp"
	"github.com/T3-Labs/edge-av1/pkg/frame"
	"github.com/T3-Labs/edge-av1/pkg/worker"
)

type pixel interface {
	~uint8 | ~uint16
}

// planeView addresses a plane from its first visible sample. Stride is in
// samples.
type planeView[T pixel] struct {
	data   []T
	stride int
}

type pass[T pixel] struct {
	*Filter
	in *Frame

	planes         int
	subsamplingX   [frame.MaxPlanes]int
	subsamplingY   [frame.MaxPlanes]int
	width, height  [frame.MaxPlanes]int
	src, dst       [frame.MaxPlanes]planeView[T]
	windowed       bool
	window         []T
	windowWidth    int
	windowHeight   int
	windowPlaneLen int

	direction func(src []T, off, stride int) (int, int)
	filter    func(src []uint16, srcOff, srcStride, width, height, primary, secondary, damping, direction int,
		dst []T, dstOff, dstStride int)
}

func (p *pass[T]) init(f *Filter, in *Frame) {
	p.Filter = f
	p.in = in
	p.planes = in.Source.NumPlanes()
	for plane := 0; plane < p.planes; plane++ {
		if plane != frame.PlaneY {
			p.subsamplingX[plane] = in.Source.SubsamplingX()
			p.subsamplingY[plane] = in.Source.SubsamplingY()
		}
		p.width[plane] = in.Source.Width(plane)
		p.height[plane] = in.Source.Height(plane)
	}
}

func (p *pass[T]) applyDirect() {
	for row4x4 := 0; row4x4 < p.in.Rows4x4; row4x4 += Step64x64 {
		p.applyRows(row4x4, min(Step64x64, p.in.Rows4x4-row4x4))
	}
}

// applyRows filters height4x4 rows of 4x4 blocks starting at row4x4 across
// the full frame width, writing into the destination.
func (p *pass[T]) applyRows(row4x4, height4x4 int) {
	block := p.getBlock()
	defer p.putBlock(block)

	var stats unitStats
	for column4x4 := 0; column4x4 < p.in.Columns4x4; column4x4 += Step64x64 {
		index := int(p.in.Index.At(row4x4/Step64x64, column4x4/Step64x64))
		width4x4 := min(Step64x64, p.in.Columns4x4-column4x4)
		p.applyUnit(block, index, width4x4, height4x4, row4x4, column4x4, &stats)
	}
	p.record(&stats)
}

func (p *pass[T]) applyThreaded() {
	workers := p.scheduler.NumThreads()
	p.windowWidth = p.opts.WindowWidth
	if p.windowWidth == 0 {
		p.windowWidth = align64(4 * p.in.Columns4x4)
	}
	p.windowHeight = p.opts.WindowHeight
	if p.windowHeight == 0 {
		p.windowHeight = 64 * (workers + 1)
	}
	p.windowPlaneLen = p.windowWidth * p.windowHeight
	p.window = make([]T, p.planes*p.windowPlaneLen)
	p.windowed = true

	windowHeight4x4 := p.windowHeight / 4
	windowWidth4x4 := p.windowWidth / 4
	for row4x4 := 0; row4x4 < p.in.Rows4x4; row4x4 += windowHeight4x4 {
		height4x4 := min(windowHeight4x4, p.in.Rows4x4-row4x4)
		units := (height4x4 + Step64x64 - 1) / Step64x64
		for column4x4 := 0; column4x4 < p.in.Columns4x4; column4x4 += windowWidth4x4 {
			jobs := units * workers / (workers + 1)
			pending := worker.NewBlockingCounter(jobs)
			job := 0
			for unitRow := 0; unitRow < height4x4; unitRow += Step64x64 {
				start := row4x4 + unitRow
				if job < jobs {
					p.scheduler.Schedule(func() {
						p.applyRowInWindow(start, column4x4)
						pending.Decrement()
					})
				} else {
					p.applyRowInWindow(start, column4x4)
				}
				job++
			}
			pending.Wait()
			p.copyWindow(row4x4, column4x4, height4x4, min(windowWidth4x4, p.in.Columns4x4-column4x4))
		}
	}
}

// applyRowInWindow filters one 64-row unit row of the window whose left
// edge is column4x4Start.
func (p *pass[T]) applyRowInWindow(row4x4, column4x4Start int) {
	block := p.getBlock()
	defer p.putBlock(block)

	var stats unitStats
	end := min(column4x4Start+p.windowWidth/4, p.in.Columns4x4)
	height4x4 := min(Step64x64, p.in.Rows4x4-row4x4)
	for column4x4 := column4x4Start; column4x4 < end; column4x4 += Step64x64 {
		index := int(p.in.Index.At(row4x4/Step64x64, column4x4/Step64x64))
		width4x4 := min(Step64x64, p.in.Columns4x4-column4x4)
		p.applyUnit(block, index, width4x4, height4x4, row4x4, column4x4, &stats)
	}
	p.record(&stats)
}

func (p *pass[T]) copyWindow(row4x4, column4x4, height4x4, width4x4 int) {
	for plane := 0; plane < p.planes; plane++ {
		ssx, ssy := p.subsamplingX[plane], p.subsamplingY[plane]
		dst := p.dst[plane]
		x := (4 * column4x4) >> ssx
		y := (4 * row4x4) >> ssy
		copyPixels(p.window, plane*p.windowPlaneLen, p.windowWidth,
			dst.data, y*dst.stride+x, dst.stride,
			(4*width4x4)>>ssx, (4*height4x4)>>ssy)
	}
}

// target returns where the output for the block at (x, y) of plane goes.
func (p *pass[T]) target(plane, x, y int) ([]T, int, int) {
	if p.windowed {
		wx := x % (p.windowWidth >> p.subsamplingX[plane])
		wy := y % (p.windowHeight >> p.subsamplingY[plane])
		return p.window, plane*p.windowPlaneLen + wy*p.windowWidth + wx, p.windowWidth
	}
	dst := p.dst[plane]
	return dst.data, y*dst.stride + x, dst.stride
}

func (p *pass[T]) skip(row4x4, column4x4 int) bool {
	skip := p.in.Skip
	return skip.Skip(row4x4, column4x4) && skip.Skip(row4x4, column4x4+1) &&
		skip.Skip(row4x4+1, column4x4) && skip.Skip(row4x4+1, column4x4+1)
}

// applyUnit filters a unit of up to 64x64 luma samples with the strengths
// selected by index.
func (p *pass[T]) applyUnit(block *cdefBlock, index, width4x4, height4x4, row4x4Start, column4x4Start int, stats *unitStats) {
	if index == -1 {
		for plane := 0; plane < p.planes; plane++ {
			ssx, ssy := p.subsamplingX[plane], p.subsamplingY[plane]
			x := (4 * column4x4Start) >> ssx
			y := (4 * row4x4Start) >> ssy
			src := p.src[plane]
			dst, dstOff, dstStride := p.target(plane, x, y)
			copyPixels(src.data, y*src.stride+x, src.stride, dst, dstOff, dstStride,
				(4*width4x4)>>ssx, (4*height4x4)>>ssy)
		}
		stats.skipped += (width4x4 / blockStep4x4) * (height4x4 / blockStep4x4)
		return
	}

	p.prepareBlock(block, width4x4, height4x4, row4x4Start, column4x4Start)

	params := &p.in.Params
	computeDirection := params.YPrimary[index]|params.UVPrimary[index] != 0
	for row4x4 := row4x4Start; row4x4 < row4x4Start+height4x4; row4x4 += blockStep4x4 {
		for column4x4 := column4x4Start; column4x4 < column4x4Start+width4x4; column4x4 += blockStep4x4 {
			skip := p.skip(row4x4, column4x4)
			directionY := 0
			filtered := false
			for plane := 0; plane < p.planes; plane++ {
				ssx, ssy := p.subsamplingX[plane], p.subsamplingY[plane]
				width := blockStep >> ssx
				height := blockStep >> ssy
				x := (4 * column4x4) >> ssx
				y := (4 * row4x4) >> ssy
				src := p.src[plane]
				srcOff := y*src.stride + x
				dst, dstOff, dstStride := p.target(plane, x, y)

				if skip {
					copyPixels(src.data, srcOff, src.stride, dst, dstOff, dstStride, width, height)
					continue
				}

				var primary, secondary, direction int
				if plane == frame.PlaneY {
					variance := 0
					if computeDirection {
						directionY, variance = p.direction(src.data, srcOff, src.stride)
					}
					primary = params.YPrimary[index]
					secondary = params.YSecondary[index]
					if primary != 0 {
						direction = directionY
					}
					primary = scalePrimary(primary, variance)
				} else {
					primary = params.UVPrimary[index]
					secondary = params.UVSecondary[index]
					if primary != 0 {
						direction = int(uvDirection[ssx][ssy][directionY])
					}
				}

				if primary|secondary == 0 {
					copyPixels(src.data, srcOff, src.stride, dst, dstOff, dstStride, width, height)
					continue
				}

				damping := params.Damping
				if plane != frame.PlaneY {
					damping--
				}
				blockOff := plane*blockPlaneSize +
					(dsp.CdefBorder+((4*(row4x4-row4x4Start))>>ssy))*blockSizeWithBorders +
					dsp.CdefBorder + ((4 * (column4x4 - column4x4Start)) >> ssx)
				p.filter(block[:], blockOff, blockSizeWithBorders, width, height,
					primary, secondary, damping, direction, dst, dstOff, dstStride)
				filtered = true
			}
			switch {
			case skip:
				stats.skipped++
			case filtered:
				stats.filtered++
			default:
				stats.zeroStrength++
			}
		}
	}
}

// scalePrimary adjusts the luma primary strength by the block variance.
func scalePrimary(primary, variance int) int {
	if variance == 0 {
		return 0
	}
	varianceStrength := 0
	if variance>>6 != 0 {
		varianceStrength = min(floorLog2(variance>>6), 12)
	}
	return (primary*(4+varianceStrength) + 8) >> 4
}

func floorLog2(n int) int {
	l := -1
	for n > 0 {
		n >>= 1
		l++
	}
	return l
}

func align64(n int) int {
	return (n + 63) &^ 63
}

func copyPixels[T pixel](src []T, srcOff, srcStride int, dst []T, dstOff, dstStride, width, height int) {
	for y := 0; y < height; y++ {
		copy(dst[dstOff+y*dstStride:dstOff+y*dstStride+width], src[srcOff+y*srcStride:srcOff+y*srcStride+width])
	}
}
