package cdef

import "github.com/T3-Labs/edge-av1/pkg/dsp"

// prepareBlock copies the source of a unit, plus CdefBorder samples on each
// side, into block. Samples beyond the frame edges become CdefLargeValue so
// that the filter ignores them.
func (p *pass[T]) prepareBlock(block *cdefBlock, width4x4, height4x4, row4x4, column4x4 int) {
	for plane := 0; plane < p.planes; plane++ {
		ssx, ssy := p.subsamplingX[plane], p.subsamplingY[plane]
		startX := (4 * column4x4) >> ssx
		startY := (4 * row4x4) >> ssy
		blockWidth := (4 * width4x4) >> ssx
		blockHeight := (4 * height4x4) >> ssy
		unitWidth := alignTo(blockWidth, ssx)
		unitHeight := alignTo(blockHeight, ssy)
		frameLeft := column4x4 == 0
		frameRight := startX+blockWidth >= p.width[plane]
		frameTop := row4x4 == 0
		frameBottom := startY+blockHeight >= p.height[plane]

		src := p.src[plane]
		srcOff := startY*src.stride + startX
		if !frameTop {
			srcOff -= dsp.CdefBorder * src.stride
		}
		out := block[plane*blockPlaneSize : (plane+1)*blockPlaneSize]
		outOff := dsp.CdefBorder

		for y := 0; y < dsp.CdefBorder; y++ {
			if frameTop {
				fillLargeValue(out[outOff-dsp.CdefBorder : outOff+unitWidth+dsp.CdefBorder])
			} else {
				copyRow(src.data, srcOff, blockWidth, unitWidth, frameLeft, frameRight, out, outOff)
				srcOff += src.stride
			}
			outOff += blockSizeWithBorders
		}
		for y := 0; y < blockHeight; y++ {
			copyRow(src.data, srcOff, blockWidth, unitWidth, frameLeft, frameRight, out, outOff)
			srcOff += src.stride
			outOff += blockSizeWithBorders
		}
		for y := 0; y < dsp.CdefBorder+unitHeight-blockHeight; y++ {
			if frameBottom {
				fillLargeValue(out[outOff-dsp.CdefBorder : outOff+unitWidth+dsp.CdefBorder])
			} else {
				copyRow(src.data, srcOff, blockWidth, unitWidth, frameLeft, frameRight, out, outOff)
				srcOff += src.stride
			}
			outOff += blockSizeWithBorders
		}
	}
}

// alignTo rounds a block dimension up to the filter granularity: 8 samples,
// or 4 on a subsampled axis.
func alignTo(n, subsampling int) int {
	if subsampling > 0 {
		return (n + 3) &^ 3
	}
	return (n + 7) &^ 7
}

// copyRow writes one row of the bordered block. dst[dstOff] receives
// src[srcOff]; CdefBorder samples to the left and up to unitWidth+CdefBorder
// to the right are filled too.
func copyRow[T pixel](src []T, srcOff, blockWidth, unitWidth int, frameLeft, frameRight bool, dst []uint16, dstOff int) {
	for x := -dsp.CdefBorder; x < 0; x++ {
		if frameLeft {
			dst[dstOff+x] = dsp.CdefLargeValue
		} else {
			dst[dstOff+x] = uint16(src[srcOff+x])
		}
	}
	row := src[srcOff : srcOff+blockWidth]
	for x, v := range row {
		dst[dstOff+x] = uint16(v)
	}
	for x := blockWidth; x < unitWidth+dsp.CdefBorder; x++ {
		if frameRight {
			dst[dstOff+x] = dsp.CdefLargeValue
		} else {
			dst[dstOff+x] = uint16(src[srcOff+x])
		}
	}
}

func fillLargeValue(s []uint16) {
	for i := range s {
		s[i] = dsp.CdefLargeValue
	}
}
