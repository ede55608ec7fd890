package dsp

import "sync"

// CdefDirection8Func estimates the dominant edge direction of the 8x8 block at
// src[off:] and how strongly the block follows it.
type CdefDirection8Func func(src []uint8, off, stride int) (direction, variance int)

type CdefDirection16Func func(src []uint16, off, stride int) (direction, variance int)

// CdefFilter8Func filters a width x height block. src is a bordered block of
// samples where CdefLargeValue marks samples outside the frame; srcOff is the
// offset of the first filtered sample and at least CdefBorder rows and columns
// of src lie around it. Strides are in samples.
type CdefFilter8Func func(src []uint16, srcOff, srcStride, width, height, primary, secondary, damping, direction int,
	dst []uint8, dstOff, dstStride int)

type CdefFilter16Func func(src []uint16, srcOff, srcStride, width, height, primary, secondary, damping, direction int,
	dst []uint16, dstOff, dstStride int)

// Dsp is the kernel table for one bit depth. The 8 bit table fills the *8
// entries and the high bit depth tables the *16 ones.
type Dsp struct {
	Bitdepth int

	CdefDirection8  CdefDirection8Func
	CdefFilter8     CdefFilter8Func
	CdefDirection16 CdefDirection16Func
	CdefFilter16    CdefFilter16Func
}

var (
	initOnce sync.Once
	tables   map[int]*Dsp
)

// Init fills the tables with the portable kernels. It is safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		tables = map[int]*Dsp{
			8: {
				Bitdepth:       8,
				CdefDirection8: cdefDirection8,
				CdefFilter8:    cdefFilter8,
			},
			10: newHighBitdepthTable(10),
			12: newHighBitdepthTable(12),
		}
	})
}

func newHighBitdepthTable(bitdepth int) *Dsp {
	return &Dsp{
		Bitdepth: bitdepth,
		CdefDirection16: func(src []uint16, off, stride int) (int, int) {
			return cdefDirection(src, off, stride, bitdepth)
		},
		CdefFilter16: func(src []uint16, srcOff, srcStride, width, height, primary, secondary, damping, direction int,
			dst []uint16, dstOff, dstStride int) {
			cdefFilter(src, srcOff, srcStride, width, height, primary, secondary, damping, direction,
				dst, dstOff, dstStride, bitdepth)
		},
	}
}

// GetDspTable returns the table for bitdepth, or nil when the depth is not
// one of 8, 10 or 12.
func GetDspTable(bitdepth int) *Dsp {
	Init()
	return tables[bitdepth]
}
