// Package cdef implements the AV1 Constrained Directional Enhancement Filter
// post-filter stage over reconstructed frames.
package cdef

import (
	"github.com/T3-Labs/edge-av1/pkg/dsp"
	"github.com/T3-Labs/edge-av1/pkg/frame"
)

const (
	// Step64x64 is the width of a filter unit in 4x4 blocks.
	Step64x64 = 16

	// Filtering works on 8x8 luma blocks, two 4x4 blocks per side.
	blockStep    = 8
	blockStep4x4 = 2

	// Rows of a 64x64 unit that cannot be filtered before the next unit row
	// is reconstructed.
	lagRows4x4 = 2

	blockSizeWithBorders = 64 + 2*dsp.CdefBorder
	blockPlaneSize       = blockSizeWithBorders * blockSizeWithBorders
)

// uvDirection maps the luma direction onto chroma, indexed by
// [subsamplingX][subsamplingY][direction].
var uvDirection = [2][2][8]uint8{
	{{0, 1, 2, 3, 4, 5, 6, 7}, {1, 2, 2, 2, 3, 4, 6, 0}},
	{{7, 0, 2, 4, 5, 6, 6, 6}, {0, 1, 2, 3, 4, 5, 6, 7}},
}

// Params are the CDEF fields of a frame header. Strengths and damping are
// already scaled for the bit depth: primary strengths shifted left by
// bitdepth-8, secondary strengths mapped 3 -> 4 and shifted, damping
// increased by bitdepth-8.
type Params struct {
	Damping     int
	YPrimary    [8]int
	YSecondary  [8]int
	UVPrimary   [8]int
	UVSecondary [8]int
}

// NewParams decodes header-coded strengths into Params. Each strength packs
// the primary strength in bits 2..5 and the secondary one in bits 0..1, where
// a coded secondary of 3 means 4. damping is the coded value (3..6).
func NewParams(bitdepth, damping int, yStrengths, uvStrengths []int) Params {
	shift := bitdepth - 8
	p := Params{Damping: damping + shift}
	decode := func(v int) (primary, secondary int) {
		secondary = v & 3
		if secondary == 3 {
			secondary++
		}
		return (v >> 2) << shift, secondary << shift
	}
	for i, v := range yStrengths {
		p.YPrimary[i], p.YSecondary[i] = decode(v)
	}
	for i, v := range uvStrengths {
		p.UVPrimary[i], p.UVSecondary[i] = decode(v)
	}
	return p
}

// SkipMap reports whether a 4x4 block was coded with skip.
type SkipMap interface {
	Skip(row4x4, column4x4 int) bool
}

// Scheduler runs closures on background workers. worker.Pool satisfies it.
type Scheduler interface {
	Schedule(fn func())
	NumThreads() int
}

// Frame is one CDEF pass input. Source holds the reconstructed pixels and is
// only read; the result lands in Destination, which must have the same
// geometry. Index holds one strength index per 64x64 unit, -1 meaning the
// unit is left unfiltered.
type Frame struct {
	Source      *frame.YuvBuffer
	Destination *frame.YuvBuffer
	Rows4x4     int
	Columns4x4  int
	Index       *frame.Array2D[int8]
	Skip        SkipMap
	Params      Params
}

// SkipGrid is a SkipMap backed by one flag per 4x4 block.
type SkipGrid struct {
	frame.Array2D[bool]
}

func NewSkipGrid(rows4x4, columns4x4 int) (*SkipGrid, error) {
	g := &SkipGrid{}
	if err := g.Reset(rows4x4, columns4x4); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *SkipGrid) Skip(row4x4, column4x4 int) bool {
	return g.At(row4x4, column4x4)
}

// IndexGridSize returns the size of the per-64x64 index grid for a frame.
func IndexGridSize(rows4x4, columns4x4 int) (rows, columns int) {
	return (rows4x4 + Step64x64 - 1) / Step64x64, (columns4x4 + Step64x64 - 1) / Step64x64
}
