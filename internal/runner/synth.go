package runner

import (
	"math/rand"

	"github.com/T3-Labs/edge-av1/pkg/cdef"
	"github.com/T3-Labs/edge-av1/pkg/frame"
)

// synthesizer stands in for reconstruction: it paints a moving gradient with
// blocky noise so the filter has edges and texture to work on.
type synthesizer struct {
	rng      *rand.Rand
	bitdepth int
	skipPct  int
	indices  int
}

// paintRows fills luma rows [y0, y1) and the chroma rows they cover.
func (s *synthesizer) paintRows(yuv *frame.YuvBuffer, sequence int64, y0, y1 int) {
	for plane := 0; plane < yuv.NumPlanes(); plane++ {
		py0, py1 := y0, y1
		if plane != frame.PlaneY {
			ss := yuv.SubsamplingY()
			py0 = y0 >> ss
			py1 = min((y1+ss)>>ss, yuv.Height(plane))
		}
		for y := py0; y < py1; y++ {
			s.paintRow(yuv, plane, y, sequence)
		}
	}
}

func (s *synthesizer) paintRow(yuv *frame.YuvBuffer, plane, y int, sequence int64) {
	maxValue := 1<<s.bitdepth - 1
	shift := s.bitdepth - 8
	width := yuv.Width(plane)
	offset := int(sequence) * 3
	for x := 0; x < width; x++ {
		base := ((x+offset)*2 + y + plane*40) & 0xff
		if (x>>3+y>>3)&1 == 1 {
			base = 255 - base
		}
		v := min(max(base<<shift+s.rng.Intn(17<<shift)-(8<<shift), 0), maxValue)
		if s.bitdepth > 8 {
			yuv.Data16(plane)[y*yuv.Stride(plane)/2+x] = uint16(v)
		} else {
			yuv.Data(plane)[y*yuv.Stride(plane)+x] = uint8(v)
		}
	}
}

// fillSide randomizes the per-frame CDEF side information: one strength
// index per 64x64 unit (-1 about one unit in eight) and the skip flags.
func (s *synthesizer) fillSide(index *frame.Array2D[int8], skip *cdef.SkipGrid) {
	for r := 0; r < index.Rows(); r++ {
		row := index.Row(r)
		for c := range row {
			if s.rng.Intn(8) == 0 {
				row[c] = -1
				continue
			}
			row[c] = int8(s.rng.Intn(s.indices))
		}
	}
	// Skip is coded per 8x8 block, so both 4x4 rows and columns share it.
	for r := 0; r < skip.Rows(); r += 2 {
		for c := 0; c < skip.Columns(); c += 2 {
			v := s.rng.Intn(100) < s.skipPct
			for dr := 0; dr < 2 && r+dr < skip.Rows(); dr++ {
				for dc := 0; dc < 2 && c+dc < skip.Columns(); dc++ {
					skip.Set(r+dr, c+dc, v)
				}
			}
		}
	}
}
