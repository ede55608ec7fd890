package dsp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill8(value func(y, x int) uint8) []uint8 {
	block := make([]uint8, 8*8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			block[y*8+x] = value(y, x)
		}
	}
	return block
}

// bordered builds a (h+4) x (w+4) filter input around the given samples, with
// the border filled by CdefLargeValue.
func bordered(width, height int, value func(y, x int) uint16) ([]uint16, int, int) {
	stride := width + 2*CdefBorder
	src := make([]uint16, stride*(height+2*CdefBorder))
	for i := range src {
		src[i] = CdefLargeValue
	}
	off := CdefBorder*stride + CdefBorder
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src[off+y*stride+x] = value(y, x)
		}
	}
	return src, off, stride
}

func TestGetDspTable(t *testing.T) {
	table := GetDspTable(8)
	require.NotNil(t, table)
	assert.NotNil(t, table.CdefDirection8)
	assert.NotNil(t, table.CdefFilter8)
	assert.Nil(t, table.CdefFilter16)

	for _, bitdepth := range []int{10, 12} {
		table := GetDspTable(bitdepth)
		require.NotNil(t, table)
		assert.Equal(t, bitdepth, table.Bitdepth)
		assert.NotNil(t, table.CdefDirection16)
		assert.NotNil(t, table.CdefFilter16)
	}

	assert.Nil(t, GetDspTable(9))
	assert.Same(t, GetDspTable(10), GetDspTable(10))
}

func TestCdefDirectionConstantBlock(t *testing.T) {
	table := GetDspTable(8)
	for _, v := range []uint8{0, 128, 200, 255} {
		direction, variance := table.CdefDirection8(fill8(func(int, int) uint8 { return v }), 0, 8)
		assert.Equal(t, 0, direction, "value %d", v)
		assert.Equal(t, 0, variance, "value %d", v)
	}
}

func TestCdefDirectionStripes(t *testing.T) {
	table := GetDspTable(8)

	horizontal := fill8(func(y, _ int) uint8 {
		if y%2 == 0 {
			return 0
		}
		return 255
	})
	direction, variance := table.CdefDirection8(horizontal, 0, 8)
	assert.Equal(t, 2, direction)
	assert.Greater(t, variance, 0)

	vertical := fill8(func(_, x int) uint8 {
		if x%2 == 0 {
			return 0
		}
		return 255
	})
	direction, variance = table.CdefDirection8(vertical, 0, 8)
	assert.Equal(t, 6, direction)
	assert.Greater(t, variance, 0)
}

func TestCdefDirectionHighBitdepthMatches8Bit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	block8 := fill8(func(int, int) uint8 { return uint8(rng.Intn(256)) })

	block10 := make([]uint16, len(block8))
	for i, v := range block8 {
		block10[i] = uint16(v)<<2 | 3
	}

	d8, v8 := GetDspTable(8).CdefDirection8(block8, 0, 8)
	d10, v10 := GetDspTable(10).CdefDirection16(block10, 0, 8)
	assert.Equal(t, d8, d10)
	assert.Equal(t, v8, v10)
}

func TestCdefDirectionHonoursOffset(t *testing.T) {
	stride := 12
	plane := make([]uint8, stride*10)
	for i := range plane {
		plane[i] = 128
	}
	off := 2*stride + 3
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x%2 == 1 {
				plane[off+y*stride+x] = 255
			}
		}
	}

	direction, variance := GetDspTable(8).CdefDirection8(plane, off, stride)
	assert.Equal(t, 6, direction)
	assert.Greater(t, variance, 0)
}

func TestConstrain(t *testing.T) {
	tests := []struct {
		diff, threshold, damping, want int
	}{
		{diff: 5, threshold: 0, damping: 3, want: 0},
		{diff: 3, threshold: 8, damping: 3, want: 3},
		{diff: -3, threshold: 8, damping: 3, want: -3},
		{diff: 40, threshold: 8, damping: 3, want: 3},
		{diff: -40, threshold: 8, damping: 3, want: -3},
		{diff: 100, threshold: 8, damping: 3, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, constrain(tt.diff, tt.threshold, tt.damping), "%+v", tt)
	}
}

func TestFloorLog2(t *testing.T) {
	assert.Equal(t, 0, floorLog2(1))
	assert.Equal(t, 1, floorLog2(3))
	assert.Equal(t, 3, floorLog2(15))
	assert.Equal(t, 4, floorLog2(16))
}

func TestCdefFilterZeroStrengthCopies(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src, off, stride := bordered(8, 8, func(int, int) uint16 { return uint16(rng.Intn(256)) })

	dst := make([]uint8, 64)
	GetDspTable(8).CdefFilter8(src, off, stride, 8, 8, 0, 0, 3, 5, dst, 0, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, uint8(src[off+y*stride+x]), dst[y*8+x])
		}
	}
}

func TestCdefFilterConstantBlockUnchanged(t *testing.T) {
	src, off, stride := bordered(8, 8, func(int, int) uint16 { return 90 })

	dst := make([]uint8, 64)
	for direction := 0; direction < 8; direction++ {
		GetDspTable(8).CdefFilter8(src, off, stride, 8, 8, 15, 4, 6, direction, dst, 0, 8)
		for _, v := range dst {
			require.Equal(t, uint8(90), v)
		}
	}
}

func TestCdefFilterIgnoresSentinel(t *testing.T) {
	// A 4x4 block whose every neighbour outside the block is CdefLargeValue
	// must stay within the range of its own samples.
	src, off, stride := bordered(4, 4, func(y, x int) uint16 { return uint16(100 + 10*y + x) })

	dst := make([]uint16, 16)
	GetDspTable(10).CdefFilter16(src, off, stride, 4, 4, 60, 16, 8, 0, dst, 0, 4)
	for _, v := range dst {
		assert.GreaterOrEqual(t, v, uint16(100))
		assert.LessOrEqual(t, v, uint16(133))
	}
}

func TestCdefFilterSmoothsSpike(t *testing.T) {
	src, off, stride := bordered(8, 8, func(y, x int) uint16 {
		if y == 4 && x == 4 {
			return 110
		}
		return 100
	})

	dst := make([]uint8, 64)
	GetDspTable(8).CdefFilter8(src, off, stride, 8, 8, 8, 2, 5, 2, dst, 0, 8)

	assert.Less(t, dst[4*8+4], uint8(110))
	assert.GreaterOrEqual(t, dst[4*8+4], uint8(100))
	assert.Equal(t, uint8(100), dst[0])
}

func TestCdefFilterWritesOnlyBlock(t *testing.T) {
	src, off, stride := bordered(4, 4, func(int, int) uint16 { return 50 })

	dst := make([]uint8, 6*6)
	for i := range dst {
		dst[i] = 7
	}
	GetDspTable(8).CdefFilter8(src, off, stride, 4, 4, 4, 1, 4, 3, dst, 6+1, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			want := uint8(7)
			if y >= 1 && y < 5 && x >= 1 && x < 5 {
				want = 50
			}
			assert.Equal(t, want, dst[y*6+x], "(%d,%d)", y, x)
		}
	}
}

func BenchmarkCdefFilter8(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	src, off, stride := bordered(8, 8, func(int, int) uint16 { return uint16(rng.Intn(256)) })
	dst := make([]uint8, 64)
	table := GetDspTable(8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table.CdefFilter8(src, off, stride, 8, 8, 10, 2, 5, i&7, dst, 0, 8)
	}
}
