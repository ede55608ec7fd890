package dump

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/T3-Labs/edge-av1/pkg/frame"
)

var ErrBadDump = errors.New("malformed frame dump")

var magic = [4]byte{'A', 'V', '1', 'F'}

const headerSize = 16

// Header precedes the raw planes of a dump. Planes follow in Y, U, V order,
// row by row with no padding, samples little-endian when Bitdepth > 8.
type Header struct {
	Bitdepth     int
	Monochrome   bool
	SubsamplingX int
	SubsamplingY int
	Width        int
	Height       int
}

func (h Header) pixelSize() int {
	if h.Bitdepth > 8 {
		return 2
	}
	return 1
}

func (h Header) planeSize(plane int) (width, height int) {
	if plane == frame.PlaneY {
		return h.Width, h.Height
	}
	return (h.Width + h.SubsamplingX) >> h.SubsamplingX, (h.Height + h.SubsamplingY) >> h.SubsamplingY
}

func (h Header) numPlanes() int {
	if h.Monochrome {
		return 1
	}
	return frame.MaxPlanes
}

// Serialize copies the visible samples of every plane after a Header.
func Serialize(yuv *frame.YuvBuffer) []byte {
	h := Header{
		Bitdepth:     yuv.BitDepth(),
		Monochrome:   yuv.IsMonochrome(),
		SubsamplingX: yuv.SubsamplingX(),
		SubsamplingY: yuv.SubsamplingY(),
		Width:        yuv.Width(frame.PlaneY),
		Height:       yuv.Height(frame.PlaneY),
	}
	size := headerSize
	for p := 0; p < yuv.NumPlanes(); p++ {
		size += yuv.Width(p) * yuv.Height(p) * yuv.PixelSize()
	}

	out := make([]byte, 0, size)
	out = appendHeader(out, h)
	for p := 0; p < yuv.NumPlanes(); p++ {
		data, stride := yuv.Data(p), yuv.Stride(p)
		rowBytes := yuv.Width(p) * yuv.PixelSize()
		for y := 0; y < yuv.Height(p); y++ {
			out = append(out, data[y*stride:y*stride+rowBytes]...)
		}
	}
	return out
}

func appendHeader(b []byte, h Header) []byte {
	b = append(b, magic[:]...)
	mono := byte(0)
	if h.Monochrome {
		mono = 1
	}
	b = append(b, byte(h.Bitdepth), mono, byte(h.SubsamplingX), byte(h.SubsamplingY))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Width))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Height))
	return b
}

// Parse splits a serialized dump back into its header and planes.
func Parse(data []byte) (Header, [][]byte, error) {
	if len(data) < headerSize || [4]byte(data[:4]) != magic {
		return Header{}, nil, fmt.Errorf("%w: bad header", ErrBadDump)
	}
	h := Header{
		Bitdepth:     int(data[4]),
		Monochrome:   data[5] != 0,
		SubsamplingX: int(data[6]),
		SubsamplingY: int(data[7]),
		Width:        int(binary.LittleEndian.Uint32(data[8:])),
		Height:       int(binary.LittleEndian.Uint32(data[12:])),
	}

	rest := data[headerSize:]
	planes := make([][]byte, 0, h.numPlanes())
	for p := 0; p < h.numPlanes(); p++ {
		w, ht := h.planeSize(p)
		n := w * ht * h.pixelSize()
		if len(rest) < n {
			return Header{}, nil, fmt.Errorf("%w: plane %d truncated (%d < %d)", ErrBadDump, p, len(rest), n)
		}
		planes = append(planes, rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return Header{}, nil, fmt.Errorf("%w: %d trailing bytes", ErrBadDump, len(rest))
	}
	return h, planes, nil
}
