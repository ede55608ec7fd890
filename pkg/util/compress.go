package util

import (
	"fmt"
	"sync"

	zstd "github.com/klauspost/compress/zstd"
)

// Compressor wraps one zstd encoder shared by all callers. EncodeAll is safe
// for concurrent use.
type Compressor struct {
	encoder *zstd.Encoder
	level   int
}

// NewCompressor takes a zstd level (1 fastest .. 22 best) and maps it onto the
// encoder's speed presets.
func NewCompressor(level int) (*Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd new writer: %w", err)
	}
	return &Compressor{encoder: enc, level: level}, nil
}

func (c *Compressor) Level() int {
	return c.level
}

// Compress encodes data into dst's backing array, growing it when needed.
func (c *Compressor) Compress(dst, data []byte) []byte {
	return c.encoder.EncodeAll(data, dst[:0])
}

func (c *Compressor) Close() error {
	return c.encoder.Close()
}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func Decompress(data []byte) ([]byte, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	if decoderErr != nil {
		return nil, fmt.Errorf("zstd new reader: %w", decoderErr)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
