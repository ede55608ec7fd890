package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	c, err := NewCompressor(3)
	require.NoError(t, err)
	defer c.Close()

	plane := bytes.Repeat([]byte{16, 17, 18, 235}, 4096)
	compressed := c.Compress(nil, plane)
	assert.Less(t, len(compressed), len(plane))

	out, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, plane, out)
}

func TestCompressReusesBuffer(t *testing.T) {
	c, err := NewCompressor(1)
	require.NoError(t, err)
	defer c.Close()

	scratch := make([]byte, 0, 1<<16)
	first := c.Compress(scratch, []byte("frame 1"))
	second := c.Compress(first, []byte("frame 2"))
	assert.Equal(t, &scratch[:1][0], &second[0], "compressed output lands in the caller's buffer")

	out, err := Decompress(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame 2"), out)
	assert.Equal(t, 1, c.Level())
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not zstd"))
	assert.Error(t, err)
}
