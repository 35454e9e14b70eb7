package payload

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForType_ReturnsMatchingCompressor(t *testing.T) {
	for _, typ := range []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZstd} {
		c, err := ForType(typ)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, c.Type())
	}
}

func TestForType_RejectsUnknownType(t *testing.T) {
	_, err := ForType(CompressionType(99))
	assert.Error(t, err)
}

func TestCompressionType_String(t *testing.T) {
	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "snappy", CompressionSnappy.String())
	assert.Equal(t, "lz4", CompressionLZ4.String())
	assert.Equal(t, "zstd", CompressionZstd.String())
	assert.Equal(t, "unknown", CompressionType(99).String())
}

func TestCompressor_CompressDecompressRoundTrips(t *testing.T) {
	original := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 64)

	for _, typ := range []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := ForType(typ)
			require.NoError(t, err)

			compressed, err := c.Compress(original)
			require.NoError(t, err)

			rc, err := c.Decompress(compressed)
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestCompressor_CompressToRoundTrips(t *testing.T) {
	original := []byte("a small payload")

	for _, typ := range []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := ForType(typ)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, c.CompressTo(&buf, original))

			rc, err := c.Decompress(buf.Bytes())
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestCompressor_EmptyInputRoundTrips(t *testing.T) {
	for _, typ := range []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := ForType(typ)
			require.NoError(t, err)

			compressed, err := c.Compress(nil)
			require.NoError(t, err)

			rc, err := c.Decompress(compressed)
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}
