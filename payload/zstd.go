package payload

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements Compressor using zstd, reusing encoders and
// decoders through sync.Pool since both are expensive to construct and are
// safe for sequential reuse.
type ZstdCompressor struct{}

var _ Compressor = (*ZstdCompressor)(nil)

func NewZstdCompressor() *ZstdCompressor { return &ZstdCompressor{} }

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("zstd: failed to construct encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("zstd: failed to construct decoder: %v", err))
		}
		return dec
	},
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	out := enc.EncodeAll(data, nil)
	return out, nil
}

func (c *ZstdCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	dst.Write(enc.EncodeAll(src, nil))
	return nil
}

type zstdReadCloser struct {
	*bytes.Reader
}

func (zstdReadCloser) Close() error { return nil }

func (c *ZstdCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return zstdReadCloser{Reader: bytes.NewReader(out)}, nil
}

func (c *ZstdCompressor) Type() CompressionType { return CompressionZstd }
