package payload

import (
	"bytes"
	"io"
)

// NoneCompressor is the identity "compressor": packet payloads pass through
// unchanged. This is the section default when no payload compression is
// negotiated.
type NoneCompressor struct{}

type passthroughReader struct {
	*bytes.Reader
}

func (passthroughReader) Close() error { return nil }

var _ Compressor = (*NoneCompressor)(nil)

func (c *NoneCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (c *NoneCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	return passthroughReader{Reader: bytes.NewReader(data)}, nil
}

func (c *NoneCompressor) Type() CompressionType { return CompressionNone }

func (c *NoneCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	_, err := dst.Write(src)
	return err
}
