// Package payload implements the ambient packet-payload compression
// extension of §4.3: a packet-level compressor wrapping already bit-packed
// bytestream payloads, orthogonal to codec framing and negotiated once per
// compressed-vector section.
package payload

import (
	"bytes"
	"io"

	"github.com/e57io/e57cv/e57err"
)

// CompressionType identifies the payload compression algorithm in effect
// for a section, stored in the section header's flags byte.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZstd   CompressionType = 3
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Compressor compresses/decompresses whole packet payloads. Implementations
// must round-trip exactly: Decompress(Compress(x)) == x.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	CompressTo(dst *bytes.Buffer, src []byte) error
	Decompress(data []byte) (io.ReadCloser, error)
	Type() CompressionType
}

// ForType returns the Compressor for a negotiated section compression type.
func ForType(t CompressionType) (Compressor, error) {
	switch t {
	case CompressionNone:
		return &NoneCompressor{}, nil
	case CompressionSnappy:
		return NewSnappyCompressor(), nil
	case CompressionLZ4:
		return NewLZ4Compressor(), nil
	case CompressionZstd:
		return NewZstdCompressor(), nil
	default:
		return nil, e57err.BadApiArgument("compressionType", t.String(), "unknown payload compression type")
	}
}
