// Package codec implements the per-bytestream encoders and decoders of
// §4.3: bit-packed integer, scaled integer, IEEE-754 float, and
// length-prefixed string, each bound to one proto terminal and one sdb
// Buffer.
package codec

import (
	"github.com/e57io/e57cv/e57err"
	"github.com/e57io/e57cv/proto"
	"github.com/e57io/e57cv/sdb"
)

// Decoder is the read-side half of a per-bytestream codec.
type Decoder interface {
	// InputProcess feeds raw payload bytes from a data packet. A nil or
	// empty slice is a flush-drain request: emit what can be emitted from
	// bytes already buffered internally. Returns the number of bytes from
	// data actually consumed; the engine must re-offer the remainder (it
	// advances its own index by the returned count, not by len(data)).
	InputProcess(data []byte) (int, error)
}

// ConstantDecoder is implemented by decoders whose field has zero wire
// width (an integer or scaled-integer node with min == max). Such a field
// carries no information in the packet stream at all, so the packetized
// Reader fills it directly from the other channels' record count instead of
// tracking packet offsets for it.
type ConstantDecoder interface {
	Decoder
	IsConstant() bool
	FillConstant(n int) error
}

// Encoder is the write-side half of a per-bytestream codec.
type Encoder interface {
	// Feed consumes up to maxRecords values from the bound buffer's read
	// cursor, appending encoded bytes to an internal output queue. Returns
	// the number of records actually consumed (less than maxRecords only
	// when the buffer itself is exhausted).
	Feed(maxRecords int) (int, error)
	// Drain returns up to maxBytes bytes from the output queue, removing
	// them from the queue.
	Drain(maxBytes int) []byte
	// Pending is the number of bytes currently queued awaiting Drain.
	Pending() int
	// Flush byte-aligns any partially filled trailing bits so Drain can
	// return everything queued. Call once before emitting a section's
	// final packet.
	Flush()
}

// NewDecoder builds the decoder appropriate to node's kind, bound to buf.
// maxRecords bounds the total number of records the decoder will ever
// produce (the section's RecordCount from its SectionHeader); bit-packed
// decoders need this to tell real data from a final packet's trailing
// byte-alignment padding.
func NewDecoder(node *proto.Node, buf *sdb.Buffer, maxRecords uint64) (Decoder, error) {
	switch node.Kind {
	case proto.KindSignedInteger, proto.KindUnsignedInteger, proto.KindBoolean:
		return newIntegerDecoder(node, buf, maxRecords), nil
	case proto.KindScaledInteger:
		return newScaledIntegerDecoder(node, buf, maxRecords), nil
	case proto.KindFloat32:
		return newFloatDecoder(buf, 32), nil
	case proto.KindFloat64:
		return newFloatDecoder(buf, 64), nil
	case proto.KindString:
		return newStringDecoder(buf), nil
	default:
		return nil, e57err.Internalf("no decoder for prototype kind %s", node.Kind)
	}
}

// NewEncoder builds the encoder appropriate to node's kind, bound to buf.
func NewEncoder(node *proto.Node, buf *sdb.Buffer) (Encoder, error) {
	switch node.Kind {
	case proto.KindSignedInteger, proto.KindUnsignedInteger, proto.KindBoolean:
		return newIntegerEncoder(node, buf), nil
	case proto.KindScaledInteger:
		return newScaledIntegerEncoder(node, buf), nil
	case proto.KindFloat32:
		return newFloatEncoder(buf, 32), nil
	case proto.KindFloat64:
		return newFloatEncoder(buf, 64), nil
	case proto.KindString:
		return newStringEncoder(buf), nil
	default:
		return nil, e57err.Internalf("no encoder for prototype kind %s", node.Kind)
	}
}

// IntegerWidth computes ceil(log2(max-min+1)) per §4.3: the number of bits
// needed to bit-pack every value in [min,max]. Returns 0 when min==max (a
// constant field that produces no wire bytes).
func IntegerWidth(min, max int64) uint {
	if max == min {
		return 0
	}
	span := uint64(max - min)
	values := span + 1 // wraps to 0 for the full int64 range (span == 2^64-1); values-1 then still yields 64 bits
	return bitLen(values - 1)
}

// bitLen returns the number of bits needed to represent v (0 for v==0).
func bitLen(v uint64) uint {
	n := uint(0)
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
