// Package packet implements the bit-exact wire framing of §6: packet
// headers, Data packets, Index packets, and the compressed-vector section
// header.
package packet

import (
	"encoding/binary"

	"github.com/e57io/e57cv/e57err"
)

// Kind is the packet-kind byte in a packet header.
type Kind uint8

const (
	KindIgnored Kind = 0
	KindData    Kind = 1
	KindIndex   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindIndex:
		return "Index"
	case KindIgnored:
		return "Ignored"
	default:
		return "Unknown"
	}
}

// HeaderSize is the fixed 4-byte packet header: {u8 kind, u8 flags, u16
// logicalLengthMinus1}.
const HeaderSize = 4

// MaxLogicalLength is the 64 KiB ceiling a packet's logical length must
// respect so logicalLengthMinus1 fits in 16 bits.
const MaxLogicalLength = 1 << 16

// Header is the common prefix of every packet.
type Header struct {
	Kind                Kind
	Flags               uint8
	LogicalLengthMinus1 uint16
}

// LogicalLength is the full on-disk length of the packet, header included.
func (h Header) LogicalLength() int { return int(h.LogicalLengthMinus1) + 1 }

// ParseHeader reads the 4-byte header prefix of a packet.
func ParseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, e57err.BadCVPacketf("packet header truncated: have %d bytes, need %d", len(raw), HeaderSize)
	}
	return Header{
		Kind:                Kind(raw[0]),
		Flags:               raw[1],
		LogicalLengthMinus1: binary.LittleEndian.Uint16(raw[2:4]),
	}, nil
}

func (h Header) marshalInto(buf []byte) {
	buf[0] = byte(h.Kind)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.LogicalLengthMinus1)
}

// DataPacket is a parsed Data packet: per-bytestream payload slices, indexed
// by bytestream number, sliced directly out of the packet's raw backing
// bytes (no copy).
type DataPacket struct {
	Header   Header
	Payloads [][]byte // Payloads[bytestreamNumber]
}

// ParseDataPacket parses a Data packet already known to start at raw[0].
// raw must contain at least Header.LogicalLength() bytes.
func ParseDataPacket(raw []byte) (*DataPacket, error) {
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.Kind != KindData {
		return nil, e57err.BadCVPacketf("expected Data packet, got kind %d (%s)", h.Kind, h.Kind)
	}
	logicalLen := h.LogicalLength()
	if len(raw) < logicalLen {
		return nil, e57err.BadCVPacketf("data packet truncated: have %d bytes, need %d", len(raw), logicalLen)
	}
	off := HeaderSize
	if off+2 > logicalLen {
		return nil, e57err.BadCVPacket("data packet missing bytestreamCount")
	}
	bytestreamCount := int(binary.LittleEndian.Uint16(raw[off : off+2]))
	off += 2
	if off+2*bytestreamCount > logicalLen {
		return nil, e57err.BadCVPacket("data packet payload-length array truncated")
	}
	lengths := make([]int, bytestreamCount)
	for k := 0; k < bytestreamCount; k++ {
		lengths[k] = int(binary.LittleEndian.Uint16(raw[off : off+2]))
		off += 2
	}
	payloads := make([][]byte, bytestreamCount)
	for k, l := range lengths {
		if off+l > logicalLen {
			return nil, e57err.BadCVPacketf("data packet payload %d overruns packet bounds", k)
		}
		payloads[k] = raw[off : off+l]
		off += l
	}
	return &DataPacket{Header: h, Payloads: payloads}, nil
}

// MarshalDataPacket builds the raw bytes of a Data packet carrying payloads
// in bytestream-number order (payloads[k] for bytestream k; may be
// zero-length but must be present for every contributing stream).
func MarshalDataPacket(payloads [][]byte, flags uint8) ([]byte, error) {
	bytestreamCount := len(payloads)
	if bytestreamCount > 0xFFFF {
		return nil, e57err.BadCVPacket("too many bytestreams for one packet")
	}
	total := 0
	for _, p := range payloads {
		total += len(p)
	}
	logicalLen := HeaderSize + 2 + 2*bytestreamCount + total
	if logicalLen > MaxLogicalLength {
		return nil, e57err.BadCVPacketf("packet logical length %d exceeds %d byte ceiling", logicalLen, MaxLogicalLength)
	}
	buf := make([]byte, logicalLen)
	h := Header{Kind: KindData, Flags: flags, LogicalLengthMinus1: uint16(logicalLen - 1)}
	h.marshalInto(buf)
	off := HeaderSize
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(bytestreamCount))
	off += 2
	for _, p := range payloads {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(p)))
		off += 2
	}
	for _, p := range payloads {
		copy(buf[off:], p)
		off += len(p)
	}
	return buf, nil
}

// IndexEntry is one checkpoint in an Index packet: the physical offset of
// the Data packet holding the given record number.
type IndexEntry struct {
	RecordNumber   uint64
	PhysicalOffset uint64
}

// MarshalIndexPacket builds an Index packet carrying a sparse table of
// record-number checkpoints. The forward-streaming Reader never parses this
// payload; it only reads the header to skip past it like any non-Data
// packet. Within this module only ParseIndexPacket decodes the table;
// cmd/e57inspect does not read it.
func MarshalIndexPacket(entries []IndexEntry) ([]byte, error) {
	logicalLen := HeaderSize + 4 + 16*len(entries)
	if logicalLen > MaxLogicalLength {
		return nil, e57err.BadCVPacket("index packet exceeds 64 KiB ceiling; split into multiple packets")
	}
	buf := make([]byte, logicalLen)
	h := Header{Kind: KindIndex, LogicalLengthMinus1: uint16(logicalLen - 1)}
	h.marshalInto(buf)
	off := HeaderSize
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(entries)))
	off += 4
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], e.RecordNumber)
		off += 8
		binary.LittleEndian.PutUint64(buf[off:off+8], e.PhysicalOffset)
		off += 8
	}
	return buf, nil
}

// ParseIndexPacket reads back the entries written by MarshalIndexPacket.
func ParseIndexPacket(raw []byte) ([]IndexEntry, error) {
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.Kind != KindIndex {
		return nil, e57err.BadCVPacketf("expected Index packet, got kind %d", h.Kind)
	}
	off := HeaderSize
	if off+4 > len(raw) {
		return nil, e57err.BadCVPacket("index packet missing entry count")
	}
	count := int(binary.LittleEndian.Uint32(raw[off : off+4]))
	off += 4
	entries := make([]IndexEntry, 0, count)
	for k := 0; k < count; k++ {
		if off+16 > len(raw) {
			return nil, e57err.BadCVPacket("index packet truncated")
		}
		entries = append(entries, IndexEntry{
			RecordNumber:   binary.LittleEndian.Uint64(raw[off : off+8]),
			PhysicalOffset: binary.LittleEndian.Uint64(raw[off+8 : off+16]),
		})
		off += 16
	}
	return entries, nil
}

// SectionID identifies a compressed-vector section header.
const SectionIDCompressedVector uint8 = 1

// SectionHeaderSize is the fixed on-disk size of a SectionHeader.
const SectionHeaderSize = 1 + 8 + 8 + 8 + 8 + 1

// SectionHeader is the compressed-vector section header of §3/§6.
type SectionHeader struct {
	SectionID           uint8
	SectionLogicalLength uint64
	DataPhysicalOffset   uint64
	IndexPhysicalOffset  uint64 // 0 when no Index packets were emitted
	RecordCount          uint64

	// Flags carries section-wide negotiated options, one byte, set once at
	// write time and never reinterpreted per packet. Its only occupant today
	// is the low byte's payload.CompressionType (§4.3 ambient addition).
	Flags uint8
}

func ParseSectionHeader(raw []byte) (SectionHeader, error) {
	if len(raw) < SectionHeaderSize {
		return SectionHeader{}, e57err.BadCVPacketf("section header truncated: have %d bytes, need %d", len(raw), SectionHeaderSize)
	}
	sh := SectionHeader{
		SectionID:            raw[0],
		SectionLogicalLength: binary.LittleEndian.Uint64(raw[1:9]),
		DataPhysicalOffset:   binary.LittleEndian.Uint64(raw[9:17]),
		IndexPhysicalOffset:  binary.LittleEndian.Uint64(raw[17:25]),
		RecordCount:          binary.LittleEndian.Uint64(raw[25:33]),
		Flags:                raw[33],
	}
	if sh.SectionID != SectionIDCompressedVector {
		return SectionHeader{}, e57err.BadCVPacketf("unexpected section id %d, want %d", sh.SectionID, SectionIDCompressedVector)
	}
	return sh, nil
}

func (sh SectionHeader) Marshal() []byte {
	buf := make([]byte, SectionHeaderSize)
	buf[0] = sh.SectionID
	binary.LittleEndian.PutUint64(buf[1:9], sh.SectionLogicalLength)
	binary.LittleEndian.PutUint64(buf[9:17], sh.DataPhysicalOffset)
	binary.LittleEndian.PutUint64(buf[17:25], sh.IndexPhysicalOffset)
	binary.LittleEndian.PutUint64(buf[25:33], sh.RecordCount)
	buf[33] = sh.Flags
	return buf
}
