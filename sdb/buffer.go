// Package sdb implements the Source/Dest Buffer: a user-owned, strided
// memory region bound to one terminal path of a prototype, plus the value
// conversion and scaling matrix of §4.4 that governs transfers between a
// decoder/encoder and that memory.
package sdb

import (
	"encoding/binary"
	"math"

	"github.com/e57io/e57cv/e57err"
)

// Representation is the in-memory element type an SDB declares.
type Representation int

const (
	RepInvalid Representation = iota
	RepInt8
	RepInt16
	RepInt32
	RepInt64
	RepUInt8
	RepUInt16
	RepUInt32
	RepBool
	RepFloat32
	RepFloat64
	RepString
)

func (r Representation) String() string {
	switch r {
	case RepInt8:
		return "Int8"
	case RepInt16:
		return "Int16"
	case RepInt32:
		return "Int32"
	case RepInt64:
		return "Int64"
	case RepUInt8:
		return "UInt8"
	case RepUInt16:
		return "UInt16"
	case RepUInt32:
		return "UInt32"
	case RepBool:
		return "Bool"
	case RepFloat32:
		return "Float32"
	case RepFloat64:
		return "Float64"
	case RepString:
		return "String"
	default:
		return "Invalid"
	}
}

// ElemSize is the minimum stride for this representation, per
// SourceDestBuffer.cpp's checkInvariant: Int8/UInt8/Bool=1, Int16/UInt16=2,
// Int32/UInt32=4, Int64=8, Float32=4, Float64=8. Meaningless for RepString.
func (r Representation) ElemSize() int {
	switch r {
	case RepInt8, RepUInt8, RepBool:
		return 1
	case RepInt16, RepUInt16:
		return 2
	case RepInt32, RepUInt32, RepFloat32:
		return 4
	case RepInt64, RepFloat64:
		return 8
	default:
		return 0
	}
}

func (r Representation) isIntegerGroup() bool {
	switch r {
	case RepInt8, RepInt16, RepInt32, RepInt64, RepUInt8, RepUInt16, RepUInt32, RepBool:
		return true
	default:
		return false
	}
}

func (r Representation) isFloatGroup() bool {
	return r == RepFloat32 || r == RepFloat64
}

func (r Representation) isUnsigned() bool {
	switch r {
	case RepUInt8, RepUInt16, RepUInt32, RepBool:
		return true
	default:
		return false
	}
}

// Buffer is the type-erased tagged-variant SDB described in §9: one
// representation tag, a strided []byte-backed numeric accessor, or (for
// RepString) a string slice, plus the do-conversion/do-scaling policy flags
// and independent read/write cursors.
type Buffer struct {
	Path         string
	Rep          Representation
	Capacity     int
	Stride       int
	DoConversion bool
	DoScaling    bool

	data    []byte   // numeric backing store, len >= Stride*(Capacity-1) + ElemSize
	strings []string // RepString backing store, len == Capacity

	WriteCursor int // decoder side: index of next element to fill
	ReadCursor  int // encoder side: index of next element to produce

	// BytestreamNumber is bound once the buffer is attached to a Reader or
	// Writer channel; -1 until then.
	BytestreamNumber int
}

func newNumeric(path string, rep Representation, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, e57err.BadApiArgument("capacity", "", "capacity must be > 0")
	}
	elemSize := rep.ElemSize()
	if stride == 0 {
		stride = elemSize
	}
	if stride < elemSize {
		return nil, e57err.BadApiArgument("stride", "", "stride must be >= element size")
	}
	need := stride*(capacity-1) + elemSize
	if len(data) < need {
		return nil, e57err.BadApiArgument("buffer", "", "backing slice too small for capacity/stride")
	}
	return &Buffer{
		Path: path, Rep: rep, Capacity: capacity, Stride: stride,
		DoConversion: doConversion, DoScaling: doScaling,
		data: data, BytestreamNumber: -1,
	}, nil
}

func NewInt8Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepInt8, data, capacity, doConversion, doScaling, stride)
}
func NewInt16Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepInt16, data, capacity, doConversion, doScaling, stride)
}
func NewInt32Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepInt32, data, capacity, doConversion, doScaling, stride)
}
func NewInt64Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepInt64, data, capacity, doConversion, doScaling, stride)
}
func NewUInt8Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepUInt8, data, capacity, doConversion, doScaling, stride)
}
func NewUInt16Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepUInt16, data, capacity, doConversion, doScaling, stride)
}
func NewUInt32Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepUInt32, data, capacity, doConversion, doScaling, stride)
}
func NewBoolBuffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepBool, data, capacity, doConversion, doScaling, stride)
}
func NewFloat32Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepFloat32, data, capacity, doConversion, doScaling, stride)
}
func NewFloat64Buffer(path string, data []byte, capacity int, doConversion, doScaling bool, stride int) (*Buffer, error) {
	return newNumeric(path, RepFloat64, data, capacity, doConversion, doScaling, stride)
}

// NewStringBuffer binds a UString-vector buffer. Its capacity is fixed to
// len(vector) for the lifetime of the buffer, per §3.
func NewStringBuffer(path string, vector []string) (*Buffer, error) {
	if len(vector) == 0 {
		return nil, e57err.BadApiArgument("capacity", "", "string vector must be non-empty")
	}
	return &Buffer{Path: path, Rep: RepString, Capacity: len(vector), strings: vector, BytestreamNumber: -1}, nil
}

// RebindNumeric swaps the backing storage of a buffer (the "buffer pointer may
// change" case in §4.5's read(SDBs) re-bind path) while keeping identity for
// CheckCompatible comparison purposes.
func (b *Buffer) RebindNumeric(data []byte) error {
	if b.Rep == RepString {
		return e57err.BadBuffer("data", "cannot rebind numeric storage on a string buffer")
	}
	need := b.Stride*(b.Capacity-1) + b.Rep.ElemSize()
	if len(data) < need {
		return e57err.BadApiArgument("buffer", "", "backing slice too small for capacity/stride")
	}
	b.data = data
	return nil
}

func (b *Buffer) RebindStrings(vector []string) error {
	if b.Rep != RepString {
		return e57err.BadBuffer("data", "cannot rebind string storage on a numeric buffer")
	}
	if len(vector) != b.Capacity {
		return e57err.BuffersNotCompatible(b.Path, "string vector length must match original capacity")
	}
	b.strings = vector
	return nil
}

// CheckCompatible verifies two bindings of the "same" SDB across a re-bind
// read() call: path, representation, capacity, stride must match; backing
// storage identity may differ.
func (b *Buffer) CheckCompatible(other *Buffer) error {
	if b.Path != other.Path {
		return e57err.BuffersNotCompatible(other.Path, "path changed across rebind")
	}
	if b.Rep != other.Rep {
		return e57err.BuffersNotCompatible(other.Path, "representation changed across rebind")
	}
	if b.Capacity != other.Capacity {
		return e57err.BuffersNotCompatible(other.Path, "capacity changed across rebind")
	}
	if b.Rep != RepString && b.Stride != other.Stride {
		return e57err.BuffersNotCompatible(other.Path, "stride changed across rebind")
	}
	return nil
}

func (b *Buffer) elemOffset(i int) int { return i * b.Stride }

func (b *Buffer) putU8(i int, v uint8)   { b.data[b.elemOffset(i)] = v }
func (b *Buffer) getU8(i int) uint8      { return b.data[b.elemOffset(i)] }
func (b *Buffer) putU16(i int, v uint16) { binary.LittleEndian.PutUint16(b.data[b.elemOffset(i):], v) }
func (b *Buffer) getU16(i int) uint16    { return binary.LittleEndian.Uint16(b.data[b.elemOffset(i):]) }
func (b *Buffer) putU32(i int, v uint32) { binary.LittleEndian.PutUint32(b.data[b.elemOffset(i):], v) }
func (b *Buffer) getU32(i int) uint32    { return binary.LittleEndian.Uint32(b.data[b.elemOffset(i):]) }
func (b *Buffer) putU64(i int, v uint64) { binary.LittleEndian.PutUint64(b.data[b.elemOffset(i):], v) }
func (b *Buffer) getU64(i int) uint64    { return binary.LittleEndian.Uint64(b.data[b.elemOffset(i):]) }

// rawInt64At/rawSetInt64At move a value through the representation's native
// width, reinterpreting bit patterns rather than numerically converting —
// the numeric conversion matrix (range checks, rounding) lives in convert.go
// and calls these only after it has decided the move is valid.
func (b *Buffer) rawSetInt64At(i int, v int64) {
	switch b.Rep {
	case RepInt8, RepUInt8, RepBool:
		b.putU8(i, uint8(v))
	case RepInt16, RepUInt16:
		b.putU16(i, uint16(v))
	case RepInt32, RepUInt32:
		b.putU32(i, uint32(v))
	case RepInt64:
		b.putU64(i, uint64(v))
	}
}

func (b *Buffer) rawInt64At(i int) int64 {
	switch b.Rep {
	case RepInt8:
		return int64(int8(b.getU8(i)))
	case RepUInt8, RepBool:
		return int64(b.getU8(i))
	case RepInt16:
		return int64(int16(b.getU16(i)))
	case RepUInt16:
		return int64(b.getU16(i))
	case RepInt32:
		return int64(int32(b.getU32(i)))
	case RepUInt32:
		return int64(b.getU32(i))
	case RepInt64:
		return int64(b.getU64(i))
	default:
		return 0
	}
}

func (b *Buffer) rawSetFloat64At(i int, v float64) {
	switch b.Rep {
	case RepFloat32:
		b.putU32(i, math.Float32bits(float32(v)))
	case RepFloat64:
		b.putU64(i, math.Float64bits(v))
	}
}

func (b *Buffer) rawFloat64At(i int) float64 {
	switch b.Rep {
	case RepFloat32:
		return float64(math.Float32frombits(b.getU32(i)))
	case RepFloat64:
		return math.Float64frombits(b.getU64(i))
	default:
		return 0
	}
}

// intRange returns the representable [min,max] of an integer-group
// representation, used by the conversion matrix's range checks.
func (r Representation) intRange() (min, max int64) {
	switch r {
	case RepInt8:
		return math.MinInt8, math.MaxInt8
	case RepUInt8:
		return 0, math.MaxUint8
	case RepInt16:
		return math.MinInt16, math.MaxInt16
	case RepUInt16:
		return 0, math.MaxUint16
	case RepInt32:
		return math.MinInt32, math.MaxInt32
	case RepUInt32:
		return 0, math.MaxUint32
	case RepInt64:
		return math.MinInt64, math.MaxInt64
	case RepBool:
		return 0, 1
	default:
		return 0, 0
	}
}
