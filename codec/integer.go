package codec

import (
	"github.com/e57io/e57cv/proto"
	"github.com/e57io/e57cv/sdb"
)

type integerDecoder struct {
	buf        *sdb.Buffer
	min, max   int64
	width      uint
	q          bitQueue

	// maxRecords bounds the total number of records this decoder will ever
	// emit, across every InputProcess/FillConstant call over its lifetime;
	// emitted tracks how many it has produced so far. Without this bound a
	// bit-packed stream's trailing byte-alignment padding (see bitWriter's
	// flush, bitqueue.go) is indistinguishable from real data whenever the true
	// record count isn't a multiple of 8/width, and the decoder would read
	// the zero padding bits as spurious min-valued records.
	maxRecords uint64
	emitted    uint64
}

func newIntegerDecoder(node *proto.Node, buf *sdb.Buffer, maxRecords uint64) *integerDecoder {
	return &integerDecoder{buf: buf, min: node.Min, max: node.Max, width: IntegerWidth(node.Min, node.Max), maxRecords: maxRecords}
}

func (d *integerDecoder) full() bool {
	return d.buf.WriteCursor >= d.buf.Capacity || d.emitted >= d.maxRecords
}

// IsConstant reports a zero wire width: the field's value is known without
// reading any packet bytes (min == max), so the engine can fill it directly
// instead of tracking packet offsets for it (see codec.ConstantDecoder).
func (d *integerDecoder) IsConstant() bool { return d.width == 0 }

// FillConstant writes up to n copies of the constant value starting at the
// buffer's current write cursor, stopping early at capacity.
func (d *integerDecoder) FillConstant(n int) error {
	for i := 0; i < n && !d.full(); i++ {
		if err := sdb.PutInteger(d.buf, d.buf.WriteCursor, d.min, d.min, d.max); err != nil {
			return err
		}
		d.buf.WriteCursor++
		d.emitted++
	}
	return nil
}

func (d *integerDecoder) drainAvailable() error {
	if d.width == 0 {
		for !d.full() {
			if err := sdb.PutInteger(d.buf, d.buf.WriteCursor, d.min, d.min, d.max); err != nil {
				return err
			}
			d.buf.WriteCursor++
			d.emitted++
		}
		return nil
	}
	for !d.full() {
		raw, ok := d.q.pop(d.width)
		if !ok {
			return nil
		}
		value := int64(raw) + d.min
		if err := sdb.PutInteger(d.buf, d.buf.WriteCursor, value, d.min, d.max); err != nil {
			return err
		}
		d.buf.WriteCursor++
		d.emitted++
	}
	return nil
}

func (d *integerDecoder) InputProcess(data []byte) (int, error) {
	if d.width == 0 {
		return 0, d.drainAvailable()
	}
	if len(data) == 0 {
		return 0, d.drainAvailable()
	}
	consumed := 0
	for consumed < len(data) {
		if d.full() {
			break
		}
		d.q.push(data[consumed])
		consumed++
		if err := d.drainAvailable(); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

type integerEncoder struct {
	buf      *sdb.Buffer
	min, max int64
	width    uint
	w        bitWriter
}

func newIntegerEncoder(node *proto.Node, buf *sdb.Buffer) *integerEncoder {
	return &integerEncoder{buf: buf, min: node.Min, max: node.Max, width: IntegerWidth(node.Min, node.Max)}
}

func (e *integerEncoder) Feed(maxRecords int) (int, error) {
	n := 0
	for n < maxRecords && e.buf.ReadCursor < e.buf.Capacity {
		value, err := sdb.GetInteger(e.buf, e.buf.ReadCursor, e.min, e.max)
		if err != nil {
			return n, err
		}
		if e.width > 0 {
			e.w.write(uint64(value-e.min), e.width)
		}
		e.buf.ReadCursor++
		n++
	}
	return n, nil
}

func (e *integerEncoder) Drain(maxBytes int) []byte { return e.w.drain(maxBytes) }
func (e *integerEncoder) Pending() int              { return e.w.pending() }
func (e *integerEncoder) Flush()                    { e.w.flush() }

type scaledIntegerDecoder struct {
	buf            *sdb.Buffer
	rawMin, rawMax int64
	scale, offset  float64
	width          uint
	q              bitQueue

	// See integerDecoder's maxRecords/emitted: the same trailing-padding
	// over-read risk applies to scaled-integer streams, which share the
	// same bit-packed wire representation.
	maxRecords uint64
	emitted    uint64
}

func newScaledIntegerDecoder(node *proto.Node, buf *sdb.Buffer, maxRecords uint64) *scaledIntegerDecoder {
	return &scaledIntegerDecoder{
		buf: buf, rawMin: node.Min, rawMax: node.Max,
		scale: node.Scale, offset: node.Offset,
		width:      IntegerWidth(node.Min, node.Max),
		maxRecords: maxRecords,
	}
}

func (d *scaledIntegerDecoder) full() bool {
	return d.buf.WriteCursor >= d.buf.Capacity || d.emitted >= d.maxRecords
}

// IsConstant reports a zero wire width (see integerDecoder.IsConstant).
func (d *scaledIntegerDecoder) IsConstant() bool { return d.width == 0 }

// FillConstant writes up to n copies of the constant raw value starting at
// the buffer's current write cursor, stopping early at capacity.
func (d *scaledIntegerDecoder) FillConstant(n int) error {
	for i := 0; i < n && !d.full(); i++ {
		if err := sdb.PutScaled(d.buf, d.buf.WriteCursor, d.rawMin, d.rawMin, d.rawMax, d.scale, d.offset); err != nil {
			return err
		}
		d.buf.WriteCursor++
		d.emitted++
	}
	return nil
}

func (d *scaledIntegerDecoder) drainAvailable() error {
	if d.width == 0 {
		for !d.full() {
			if err := sdb.PutScaled(d.buf, d.buf.WriteCursor, d.rawMin, d.rawMin, d.rawMax, d.scale, d.offset); err != nil {
				return err
			}
			d.buf.WriteCursor++
			d.emitted++
		}
		return nil
	}
	for !d.full() {
		raw, ok := d.q.pop(d.width)
		if !ok {
			return nil
		}
		rawValue := int64(raw) + d.rawMin
		if err := sdb.PutScaled(d.buf, d.buf.WriteCursor, rawValue, d.rawMin, d.rawMax, d.scale, d.offset); err != nil {
			return err
		}
		d.buf.WriteCursor++
		d.emitted++
	}
	return nil
}

func (d *scaledIntegerDecoder) InputProcess(data []byte) (int, error) {
	if d.width == 0 || len(data) == 0 {
		return 0, d.drainAvailable()
	}
	consumed := 0
	for consumed < len(data) {
		if d.full() {
			break
		}
		d.q.push(data[consumed])
		consumed++
		if err := d.drainAvailable(); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

type scaledIntegerEncoder struct {
	buf            *sdb.Buffer
	rawMin, rawMax int64
	scale, offset  float64
	width          uint
	w              bitWriter
}

func newScaledIntegerEncoder(node *proto.Node, buf *sdb.Buffer) *scaledIntegerEncoder {
	return &scaledIntegerEncoder{
		buf: buf, rawMin: node.Min, rawMax: node.Max,
		scale: node.Scale, offset: node.Offset,
		width: IntegerWidth(node.Min, node.Max),
	}
}

func (e *scaledIntegerEncoder) Feed(maxRecords int) (int, error) {
	n := 0
	for n < maxRecords && e.buf.ReadCursor < e.buf.Capacity {
		raw, err := sdb.GetScaledRaw(e.buf, e.buf.ReadCursor, e.rawMin, e.rawMax, e.scale, e.offset)
		if err != nil {
			return n, err
		}
		if e.width > 0 {
			e.w.write(uint64(raw-e.rawMin), e.width)
		}
		e.buf.ReadCursor++
		n++
	}
	return n, nil
}

func (e *scaledIntegerEncoder) Drain(maxBytes int) []byte { return e.w.drain(maxBytes) }
func (e *scaledIntegerEncoder) Pending() int              { return e.w.pending() }
func (e *scaledIntegerEncoder) Flush()                    { e.w.flush() }
