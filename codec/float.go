package codec

import (
	"encoding/binary"
	"math"

	"github.com/e57io/e57cv/sdb"
)

type floatDecoder struct {
	buf       *sdb.Buffer
	precision int // 32 or 64
	elemSize  int
	leftover  []byte
}

func newFloatDecoder(buf *sdb.Buffer, precision int) *floatDecoder {
	elemSize := 4
	if precision == 64 {
		elemSize = 8
	}
	return &floatDecoder{buf: buf, precision: precision, elemSize: elemSize}
}

func (d *floatDecoder) full() bool { return d.buf.WriteCursor >= d.buf.Capacity }

func (d *floatDecoder) decodeBytes(b []byte) error {
	var value float64
	if d.precision == 32 {
		value = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	} else {
		value = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	if err := sdb.PutFloat(d.buf, d.buf.WriteCursor, value, d.precision); err != nil {
		return err
	}
	d.buf.WriteCursor++
	return nil
}

func (d *floatDecoder) InputProcess(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	idx := 0
	for !d.full() {
		if len(d.leftover) > 0 {
			need := d.elemSize - len(d.leftover)
			avail := need
			if idx+avail > len(data) {
				avail = len(data) - idx
			}
			d.leftover = append(d.leftover, data[idx:idx+avail]...)
			idx += avail
			if len(d.leftover) < d.elemSize {
				break
			}
			if err := d.decodeBytes(d.leftover); err != nil {
				return idx, err
			}
			d.leftover = d.leftover[:0]
			continue
		}
		if len(data)-idx < d.elemSize {
			d.leftover = append(d.leftover, data[idx:]...)
			idx = len(data)
			break
		}
		if err := d.decodeBytes(data[idx : idx+d.elemSize]); err != nil {
			return idx, err
		}
		idx += d.elemSize
	}
	return idx, nil
}

type floatEncoder struct {
	buf       *sdb.Buffer
	precision int
	elemSize  int
	out       []byte
}

func newFloatEncoder(buf *sdb.Buffer, precision int) *floatEncoder {
	elemSize := 4
	if precision == 64 {
		elemSize = 8
	}
	return &floatEncoder{buf: buf, precision: precision, elemSize: elemSize}
}

func (e *floatEncoder) Feed(maxRecords int) (int, error) {
	n := 0
	for n < maxRecords && e.buf.ReadCursor < e.buf.Capacity {
		value, err := sdb.GetFloat(e.buf, e.buf.ReadCursor, e.precision)
		if err != nil {
			return n, err
		}
		var b [8]byte
		if e.precision == 32 {
			binary.LittleEndian.PutUint32(b[:4], math.Float32bits(float32(value)))
			e.out = append(e.out, b[:4]...)
		} else {
			binary.LittleEndian.PutUint64(b[:8], math.Float64bits(value))
			e.out = append(e.out, b[:8]...)
		}
		e.buf.ReadCursor++
		n++
	}
	return n, nil
}

func (e *floatEncoder) Drain(maxBytes int) []byte {
	if maxBytes > len(e.out) {
		maxBytes = len(e.out)
	}
	out := e.out[:maxBytes]
	e.out = e.out[maxBytes:]
	return out
}

func (e *floatEncoder) Pending() int { return len(e.out) }
func (e *floatEncoder) Flush()       {} // always byte-aligned; nothing to flush
