package codec

import (
	"encoding/binary"

	"github.com/e57io/e57cv/sdb"
)

// stringDecoder implements the length-prefixed UTF-8 run of §4.3: each
// record is {length:uint32_le, utf8bytes:length}. Strings are not
// bit-packed, so decoding is a small two-phase byte accumulator (reading
// the length header, then the body) that tolerates the header or body
// spanning an InputProcess call boundary.
type stringDecoder struct {
	buf     *sdb.Buffer
	lenBuf  []byte
	haveLen bool
	bodyLen int
	bodyBuf []byte
}

func newStringDecoder(buf *sdb.Buffer) *stringDecoder {
	return &stringDecoder{buf: buf}
}

func (d *stringDecoder) full() bool { return d.buf.WriteCursor >= d.buf.Capacity }

func (d *stringDecoder) InputProcess(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	idx := 0
	for !d.full() {
		if !d.haveLen {
			need := 4 - len(d.lenBuf)
			avail := need
			if idx+avail > len(data) {
				avail = len(data) - idx
			}
			if avail == 0 {
				break
			}
			d.lenBuf = append(d.lenBuf, data[idx:idx+avail]...)
			idx += avail
			if len(d.lenBuf) < 4 {
				break
			}
			d.bodyLen = int(binary.LittleEndian.Uint32(d.lenBuf))
			d.haveLen = true
			d.lenBuf = d.lenBuf[:0]
			d.bodyBuf = d.bodyBuf[:0]
		}
		need := d.bodyLen - len(d.bodyBuf)
		avail := need
		if idx+avail > len(data) {
			avail = len(data) - idx
		}
		if avail > 0 {
			d.bodyBuf = append(d.bodyBuf, data[idx:idx+avail]...)
			idx += avail
		}
		if len(d.bodyBuf) < d.bodyLen {
			break
		}
		if err := sdb.PutString(d.buf, d.buf.WriteCursor, string(d.bodyBuf)); err != nil {
			return idx, err
		}
		d.buf.WriteCursor++
		d.haveLen = false
		d.bodyBuf = nil
		if idx >= len(data) {
			break
		}
	}
	return idx, nil
}

type stringEncoder struct {
	buf *sdb.Buffer
	out []byte
}

func newStringEncoder(buf *sdb.Buffer) *stringEncoder {
	return &stringEncoder{buf: buf}
}

func (e *stringEncoder) Feed(maxRecords int) (int, error) {
	n := 0
	for n < maxRecords && e.buf.ReadCursor < e.buf.Capacity {
		s, err := sdb.GetString(e.buf, e.buf.ReadCursor)
		if err != nil {
			return n, err
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		e.out = append(e.out, lenBuf[:]...)
		e.out = append(e.out, s...)
		e.buf.ReadCursor++
		n++
	}
	return n, nil
}

func (e *stringEncoder) Drain(maxBytes int) []byte {
	if maxBytes > len(e.out) {
		maxBytes = len(e.out)
	}
	out := e.out[:maxBytes]
	e.out = e.out[maxBytes:]
	return out
}

func (e *stringEncoder) Pending() int { return len(e.out) }
func (e *stringEncoder) Flush()       {}
