package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e57io/e57cv/proto"
	"github.com/e57io/e57cv/sdb"
)

func buildNode(t *testing.T, addField func(b *proto.Builder, parent proto.NodeID)) *proto.Node {
	t.Helper()
	b := proto.NewBuilder()
	addField(b, b.Root())
	tree, err := b.Build()
	require.NoError(t, err)
	id, err := tree.FindByPath("/v")
	require.NoError(t, err)
	return tree.Node(id)
}

func TestIntegerWidth(t *testing.T) {
	assert.Equal(t, uint(0), IntegerWidth(7, 7))
	assert.Equal(t, uint(1), IntegerWidth(0, 1))
	assert.Equal(t, uint(10), IntegerWidth(0, 1023))
	assert.Equal(t, uint(8), IntegerWidth(-128, 127))
}

func TestIntegerCodec_EncodeDecodeRoundTrip(t *testing.T) {
	node := buildNode(t, func(b *proto.Builder, p proto.NodeID) { b.AddSignedInteger(p, "v", -512, 511) })

	values := []int64{-512, -1, 0, 1, 511}
	wbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
	require.NoError(t, err)
	for i, v := range values {
		require.NoError(t, sdb.PutInteger(wbuf, i, v, -512, 511))
	}

	enc := newIntegerEncoder(node, wbuf)
	consumed, err := enc.Feed(len(values))
	require.NoError(t, err)
	assert.Equal(t, len(values), consumed)
	enc.Flush()
	wire := enc.Drain(enc.Pending())
	assert.Zero(t, enc.Pending())

	rbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
	require.NoError(t, err)
	dec := newIntegerDecoder(node, rbuf, uint64(len(values)))
	assert.False(t, dec.IsConstant())
	consumedBytes, err := dec.InputProcess(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumedBytes)

	for i, want := range values {
		v, err := sdb.GetInteger(rbuf, i, -512, 511)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestIntegerCodec_ConstantFieldProducesNoWireBytes(t *testing.T) {
	node := buildNode(t, func(b *proto.Builder, p proto.NodeID) { b.AddUnsignedInteger(p, "v", 7, 7) })

	wbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8), 1, true, true, 8)
	require.NoError(t, err)
	require.NoError(t, sdb.PutInteger(wbuf, 0, 7, 7, 7))
	enc := newIntegerEncoder(node, wbuf)
	_, err = enc.Feed(1)
	require.NoError(t, err)
	assert.Zero(t, enc.Pending(), "a zero-width field must emit no wire bytes")

	rbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*3), 3, true, true, 8)
	require.NoError(t, err)
	dec := newIntegerDecoder(node, rbuf, 3)
	require.True(t, dec.IsConstant())
	require.NoError(t, dec.FillConstant(3))
	for i := 0; i < 3; i++ {
		v, err := sdb.GetInteger(rbuf, i, 7, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	}
}

func TestIntegerCodec_InputProcessStopsAtCapacity(t *testing.T) {
	node := buildNode(t, func(b *proto.Builder, p proto.NodeID) { b.AddUnsignedInteger(p, "v", 0, 255) })

	wbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*4), 4, true, true, 8)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, sdb.PutInteger(wbuf, i, int64(i*10), 0, 255))
	}
	enc := newIntegerEncoder(node, wbuf)
	_, err = enc.Feed(4)
	require.NoError(t, err)
	wire := enc.Drain(enc.Pending())

	rbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*2), 2, true, true, 8)
	require.NoError(t, err)
	dec := newIntegerDecoder(node, rbuf, 4)
	consumed, err := dec.InputProcess(wire)
	require.NoError(t, err)
	assert.Less(t, consumed, len(wire), "decoder must stop consuming once its buffer fills")
}

func TestIntegerCodec_DoesNotDecodePastRecordCountIntoFlushPadding(t *testing.T) {
	// A 1-bit Boolean field writing 3 records leaves 5 zero padding bits
	// after Flush byte-aligns the stream. Without a record-count bound the
	// decoder would read those padding bits as 5 more min-valued records.
	node := buildNode(t, func(b *proto.Builder, p proto.NodeID) { b.AddUnsignedInteger(p, "v", 0, 1) })

	values := []int64{1, 0, 1}
	wbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
	require.NoError(t, err)
	for i, v := range values {
		require.NoError(t, sdb.PutInteger(wbuf, i, v, 0, 1))
	}
	enc := newIntegerEncoder(node, wbuf)
	_, err = enc.Feed(len(values))
	require.NoError(t, err)
	enc.Flush()
	wire := enc.Drain(enc.Pending())
	require.Len(t, wire, 1, "3 packed bits plus 5 padding bits must fit in exactly one byte")

	rbuf, err := sdb.NewInt64Buffer("/v", make([]byte, 8*8), 8, true, true, 8)
	require.NoError(t, err)
	dec := newIntegerDecoder(node, rbuf, uint64(len(values)))
	_, err = dec.InputProcess(wire)
	require.NoError(t, err)
	assert.Equal(t, len(values), rbuf.WriteCursor, "decoder must stop at the true record count, not the buffer's capacity")
}

func TestScaledIntegerCodec_RoundTripsWithScaling(t *testing.T) {
	node := buildNode(t, func(b *proto.Builder, p proto.NodeID) {
		b.AddScaledInteger(p, "v", 0, 10000, 0.001, 0)
	})

	values := []float64{0.0, 1.234, 9.999}
	wbuf, err := sdb.NewFloat64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
	require.NoError(t, err)
	for i, v := range values {
		raw := int64(v/0.001 + 0.5)
		require.NoError(t, sdb.PutScaled(wbuf, i, raw, 0, 10000, 0.001, 0))
	}

	enc := newScaledIntegerEncoder(node, wbuf)
	_, err = enc.Feed(len(values))
	require.NoError(t, err)
	enc.Flush()
	wire := enc.Drain(enc.Pending())

	rbuf, err := sdb.NewFloat64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
	require.NoError(t, err)
	dec := newScaledIntegerDecoder(node, rbuf, uint64(len(values)))
	_, err = dec.InputProcess(wire)
	require.NoError(t, err)

	for i, want := range values {
		raw, err := sdb.GetScaledRaw(rbuf, i, 0, 10000, 0.001, 0)
		require.NoError(t, err)
		assert.InDelta(t, want, float64(raw)*0.001, 0.001)
	}
}

func TestFloatCodec_RoundTrips64And32(t *testing.T) {
	for _, precision := range []int{32, 64} {
		buildNode(t, func(b *proto.Builder, p proto.NodeID) {
			if precision == 32 {
				b.AddFloat32(p, "v")
			} else {
				b.AddFloat64(p, "v")
			}
		})

		values := []float64{0, -1.5, 3.25}
		wbuf, err := sdb.NewFloat64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
		require.NoError(t, err)
		for i, v := range values {
			require.NoError(t, sdb.PutFloat(wbuf, i, v, precision))
		}

		enc := newFloatEncoder(wbuf, precision)
		_, err = enc.Feed(len(values))
		require.NoError(t, err)
		wire := enc.Drain(enc.Pending())

		rbuf, err := sdb.NewFloat64Buffer("/v", make([]byte, 8*len(values)), len(values), true, true, 8)
		require.NoError(t, err)
		dec := newFloatDecoder(rbuf, precision)
		_, err = dec.InputProcess(wire)
		require.NoError(t, err)

		for i, want := range values {
			v, err := sdb.GetFloat(rbuf, i, precision)
			require.NoError(t, err)
			assert.InDelta(t, want, v, 0.001, "precision %d", precision)
		}
	}
}

func TestFloatCodec_InputProcessToleratesSplitAcrossCalls(t *testing.T) {
	buildNode(t, func(b *proto.Builder, p proto.NodeID) { b.AddFloat64(p, "v") })

	wbuf, err := sdb.NewFloat64Buffer("/v", make([]byte, 8), 1, true, true, 8)
	require.NoError(t, err)
	require.NoError(t, sdb.PutFloat(wbuf, 0, 2.5, 64))
	enc := newFloatEncoder(wbuf, 64)
	_, err = enc.Feed(1)
	require.NoError(t, err)
	wire := enc.Drain(enc.Pending())
	require.Len(t, wire, 8)

	rbuf, err := sdb.NewFloat64Buffer("/v", make([]byte, 8), 1, true, true, 8)
	require.NoError(t, err)
	dec := newFloatDecoder(rbuf, 64)

	n1, err := dec.InputProcess(wire[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, n1)
	n2, err := dec.InputProcess(wire[3:])
	require.NoError(t, err)
	assert.Equal(t, 5, n2)

	v, err := sdb.GetFloat(rbuf, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestStringCodec_RoundTrips(t *testing.T) {
	values := []string{"hello", "", "a longer string with spaces"}
	wbuf, err := sdb.NewStringBuffer("/v", append([]string(nil), values...))
	require.NoError(t, err)

	enc := newStringEncoder(wbuf)
	_, err = enc.Feed(len(values))
	require.NoError(t, err)
	wire := enc.Drain(enc.Pending())

	rbuf, err := sdb.NewStringBuffer("/v", make([]string, len(values)))
	require.NoError(t, err)
	dec := newStringDecoder(rbuf)
	consumed, err := dec.InputProcess(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumed)

	for i, want := range values {
		v, err := sdb.GetString(rbuf, i)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestStringCodec_InputProcessToleratesLengthHeaderSplitAcrossCalls(t *testing.T) {
	wbuf, err := sdb.NewStringBuffer("/v", []string{"abcdef"})
	require.NoError(t, err)
	enc := newStringEncoder(wbuf)
	_, err = enc.Feed(1)
	require.NoError(t, err)
	wire := enc.Drain(enc.Pending())
	require.Greater(t, len(wire), 4)

	rbuf, err := sdb.NewStringBuffer("/v", make([]string, 1))
	require.NoError(t, err)
	dec := newStringDecoder(rbuf)

	// Split the 4-byte length prefix itself across two InputProcess calls.
	_, err = dec.InputProcess(wire[:2])
	require.NoError(t, err)
	_, err = dec.InputProcess(wire[2:])
	require.NoError(t, err)

	v, err := sdb.GetString(rbuf, 0)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", v)
}
