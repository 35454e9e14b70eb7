package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_MarshalParseRoundTrip(t *testing.T) {
	raw, err := MarshalDataPacket([][]byte{{1, 2, 3}}, 0x05)
	require.NoError(t, err)

	h, err := ParseHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, KindData, h.Kind)
	assert.Equal(t, uint8(0x05), h.Flags)
	assert.Equal(t, len(raw), h.LogicalLength())
}

func TestParseHeader_TruncatedReturnsError(t *testing.T) {
	_, err := ParseHeader([]byte{1, 2})
	assert.Error(t, err)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Data", KindData.String())
	assert.Equal(t, "Index", KindIndex.String())
	assert.Equal(t, "Ignored", KindIgnored.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestDataPacket_MarshalParseRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0xAA, 0xBB, 0xCC},
		{},
		{0x01, 0x02, 0x03, 0x04, 0x05},
	}
	raw, err := MarshalDataPacket(payloads, 0)
	require.NoError(t, err)

	dp, err := ParseDataPacket(raw)
	require.NoError(t, err)
	require.Len(t, dp.Payloads, 3)
	assert.Equal(t, payloads[0], dp.Payloads[0])
	assert.Empty(t, dp.Payloads[1])
	assert.Equal(t, payloads[2], dp.Payloads[2])
}

func TestDataPacket_EmptyPayloadSetRoundTrips(t *testing.T) {
	raw, err := MarshalDataPacket(nil, 0)
	require.NoError(t, err)
	dp, err := ParseDataPacket(raw)
	require.NoError(t, err)
	assert.Empty(t, dp.Payloads)
}

func TestParseDataPacket_WrongKindRejected(t *testing.T) {
	raw, err := MarshalIndexPacket(nil)
	require.NoError(t, err)
	_, err = ParseDataPacket(raw)
	assert.Error(t, err)
}

func TestParseDataPacket_TruncatedPayloadRejected(t *testing.T) {
	raw, err := MarshalDataPacket([][]byte{{1, 2, 3}}, 0)
	require.NoError(t, err)
	_, err = ParseDataPacket(raw[:len(raw)-1])
	assert.Error(t, err)
}

func TestMarshalDataPacket_RefusesOversizedPacket(t *testing.T) {
	_, err := MarshalDataPacket([][]byte{make([]byte, MaxLogicalLength)}, 0)
	assert.Error(t, err)
}

func TestIndexPacket_MarshalParseRoundTrip(t *testing.T) {
	entries := []IndexEntry{
		{RecordNumber: 0, PhysicalOffset: 100},
		{RecordNumber: 1000, PhysicalOffset: 50000},
	}
	raw, err := MarshalIndexPacket(entries)
	require.NoError(t, err)

	got, err := ParseIndexPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestParseIndexPacket_WrongKindRejected(t *testing.T) {
	raw, err := MarshalDataPacket([][]byte{{1}}, 0)
	require.NoError(t, err)
	_, err = ParseIndexPacket(raw)
	assert.Error(t, err)
}

func TestSectionHeader_MarshalParseRoundTrip(t *testing.T) {
	sh := SectionHeader{
		SectionID:            SectionIDCompressedVector,
		SectionLogicalLength: 123456,
		DataPhysicalOffset:   64,
		IndexPhysicalOffset:  0,
		RecordCount:          999,
		Flags:                2,
	}
	raw := sh.Marshal()
	require.Len(t, raw, SectionHeaderSize)

	got, err := ParseSectionHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, sh, got)
}

func TestParseSectionHeader_WrongIDRejected(t *testing.T) {
	sh := SectionHeader{SectionID: 7}
	_, err := ParseSectionHeader(sh.Marshal())
	assert.Error(t, err)
}

func TestParseSectionHeader_TruncatedRejected(t *testing.T) {
	_, err := ParseSectionHeader(make([]byte, SectionHeaderSize-1))
	assert.Error(t, err)
}
