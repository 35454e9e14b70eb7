package packetcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e57io/e57cv/imagefile"
	"github.com/e57io/e57cv/packet"
)

// writePackets writes a sequence of synthetic Data packets (one payload
// bytestream each, sized by payloadLens) back to back in a fresh file and
// returns each packet's logical offset.
func writePackets(t *testing.T, payloadLens ...int) (imagefile.CheckedFile, []int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "packets.bin")
	cf, err := imagefile.OpenCheckedFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	t.Cleanup(func() { cf.Close() })

	var offsets []int64
	var cursor int64
	for _, n := range payloadLens {
		raw, err := packet.MarshalDataPacket([][]byte{make([]byte, n)}, 0)
		require.NoError(t, err)
		_, err = cf.WriteAt(cursor, raw)
		require.NoError(t, err)
		offsets = append(offsets, cursor)
		cursor += int64(len(raw))
	}
	return cf, offsets
}

func TestCache_LockReadsThroughOnMiss(t *testing.T) {
	cf, offsets := writePackets(t, 10, 20)
	c := New(cf, 8, nil)

	pin, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err)
	defer pin.Release()

	dp, err := packet.ParseDataPacket(pin.Bytes())
	require.NoError(t, err)
	assert.Len(t, dp.Payloads[0], 10)

	hits, misses, _ := c.Metrics()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_LockIsAHitOnSecondCall(t *testing.T) {
	cf, offsets := writePackets(t, 10)
	c := New(cf, 8, nil)

	pin1, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err)
	pin1.Release()

	pin2, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err)
	defer pin2.Release()

	hits, misses, _ := c.Metrics()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_EvictsLeastRecentlyUsedUnpinnedEntry(t *testing.T) {
	cf, offsets := writePackets(t, 1, 2, 3)
	c := New(cf, 2, nil)

	pin0, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err) // held, never released: must survive every eviction below

	pin1, err := c.Lock(context.Background(), offsets[1])
	require.NoError(t, err)
	pin1.Release()

	_, err = c.Lock(context.Background(), offsets[2])
	require.NoError(t, err)

	assert.LessOrEqual(t, c.Len(), 2)
	_, _, evictions := c.Metrics()
	assert.Equal(t, int64(1), evictions)

	// offsets[0] is still pinned and must not have been evicted.
	pinAgain, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err)
	pinAgain.Release()
	hits, _, _ := c.Metrics()
	assert.Equal(t, int64(1), hits, "offsets[0] should have hit, not re-read through")

	pin0.Release()
}

func TestCache_GrowsPastCapacityRatherThanEvictPinnedEntries(t *testing.T) {
	cf, offsets := writePackets(t, 1, 2)
	c := New(cf, 1, nil)

	pin0, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err)
	defer pin0.Release()

	pin1, err := c.Lock(context.Background(), offsets[1])
	require.NoError(t, err)
	defer pin1.Release()

	assert.Equal(t, 2, c.Len(), "cache must grow past its capacity of 1 rather than evict a pinned entry")
}

func TestCache_InvalidateRefusesPinnedEntry(t *testing.T) {
	cf, offsets := writePackets(t, 5)
	c := New(cf, 4, nil)

	pin, err := c.Lock(context.Background(), offsets[0])
	require.NoError(t, err)

	err = c.Invalidate(offsets[0])
	assert.Error(t, err)

	pin.Release()
	assert.NoError(t, c.Invalidate(offsets[0]))
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidateUnknownOffsetIsNoop(t *testing.T) {
	cf, _ := writePackets(t, 5)
	c := New(cf, 4, nil)
	assert.NoError(t, c.Invalidate(999))
}

func TestCache_BindExpvarDoesNotPanic(t *testing.T) {
	cf, _ := writePackets(t, 5)
	c := New(cf, 4, nil)
	assert.NotPanics(t, func() { c.BindExpvar(t.Name()) })
}
