// Package cvreader implements the Reader orchestration of §4.5: pulling
// Data packets through the packet cache in earliest-offset order and
// feeding each channel's decoder until every bound SDB reaches the same
// record count.
package cvreader

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/e57io/e57cv/codec"
	"github.com/e57io/e57cv/e57err"
	"github.com/e57io/e57cv/imagefile"
	"github.com/e57io/e57cv/packet"
	"github.com/e57io/e57cv/packetcache"
	"github.com/e57io/e57cv/payload"
	"github.com/e57io/e57cv/proto"
	"github.com/e57io/e57cv/sdb"
)

// channel is one bytestream's decode pipeline: a decoder bound to one SDB,
// plus the cursor state needed to track its position within the packet
// stream (§4.5 construction step 4 and the pull loop).
type channel struct {
	index int // position in Reader.channels, doubles as its bit in Reader.finished
	node  *proto.Node
	buf   *sdb.Buffer
	dec   codec.Decoder

	// constDec is non-nil when dec's field has zero wire width (min==max).
	// Such a channel carries no packet bytes at all, so it is excluded from
	// every packet-tracking path (seeding, selection, the feed loop, the
	// drain phase) and instead filled directly once the record count is
	// known from the other channels (see Reader.fillConstants).
	constDec codec.ConstantDecoder

	currentPacketLogicalOffset    int64
	currentBytestreamBufferIndex  int
	currentBytestreamBufferLength int
}

func (c *channel) outputBlocked() bool {
	return c.buf.WriteCursor >= c.buf.Capacity
}

// Reader is a single-owner, single-threaded cursor over one compressed
// vector section. Construct with New, defer Close immediately after.
type Reader struct {
	file    *imagefile.ImageFile
	cache   *packetcache.Cache
	tracer  trace.Tracer
	log     *slog.Logger
	tree    *proto.Tree
	section imagefile.Section

	sectionHeader packet.SectionHeader
	sectionEnd    int64
	compressor    payload.Compressor

	channels []*channel

	pins        map[int64]*packetcache.Pin
	pinRefs     map[int64]int
	dataPackets map[int64]*packet.DataPacket

	// finished tracks, per channel index, whether the channel reached
	// sectionEnd with no further Data packet (§4.5 step 4c). A bitset scans
	// faster than a per-channel bool field during earliest-packet selection
	// on sections with many bytestreams.
	finished *bitset.BitSet

	open   atomic.Bool
	closed atomic.Bool
}

// Options configures a Reader beyond its required node/SDBs/file.
type Options struct {
	CacheCapacity int
	Tracer        trace.Tracer
	Logger        *slog.Logger
}

// New constructs a Reader bound to the compressed-vector node's prototype
// tree, reading its section header from file at section.LogicalStart, and
// binds the given SDBs (§4.5 construction steps 1-5).
func New(file *imagefile.ImageFile, tree *proto.Tree, section imagefile.Section, buffers []*sdb.Buffer, opts Options) (*Reader, error) {
	if err := file.CheckOpen(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "cvreader")

	specs := make([]proto.BufferSpec, len(buffers))
	for i, b := range buffers {
		specs[i] = proto.BufferSpec{Path: b.Path}
	}
	if err := proto.CheckBuffers(tree, specs, true); err != nil {
		return nil, err
	}

	r := &Reader{
		file:        file,
		cache:       packetcache.New(file.File, opts.CacheCapacity, opts.Tracer),
		tracer:      opts.Tracer,
		log:         logger,
		tree:        tree,
		section:     section,
		pins:        make(map[int64]*packetcache.Pin),
		pinRefs:     make(map[int64]int),
		dataPackets: make(map[int64]*packet.DataPacket),
	}

	headerBuf := make([]byte, packet.SectionHeaderSize)
	if _, err := file.File.ReadAt(section.LogicalStart, headerBuf); err != nil {
		return nil, e57err.Wrap(e57err.KindBadCVPacket, "reading section header", err)
	}
	sh, err := packet.ParseSectionHeader(headerBuf)
	if err != nil {
		return nil, err
	}
	r.sectionHeader = sh
	r.sectionEnd = section.LogicalStart + int64(sh.SectionLogicalLength)

	compressor, err := payload.ForType(payload.CompressionType(sh.Flags))
	if err != nil {
		return nil, e57err.Wrap(e57err.KindBadCVPacket, "resolving section payload compressor", err)
	}
	r.compressor = compressor

	for _, b := range buffers {
		id, err := tree.FindByPath(b.Path)
		if err != nil {
			return nil, err
		}
		node := tree.Node(id)
		dec, err := codec.NewDecoder(node, b, sh.RecordCount)
		if err != nil {
			return nil, err
		}
		b.BytestreamNumber = node.BytestreamNumber
		ch := &channel{index: len(r.channels), node: node, buf: b, dec: dec}
		if cd, ok := dec.(codec.ConstantDecoder); ok && cd.IsConstant() {
			ch.constDec = cd
		}
		r.channels = append(r.channels, ch)
	}
	r.finished = bitset.New(uint(len(r.channels)))

	firstOffset := file.File.PhysicalToLogical(int64(sh.DataPhysicalOffset))
	pin, dp, err := r.acquire(context.Background(), firstOffset)
	if err != nil {
		return nil, err
	}
	if dp.Header.Kind != packet.KindData {
		r.release(firstOffset)
		return nil, e57err.BadCVPacketf("expected first packet of section to be Data, got %s", dp.Header.Kind)
	}
	_ = pin
	for _, ch := range r.channels {
		if ch.constDec != nil {
			continue
		}
		ch.currentPacketLogicalOffset = firstOffset
		ch.currentBytestreamBufferIndex = 0
		ch.currentBytestreamBufferLength = len(dp.Payloads[ch.node.BytestreamNumber])
		r.refAt(firstOffset)
	}
	r.release(firstOffset) // balance acquire's implicit ref; channels hold their own refs now

	file.IncrReaderCount()
	r.open.Store(true)
	return r, nil
}

// IsOpen reports whether the Reader is still usable.
func (r *Reader) IsOpen() bool { return r.open.Load() && !r.closed.Load() }

// Seek is declared by the format but not implemented (§4.5, §9).
func (r *Reader) Seek(recordNumber uint64) error {
	return e57err.NotImplemented("seek")
}

// Read pulls records into the Reader's bound SDBs, returning the common
// record count produced (§4.5's read(SDBs) with the construction-time
// buffer set).
func (r *Reader) Read(ctx context.Context) (int, error) {
	return r.ReadInto(ctx, nil)
}

// ReadInto re-binds buffers if sdbs is non-nil and differs from the bound
// set, then runs one pull cycle (§4.5 read(SDBs)).
func (r *Reader) ReadInto(ctx context.Context, sdbs []*sdb.Buffer) (int, error) {
	if !r.IsOpen() {
		return 0, e57err.ReaderNotOpen("reader is not open")
	}
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "cvreader.Read")
		defer span.End()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if sdbs != nil && !r.sameBufferSet(sdbs) {
		if err := r.rebind(sdbs); err != nil {
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return 0, err
		}
	}

	for _, ch := range r.channels {
		ch.buf.WriteCursor = 0
	}

	// Drain phase: let codecs spill anything already buffered internally
	// into the freshly rewound SDBs. Constant-field channels carry no
	// packet bytes and are filled in a post-pass below instead.
	for _, ch := range r.channels {
		if ch.constDec != nil {
			continue
		}
		if _, err := ch.dec.InputProcess(nil); err != nil {
			return 0, err
		}
	}

	if err := r.pullLoop(ctx); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return 0, err
	}

	count := -1
	for _, ch := range r.channels {
		if ch.constDec != nil {
			continue
		}
		if count == -1 {
			count = ch.buf.WriteCursor
			continue
		}
		if ch.buf.WriteCursor != count {
			err := e57err.Internalf("channel record counts disagree: %d vs %d", count, ch.buf.WriteCursor)
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return 0, err
		}
	}
	if count < 0 {
		// Every bound channel is constant-width (a degenerate prototype with
		// no real data fields). There is no packet-derived record count to
		// fall back on; fill to the bound buffers' capacity, matching what a
		// single read() call can produce in one pass.
		count = 0
		for _, ch := range r.channels {
			if ch.buf.Capacity > count {
				count = ch.buf.Capacity
			}
		}
	}
	for _, ch := range r.channels {
		if ch.constDec == nil {
			continue
		}
		if err := ch.constDec.FillConstant(count); err != nil {
			return 0, err
		}
	}
	if span != nil {
		span.SetAttributes(attribute.Int("cvreader.record_count", count))
	}
	return count, nil
}

func (r *Reader) sameBufferSet(sdbs []*sdb.Buffer) bool {
	if len(sdbs) != len(r.channels) {
		return false
	}
	for i, ch := range r.channels {
		if ch.buf != sdbs[i] {
			return false
		}
	}
	return true
}

func (r *Reader) rebind(sdbs []*sdb.Buffer) error {
	if len(sdbs) != len(r.channels) {
		return e57err.BadApiArgument("buffers", "", "rebind must supply the same number of buffers")
	}
	specs := make([]proto.BufferSpec, len(sdbs))
	for i, b := range sdbs {
		specs[i] = proto.BufferSpec{Path: b.Path}
	}
	if err := proto.CheckBuffers(r.tree, specs, true); err != nil {
		return err
	}
	for i, ch := range r.channels {
		if err := ch.buf.CheckCompatible(sdbs[i]); err != nil {
			return err
		}
		ch.buf = sdbs[i]
	}
	return nil
}

// pullLoop implements §4.5 step 4: earliest-packet selection, feed, and
// advance, until no live channel has a packet left to pull from.
func (r *Reader) pullLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		selected := r.selectEarliest()
		if selected == nil {
			break
		}
		offset := selected.currentPacketLogicalOffset
		dp, err := r.dataPacketAt(ctx, offset)
		if err != nil {
			return err
		}
		if dp.Header.Kind != packet.KindData {
			return e57err.BadCVPacketf("expected Data packet at offset %d, got %s", offset, dp.Header.Kind)
		}

		anyExhausted := false
		nextOffset := int64(0)
		var advancing []*channel
		for _, ch := range r.channels {
			if ch.constDec != nil || ch.currentPacketLogicalOffset != offset || ch.outputBlocked() || r.finished.Test(uint(ch.index)) {
				continue
			}
			slice := dp.Payloads[ch.node.BytestreamNumber][ch.currentBytestreamBufferIndex:ch.currentBytestreamBufferLength]
			consumed, err := ch.dec.InputProcess(slice)
			if err != nil {
				return err
			}
			ch.currentBytestreamBufferIndex += consumed
			if ch.currentBytestreamBufferIndex >= ch.currentBytestreamBufferLength {
				anyExhausted = true
				nextOffset = offset + int64(dp.Header.LogicalLength())
				advancing = append(advancing, ch)
			}
		}

		if anyExhausted {
			foundOffset, foundDP, found, err := r.findNextDataPacket(ctx, nextOffset)
			if err != nil {
				return err
			}
			if found {
				for _, ch := range advancing {
					r.moveChannel(ctx, ch, foundOffset)
					ch.currentBytestreamBufferIndex = 0
					ch.currentBytestreamBufferLength = len(foundDP.Payloads[ch.node.BytestreamNumber])
				}
			} else {
				for _, ch := range advancing {
					r.finished.Set(uint(ch.index))
					r.unrefAt(offset)
				}
			}
		}
	}
	return nil
}

// selectEarliest picks the non-blocked, non-finished channel with the
// smallest currentPacketLogicalOffset (§4.5 step 4a).
func (r *Reader) selectEarliest() *channel {
	var best *channel
	for _, ch := range r.channels {
		if ch.constDec != nil || ch.outputBlocked() || r.finished.Test(uint(ch.index)) {
			continue
		}
		if best == nil || ch.currentPacketLogicalOffset < best.currentPacketLogicalOffset {
			best = ch
		}
	}
	return best
}

// findNextDataPacket walks forward from startOffset, skipping non-Data
// packets by header length, until it finds a Data packet or passes
// sectionEnd (§4.5 step 4c). Only called when anyExhausted is true.
func (r *Reader) findNextDataPacket(ctx context.Context, startOffset int64) (int64, *packet.DataPacket, bool, error) {
	offset := startOffset
	for offset < r.sectionEnd {
		pin, err := r.cache.Lock(ctx, offset)
		if err != nil {
			return 0, nil, false, err
		}
		h, err := packet.ParseHeader(pin.Bytes())
		pin.Release()
		if err != nil {
			return 0, nil, false, err
		}
		if h.Kind != packet.KindData {
			offset += int64(h.LogicalLength())
			continue
		}
		_, dp, err := r.acquire(ctx, offset)
		if err != nil {
			return 0, nil, false, err
		}
		// Release this scan's own transient reference; advancing
		// channels re-acquire their own reference via moveChannel so the
		// pin's lifetime is owned entirely by channel bookkeeping.
		r.release(offset)
		return offset, dp, true, nil
	}
	return 0, nil, false, nil
}

// acquire pins the packet at offset (if not already pinned) and parses it,
// returning the pin and parsed packet. The caller owns one implicit
// reference that must be balanced with release.
func (r *Reader) acquire(ctx context.Context, offset int64) (*packetcache.Pin, *packet.DataPacket, error) {
	if pin, ok := r.pins[offset]; ok {
		r.pinRefs[offset]++
		return pin, r.dataPackets[offset], nil
	}
	pin, err := r.cache.Lock(ctx, offset)
	if err != nil {
		return nil, nil, err
	}
	dp, err := packet.ParseDataPacket(pin.Bytes())
	if err != nil {
		pin.Release()
		return nil, nil, err
	}
	if r.compressor.Type() != payload.CompressionNone {
		if err := r.decompressPayloads(dp); err != nil {
			pin.Release()
			return nil, nil, err
		}
	}
	r.pins[offset] = pin
	r.dataPackets[offset] = dp
	r.pinRefs[offset] = 1
	return pin, dp, nil
}

// decompressPayloads replaces dp's per-bytestream payload slices with their
// decompressed form in place, undoing the section's negotiated packet-level
// compression (§4.3 ambient addition) before any codec sees the bytes. A
// no-op when the payload is empty: an empty bytestream slot carries no
// compressed frame to begin with.
func (r *Reader) decompressPayloads(dp *packet.DataPacket) error {
	for k, p := range dp.Payloads {
		if len(p) == 0 {
			continue
		}
		rc, err := r.compressor.Decompress(p)
		if err != nil {
			return e57err.Wrap(e57err.KindBadCVPacket, "decompressing packet payload", err)
		}
		decoded, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return e57err.Wrap(e57err.KindBadCVPacket, "reading decompressed packet payload", err)
		}
		dp.Payloads[k] = decoded
	}
	return nil
}

// dataPacketAt returns the already-pinned packet at offset, or pins it via
// acquire.
func (r *Reader) dataPacketAt(ctx context.Context, offset int64) (*packet.DataPacket, error) {
	if dp, ok := r.dataPackets[offset]; ok {
		return dp, nil
	}
	_, dp, err := r.acquire(ctx, offset)
	return dp, err
}

// refAt records one more channel now pointing at offset, which must already
// be pinned (acquire is called once up front by New before any channel
// claims a reference).
func (r *Reader) refAt(offset int64) {
	r.pinRefs[offset]++
}

func (r *Reader) unrefAt(offset int64) {
	r.release(offset)
}

// release drops one reference on the packet pinned at offset, releasing it
// from the cache once no channel or in-flight acquire still needs it.
func (r *Reader) release(offset int64) {
	ref, ok := r.pinRefs[offset]
	if !ok {
		return
	}
	ref--
	if ref <= 0 {
		if pin, ok := r.pins[offset]; ok {
			pin.Release()
		}
		delete(r.pins, offset)
		delete(r.dataPackets, offset)
		delete(r.pinRefs, offset)
		return
	}
	r.pinRefs[offset] = ref
}

// moveChannel transfers ch's pin reference from its current offset to
// newOffset, acquiring the destination packet if needed.
func (r *Reader) moveChannel(ctx context.Context, ch *channel, newOffset int64) {
	oldOffset := ch.currentPacketLogicalOffset
	if _, _, err := r.acquire(ctx, newOffset); err != nil {
		// Acquire only fails on I/O error, already surfaced by the caller's
		// findNextDataPacket call that populated this packet; this second
		// acquire is a cache hit and cannot fail in practice.
		return
	}
	r.release(oldOffset)
	ch.currentPacketLogicalOffset = newOffset
}

// Close releases the reader's file reader-count claim and packet pins.
// Idempotent: calling it more than once is a no-op after the first.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	for offset := range r.pins {
		if pin, ok := r.pins[offset]; ok {
			pin.Release()
		}
	}
	r.pins = nil
	r.dataPackets = nil
	r.pinRefs = nil
	r.open.Store(false)
	r.file.DecrReaderCount()
	return nil
}
