// Package cvwriter implements the Writer orchestration of §4.6: feeding
// records through per-bytestream encoders and emitting Data packets once
// their queued output crosses a configurable byte budget, symmetric to
// cvreader's pull loop.
package cvwriter

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/INLOpen/skiplist"
	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/caio/go-tdigest/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/e57io/e57cv/codec"
	"github.com/e57io/e57cv/e57err"
	"github.com/e57io/e57cv/imagefile"
	"github.com/e57io/e57cv/packet"
	"github.com/e57io/e57cv/payload"
	"github.com/e57io/e57cv/proto"
	"github.com/e57io/e57cv/sdb"
)

// DefaultPacketBudgetBytes is the logical-length ceiling a Writer targets
// per Data packet before it flushes. It equals packet.MaxLogicalLength;
// flushPacket drains at most perChannelDrainBudget bytes from each channel,
// so an uncompressed packet stays within that hard wire limit.
const DefaultPacketBudgetBytes = 64 * 1024

// DefaultIndexIntervalRecords is how often, in records, an Index-packet
// checkpoint is recorded when EmitIndex is enabled.
const DefaultIndexIntervalRecords = 1024

type channel struct {
	node *proto.Node
	buf  *sdb.Buffer
	enc  codec.Encoder
}

// Writer is a single-owner, single-threaded cursor that emits one
// compressed-vector section. Construct with New, defer Close immediately
// after.
type Writer struct {
	file    *imagefile.ImageFile
	tracer  trace.Tracer
	log     *slog.Logger
	tree    *proto.Tree
	section imagefile.Section

	channels []*channel // ordered by BytestreamNumber, index == bytestream number

	packetBudgetBytes    int
	emitIndex            bool
	indexIntervalRecords uint64
	compression          payload.CompressionType
	compressor           payload.Compressor

	writeOffset        int64
	dataPhysicalOffset uint64
	packetsWritten      int
	recordCount        uint64
	lastIndexedAt      uint64

	index          *skiplist.SkipList[uint64, uint64] // recordNumber -> physical offset of the packet holding it
	nonEmptyStreams *roaring64.Bitmap
	packetSizes    *tdigest.TDigest

	open   atomic.Bool
	closed atomic.Bool
}

// Options configures a Writer beyond its required node/SDBs/file.
type Options struct {
	PacketBudgetBytes    int
	EmitIndex            bool
	IndexIntervalRecords uint64
	// Compression selects the packet-payload compressor negotiated for this
	// section (§4.3 ambient addition), recorded in the section header's
	// Flags byte so the Reader can resolve the same compressor without
	// out-of-band configuration. Defaults to payload.CompressionNone.
	Compression payload.CompressionType
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

func recordNumberCmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// New constructs a Writer bound to node's prototype tree, writing a fresh
// compressed-vector section starting at section.LogicalStart. Every
// terminal of the prototype must have a bound buffer (§4.6: a Data packet
// must carry a payload slot, possibly empty, for every bytestream).
func New(file *imagefile.ImageFile, tree *proto.Tree, section imagefile.Section, buffers []*sdb.Buffer, opts Options) (*Writer, error) {
	if err := file.CheckWritable(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PacketBudgetBytes <= 0 {
		opts.PacketBudgetBytes = DefaultPacketBudgetBytes
	}
	if opts.IndexIntervalRecords == 0 {
		opts.IndexIntervalRecords = DefaultIndexIntervalRecords
	}
	logger := opts.Logger.With("component", "cvwriter")

	compressor, err := payload.ForType(opts.Compression)
	if err != nil {
		return nil, err
	}

	specs := make([]proto.BufferSpec, len(buffers))
	for i, b := range buffers {
		specs[i] = proto.BufferSpec{Path: b.Path}
	}
	if err := proto.CheckBuffers(tree, specs, false); err != nil {
		return nil, err
	}

	w := &Writer{
		file:                 file,
		tracer:               opts.Tracer,
		log:                  logger,
		tree:                 tree,
		section:              section,
		packetBudgetBytes:    opts.PacketBudgetBytes,
		emitIndex:            opts.EmitIndex,
		indexIntervalRecords: opts.IndexIntervalRecords,
		compression:          opts.Compression,
		compressor:           compressor,
		nonEmptyStreams:      roaring64.New(),
	}
	if w.emitIndex {
		w.index = skiplist.NewWithComparator[uint64, uint64](recordNumberCmp)
	}
	td, err := tdigest.New()
	if err != nil {
		return nil, e57err.Wrap(e57err.KindInternal, "constructing packet-size digest", err)
	}
	w.packetSizes = td

	chans := make([]*channel, len(buffers))
	for i, b := range buffers {
		id, err := tree.FindByPath(b.Path)
		if err != nil {
			return nil, err
		}
		node := tree.Node(id)
		enc, err := codec.NewEncoder(node, b)
		if err != nil {
			return nil, err
		}
		b.BytestreamNumber = node.BytestreamNumber
		chans[i] = &channel{node: node, buf: b, enc: enc}
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i].node.BytestreamNumber < chans[j].node.BytestreamNumber })
	w.channels = chans

	placeholder := packet.SectionHeader{SectionID: packet.SectionIDCompressedVector}.Marshal()
	if _, err := file.File.WriteAt(section.LogicalStart, placeholder); err != nil {
		return nil, e57err.Wrap(e57err.KindBadCVPacket, "writing placeholder section header", err)
	}
	w.writeOffset = section.LogicalStart + int64(packet.SectionHeaderSize)

	file.IncrWriterCount()
	w.open.Store(true)
	return w, nil
}

// IsOpen reports whether the Writer is still usable.
func (w *Writer) IsOpen() bool { return w.open.Load() && !w.closed.Load() }

// Write feeds up to numRecords records from each bound buffer's read cursor
// through its encoder, flushing Data packets as the budget is crossed, and
// returns the common number of records actually consumed (§4.6 write).
func (w *Writer) Write(ctx context.Context, numRecords int) (int, error) {
	if !w.IsOpen() {
		return 0, e57err.WriterNotOpen("writer is not open")
	}
	var span trace.Span
	if w.tracer != nil {
		ctx, span = w.tracer.Start(ctx, "cvwriter.Write")
		defer span.End()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	consumed := -1
	for _, ch := range w.channels {
		n, err := ch.enc.Feed(numRecords)
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return 0, err
		}
		if consumed == -1 {
			consumed = n
			continue
		}
		if n != consumed {
			err := e57err.Internalf("channel record counts disagree on feed: %d vs %d", consumed, n)
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return 0, err
		}
	}
	if consumed < 0 {
		consumed = 0
	}
	w.recordCount += uint64(consumed)

	if err := w.maybeFlush(ctx); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return 0, err
	}
	if span != nil {
		span.SetAttributes(attribute.Int("cvwriter.record_count", consumed))
	}
	return consumed, nil
}

// maybeFlush emits Data packets, one per packetBudgetBytes' worth of queued
// output, until the channels' combined queued output plus framing overhead
// drops back under the budget. A single large Write can queue many times the
// budget at once, so this loops rather than emitting at most one packet
// (§4.6: a packet is emitted whenever the budget is crossed).
func (w *Writer) maybeFlush(ctx context.Context) error {
	for {
		overhead := packet.HeaderSize + 2 + 2*len(w.channels)
		total := overhead
		for _, ch := range w.channels {
			total += ch.enc.Pending()
		}
		if total < w.packetBudgetBytes {
			return nil
		}
		wrote, err := w.flushPacket(ctx)
		if err != nil {
			return err
		}
		if !wrote {
			return nil
		}
	}
}

// perChannelDrainBudget splits the packet byte budget evenly across
// channels, leaving room for the packet/header and length-table overhead.
// Always at least 1 so a pathologically small budget with many channels
// still makes forward progress instead of stalling maybeFlush's loop.
func (w *Writer) perChannelDrainBudget() int {
	overhead := packet.HeaderSize + 2 + 2*len(w.channels)
	budget := (w.packetBudgetBytes - overhead) / len(w.channels)
	if budget < 1 {
		budget = 1
	}
	return budget
}

// flushPacket drains up to one packetBudgetBytes-sized Data packet's worth
// of queued output from each channel and writes it at the section's current
// running offset. Reports wrote=false when every channel was empty, so
// callers looping until pending is drained know when to stop.
func (w *Writer) flushPacket(ctx context.Context) (bool, error) {
	var span trace.Span
	if w.tracer != nil {
		_, span = w.tracer.Start(ctx, "cvwriter.flushPacket")
		defer span.End()
	}

	perChannel := w.perChannelDrainBudget()
	payloads := make([][]byte, len(w.channels))
	anyPending := false
	for k, ch := range w.channels {
		n := ch.enc.Pending()
		if n > perChannel {
			n = perChannel
		}
		p := ch.enc.Drain(n)
		if len(p) > 0 {
			anyPending = true
			w.nonEmptyStreams.Add(uint64(k))
		}
		compressed, err := w.compressor.Compress(p)
		if err != nil {
			err = e57err.Wrap(e57err.KindBadCVPacket, "compressing packet payload", err)
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return false, err
		}
		payloads[k] = compressed
	}
	if !anyPending {
		return false, nil
	}

	raw, err := packet.MarshalDataPacket(payloads, 0)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return false, err
	}

	physicalOffset := w.file.File.LogicalToPhysical(w.writeOffset)
	if w.packetsWritten == 0 {
		w.dataPhysicalOffset = uint64(physicalOffset)
	}
	if _, err := w.file.File.WriteAt(w.writeOffset, raw); err != nil {
		err = e57err.Wrap(e57err.KindBadCVPacket, "writing data packet", err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return false, err
	}

	if w.emitIndex && w.recordCount-w.lastIndexedAt >= w.indexIntervalRecords {
		w.index.Insert(w.lastIndexedAt, uint64(physicalOffset))
		w.lastIndexedAt = w.recordCount
	}

	if span != nil {
		span.SetAttributes(
			attribute.Int64("cvwriter.packet.offset", w.writeOffset),
			attribute.Int("cvwriter.packet.logical_len", len(raw)),
		)
	}
	_ = w.packetSizes.AddWeighted(float64(len(raw)), 1)

	w.writeOffset += int64(len(raw))
	w.packetsWritten++
	return true, nil
}

// PacketSizeQuantile reports the q-quantile (0..1) of emitted packet sizes
// observed so far, for operators tuning PacketBudgetBytes.
func (w *Writer) PacketSizeQuantile(q float64) float64 {
	return w.packetSizes.Quantile(q)
}

// NonEmptyBytestreamCount returns how many distinct bytestream numbers have
// ever produced a non-empty payload. Far fewer than len(channels) across an
// entire section usually indicates a prototype/SDB binding mistake upstream.
func (w *Writer) NonEmptyBytestreamCount() uint64 {
	return w.nonEmptyStreams.GetCardinality()
}

// Close flushes all encoders, emits a final (possibly short) Data packet,
// writes the section header with the final record count, optionally emits
// Index packets, and detaches from the file's writer count. Idempotent.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		w.open.Store(false)
		w.file.DecrWriterCount()
	}()

	for _, ch := range w.channels {
		ch.enc.Flush()
	}
	for {
		wrote, err := w.flushPacket(context.Background())
		if err != nil {
			return err
		}
		if !wrote {
			break
		}
	}
	if w.packetsWritten == 0 {
		// With nothing queued flushPacket writes nothing; one Data packet
		// with empty payloads still goes out so DataPhysicalOffset names one.
		raw, err := packet.MarshalDataPacket(make([][]byte, len(w.channels)), 0)
		if err != nil {
			return err
		}
		w.dataPhysicalOffset = uint64(w.file.File.LogicalToPhysical(w.writeOffset))
		if _, err := w.file.File.WriteAt(w.writeOffset, raw); err != nil {
			return e57err.Wrap(e57err.KindBadCVPacket, "writing data packet", err)
		}
		w.writeOffset += int64(len(raw))
		w.packetsWritten++
	}

	indexPhysicalOffset := uint64(0)
	if w.emitIndex && w.index.Len() > 0 {
		indexPhysicalOffset = uint64(w.file.File.LogicalToPhysical(w.writeOffset))
		entries := make([]packet.IndexEntry, 0, w.index.Len())
		w.index.Range(func(recordNumber, physicalOffset uint64) bool {
			entries = append(entries, packet.IndexEntry{RecordNumber: recordNumber, PhysicalOffset: physicalOffset})
			return true
		})

		const maxEntriesPerPacket = (packet.MaxLogicalLength - packet.HeaderSize - 4) / 16
		for len(entries) > 0 {
			n := len(entries)
			if n > maxEntriesPerPacket {
				n = maxEntriesPerPacket
			}
			raw, err := packet.MarshalIndexPacket(entries[:n])
			if err != nil {
				return err
			}
			if _, err := w.file.File.WriteAt(w.writeOffset, raw); err != nil {
				return e57err.Wrap(e57err.KindBadCVPacket, "writing index packet", err)
			}
			w.writeOffset += int64(len(raw))
			entries = entries[n:]
		}
	}

	header := packet.SectionHeader{
		SectionID:            packet.SectionIDCompressedVector,
		SectionLogicalLength: uint64(w.writeOffset - w.section.LogicalStart),
		DataPhysicalOffset:   w.dataPhysicalOffset,
		IndexPhysicalOffset:  indexPhysicalOffset,
		RecordCount:          w.recordCount,
		Flags:                uint8(w.compression),
	}
	if _, err := w.file.File.WriteAt(w.section.LogicalStart, header.Marshal()); err != nil {
		return e57err.Wrap(e57err.KindBadCVPacket, "writing final section header", err)
	}
	return nil
}
