package imagefile

import (
	"sync/atomic"

	"github.com/e57io/e57cv/e57err"
)

// ImageFile is the per-file bookkeeping collaborator described in §6:
// open/writable state plus the shared reader/writer counts that let
// multiple Readers and at most one Writer share a CheckedFile safely
// (§5 "Shared resource policy"). The counts are atomic because, while each
// Reader/Writer is itself single-threaded, distinct Readers against
// disjoint sections of the same file may run on different goroutines.
type ImageFile struct {
	File CheckedFile

	writable atomic.Bool
	open     atomic.Bool

	readerCount atomic.Int64
	writerCount atomic.Int64
}

// NewImageFile wraps an already-open CheckedFile.
func NewImageFile(f CheckedFile, writable bool) *ImageFile {
	imf := &ImageFile{File: f}
	imf.open.Store(true)
	imf.writable.Store(writable)
	return imf
}

func (imf *ImageFile) IsOpen() bool     { return imf.open.Load() }
func (imf *ImageFile) IsWritable() bool { return imf.writable.Load() }

func (imf *ImageFile) IncrReaderCount() { imf.readerCount.Add(1) }
func (imf *ImageFile) DecrReaderCount() { imf.readerCount.Add(-1) }
func (imf *ImageFile) ReaderCount() int64 { return imf.readerCount.Load() }

func (imf *ImageFile) IncrWriterCount() { imf.writerCount.Add(1) }
func (imf *ImageFile) DecrWriterCount() { imf.writerCount.Add(-1) }
func (imf *ImageFile) WriterCount() int64 { return imf.writerCount.Load() }

// CheckOpen returns an ImageFileNotOpen error if the file has been closed.
func (imf *ImageFile) CheckOpen() error {
	if !imf.IsOpen() {
		return e57err.ImageFileNotOpen("image file is not open")
	}
	return nil
}

// CheckWritable returns a FileReadOnly error if the file was not opened for
// writing.
func (imf *ImageFile) CheckWritable() error {
	if err := imf.CheckOpen(); err != nil {
		return err
	}
	if !imf.IsWritable() {
		return e57err.FileReadOnly("image file was not opened in write mode")
	}
	return nil
}

// Close refuses to proceed while any reader or writer is still outstanding,
// per §5: "close of the file refuses to proceed while either is nonzero."
func (imf *ImageFile) Close() error {
	if err := imf.CheckOpen(); err != nil {
		return nil // already closed: idempotent no-op
	}
	if imf.ReaderCount() != 0 || imf.WriterCount() != 0 {
		return e57err.Internalf("cannot close image file: %d readers, %d writers still open", imf.ReaderCount(), imf.WriterCount())
	}
	imf.open.Store(false)
	return imf.File.Close()
}

// Section describes where a compressed-vector section lives in the file:
// its logical start offset (where the SectionHeader begins). The section's
// logical length is not stored here; it is read from the SectionHeader.
type Section struct {
	LogicalStart int64
}
