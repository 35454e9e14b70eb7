// Package imagefile provides the minimal CheckedFile/ImageFile collaborator
// stand-ins the compressed-vector engine needs, per §6's "Collaborator
// interfaces consumed". The real ASTM E57 CheckedFile does page-oriented
// physical addressing with a per-page CRC, general node-tree bookkeeping,
// and XML section I/O; all of that is an explicitly out-of-scope external
// collaborator (§1), so this package implements only the slice of surface
// the engine actually calls, backed directly by *os.File with a whole-file
// running checksum for integrity reporting rather than a full paged-CRC
// scheme (see DESIGN.md).
package imagefile

import (
	"hash"
	"hash/crc32"
	"os"
	"sync"

	"github.com/e57io/e57cv/e57err"
)

// CheckedFile is the I/O surface the engine needs from the file layer.
// Logical and physical offsets coincide in this implementation (see package
// doc); the two are kept distinct in the API so a future paged CheckedFile
// can be swapped in without touching cvreader/cvwriter.
type CheckedFile interface {
	ReadAt(logicalOffset int64, p []byte) (int, error)
	WriteAt(logicalOffset int64, p []byte) (int, error)
	Length() (int64, error)
	PhysicalToLogical(off int64) int64
	LogicalToPhysical(off int64) int64
	Sync() error
	Close() error
}

// OSCheckedFile is a CheckedFile backed by an *os.File, with a whole-file
// running CRC32 maintained across writes for integrity reporting.
type OSCheckedFile struct {
	f *os.File

	mu       sync.Mutex
	checksum hash.Hash32
}

var _ CheckedFile = (*OSCheckedFile)(nil)

// OpenCheckedFile opens path for read/write, creating it if flag includes
// os.O_CREATE. The checksum hash only reflects bytes written through this
// handle in the current process; it is a diagnostic, not a format
// guarantee.
func OpenCheckedFile(path string, flag int, perm os.FileMode) (*OSCheckedFile, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &OSCheckedFile{f: f, checksum: crc32.NewIEEE()}, nil
}

func (c *OSCheckedFile) ReadAt(logicalOffset int64, p []byte) (int, error) {
	return c.f.ReadAt(p, logicalOffset)
}

func (c *OSCheckedFile) WriteAt(logicalOffset int64, p []byte) (int, error) {
	n, err := c.f.WriteAt(p, logicalOffset)
	if n > 0 {
		c.mu.Lock()
		c.checksum.Write(p[:n])
		c.mu.Unlock()
	}
	return n, err
}

func (c *OSCheckedFile) Length() (int64, error) {
	fi, err := c.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (c *OSCheckedFile) PhysicalToLogical(off int64) int64 { return off }
func (c *OSCheckedFile) LogicalToPhysical(off int64) int64 { return off }

func (c *OSCheckedFile) Sync() error  { return c.f.Sync() }
func (c *OSCheckedFile) Close() error { return c.f.Close() }

// Checksum returns the running CRC32 of bytes written through this handle.
func (c *OSCheckedFile) Checksum() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checksum.Sum32()
}

// ErrShortRead is a BadCVPacket error describing a read that returned fewer
// bytes than requested. No function in this package returns it.
var ErrShortRead = e57err.BadCVPacket("short read from checked file")
