// Package storagepool implements the storage pool (spec §4.3): one open
// host handle per AEFS file, bounded by an MRU list, backing the
// `<8-hex-id>.enc` storage files of a volume's base directory.
package storagepool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/mru"
	"github.com/aefs/aefs/internal/aefs/types"
	"github.com/aefs/aefs/internal/util"
)

// Credentials are applied at storage-file create/open. Mode is the
// requested permission bits; UID/GID of zero mean "do not change
// ownership" (the pool never requires root). ReadOnly mirrors the volume's
// ReadOnly parm so the pool itself never opens a write-capable handle on a
// read-only volume, independent of the READ_ONLY check the volume manager
// applies before issuing the call.
type Credentials struct {
	UID      uint32
	GID      uint32
	Mode     os.FileMode
	ReadOnly bool
}

// openFlagAttributes adapts a storage-file open request to
// util.OpenFlagAttributes so the pool's access mode is derived the same
// way cfg-driven mount flags are, rather than hand-rolled per call site.
type openFlagAttributes struct {
	create   bool
	readOnly bool
}

func (f openFlagAttributes) IsReadOnly() bool  { return f.readOnly && !f.create }
func (f openFlagAttributes) IsWriteOnly() bool { return false }
func (f openFlagAttributes) IsReadWrite() bool { return !f.readOnly || f.create }
func (f openFlagAttributes) IsAppend() bool    { return false }
func (f openFlagAttributes) IsDirect() bool    { return false }

// Pool owns at most one open *os.File per file ID, plus an MRU list that
// bounds how many stay open at once. It does not itself hold sector
// contents; the sector cache (C4) is the caller.
type Pool struct {
	mu       sync.Mutex
	dir      string
	capacity int
	creds    Credentials
	list     *mru.List[types.FileID]
	handles  map[types.FileID]*os.File

	// sem is a hard backstop on cMaxOpenStorageFiles (spec §3 invariant 2),
	// independent of the shrink-then-open sequencing below: the core itself
	// is single-threaded per volume (spec §5), but a caller that shares one
	// Pool across goroutines can end up with concurrent Open calls against
	// it, and a non-blocking
	// acquire here turns a would-be invariant violation into an explicit
	// CacheOverflow instead of silently exceeding capacity.
	sem *semaphore.Weighted
}

// New returns a pool rooted at dir (the volume's base directory), bounding
// concurrently open handles to capacity (spec's cMaxOpenStorageFiles).
func New(dir string, capacity int, creds Credentials) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		dir:      dir,
		capacity: capacity,
		creds:    creds,
		list:     mru.New[types.FileID](),
		handles:  make(map[types.FileID]*os.File),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// path returns the host path of a storage file, spec §3/§6: "<8-hex-id>.enc".
func (p *Pool) path(id types.FileID) string {
	return filepath.Join(p.dir, fmt.Sprintf("%08x.enc", uint32(id)))
}

// Open opens (or, if create is set, creates) the storage file for id and
// promotes it to the MRU head. If already open, it is only promoted. The
// pool is shrunk to capacity-1 open handles first, so this call never
// itself exceeds the cap. initialSize is the host-file size to preallocate
// on create; it is ignored when the file already exists.
func (p *Pool) Open(id types.FileID, create bool, initialSize int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.handles[id]; ok {
		p.list.Touch(id)
		return nil
	}

	if err := p.shrinkLocked(p.capacity - 1); err != nil {
		return err
	}
	if !p.sem.TryAcquire(1) {
		return errs.New(errs.CacheOverflow, "open storage files at capacity")
	}

	mode := util.FileOpenMode(openFlagAttributes{create: create, readOnly: p.creds.ReadOnly})
	flags := mode.OSFlags()
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(p.path(id), flags, p.creds.permOrDefault())
	if err != nil {
		p.sem.Release(1)
		if create && os.IsExist(err) {
			return errs.Wrap(errs.IDExists, "storage file already exists", err)
		}
		if os.IsNotExist(err) {
			return errs.Wrap(errs.FileNotFound, "storage file not found", err)
		}
		return errs.Wrap(errs.SysIO, "open storage file", err)
	}

	if create {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			os.Remove(p.path(id))
			p.sem.Release(1)
			return errs.Wrap(errs.SysIO, "preallocate storage file", err)
		}
		p.creds.chown(f)
	} else if err := p.creds.checkOwner(f); err != nil {
		f.Close()
		p.sem.Release(1)
		return err
	}

	p.handles[id] = f
	p.list.Touch(id)
	return nil
}

// Close removes id's handle from the pool, if open. No-op otherwise.
func (p *Pool) Close(id types.FileID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked(id)
}

func (p *Pool) closeLocked(id types.FileID) {
	f, ok := p.handles[id]
	if !ok {
		return
	}
	f.Close()
	delete(p.handles, id)
	p.list.Remove(id)
	p.sem.Release(1)
}

// shrinkLocked evicts least-recently-used open handles until at most n
// remain open. Called with p.mu held.
func (p *Pool) shrinkLocked(n int) error {
	if n < 0 {
		n = 0
	}
	for len(p.handles) > n {
		id, ok := p.list.Oldest()
		if !ok {
			break
		}
		p.closeLocked(id)
	}
	return nil
}

// Shrink evicts open handles down to n, promoting-safe for callers like the
// volume manager's shrink_open_storage_files.
func (p *Pool) Shrink(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shrinkLocked(n)
}

// ReadRange reads count sectors starting at sectorStart into buf, which must
// be exactly count*SectorSize bytes. The file must already be open.
func (p *Pool) ReadRange(id types.FileID, sectorStart, count uint32, buf []byte) error {
	f, err := p.handleLocked(id)
	if err != nil {
		return err
	}
	want := int(count) * types.SectorSize
	if len(buf) != want {
		return fmt.Errorf("storagepool: read buffer has %d bytes, want %d", len(buf), want)
	}
	off := int64(sectorStart) * types.SectorSize
	if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
		return errs.Wrap(errs.SysIO, "read storage file", err)
	}
	return nil
}

// WriteRange writes count sectors worth of buf starting at sectorStart.
func (p *Pool) WriteRange(id types.FileID, sectorStart, count uint32, buf []byte) error {
	f, err := p.handleLocked(id)
	if err != nil {
		return err
	}
	want := int(count) * types.SectorSize
	if len(buf) != want {
		return fmt.Errorf("storagepool: write buffer has %d bytes, want %d", len(buf), want)
	}
	off := int64(sectorStart) * types.SectorSize
	if _, err := f.WriteAt(buf, off); err != nil {
		return errs.Wrap(errs.SysIO, "write storage file", err)
	}
	return nil
}

func (p *Pool) handleLocked(id types.FileID) (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.handles[id]
	if !ok {
		return nil, errs.New(errs.FileNotFound, "storage file not open")
	}
	p.list.Touch(id)
	return f, nil
}

// Exists reports whether id's storage file is present on the host
// filesystem, independent of whether it is currently open.
func (p *Pool) Exists(id types.FileID) bool {
	_, err := os.Stat(p.path(id))
	return err == nil
}

// Delete closes (if open) and removes id's storage file.
func (p *Pool) Delete(id types.FileID) error {
	p.Close(id)
	if err := os.Remove(p.path(id)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.SysIO, "delete storage file", err)
	}
	return nil
}

// SuggestSize truncates or grows id's storage file to sectors sectors.
// Growth is advisory: on platforms that only support truncate-to-grow this
// just extends the file with a hole.
func (p *Pool) SuggestSize(id types.FileID, sectors uint32) error {
	f, err := p.handleLocked(id)
	if err != nil {
		return err
	}
	if err := f.Truncate(int64(sectors) * types.SectorSize); err != nil {
		return errs.Wrap(errs.SysIO, "resize storage file", err)
	}
	return nil
}

// CloseAll closes every open handle, for drop_volume.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.handles {
		p.closeLocked(id)
	}
}

// OpenCount reports how many handles are currently open, for query_volume_stats.
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (c Credentials) permOrDefault() os.FileMode {
	if c.Mode == 0 {
		return 0o600
	}
	return c.Mode
}
