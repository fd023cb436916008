// Package basefile implements byte-granular base-file operations (spec
// §4.6): create/destroy, FileInfo query/set, and read/write/resize over a
// file ID, all expressed in terms of the ISF allocator and sector cache.
package basefile

import (
	"time"

	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// Clock supplies the POSIX timestamps stamped into FileInfo.TimeCreate/
// TimeAccess/TimeWrite (spec §3/§6); clock.RealClock satisfies it, tests
// use clock.SimulatedClock or clock.FakeClock for deterministic values.
type Clock interface {
	Now() time.Time
}

// ISF is the subset of the info-sector file the base-file layer needs.
type ISF interface {
	AllocID() (types.FileID, error)
	FreeID(id types.FileID) error
	ReadFileInfo(id types.FileID) (*types.FileInfo, error)
	WriteFileInfo(fi *types.FileInfo) error
	Exists(id types.FileID) bool
}

// Cache is the subset of the sector cache the base-file layer needs.
type Cache interface {
	Fetch(id types.FileID, start, count uint32, flags types.FetchFlags) error
	Query(id types.FileID, s uint32, off, ln int, flags types.FetchFlags, out []byte) error
	Set(id types.FileID, s uint32, off, ln int, flags types.FetchFlags, in []byte) error
	FlushFile(id types.FileID) error
	DiscardFile(id types.FileID)
}

// Storage is the subset of the storage pool the base-file layer needs.
type Storage interface {
	Open(id types.FileID, create bool, initialSize int64) error
	Delete(id types.FileID) error
	SuggestSize(id types.FileID, sectors uint32) error
}

// Ops implements byte-level file operations over an ISF/cache/storage
// triple shared by one volume.
type Ops struct {
	isf           ISF
	cache         Cache
	storage       Storage
	ioGranularity uint32
	clock         Clock
}

// New returns an Ops batching reads/writes up to ioGranularity sectors at a
// time (spec's csIOGranularity); 0 means unbounded (one batch per call).
// clk stamps TimeCreate/TimeAccess/TimeWrite on every operation that spec
// §3 says should update them.
func New(isf ISF, cache Cache, storage Storage, ioGranularity uint32, clk Clock) *Ops {
	return &Ops{isf: isf, cache: cache, storage: storage, ioGranularity: ioGranularity, clock: clk}
}

// now returns the current POSIX timestamp as a uint32, per spec §6
// ("Timestamps. POSIX seconds since 1970, 32-bit; 0 means unknown.").
func (o *Ops) now() uint32 {
	return uint32(o.clock.Now().Unix())
}

func ceilDivPayload(n uint64) uint32 {
	return uint32((n + types.PayloadSize - 1) / types.PayloadSize)
}

// CreateBaseFile allocates an ID, preallocates storage for
// template.FileSize bytes, and commits the FileInfo record. template.ID and
// template.Magic are overwritten. On any failure, all prior steps are
// rolled back.
func (o *Ops) CreateBaseFile(template *types.FileInfo) (types.FileID, error) {
	id, err := o.isf.AllocID()
	if err != nil {
		return 0, err
	}

	template.ID = id
	template.Magic = types.MagicFileInfo
	now := o.now()
	template.TimeCreate = now
	template.TimeAccess = now
	template.TimeWrite = now
	sectors := ceilDivPayload(template.FileSize)

	if err := o.storage.Open(id, true, int64(sectors)*types.SectorSize); err != nil {
		o.isf.FreeID(id)
		return 0, err
	}
	if err := o.isf.WriteFileInfo(template); err != nil {
		o.storage.Delete(id)
		o.isf.FreeID(id)
		return 0, err
	}
	return id, nil
}

// DestroyBaseFile discards id's cached content, deletes its storage file,
// and returns its ID to the ISF free list.
func (o *Ops) DestroyBaseFile(id types.FileID) error {
	o.cache.DiscardFile(id)
	if err := o.storage.Delete(id); err != nil {
		return err
	}
	return o.isf.FreeID(id)
}

// QueryInfo returns id's FileInfo record.
func (o *Ops) QueryInfo(id types.FileID) (*types.FileInfo, error) {
	return o.isf.ReadFileInfo(id)
}

// SetInfo commits fi as id's FileInfo record verbatim (caller must preserve
// ID/Magic).
func (o *Ops) SetInfo(fi *types.FileInfo) error {
	return o.isf.WriteFileInfo(fi)
}

func (o *Ops) batchSize(remaining uint32) uint32 {
	if o.ioGranularity == 0 || o.ioGranularity > remaining {
		return remaining
	}
	return o.ioGranularity
}

// ReadFile reads into buf starting at byte offset off, clamped to
// cbFileSize, zero-filling any region past csSet·PayloadSize (spec §4.6).
// It returns the number of bytes actually copied.
func (o *Ops) ReadFile(id types.FileID, off uint64, buf []byte) (int, error) {
	if err := validateOffset(off, len(buf)); err != nil {
		return 0, err
	}
	info, err := o.isf.ReadFileInfo(id)
	if err != nil {
		return 0, err
	}
	if off >= info.FileSize {
		return 0, nil
	}
	end := off + uint64(len(buf))
	if end > info.FileSize {
		end = info.FileSize
	}
	n := int(end - off)
	buf = buf[:n]

	if err := o.prefetch(id, off, end, info.SetSectors); err != nil {
		return 0, err
	}

	pos := off
	out := 0
	for out < n {
		sector := uint32(pos / types.PayloadSize)
		sectorOff := int(pos % types.PayloadSize)
		chunk := types.PayloadSize - sectorOff
		if chunk > n-out {
			chunk = n - out
		}
		if sector < info.SetSectors {
			if err := o.cache.Query(id, sector, sectorOff, chunk, types.FetchNone, buf[out:out+chunk]); err != nil {
				return out, err
			}
		} else {
			for i := 0; i < chunk; i++ {
				buf[out+i] = 0
			}
		}
		pos += uint64(chunk)
		out += chunk
	}

	info.TimeAccess = o.now()
	o.isf.WriteFileInfo(info) // best-effort: an access-time miss never fails the read

	return n, nil
}

// prefetch pulls the sectors covering [off, end) that are already
// initialized through the cache in ioGranularity-sized batches, so the
// subsequent per-chunk Query loop never triggers additional I/O.
func (o *Ops) prefetch(id types.FileID, off, end uint64, setSectors uint32) error {
	if end <= off {
		return nil
	}
	first := uint32(off / types.PayloadSize)
	last := uint32((end - 1) / types.PayloadSize)
	for s := first; s <= last && s < setSectors; {
		remain := setSectors - s
		if last-s+1 < remain {
			remain = last - s + 1
		}
		batch := o.batchSize(remain)
		if err := o.cache.Fetch(id, s, batch, types.FetchNone); err != nil {
			return err
		}
		s += batch
	}
	return nil
}

// WriteFile writes data at byte offset off, growing the file first if the
// write extends past cbFileSize, and zero-filling any gap sectors skipped
// past the current initialized region. csSet is advanced to cover every
// sector touched, and the FileInfo record is committed before returning,
// even on a write error partway through (spec §4.6/§7).
func (o *Ops) WriteFile(id types.FileID, off uint64, data []byte) (int, error) {
	if err := validateOffset(off, len(data)); err != nil {
		return 0, err
	}
	info, err := o.isf.ReadFileInfo(id)
	if err != nil {
		return 0, err
	}

	end := off + uint64(len(data))
	if end > info.FileSize {
		if err := o.growLocked(info, end); err != nil {
			return 0, err
		}
	}

	startSector := uint32(off / types.PayloadSize)
	if startSector > info.SetSectors {
		gap := startSector - info.SetSectors
		if err := o.cache.Fetch(id, info.SetSectors, gap, types.FetchNoRead); err != nil {
			o.isf.WriteFileInfo(info)
			return 0, err
		}
	}

	n := len(data)
	pos := off
	written := 0
	maxSector := info.SetSectors
	var werr error
	for written < n {
		sector := uint32(pos / types.PayloadSize)
		sectorOff := int(pos % types.PayloadSize)
		chunk := types.PayloadSize - sectorOff
		if chunk > n-written {
			chunk = n - written
		}
		flags := types.FetchNone
		if sector >= info.SetSectors {
			flags = types.FetchNoRead
		}
		if werr = o.cache.Set(id, sector, sectorOff, chunk, flags, data[written:written+chunk]); werr != nil {
			break
		}
		if sector+1 > maxSector {
			maxSector = sector + 1
		}
		pos += uint64(chunk)
		written += chunk
	}

	if maxSector > info.SetSectors {
		info.SetSectors = maxSector
	}
	if written > 0 {
		info.TimeWrite = o.now()
	}
	if cerr := o.isf.WriteFileInfo(info); cerr != nil && werr == nil {
		werr = cerr
	}
	return written, werr
}

func (o *Ops) growLocked(info *types.FileInfo, newSize uint64) error {
	sectors := ceilDivPayload(newSize)
	if err := o.storage.SuggestSize(info.ID, sectors); err != nil {
		return err
	}
	info.FileSize = newSize
	return nil
}

// SetSize resizes id to newSize bytes. Shrinking caps csSet to the new
// allocation and zero-fills the trailing partial payload of the last
// now-initialized sector, so later growth never exposes stale content.
func (o *Ops) SetSize(id types.FileID, newSize uint64) error {
	info, err := o.isf.ReadFileInfo(id)
	if err != nil {
		return err
	}

	newAlloc := ceilDivPayload(newSize)
	if newSize < info.FileSize && newAlloc < info.SetSectors {
		info.SetSectors = newAlloc
		if info.SetSectors > 0 {
			last := info.SetSectors - 1
			used := newSize - uint64(last)*types.PayloadSize
			if used < types.PayloadSize {
				zeroLen := int(types.PayloadSize - used)
				if err := o.cache.Set(id, last, int(used), zeroLen, types.FetchNone, make([]byte, zeroLen)); err != nil {
					return err
				}
			}
		}
	}

	info.FileSize = newSize
	if err := o.storage.SuggestSize(id, newAlloc); err != nil {
		return err
	}
	return o.isf.WriteFileInfo(info)
}

// validateOffset is a small guard used by callers that accept untrusted
// offsets before arithmetic that could otherwise overflow uint64.
func validateOffset(off uint64, ln int) error {
	if ln < 0 {
		return errs.New(errs.InvalidParameter, "negative length")
	}
	if off > off+uint64(ln) {
		return errs.New(errs.InvalidParameter, "offset+length overflows")
	}
	return nil
}
