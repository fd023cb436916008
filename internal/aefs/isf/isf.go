// Package isf implements the info-sector file (spec §4.5): a free-list
// allocator layered over the sector cache, where ISF sector number N holds
// either the FileInfo of file N or a free-list link, and sector 0 is the
// sentinel carrying the head of the free list and the ISF's current size.
package isf

import (
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// Cache is the subset of the sector cache the ISF drives.
type Cache interface {
	Fetch(id types.FileID, start, count uint32, flags types.FetchFlags) error
	Query(id types.FileID, s uint32, off, ln int, flags types.FetchFlags, out []byte) error
	Set(id types.FileID, s uint32, off, ln int, flags types.FetchFlags, in []byte) error
}

// Storage is the subset of the storage pool the ISF needs to grow its
// backing host file.
type Storage interface {
	SuggestSize(id types.FileID, sectors uint32) error
}

// Layout offsets within one ISF sector's payload (spec §6): the fixed
// header, then FileInfoReserved pad bytes, then up to MaxInternalEAs bytes
// of internal EA payload, exactly filling PayloadSize.
const (
	headerSize = 18 * 4
	eaOffset   = headerSize + types.FileInfoReserved
)

// ISF is the info-sector file allocator for one volume.
type ISF struct {
	cache   Cache
	storage Storage
	grow    uint32
}

// New returns an ISF driving cache and storage, growing by grow sectors
// (at least 1) whenever the free list runs dry.
func New(cache Cache, storage Storage, grow uint32) *ISF {
	if grow == 0 {
		grow = 1
	}
	return &ISF{cache: cache, storage: storage, grow: grow}
}

// Init writes the sentinel {FREE, next=0, csSize=1} into sector 0 of a
// freshly created, empty ISF. Unlike writeSentinel, it materializes sector
// 0 without reading it, since a brand-new ISF's backing file has no prior
// content worth decrypting.
func (f *ISF) Init() error {
	if err := f.cache.Fetch(types.InfoSectorFile, 0, 1, types.FetchNoRead); err != nil {
		return err
	}
	rec := &types.FreeSector{Magic: types.MagicFreeSector, NextFree: 0, CSSize: 1}
	return f.cache.Set(types.InfoSectorFile, 0, 0, 12, types.FetchNone, EncodeFreeSector(rec))
}

func (f *ISF) readSentinel() (*types.FreeSector, error) {
	buf := make([]byte, 12)
	if err := f.cache.Query(types.InfoSectorFile, 0, 0, 12, types.FetchNone, buf); err != nil {
		return nil, err
	}
	rec, err := DecodeFreeSector(buf)
	if err != nil {
		return nil, err
	}
	if rec.Magic != types.MagicFreeSector {
		return nil, errs.New(errs.ISFCorrupt, "ISF sentinel has wrong magic")
	}
	if uint32(rec.NextFree) >= rec.CSSize {
		return nil, errs.New(errs.ISFCorrupt, "ISF sentinel free-list head out of range")
	}
	return rec, nil
}

func (f *ISF) writeSentinel(rec *types.FreeSector) error {
	if err := f.cache.Fetch(types.InfoSectorFile, 0, 1, types.FetchNone); err != nil {
		return err
	}
	return f.cache.Set(types.InfoSectorFile, 0, 0, 12, types.FetchNone, EncodeFreeSector(rec))
}

// AllocID reserves a new file ID. The caller must overwrite the returned
// sector with a valid IN_USE FileInfo before the operation that requested
// it is considered committed (spec §4.5).
func (f *ISF) AllocID() (types.FileID, error) {
	sentinel, err := f.readSentinel()
	if err != nil {
		return 0, err
	}

	if sentinel.NextFree != 0 {
		head := sentinel.NextFree
		buf := make([]byte, 12)
		if err := f.cache.Query(types.InfoSectorFile, uint32(head), 0, 12, types.FetchNone, buf); err != nil {
			return 0, err
		}
		rec, err := DecodeFreeSector(buf)
		if err != nil {
			return 0, err
		}
		if rec.Magic != types.MagicFreeSector {
			return 0, errs.New(errs.ISFCorrupt, "free-list element has wrong magic")
		}
		sentinel.NextFree = rec.NextFree
		if err := f.writeSentinel(sentinel); err != nil {
			return 0, err
		}
		return head, nil
	}

	growBy := f.grow
	oldSize := types.FileID(sentinel.CSSize)
	newSize := oldSize + types.FileID(growBy)
	if err := f.storage.SuggestSize(types.InfoSectorFile, uint32(newSize)); err != nil {
		return 0, err
	}

	allocated := oldSize
	var threadHead types.FileID
	for i := int(growBy) - 1; i >= 1; i-- {
		sector := oldSize + types.FileID(i)
		rec := types.FreeSector{Magic: types.MagicFreeSector, NextFree: threadHead}
		if err := f.cache.Fetch(types.InfoSectorFile, uint32(sector), 1, types.FetchNoRead); err != nil {
			return 0, err
		}
		if err := f.cache.Set(types.InfoSectorFile, uint32(sector), 0, 12, types.FetchNone, EncodeFreeSector(&rec)); err != nil {
			return 0, err
		}
		threadHead = sector
	}

	sentinel.NextFree = threadHead
	sentinel.CSSize = uint32(newSize)
	if err := f.writeSentinel(sentinel); err != nil {
		return 0, err
	}
	if err := f.cache.Fetch(types.InfoSectorFile, uint32(allocated), 1, types.FetchNoRead); err != nil {
		return 0, err
	}
	return allocated, nil
}

// FreeID returns id to the free list.
func (f *ISF) FreeID(id types.FileID) error {
	if id == 0 {
		return errs.New(errs.InvalidParameter, "cannot free the reserved null ID")
	}
	sentinel, err := f.readSentinel()
	if err != nil {
		return err
	}
	rec := types.FreeSector{Magic: types.MagicFreeSector, NextFree: sentinel.NextFree}
	if err := f.cache.Fetch(types.InfoSectorFile, uint32(id), 1, types.FetchNoRead); err != nil {
		return err
	}
	if err := f.cache.Set(types.InfoSectorFile, uint32(id), 0, 12, types.FetchNone, EncodeFreeSector(&rec)); err != nil {
		return err
	}
	sentinel.NextFree = id
	return f.writeSentinel(sentinel)
}

// ReadFileInfo fetches and decodes the FileInfo record for id.
func (f *ISF) ReadFileInfo(id types.FileID) (*types.FileInfo, error) {
	buf := make([]byte, headerSize)
	if err := f.cache.Query(types.InfoSectorFile, uint32(id), 0, headerSize, types.FetchNone, buf); err != nil {
		return nil, err
	}
	return DecodeFileInfo(buf)
}

// WriteFileInfo encodes and commits fi into its own ISF sector.
func (f *ISF) WriteFileInfo(fi *types.FileInfo) error {
	if err := f.cache.Fetch(types.InfoSectorFile, uint32(fi.ID), 1, types.FetchNone); err != nil {
		return err
	}
	return f.cache.Set(types.InfoSectorFile, uint32(fi.ID), 0, headerSize, types.FetchNone, EncodeFileInfo(fi))
}

// ReadEARegion copies len(buf) bytes of id's trailing internal-EA region.
func (f *ISF) ReadEARegion(id types.FileID, buf []byte) error {
	return f.cache.Query(types.InfoSectorFile, uint32(id), eaOffset, len(buf), types.FetchNone, buf)
}

// WriteEARegion commits data into id's trailing internal-EA region.
func (f *ISF) WriteEARegion(id types.FileID, data []byte) error {
	if len(data) > types.MaxInternalEAs {
		return errs.New(errs.BadEAs, "internal EA payload exceeds MaxInternalEAs")
	}
	return f.cache.Set(types.InfoSectorFile, uint32(id), eaOffset, len(data), types.FetchNone, data)
}

// Exists reports whether id currently names a live (IN_USE) file.
func (f *ISF) Exists(id types.FileID) bool {
	fi, err := f.ReadFileInfo(id)
	return err == nil && fi.IsInUse()
}
