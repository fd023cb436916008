package isf

import (
	"github.com/aefs/aefs/internal/aefs/binio"
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// EncodeFileInfo marshals fi into its fixed 72-byte on-disk header (spec
// §6), followed by FileInfoReserved zero bytes. It does not touch the
// trailing internal-EA region, which the EA engine owns.
func EncodeFileInfo(fi *types.FileInfo) []byte {
	buf := make([]byte, headerSize+types.FileInfoReserved)
	w := binio.NewWriter(buf)
	w.U32(types.MagicFileInfo)
	w.U32(uint32(fi.ID))
	w.U32(fi.Flags)
	w.U32(fi.UID)
	w.U32(fi.GID)
	w.U32(fi.RefCount)
	w.U32(uint32(fi.FileSize))
	w.U32(0) // reserved1
	w.U32(0) // obsolete1
	w.U32(0) // reserved2
	w.U32(fi.SetSectors)
	w.U32(0) // reserved3
	w.U32(fi.TimeCreate)
	w.U32(fi.TimeAccess)
	w.U32(fi.TimeWrite)
	w.U32(uint32(fi.Parent))
	w.U32(fi.EABytes)
	w.U32(uint32(fi.EAFile))
	// remaining FileInfoReserved bytes stay zero.
	return buf
}

// DecodeFileInfo unmarshals the fixed header produced by EncodeFileInfo.
// buf must be at least headerSize bytes; any FileInfoReserved trailer is
// ignored.
func DecodeFileInfo(buf []byte) (*types.FileInfo, error) {
	if len(buf) < headerSize {
		return nil, errs.New(errs.BadInfoSector, "info sector shorter than header")
	}
	r := binio.NewReader(buf)
	fi := &types.FileInfo{}
	fi.Magic = r.U32()
	if fi.Magic != types.MagicFileInfo {
		return nil, errs.New(errs.BadInfoSector, "info sector has wrong magic")
	}
	fi.ID = types.FileID(r.U32())
	fi.Flags = r.U32()
	fi.UID = r.U32()
	fi.GID = r.U32()
	fi.RefCount = r.U32()
	fi.FileSize = uint64(r.U32())
	r.U32() // reserved1
	r.U32() // obsolete1
	r.U32() // reserved2
	fi.SetSectors = r.U32()
	r.U32() // reserved3
	fi.TimeCreate = r.U32()
	fi.TimeAccess = r.U32()
	fi.TimeWrite = r.U32()
	fi.Parent = types.FileID(r.U32())
	fi.EABytes = r.U32()
	fi.EAFile = types.FileID(r.U32())
	return fi, nil
}

// EncodeFreeSector marshals a free-list link or sentinel record (spec §6):
// magic(4), idNextFree(4), csSize(4) — 12 bytes.
func EncodeFreeSector(fs *types.FreeSector) []byte {
	buf := make([]byte, 12)
	w := binio.NewWriter(buf)
	w.U32(types.MagicFreeSector)
	w.U32(uint32(fs.NextFree))
	w.U32(fs.CSSize)
	return buf
}

// DecodeFreeSector unmarshals a free-list link or sentinel record.
func DecodeFreeSector(buf []byte) (*types.FreeSector, error) {
	if len(buf) < 12 {
		return nil, errs.New(errs.ISFCorrupt, "free-list record shorter than 12 bytes")
	}
	r := binio.NewReader(buf)
	fs := &types.FreeSector{}
	fs.Magic = r.U32()
	fs.NextFree = types.FileID(r.U32())
	fs.CSSize = r.U32()
	return fs, nil
}
