// Package eaengine implements extended-attribute storage for a base file
// (spec §4.8): decode/encode of the EA record list, and the internal
// (info-sector tail) vs. external (dedicated EA-file) storage policy keyed
// on MaxInternalEAs.
package eaengine

import (
	"encoding/binary"
	"strings"

	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// ISF is the subset of info-sector operations the EA engine needs.
type ISF interface {
	ReadFileInfo(id types.FileID) (*types.FileInfo, error)
	WriteFileInfo(fi *types.FileInfo) error
	ReadEARegion(id types.FileID, buf []byte) error
	WriteEARegion(id types.FileID, data []byte) error
}

// FileOps is the subset of base-file operations the EA engine needs to
// manage a dedicated external EA-file.
type FileOps interface {
	ReadFile(id types.FileID, off uint64, buf []byte) (int, error)
	WriteFile(id types.FileID, off uint64, data []byte) (int, error)
	SetSize(id types.FileID, newSize uint64) error
	CreateBaseFile(template *types.FileInfo) (types.FileID, error)
	DestroyBaseFile(id types.FileID) error
}

// Engine reads and rewrites the EA list attached to a base file.
type Engine struct {
	isf   ISF
	files FileOps
}

// New returns an Engine operating over isf and files.
func New(isf ISF, files FileOps) *Engine {
	return &Engine{isf: isf, files: files}
}

// Decode walks an EA record stream, producing an ordered list. It rejects
// malformed records with BadEAs.
func Decode(data []byte) ([]types.EA, error) {
	var eas []types.EA
	pos := 0
	for {
		if pos >= len(data) {
			return nil, errs.New(errs.BadEAs, "EA stream missing terminator")
		}
		flag := data[pos]
		pos++
		if flag&types.EAFlagNotEOL == 0 {
			return eas, nil
		}
		start := pos
		for pos < len(data) && data[pos] != 0 {
			pos++
		}
		if pos >= len(data) {
			return nil, errs.New(errs.BadEAs, "EA name missing NUL terminator")
		}
		name := string(data[start:pos])
		pos++ // skip NUL
		if pos+4 > len(data) {
			return nil, errs.New(errs.BadEAs, "EA value length overruns stream")
		}
		valueLen := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		if uint64(pos)+uint64(valueLen) > uint64(len(data)) {
			return nil, errs.New(errs.BadEAs, "EA value overruns stream")
		}
		value := append([]byte(nil), data[pos:pos+int(valueLen)]...)
		pos += int(valueLen)
		eas = append(eas, types.EA{Flags: flag, Name: name, Value: value})
	}
}

// Encode marshals eas back into the on-disk record stream, setting
// EAFlagNotEOL on every record and appending the zero terminator byte.
func Encode(eas []types.EA) []byte {
	size := 1
	for _, e := range eas {
		size += 1 + len(e.Name) + 1 + 4 + len(e.Value)
	}
	buf := make([]byte, size)
	pos := 0
	for _, e := range eas {
		buf[pos] = e.Flags | types.EAFlagNotEOL
		pos++
		copy(buf[pos:], e.Name)
		pos += len(e.Name)
		buf[pos] = 0
		pos++
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(len(e.Value)))
		pos += 4
		copy(buf[pos:], e.Value)
		pos += len(e.Value)
	}
	buf[pos] = 0
	return buf
}

func foldEqual(a, b string) bool { return strings.EqualFold(a, b) }

// Query returns id's decoded EA list, reading from the info-sector tail or
// the external EA-file depending on the EXTEAS flag.
func (e *Engine) Query(id types.FileID) ([]types.EA, error) {
	info, err := e.isf.ReadFileInfo(id)
	if err != nil {
		return nil, err
	}
	if info.EABytes == 0 {
		return nil, nil
	}

	data := make([]byte, info.EABytes)
	if info.Flags&types.FlagEXTEAS != 0 {
		if info.EAFile == types.NoID {
			return nil, errs.New(errs.BadEAs, "EXTEAS set but no EA-file attached")
		}
		if _, err := e.files.ReadFile(info.EAFile, 0, data); err != nil {
			return nil, err
		}
	} else {
		if err := e.isf.ReadEARegion(id, data); err != nil {
			return nil, err
		}
	}
	return Decode(data)
}

// Set encodes eas and commits it as id's EA list, choosing internal vs.
// external storage by encoded size against MaxInternalEAs, always updating
// cbEAs and committing the owner's FileInfo. Moving from external to
// internal storage destroys the now-unused EA-file.
func (e *Engine) Set(id types.FileID, eas []types.EA) error {
	info, err := e.isf.ReadFileInfo(id)
	if err != nil {
		return err
	}
	encoded := Encode(eas)

	if len(encoded) <= types.MaxInternalEAs {
		if info.Flags&types.FlagEXTEAS != 0 && info.EAFile != types.NoID {
			if err := e.files.DestroyBaseFile(info.EAFile); err != nil {
				return err
			}
			info.EAFile = types.NoID
		}
		info.Flags &^= types.FlagEXTEAS
		if err := e.isf.WriteEARegion(id, encoded); err != nil {
			return err
		}
	} else {
		if info.EAFile == types.NoID {
			eaFile, err := e.files.CreateBaseFile(&types.FileInfo{
				Flags:  types.FlagIFEA,
				Parent: id,
			})
			if err != nil {
				return err
			}
			info.EAFile = eaFile
		}
		if _, err := e.files.WriteFile(info.EAFile, 0, encoded); err != nil {
			return err
		}
		if err := e.files.SetSize(info.EAFile, uint64(len(encoded))); err != nil {
			return err
		}
		info.Flags |= types.FlagEXTEAS
	}

	info.EABytes = uint32(len(encoded))
	return e.isf.WriteFileInfo(info)
}

// Merge applies the daemon-path merge semantics (spec §4.8): adds replaces
// any existing EA with a matching name (case-insensitive); a zero-length
// value deletes the corresponding EA instead of setting it.
func (e *Engine) Merge(id types.FileID, adds []types.EA) error {
	current, err := e.Query(id)
	if err != nil {
		return err
	}
	for _, add := range adds {
		idx := -1
		for i, cur := range current {
			if foldEqual(cur.Name, add.Name) {
				idx = i
				break
			}
		}
		switch {
		case len(add.Value) == 0 && idx >= 0:
			current = append(current[:idx], current[idx+1:]...)
		case len(add.Value) == 0:
			// deleting a name that isn't present is a no-op.
		case idx >= 0:
			current[idx] = add
		default:
			current = append(current, add)
		}
	}
	return e.Set(id, current)
}
