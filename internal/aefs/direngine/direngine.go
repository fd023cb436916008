// Package direngine implements the directory record format and directory
// mutations of spec §4.7: decode/encode of the on-disk entry stream,
// case-insensitive path resolution, and the add/remove/move operations used
// by the higher-level namespace operations. Directory contents are plain
// byte streams stored through the base-file layer like any regular file.
package direngine

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// recordHeaderSize is the flag(1) + id(4) + namelen(4) prefix of a
// non-terminator directory record.
const recordHeaderSize = 1 + 4 + 4

// FileOps is the subset of base-file operations the directory engine needs
// to read and rewrite a directory's backing content.
type FileOps interface {
	ReadFile(id types.FileID, off uint64, buf []byte) (int, error)
	WriteFile(id types.FileID, off uint64, data []byte) (int, error)
	SetSize(id types.FileID, newSize uint64) error
	QueryInfo(id types.FileID) (*types.FileInfo, error)
	SetInfo(fi *types.FileInfo) error
}

// Engine mutates directory content through a FileOps.
type Engine struct {
	files FileOps
}

// New returns an Engine operating over files.
func New(files FileOps) *Engine {
	return &Engine{files: files}
}

// Decode walks the on-disk byte stream of a directory, producing an ordered
// list of entries. It rejects malformed records — a record whose fixed or
// name fields run past the end of data, or a stream with no terminator
// byte — with BadDirectory.
func Decode(data []byte) ([]types.DirEntry, error) {
	var entries []types.DirEntry
	pos := 0
	for {
		if pos >= len(data) {
			return nil, errs.New(errs.BadDirectory, "directory stream missing terminator")
		}
		flag := data[pos]
		pos++
		if flag&types.DirFlagNotEOL == 0 {
			return entries, nil
		}
		if pos+recordHeaderSize-1 > len(data) {
			return nil, errs.New(errs.BadDirectory, "directory record header overruns stream")
		}
		id := types.FileID(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		nameLen := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		if uint64(pos)+uint64(nameLen) > uint64(len(data)) {
			return nil, errs.New(errs.BadDirectory, "directory record name overruns stream")
		}
		name := string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)
		entries = append(entries, types.DirEntry{Flags: flag, ID: id, Name: name})
	}
}

// Encode marshals entries back into the on-disk record stream, setting
// DirFlagNotEOL on every record regardless of what the caller passed, and
// appending the single zero terminator byte.
func Encode(entries []types.DirEntry) []byte {
	size := 1
	for _, e := range entries {
		size += recordHeaderSize + len(e.Name)
	}
	buf := make([]byte, size)
	pos := 0
	for _, e := range entries {
		buf[pos] = e.Flags | types.DirFlagNotEOL
		pos++
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(e.ID))
		pos += 4
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(len(e.Name)))
		pos += 4
		copy(buf[pos:pos+len(e.Name)], e.Name)
		pos += len(e.Name)
	}
	buf[pos] = 0
	return buf
}

func foldEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ListDir returns dir's decoded entries in their current on-disk (case-
// insensitive lexicographic) order.
func (e *Engine) ListDir(dir types.FileID) ([]types.DirEntry, error) {
	return e.readAll(dir)
}

// readAll returns the full decoded contents of a directory file. A
// zero-length directory file (as CreateBaseFile leaves a new directory)
// holds no entries.
func (e *Engine) readAll(dir types.FileID) ([]types.DirEntry, error) {
	info, err := e.files.QueryInfo(dir)
	if err != nil {
		return nil, err
	}
	if types.FileType(info.Flags) != types.FlagIFDIR {
		return nil, errs.New(errs.NotDirectory, "not a directory")
	}
	if info.FileSize == 0 {
		return nil, nil
	}
	buf := make([]byte, info.FileSize)
	if _, err := e.files.ReadFile(dir, 0, buf); err != nil {
		return nil, err
	}
	return Decode(buf)
}

// writeAll rewrites a directory's entire content and truncates it to the
// exact new size.
func (e *Engine) writeAll(dir types.FileID, entries []types.DirEntry) error {
	data := Encode(entries)
	if _, err := e.files.WriteFile(dir, 0, data); err != nil {
		return err
	}
	return e.files.SetSize(dir, uint64(len(data)))
}

// QueryIDFromPath resolves a '/'-separated path starting at dir,
// case-insensitively matching each component against directory entries.
// An empty path (or one consisting only of separators) resolves to dir
// itself.
func (e *Engine) QueryIDFromPath(dir types.FileID, path string) (types.FileID, error) {
	cur := dir
	for _, comp := range splitPath(path) {
		entries, err := e.readAll(cur)
		if err != nil {
			return 0, err
		}
		found := false
		for _, ent := range entries {
			if foldEqual(ent.Name, comp) {
				cur = ent.ID
				found = true
				break
			}
		}
		if !found {
			return 0, errs.New(errs.FileNotFound, comp)
		}
	}
	return cur, nil
}

func splitPath(path string) []string {
	raw := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	return raw
}

func insertionIndex(entries []types.DirEntry, name string) int {
	return sort.Search(len(entries), func(i int) bool {
		return strings.ToLower(entries[i].Name) >= strings.ToLower(name)
	})
}

// AddEntry inserts a new (name, target) record into dir, case-insensitively
// rejecting an existing entry of the same name with FileExists. Entries are
// kept in case-insensitive lexicographic order.
func (e *Engine) AddEntry(dir types.FileID, name string, target types.FileID, flags uint8) error {
	if name == "" {
		return errs.New(errs.InvalidName, "empty name")
	}
	entries, err := e.readAll(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if foldEqual(ent.Name, name) {
			return errs.New(errs.FileExists, name)
		}
	}
	idx := insertionIndex(entries, name)
	entries = append(entries, types.DirEntry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = types.DirEntry{Flags: flags, ID: target, Name: name}
	return e.writeAll(dir, entries)
}

// RemoveEntry deletes the entry named name from dir. This is the
// idDstDir==0 case of the original move primitive, named explicitly: a
// plain removal with no corresponding insert, used by unlink/rmdir and by
// MoveEntry's own removal step.
func (e *Engine) RemoveEntry(dir types.FileID, name string) (types.DirEntry, error) {
	entries, err := e.readAll(dir)
	if err != nil {
		return types.DirEntry{}, err
	}
	for i, ent := range entries {
		if foldEqual(ent.Name, name) {
			removed := ent
			entries = append(entries[:i], entries[i+1:]...)
			if err := e.writeAll(dir, entries); err != nil {
				return types.DirEntry{}, err
			}
			return removed, nil
		}
	}
	return types.DirEntry{}, errs.New(errs.FileNotFound, name)
}

// MoveEntry removes srcName from srcDir and inserts it as dstName in
// dstDir, rejecting a duplicate dstName with FileExists. If the moved
// entry's target is a directory and srcDir != dstDir, its FileInfo.Parent
// is updated to dstDir. Callers that want the original's "remove without
// inserting" behavior (dstDir == 0) must call RemoveEntry directly instead.
func (e *Engine) MoveEntry(srcDir types.FileID, srcName string, dstDir types.FileID, dstName string) error {
	if dstDir == types.NoID {
		return errs.New(errs.InvalidParameter, "move destination directory is zero; use RemoveEntry")
	}
	if srcDir == dstDir && foldEqual(srcName, dstName) {
		return nil
	}

	removed, err := e.RemoveEntry(srcDir, srcName)
	if err != nil {
		return err
	}

	if err := e.AddEntry(dstDir, dstName, removed.ID, removed.Flags); err != nil {
		// Roll back the removal so a rejected move leaves the source intact.
		e.AddEntry(srcDir, srcName, removed.ID, removed.Flags)
		return err
	}

	if srcDir != dstDir {
		info, err := e.files.QueryInfo(removed.ID)
		if err != nil {
			return err
		}
		if types.FileType(info.Flags) == types.FlagIFDIR {
			info.Parent = dstDir
			if err := e.files.SetInfo(info); err != nil {
				return err
			}
		}
	}
	return nil
}
