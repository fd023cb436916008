// Package symlink implements symlink target storage on top of the EA
// engine (spec §4.9): the target is carried as a critical "SYMLINK" EA,
// with a legacy fallback to a file's raw content for files written before
// that EA existed.
package symlink

import (
	"strings"

	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// EAs is the subset of EA-engine operations symlinks need.
type EAs interface {
	Query(id types.FileID) ([]types.EA, error)
	Set(id types.FileID, eas []types.EA) error
}

// FileOps is the subset of base-file operations needed for the legacy
// raw-content fallback and the IFLNK type check.
type FileOps interface {
	QueryInfo(id types.FileID) (*types.FileInfo, error)
	ReadFile(id types.FileID, off uint64, buf []byte) (int, error)
}

// Engine reads and writes symlink targets.
type Engine struct {
	eas   EAs
	files FileOps
}

// New returns an Engine operating over eas and files.
func New(eas EAs, files FileOps) *Engine {
	return &Engine{eas: eas, files: files}
}

func (e *Engine) requireSymlink(id types.FileID) (*types.FileInfo, error) {
	info, err := e.files.QueryInfo(id)
	if err != nil {
		return nil, err
	}
	if types.FileType(info.Flags) != types.FlagIFLNK {
		return nil, errs.New(errs.BadType, "not a symlink")
	}
	return info, nil
}

// Write requires id be of type IFLNK. It removes any existing SYMLINK EA
// and prepends a new critical one carrying target's raw bytes (no NUL).
func (e *Engine) Write(id types.FileID, target string) error {
	if _, err := e.requireSymlink(id); err != nil {
		return err
	}
	current, err := e.eas.Query(id)
	if err != nil {
		return err
	}

	kept := current[:0:0]
	for _, ea := range current {
		if !strings.EqualFold(ea.Name, types.SymlinkEAName) {
			kept = append(kept, ea)
		}
	}
	newEA := types.EA{Flags: types.EAFlagCritical, Name: types.SymlinkEAName, Value: []byte(target)}
	updated := append([]types.EA{newEA}, kept...)
	return e.eas.Set(id, updated)
}

// Read requires id be of type IFLNK. It prefers the SYMLINK EA; absent
// that, it falls back to the file's raw content for legacy files written
// before the EA existed. The target is copied into buf and NUL-terminated;
// buf must have room for the target plus one byte.
func (e *Engine) Read(id types.FileID, buf []byte) (int, error) {
	if _, err := e.requireSymlink(id); err != nil {
		return 0, err
	}

	eas, err := e.eas.Query(id)
	if err != nil {
		return 0, err
	}
	for _, ea := range eas {
		if strings.EqualFold(ea.Name, types.SymlinkEAName) {
			if len(ea.Value)+1 > len(buf) {
				return 0, errs.New(errs.NameTooLong, "symlink target does not fit in caller buffer")
			}
			n := copy(buf, ea.Value)
			buf[n] = 0
			return n, nil
		}
	}

	info, err := e.files.QueryInfo(id)
	if err != nil {
		return 0, err
	}
	if info.FileSize == 0 {
		return 0, errs.New(errs.NotSymlink, "legacy symlink file has zero-length content")
	}
	if info.FileSize+1 > uint64(len(buf)) {
		return 0, errs.New(errs.NameTooLong, "legacy symlink content does not fit in caller buffer")
	}
	n, err := e.files.ReadFile(id, 0, buf[:info.FileSize])
	if err != nil {
		return 0, err
	}
	buf[n] = 0
	return n, nil
}
