// Package volume implements the Volume Manager (spec §4.10): it wires the
// superblock, storage pool, sector cache, ISF, and the directory/EA/symlink
// engines built on top of it into one access point per open volume, and
// enforces read-only volumes.
package volume

import (
	"github.com/google/uuid"

	"github.com/aefs/aefs/clock"
	"github.com/aefs/aefs/internal/aefs/basefile"
	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/direngine"
	"github.com/aefs/aefs/internal/aefs/eaengine"
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/isf"
	"github.com/aefs/aefs/internal/aefs/keymgr"
	"github.com/aefs/aefs/internal/aefs/sectorcache"
	"github.com/aefs/aefs/internal/aefs/storagepool"
	"github.com/aefs/aefs/internal/aefs/symlink"
	"github.com/aefs/aefs/internal/aefs/types"
)

// Parms holds the per-volume caps and policy of CryptedVolumeParms (spec
// §4.10).
type Parms struct {
	MaxCryptedFiles     int
	MaxOpenStorageFiles int
	MaxCached           int
	IOGranularity       uint32
	ISFGrow             uint32
	ReadOnly            bool
	Credentials         storagepool.Credentials
	// Clock stamps FileInfo.TimeCreate/TimeAccess/TimeWrite. Nil means
	// clock.RealClock{}; tests inject clock.NewSimulatedClock for
	// deterministic timestamps.
	Clock basefile.Clock
}

func (p Parms) clockOrReal() basefile.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return clock.RealClock{}
}

// Stats reports current volume resource usage (spec's query_volume_stats).
type Stats struct {
	Files int
	Open  int
	Cached int
	Dirty int
}

// Volume is one open, accessed AEFS volume: the superblock plus the
// storage/cache/ISF stack and the engines layered on it.
type Volume struct {
	sb    *keymgr.SuperBlock
	pool  *storagepool.Pool
	cache *sectorcache.Cache
	isf   *isf.ISF
	parms Parms

	// InstanceID identifies this access in logs and metrics labels; it has
	// no on-disk representation (spec §6's on-disk layout is fixed).
	InstanceID uuid.UUID

	Files    *basefile.Ops
	Dirs     *direngine.Engine
	EAs      *eaengine.Engine
	Symlinks *symlink.Engine
}

// AccessVolume opens an existing volume at basePath under passphrase,
// wiring the full engine stack. The caller must DropVolume when done.
func AccessVolume(basePath string, passphrase []byte, parms Parms) (*Volume, error) {
	sb, _, err := keymgr.ReadSuperblock(basePath, passphrase)
	if err != nil {
		return nil, err
	}

	blk, err := cipher.New(sb.Params.ID, sb.DataKey.Bytes())
	if err != nil {
		sb.Close()
		return nil, errs.Wrap(errs.UnknownCipher, "cipher construction", err)
	}

	parms.Credentials.ReadOnly = parms.ReadOnly
	pool := storagepool.New(basePath, parms.MaxOpenStorageFiles, parms.Credentials)
	if err := pool.Open(types.InfoSectorFile, false, 0); err != nil {
		sb.Close()
		return nil, err
	}

	v := &Volume{sb: sb, pool: pool, parms: parms, InstanceID: uuid.New()}

	flags := types.UseECB
	if sb.Params.UseCBC {
		flags = types.UseCBC
	}
	v.cache = sectorcache.New(pool, blk, flags, parms.MaxCryptedFiles, parms.MaxCached, v.onDirtyChange)

	v.isf = isf.New(v.cache, pool, parms.ISFGrow)
	v.Files = basefile.New(v.isf, v.cache, pool, parms.IOGranularity, parms.clockOrReal())
	v.Dirs = direngine.New(v.Files)
	v.EAs = eaengine.New(v.isf, v.Files)
	v.Symlinks = symlink.New(v.EAs, v.Files)

	return v, nil
}

// CreateVolume initializes a brand-new, empty volume at basePath: writes
// the superblock, creates and formats the ISF, and creates the root
// directory, returning the accessed Volume.
func CreateVolume(basePath string, passphrase []byte, cipherID cipher.ID, useCBC bool, parms Parms) (*Volume, error) {
	passKey := keymgr.HashPassphrase(passphrase, 16)
	defer passKey.Burn()

	sb := &keymgr.SuperBlock{
		BasePath: basePath,
		Params: keymgr.CipherParams{
			ID:      cipherID,
			KeyBits: 128,
			BlockBits: 128,
			UseCBC:  useCBC,
		},
		DataKey: passKey.Clone(),
	}
	sb.Block2 = keymgr.Superblock2{Version: types.CurrentVersion}

	blk, err := cipher.New(cipherID, sb.DataKey.Bytes())
	if err != nil {
		sb.Close()
		return nil, errs.Wrap(errs.UnknownCipher, "cipher construction", err)
	}

	parms.Credentials.ReadOnly = parms.ReadOnly
	pool := storagepool.New(basePath, parms.MaxOpenStorageFiles, parms.Credentials)
	if err := pool.Open(types.InfoSectorFile, true, types.SectorSize); err != nil {
		sb.Close()
		return nil, err
	}

	v := &Volume{sb: sb, pool: pool, parms: parms, InstanceID: uuid.New()}
	flags := types.UseECB
	if useCBC {
		flags = types.UseCBC
	}
	v.cache = sectorcache.New(pool, blk, flags, parms.MaxCryptedFiles, parms.MaxCached, v.onDirtyChange)
	v.isf = isf.New(v.cache, pool, parms.ISFGrow)
	if err := v.isf.Init(); err != nil {
		return nil, err
	}
	v.Files = basefile.New(v.isf, v.cache, pool, parms.IOGranularity, parms.clockOrReal())
	v.Dirs = direngine.New(v.Files)
	v.EAs = eaengine.New(v.isf, v.Files)
	v.Symlinks = symlink.New(v.EAs, v.Files)

	root, err := v.Files.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFDIR})
	if err != nil {
		return nil, err
	}
	sb.Block2.RootID = root

	if err := keymgr.WriteSuperblock(sb, false); err != nil {
		return nil, err
	}
	return v, nil
}

// RootID returns the volume's root directory ID.
func (v *Volume) RootID() types.FileID { return v.sb.Block2.RootID }

// Label returns the volume's label and description.
func (v *Volume) Label() (string, string) { return v.sb.Block2.Label, v.sb.Block2.Description }

// VolumeLabel returns a short label identifying this access for logging
// and metrics: the superblock label if set, else the instance ID.
func (v *Volume) VolumeLabel() string {
	if v.sb.Block2.Label != "" {
		return v.sb.Block2.Label
	}
	return v.InstanceID.String()
}

func (v *Volume) checkWritable() error {
	if v.parms.ReadOnly {
		return errs.New(errs.ReadOnly, "volume is read-only")
	}
	return nil
}

// onDirtyChange is the sector cache's dirty-count 0<->1 transition
// callback; it mirrors the transition into SUPERBLK.2's DIRTY bit. Best
// effort: a failure to persist the bit does not abort the triggering I/O.
func (v *Volume) onDirtyChange(dirty bool) {
	if v.sb.Block2.Dirty == dirty {
		return
	}
	v.sb.Block2.Dirty = dirty
	_ = keymgr.WriteSuperblock(v.sb, true)
}

// FlushVolume writes back every dirty sector and clears the DIRTY bit.
func (v *Volume) FlushVolume() error {
	if err := v.cache.FlushVolume(); err != nil {
		return err
	}
	if v.sb.Block2.Dirty {
		v.sb.Block2.Dirty = false
		if err := keymgr.WriteSuperblock(v.sb, true); err != nil {
			return err
		}
	}
	return nil
}

// ShrinkOpenStorageFiles closes open host file handles down to n.
func (v *Volume) ShrinkOpenStorageFiles(n int) error {
	v.cache.ShrinkOpen(n)
	return nil
}

// QueryVolumeStats reports current resource usage.
func (v *Volume) QueryVolumeStats() Stats {
	cs := v.cache.Stats()
	return Stats{Files: cs.Files, Open: v.pool.OpenCount(), Cached: cs.Cached, Dirty: cs.Dirty}
}

// QueryVolumeParms returns the caps and policy this volume was accessed
// with.
func (v *Volume) QueryVolumeParms() Parms { return v.parms }

// DropVolume flushes, closes every open host file, and burns the data key.
func (v *Volume) DropVolume() error {
	err := v.FlushVolume()
	v.cache.DropVolume()
	v.pool.CloseAll()
	v.sb.Close()
	return err
}

// --- write operations: all enforce read-only volumes ---

// CreateBaseFile allocates and initializes a new base file.
func (v *Volume) CreateBaseFile(template *types.FileInfo) (types.FileID, error) {
	if err := v.checkWritable(); err != nil {
		return 0, err
	}
	return v.Files.CreateBaseFile(template)
}

// DestroyBaseFile discards and frees a base file.
func (v *Volume) DestroyBaseFile(id types.FileID) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.Files.DestroyBaseFile(id)
}

// WriteFile writes to an existing base file.
func (v *Volume) WriteFile(id types.FileID, off uint64, data []byte) (int, error) {
	if err := v.checkWritable(); err != nil {
		return 0, err
	}
	return v.Files.WriteFile(id, off, data)
}

// SetSize resizes an existing base file.
func (v *Volume) SetSize(id types.FileID, newSize uint64) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.Files.SetSize(id, newSize)
}

// SetInfo commits a FileInfo record verbatim.
func (v *Volume) SetInfo(fi *types.FileInfo) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.Files.SetInfo(fi)
}

// AddEntry adds a directory entry.
func (v *Volume) AddEntry(dir types.FileID, name string, target types.FileID, flags uint8) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.Dirs.AddEntry(dir, name, target, flags)
}

// RemoveEntry removes a directory entry without inserting elsewhere.
func (v *Volume) RemoveEntry(dir types.FileID, name string) (types.DirEntry, error) {
	if err := v.checkWritable(); err != nil {
		return types.DirEntry{}, err
	}
	return v.Dirs.RemoveEntry(dir, name)
}

// MoveEntry moves/renames a directory entry.
func (v *Volume) MoveEntry(srcDir types.FileID, srcName string, dstDir types.FileID, dstName string) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.Dirs.MoveEntry(srcDir, srcName, dstDir, dstName)
}

// SetEAs commits a file's extended-attribute list.
func (v *Volume) SetEAs(id types.FileID, eas []types.EA) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.EAs.Set(id, eas)
}

// MergeEAs applies the daemon-path EA merge semantics.
func (v *Volume) MergeEAs(id types.FileID, adds []types.EA) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.EAs.Merge(id, adds)
}

// WriteSymlink commits a symlink's target.
func (v *Volume) WriteSymlink(id types.FileID, target string) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	return v.Symlinks.Write(id, target)
}

// --- read operations: no read-only guard ---

// ReadFile reads from a base file.
func (v *Volume) ReadFile(id types.FileID, off uint64, buf []byte) (int, error) {
	return v.Files.ReadFile(id, off, buf)
}

// QueryInfo returns a file's FileInfo record.
func (v *Volume) QueryInfo(id types.FileID) (*types.FileInfo, error) {
	return v.Files.QueryInfo(id)
}

// QueryIDFromPath resolves a path starting at dir.
func (v *Volume) QueryIDFromPath(dir types.FileID, path string) (types.FileID, error) {
	return v.Dirs.QueryIDFromPath(dir, path)
}

// ListDir returns dir's directory entries.
func (v *Volume) ListDir(dir types.FileID) ([]types.DirEntry, error) {
	return v.Dirs.ListDir(dir)
}

// QueryEAs returns a file's decoded extended-attribute list.
func (v *Volume) QueryEAs(id types.FileID) ([]types.EA, error) {
	return v.EAs.Query(id)
}

// ReadSymlink reads a symlink's target into buf.
func (v *Volume) ReadSymlink(id types.FileID, buf []byte) (int, error) {
	return v.Symlinks.Read(id, buf)
}
