package direngine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aefs/aefs/clock"
	"github.com/aefs/aefs/internal/aefs/basefile"
	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/isf"
	"github.com/aefs/aefs/internal/aefs/sectorcache"
	"github.com/aefs/aefs/internal/aefs/storagepool"
	"github.com/aefs/aefs/internal/aefs/types"
)

func newTestEngine(t *testing.T) (*Engine, *basefile.Ops) {
	t.Helper()
	dir := t.TempDir()
	pool := storagepool.New(dir, 16, storagepool.Credentials{})
	blk, err := cipher.New(cipher.Rijndael, make([]byte, 16))
	require.NoError(t, err)
	cache := sectorcache.New(pool, blk, types.UseCBC, 16, 256, nil)

	require.NoError(t, pool.Open(types.InfoSectorFile, true, types.SectorSize))
	isfEngine := isf.New(cache, pool, 16)
	require.NoError(t, isfEngine.Init())

	ops := basefile.New(isfEngine, cache, pool, 8, clock.RealClock{})
	return New(ops), ops
}

func mkdir(t *testing.T, ops *basefile.Ops, parent types.FileID) types.FileID {
	t.Helper()
	id, err := ops.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFDIR, Parent: parent})
	require.NoError(t, err)
	return id
}

func TestDecode_RejectsMissingTerminator(t *testing.T) {
	_, err := Decode([]byte{types.DirFlagNotEOL, 1, 0, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.BadDirectory))
}

func TestDecode_RejectsTruncatedName(t *testing.T) {
	// flag set, id=1, namelen=10, but no name bytes follow.
	buf := []byte{types.DirFlagNotEOL, 1, 0, 0, 0, 10, 0, 0, 0}
	_, err := Decode(buf)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.BadDirectory))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	entries := []types.DirEntry{
		{ID: 1, Name: "alpha"},
		{ID: 2, Name: "beta", Flags: types.DirFlagHidden},
	}
	buf := Encode(entries)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.FileID(1), got[0].ID)
	assert.Equal(t, "alpha", got[0].Name)
	assert.True(t, got[0].Flags&types.DirFlagNotEOL != 0)
	assert.Equal(t, types.FileID(2), got[1].ID)
	assert.True(t, got[1].Flags&types.DirFlagHidden != 0)
}

func TestEngine_AddEntryRejectsCaseInsensitiveDuplicate(t *testing.T) {
	e, ops := newTestEngine(t)
	root := mkdir(t, ops, 0)
	child := mkdir(t, ops, root)

	require.NoError(t, e.AddEntry(root, "Foo", child, 0))
	err := e.AddEntry(root, "foo", child, 0)
	require.Error(t, err)
}

func TestEngine_EntriesOrderedCaseInsensitively(t *testing.T) {
	e, ops := newTestEngine(t)
	root := mkdir(t, ops, 0)

	for _, name := range []string{"banana", "Apple", "cherry"} {
		id := mkdir(t, ops, root)
		require.NoError(t, e.AddEntry(root, name, id, 0))
	}

	entries, err := e.readAll(root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"Apple", "banana", "cherry"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
}

func TestEngine_QueryIDFromPathResolvesCaseInsensitively(t *testing.T) {
	e, ops := newTestEngine(t)
	root := mkdir(t, ops, 0)
	sub := mkdir(t, ops, root)
	leaf := mkdir(t, ops, sub)

	require.NoError(t, e.AddEntry(root, "Sub", sub, 0))
	require.NoError(t, e.AddEntry(sub, "Leaf", leaf, 0))

	got, err := e.QueryIDFromPath(root, "sub/leaf")
	require.NoError(t, err)
	assert.Equal(t, leaf, got)

	_, err = e.QueryIDFromPath(root, "sub/missing")
	require.Error(t, err)
}

func TestEngine_MoveEntryUpdatesParentAcrossDirs(t *testing.T) {
	e, ops := newTestEngine(t)
	root := mkdir(t, ops, 0)
	srcDir := mkdir(t, ops, root)
	dstDir := mkdir(t, ops, root)
	moved := mkdir(t, ops, srcDir)

	require.NoError(t, e.AddEntry(srcDir, "child", moved, 0))
	require.NoError(t, e.MoveEntry(srcDir, "child", dstDir, "child"))

	_, err := e.QueryIDFromPath(srcDir, "child")
	require.Error(t, err)

	got, err := e.QueryIDFromPath(dstDir, "child")
	require.NoError(t, err)
	assert.Equal(t, moved, got)

	info, err := ops.QueryInfo(moved)
	require.NoError(t, err)
	assert.Equal(t, dstDir, info.Parent)
}

func TestEngine_RemoveEntryDeletesRecord(t *testing.T) {
	e, ops := newTestEngine(t)
	root := mkdir(t, ops, 0)
	child := mkdir(t, ops, root)

	require.NoError(t, e.AddEntry(root, "gone", child, 0))
	_, err := e.RemoveEntry(root, "gone")
	require.NoError(t, err)

	_, err = e.QueryIDFromPath(root, "gone")
	require.Error(t, err)

	entries, err := e.readAll(root)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}
