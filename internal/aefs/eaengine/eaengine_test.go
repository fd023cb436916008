package eaengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aefs/aefs/clock"
	"github.com/aefs/aefs/internal/aefs/basefile"
	"github.com/aefs/aefs/internal/aefs/cipher"
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
	return New(isfEngine, ops), ops
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	eas := []types.EA{
		{Name: "X", Value: []byte("hello")},
		{Name: "Y", Value: []byte{}, Flags: types.EAFlagCritical},
	}
	buf := Encode(eas)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "X", got[0].Name)
	assert.Equal(t, []byte("hello"), got[0].Value)
	assert.True(t, got[1].Flags&types.EAFlagCritical != 0)
}

func TestEngine_SetQueryInternalRoundTrip(t *testing.T) {
	e, ops := newTestEngine(t)
	id, err := ops.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	want := []types.EA{{Name: "X", Value: []byte("small value")}}
	require.NoError(t, e.Set(id, want))

	got, err := e.Query(id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "X", got[0].Name)
	assert.Equal(t, []byte("small value"), got[0].Value)

	info, err := ops.QueryInfo(id)
	require.NoError(t, err)
	assert.True(t, info.Flags&types.FlagEXTEAS == 0)
}

// Scenario 5 (spec §8): growing an EA value past MaxInternalEAs promotes
// storage to a dedicated EA-file.
func TestEngine_GrowingValuePromotesToExternalStorage(t *testing.T) {
	e, ops := newTestEngine(t)
	id, err := ops.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	require.NoError(t, e.Set(id, []types.EA{{Name: "X", Value: make([]byte, 50)}}))
	info, err := ops.QueryInfo(id)
	require.NoError(t, err)
	assert.True(t, info.Flags&types.FlagEXTEAS == 0)

	require.NoError(t, e.Set(id, []types.EA{{Name: "X", Value: make([]byte, 500)}}))
	info, err = ops.QueryInfo(id)
	require.NoError(t, err)
	assert.True(t, info.Flags&types.FlagEXTEAS != 0)
	assert.NotEqual(t, types.NoID, info.EAFile)

	eaInfo, err := ops.QueryInfo(info.EAFile)
	require.NoError(t, err)
	assert.Equal(t, types.FlagIFEA, types.FileType(eaInfo.Flags))
	assert.Equal(t, id, eaInfo.Parent)
	assert.Equal(t, info.EABytes, uint32(eaInfo.FileSize))

	got, err := e.Query(id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Value, 500)
}

func TestEngine_DemotingValueBackToInternalDestroysEAFile(t *testing.T) {
	e, ops := newTestEngine(t)
	id, err := ops.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	require.NoError(t, e.Set(id, []types.EA{{Name: "X", Value: make([]byte, 500)}}))
	info, err := ops.QueryInfo(id)
	require.NoError(t, err)
	eaFile := info.EAFile
	require.NotEqual(t, types.NoID, eaFile)

	require.NoError(t, e.Set(id, []types.EA{{Name: "X", Value: []byte("tiny")}}))
	info, err = ops.QueryInfo(id)
	require.NoError(t, err)
	assert.True(t, info.Flags&types.FlagEXTEAS == 0)
	assert.Equal(t, types.NoID, info.EAFile)

	_, err = ops.QueryInfo(eaFile)
	require.Error(t, err)
}

func TestEngine_MergeReplacesAndDeletes(t *testing.T) {
	e, ops := newTestEngine(t)
	id, err := ops.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	require.NoError(t, e.Set(id, []types.EA{
		{Name: "A", Value: []byte("1")},
		{Name: "B", Value: []byte("2")},
	}))

	require.NoError(t, e.Merge(id, []types.EA{
		{Name: "A", Value: []byte("replaced")},
		{Name: "B", Value: []byte{}}, // delete
		{Name: "C", Value: []byte("new")},
	}))

	got, err := e.Query(id)
	require.NoError(t, err)
	byName := map[string][]byte{}
	for _, ea := range got {
		byName[ea.Name] = ea.Value
	}
	assert.Equal(t, []byte("replaced"), byName["A"])
	_, hasB := byName["B"]
	assert.False(t, hasB)
	assert.Equal(t, []byte("new"), byName["C"])
}
