package basefile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aefs/aefs/clock"
	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/isf"
	"github.com/aefs/aefs/internal/aefs/sectorcache"
	"github.com/aefs/aefs/internal/aefs/storagepool"
	"github.com/aefs/aefs/internal/aefs/types"
)

var timeZero = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestOps(t *testing.T) *Ops {
	t.Helper()
	dir := t.TempDir()
	pool := storagepool.New(dir, 16, storagepool.Credentials{})
	blk, err := cipher.New(cipher.Rijndael, make([]byte, 16))
	require.NoError(t, err)
	cache := sectorcache.New(pool, blk, types.UseCBC, 16, 256, nil)

	require.NoError(t, pool.Open(types.InfoSectorFile, true, types.SectorSize))
	isfEngine := isf.New(cache, pool, 16)
	require.NoError(t, isfEngine.Init())

	return New(isfEngine, cache, pool, 8, clock.NewSimulatedClock(timeZero))
}

func fill(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// Scenario 1 (spec §8): write, flush, read back.
func TestOps_WriteThenReadRoundTrip(t *testing.T) {
	o := newTestOps(t)
	id, err := o.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	data := fill(100000, 0xAA)
	n, err := o.WriteFile(id, 0, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got := make([]byte, 100000)
	n, err = o.ReadFile(id, 0, got)
	require.NoError(t, err)
	assert.Equal(t, 100000, n)
	assert.Equal(t, data, got)
}

// Scenario 2 (spec §8): overwriting an initialized prefix must not truncate
// the unwritten tail.
func TestOps_OverwritePrefixPreservesTail(t *testing.T) {
	o := newTestOps(t)
	id, err := o.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	_, err = o.WriteFile(id, 0, fill(100000, 0xAA))
	require.NoError(t, err)

	_, err = o.WriteFile(id, 0, fill(1000, 0xBB))
	require.NoError(t, err)

	got := make([]byte, 100000)
	_, err = o.ReadFile(id, 0, got)
	require.NoError(t, err)
	assert.Equal(t, fill(1000, 0xBB), got[:1000])
	assert.Equal(t, fill(99000, 0xAA), got[1000:])
}

// Scenario 3 (spec §8): set_size past current content reads back as zero.
func TestOps_SetSizeZeroFillsGap(t *testing.T) {
	o := newTestOps(t)
	id, err := o.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	require.NoError(t, o.SetSize(id, 10000))

	got := make([]byte, 10000)
	n, err := o.ReadFile(id, 0, got)
	require.NoError(t, err)
	assert.Equal(t, 10000, n)
	assert.Equal(t, make([]byte, 10000), got)

	info, err := o.QueryInfo(id)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.SetSectors, uint32(20))
}

func TestOps_ShrinkThenGrowDoesNotExposeStaleData(t *testing.T) {
	o := newTestOps(t)
	id, err := o.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	_, err = o.WriteFile(id, 0, fill(2000, 0xFF))
	require.NoError(t, err)

	require.NoError(t, o.SetSize(id, 100))
	require.NoError(t, o.SetSize(id, 2000))

	got := make([]byte, 2000)
	_, err = o.ReadFile(id, 0, got)
	require.NoError(t, err)
	assert.Equal(t, fill(100, 0xFF), got[:100])
	assert.Equal(t, make([]byte, 1900), got[100:])
}

func TestOps_DestroyBaseFileFreesID(t *testing.T) {
	o := newTestOps(t)
	id, err := o.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)

	require.NoError(t, o.DestroyBaseFile(id))

	reused, err := o.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)
	assert.Equal(t, id, reused)
}
