package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/storagepool"
	"github.com/aefs/aefs/internal/aefs/types"
)

func testParms() Parms {
	return Parms{
		MaxCryptedFiles:     32,
		MaxOpenStorageFiles: 16,
		MaxCached:           256,
		IOGranularity:       8,
		ISFGrow:             16,
		Credentials:         storagepool.Credentials{},
	}
}

func TestCreateAccessVolume_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	pass := []byte("correct horse battery staple")

	v, err := CreateVolume(dir, pass, cipher.Rijndael, true, testParms())
	require.NoError(t, err)

	root := v.RootID()
	assert.NotEqual(t, types.NoID, root)

	child, err := v.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.NoError(t, err)
	require.NoError(t, v.AddEntry(root, "hello.txt", child, 0))
	_, err = v.WriteFile(child, 0, []byte("hi"))
	require.NoError(t, err)
	require.NoError(t, v.DropVolume())

	v2, err := AccessVolume(dir, pass, testParms())
	require.NoError(t, err)
	defer v2.DropVolume()

	assert.Equal(t, root, v2.RootID())
	got, err := v2.QueryIDFromPath(v2.RootID(), "Hello.txt")
	require.NoError(t, err)
	assert.Equal(t, child, got)

	buf := make([]byte, 2)
	n, err := v2.ReadFile(got, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestAccessVolume_WrongPassphraseRejected(t *testing.T) {
	dir := t.TempDir()
	v, err := CreateVolume(dir, []byte("right-pass"), cipher.Rijndael, true, testParms())
	require.NoError(t, err)
	require.NoError(t, v.DropVolume())

	_, err = AccessVolume(dir, []byte("wrong-pass"), testParms())
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.BadChecksum))
}

func TestVolume_ReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	pass := []byte("a-passphrase")
	v, err := CreateVolume(dir, pass, cipher.Rijndael, true, testParms())
	require.NoError(t, err)
	require.NoError(t, v.DropVolume())

	roParms := testParms()
	roParms.ReadOnly = true
	v2, err := AccessVolume(dir, pass, roParms)
	require.NoError(t, err)
	defer v2.DropVolume()

	_, err = v2.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ReadOnly))

	err = v2.AddEntry(v2.RootID(), "x", 1, 0)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ReadOnly))
}

func TestVolume_QueryVolumeStats(t *testing.T) {
	dir := t.TempDir()
	v, err := CreateVolume(dir, []byte("pw"), cipher.Rijndael, false, testParms())
	require.NoError(t, err)
	defer v.DropVolume()

	stats := v.QueryVolumeStats()
	assert.GreaterOrEqual(t, stats.Files, 1)
	assert.GreaterOrEqual(t, stats.Open, 1)
}
