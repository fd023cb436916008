// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsRegistersEveryKey(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	require.NoError(t, BindFlags(fs))

	for _, key := range []string{
		"volume.base-dir",
		"volume.max-crypted-files",
		"volume.max-open-storage-files",
		"volume.max-cached-sectors",
		"volume.io-granularity",
		"volume.isf-grow-sectors",
		"volume.read-only",
		"cipher.id",
		"cipher.key-bits",
		"cipher.block-bits",
		"cipher.use-cbc",
		"security.uid",
		"security.gid",
		"security.mode",
		"logging.severity",
		"logging.format",
		"logging.file-path",
	} {
		assert.NotNilf(t, fs.Lookup(key), "flag %s not registered", key)
	}
}

func TestParseDefaults(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{}))

	c, err := Parse(viper.GetViper())
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxCryptedFiles, c.Volume.MaxCryptedFiles)
	assert.Equal(t, DefaultMaxCachedSectors, c.Volume.MaxCachedSectors)
	assert.Equal(t, Rijndael, c.Cipher.ID)
	assert.False(t, c.Volume.ReadOnly)
	assert.Equal(t, InfoLogSeverity, c.Logging.Severity)
}

func TestParseOverride(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{
		"--volume.read-only=true",
		"--cipher.id=twofish",
		"--logging.severity=DEBUG",
	}))

	c, err := Parse(viper.GetViper())
	require.NoError(t, err)

	assert.True(t, c.Volume.ReadOnly)
	assert.Equal(t, Twofish, c.Cipher.ID)
	assert.Equal(t, DebugLogSeverity, c.Logging.Severity)
	assert.True(t, c.Volume.IsReadOnly())
}
