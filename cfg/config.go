// Copyright 2024 Google LLC
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

// Package cfg is the typed, pflag/viper-bound configuration surface for
// aefsvol: volume caps (spec's CryptedVolumeParms), cipher selection,
// storage-file credentials, and logging. BindFlags registers every field
// except the logging.log-rotate settings as a command-line flag and a viper
// key of the same dotted path, so a YAML config file and flags both
// populate the one Config struct; log-rotate is set from the file only.
package cfg

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root configuration object, unmarshalled from flags and an
// optional YAML file via viper.
type Config struct {
	Volume   VolumeConfig   `yaml:"volume"`
	Cipher   CipherConfig   `yaml:"cipher"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// VolumeConfig mirrors spec §4.10's CryptedVolumeParms: the caps and
// policy a Volume is accessed with.
type VolumeConfig struct {
	BaseDir             ResolvedPath `yaml:"base-dir"`
	MaxCryptedFiles     int          `yaml:"max-crypted-files"`
	MaxOpenStorageFiles int          `yaml:"max-open-storage-files"`
	MaxCachedSectors    int          `yaml:"max-cached-sectors"`
	IOGranularity       int          `yaml:"io-granularity"`
	ISFGrowSectors      int          `yaml:"isf-grow-sectors"`
	ReadOnly            bool         `yaml:"read-only"`
}

// IsReadOnly, IsWriteOnly, IsReadWrite, IsAppend, IsDirect implement
// util.OpenFlagAttributes from the volume's read-only setting. The storage
// pool does not use them; it derives its open mode from its own adapter.
func (v VolumeConfig) IsReadOnly() bool  { return v.ReadOnly }
func (v VolumeConfig) IsWriteOnly() bool { return false }
func (v VolumeConfig) IsReadWrite() bool { return !v.ReadOnly }
func (v VolumeConfig) IsAppend() bool    { return false }
func (v VolumeConfig) IsDirect() bool    { return false }

// CipherConfig selects and parameterizes the sector codec's block cipher
// (spec §4.1/§4.2): `cipher: <id>-<keybits>-<blockbits>` plus CBC chaining.
type CipherConfig struct {
	ID        CipherID `yaml:"id"`
	KeyBits   int      `yaml:"key-bits"`
	BlockBits int      `yaml:"block-bits"`
	UseCBC    bool     `yaml:"use-cbc"`
}

// SecurityConfig carries the credentials applied to every storage-file
// create/open (spec §4.3).
type SecurityConfig struct {
	UID  uint32 `yaml:"uid"`
	GID  uint32 `yaml:"gid"`
	Mode Octal  `yaml:"mode"`
}

// LoggingConfig configures the structured logger (internal/logger).
type LoggingConfig struct {
	Severity  LogSeverity            `yaml:"severity"`
	Format    string                 `yaml:"format"`
	FilePath  ResolvedPath           `yaml:"file-path"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig configures lumberjack-backed log-file rotation.
type LogRotateLoggingConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// BindFlags registers each Config field other than logging.log-rotate as a
// pflag flag and binds the viper key of the same dotted path to it, so a
// later Parse sees flag and file values uniformly.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error
	bind := func(key string) error { return viper.BindPFlag(key, flagSet.Lookup(key)) }

	flagSet.String("volume.base-dir", "", "Base directory holding the AEFS volume's SUPERBLK.*, KEY, and <id>.enc files.")
	if err = bind("volume.base-dir"); err != nil {
		return err
	}

	flagSet.Int("volume.max-crypted-files", DefaultMaxCryptedFiles, "Maximum number of CryptedFiles held resident at once (cMaxCryptedFiles).")
	if err = bind("volume.max-crypted-files"); err != nil {
		return err
	}

	flagSet.Int("volume.max-open-storage-files", DefaultMaxOpenStorageFiles(), "Maximum number of concurrently open host storage-file handles (cMaxOpenStorageFiles).")
	if err = bind("volume.max-open-storage-files"); err != nil {
		return err
	}

	flagSet.Int("volume.max-cached-sectors", DefaultMaxCachedSectors, "Maximum number of plaintext sectors held in the MRU cache at once (csMaxCached).")
	if err = bind("volume.max-cached-sectors"); err != nil {
		return err
	}

	flagSet.Int("volume.io-granularity", DefaultIOGranularity, "Maximum sectors batched into one underlying read or write (csIOGranularity).")
	if err = bind("volume.io-granularity"); err != nil {
		return err
	}

	flagSet.Int("volume.isf-grow-sectors", DefaultISFGrowSectors, "Sectors the info-sector file grows by when its free list is exhausted (csISFGrow).")
	if err = bind("volume.isf-grow-sectors"); err != nil {
		return err
	}

	flagSet.Bool("volume.read-only", false, "Open the volume read-only; any write attempt returns READ_ONLY.")
	if err = bind("volume.read-only"); err != nil {
		return err
	}

	flagSet.String("cipher.id", string(Rijndael), "Block cipher backing the sector codec: rijndael or twofish.")
	if err = bind("cipher.id"); err != nil {
		return err
	}

	flagSet.Int("cipher.key-bits", 128, "Cipher key size in bits.")
	if err = bind("cipher.key-bits"); err != nil {
		return err
	}

	flagSet.Int("cipher.block-bits", 128, "Cipher block size in bits.")
	if err = bind("cipher.block-bits"); err != nil {
		return err
	}

	flagSet.Bool("cipher.use-cbc", true, "Chain blocks within a sector with CBC instead of encrypting each block independently (ECB).")
	if err = bind("cipher.use-cbc"); err != nil {
		return err
	}

	flagSet.Int("security.uid", 0, "UID applied to newly created storage files; 0 leaves ownership unchanged.")
	if err = bind("security.uid"); err != nil {
		return err
	}

	flagSet.Int("security.gid", 0, "GID applied to newly created storage files; 0 leaves ownership unchanged.")
	if err = bind("security.gid"); err != nil {
		return err
	}

	flagSet.String("security.mode", "600", "Permission bits (octal) applied to newly created storage files.")
	if err = bind("security.mode"); err != nil {
		return err
	}

	flagSet.String("logging.severity", string(InfoLogSeverity), "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = bind("logging.severity"); err != nil {
		return err
	}

	flagSet.String("logging.format", "text", "Log output format: text or json.")
	if err = bind("logging.format"); err != nil {
		return err
	}

	flagSet.String("logging.file-path", "", "Path to write logs to; empty means stderr.")
	if err = bind("logging.file-path"); err != nil {
		return err
	}

	return nil
}

// Parse decodes v's bound flags and config file into a
// Config. It decodes against the "yaml" struct tag (matching the tag
// Config's fields are written with) rather than mapstructure's default,
// the way the teacher's legacy flag-to-config decoder does.
func Parse(v *viper.Viper) (*Config, error) {
	var c Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &c,
		TagName:    "yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("mapstructure.NewDecoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &c, nil
}
