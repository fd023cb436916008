// Copyright 2024 Google Inc. All Rights Reserved.
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

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/storagepool"
	"github.com/aefs/aefs/internal/aefs/volume"
)

// volumeParms adapts the bound cfg.VolumeConfig into the core's
// volume.Parms; this is the one place cfg's flag/YAML vocabulary meets the
// core engine's CryptedVolumeParms, so every subcommand sees consistent
// caps regardless of flag vs. config-file origin.
func volumeParms() volume.Parms {
	vc := MountConfig.Volume
	sc := MountConfig.Security
	return volume.Parms{
		MaxCryptedFiles:     vc.MaxCryptedFiles,
		MaxOpenStorageFiles: vc.MaxOpenStorageFiles,
		MaxCached:           vc.MaxCachedSectors,
		IOGranularity:       uint32(vc.IOGranularity),
		ISFGrow:             uint32(vc.ISFGrowSectors),
		ReadOnly:            vc.ReadOnly,
		Credentials: storagepool.Credentials{
			UID:  sc.UID,
			GID:  sc.GID,
			Mode: os.FileMode(sc.Mode),
		},
	}
}

// cipherID maps the bound cfg.CipherConfig.ID to the core cipher package's
// ID type; both are the same underlying string vocabulary (rijndael,
// twofish), kept as distinct named types so cfg never imports the core.
func cipherID() cipher.ID {
	return cipher.ID(MountConfig.Cipher.ID)
}

// readPassphrase prompts for a passphrase on stderr, reading it from stdin
// with terminal echo suppressed unless AEFS_ECHO is set — useful for
// scripted tests that pipe a fixed passphrase in and want to see it land
// in their transcript.
func readPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if os.Getenv("AEFS_ECHO") != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return []byte(trimNewline(line)), nil
	}
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return pass, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// openVolume accesses the volume at MountConfig.Volume.BaseDir, prompting
// for its passphrase.
func openVolume() (*volume.Volume, error) {
	base := string(MountConfig.Volume.BaseDir)
	if base == "" {
		return nil, fmt.Errorf("volume.base-dir is required")
	}
	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		return nil, err
	}
	return volume.AccessVolume(base, pass, volumeParms())
}

// mustCloseVolume drops v, logging (but not failing the command on) any
// flush error, the way a CLI that already printed its result should not
// turn a best-effort flush hiccup into a nonzero exit.
func mustCloseVolume(v *volume.Volume) {
	if err := v.DropVolume(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: dropping volume: %v\n", err)
	}
}
