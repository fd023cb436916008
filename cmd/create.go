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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aefs/aefs/internal/aefs/volume"
	"github.com/aefs/aefs/internal/logger"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new, empty AEFS volume at volume.base-dir",
	Long: `create initializes a brand-new volume: writes the superblock,
formats the info-sector file, and creates the root directory. The base
directory (volume.base-dir) must already exist and be empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := string(MountConfig.Volume.BaseDir)
		if base == "" {
			return fmt.Errorf("volume.base-dir is required")
		}
		if entries, err := os.ReadDir(base); err != nil {
			return fmt.Errorf("reading base directory: %w", err)
		} else if len(entries) != 0 {
			return fmt.Errorf("base directory %s is not empty", base)
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if string(pass) != string(confirm) {
			return fmt.Errorf("passphrases do not match")
		}

		v, err := volume.CreateVolume(base, pass, cipherID(), MountConfig.Cipher.UseCBC, volumeParms())
		if err != nil {
			return fmt.Errorf("creating volume: %w", err)
		}
		defer mustCloseVolume(v)

		logger.Infof("created volume at %s (root id %08x)", base, uint32(v.RootID()))
		fmt.Printf("volume created at %s\n", base)
		return nil
	},
}
