//go:build !unix

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

package util

import "os"

// statBlockSize falls back to a conservative 4 KiB block size on platforms
// with no statfs equivalent available here.
func statBlockSize(path string) (uint64, error) {
	return 4096, nil
}

// statBlocks falls back to the file's apparent size rounded up to the
// assumed block size, since st_blocks is not portably available.
func statBlocks(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return GetSpeculativeFileSizeOnDisk(uint64(fi.Size()), 4096) / 512, nil
}
