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

package cfg

import "runtime"

// DefaultMaxOpenStorageFiles scales the storage pool's open-handle cap
// (spec's cMaxOpenStorageFiles) with the host's CPU count, the way the
// teacher scales its default parallel-download worker count.
func DefaultMaxOpenStorageFiles() int {
	return max(16, 2*runtime.NumCPU())
}

// IsVolumeReadOnly reports whether mountConfig opens its volume read-only.
func IsVolumeReadOnly(mountConfig *Config) bool {
	return mountConfig.Volume.ReadOnly
}
