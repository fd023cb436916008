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

const (
	// Logging-level constants.

	TRACE   string = "TRACE"
	DEBUG   string = "DEBUG"
	INFO    string = "INFO"
	WARNING string = "WARNING"
	ERROR   string = "ERROR"
	OFF     string = "OFF"
)

// Default volume caps (spec §4.10's CryptedVolumeParms), chosen to keep a
// single-process aefsvol session comfortably within a few MB of resident
// sector cache while still batching most sequential I/O in one syscall.
const (
	DefaultMaxCryptedFiles  = 256
	DefaultMaxCachedSectors = 4096
	DefaultIOGranularity    = 64
	DefaultISFGrowSectors   = 32
)

// Default log-rotation thresholds.
const (
	DefaultLogMaxFileSizeMB   = 512
	DefaultLogBackupFileCount = 10
)
