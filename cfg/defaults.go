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

// GetDefaultLoggingConfig returns the default logging configuration used
// during application startup, before any configuration file or flag has
// been parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "text",
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: DefaultLogBackupFileCount,
			Compress:        true,
			MaxFileSizeMB:   DefaultLogMaxFileSizeMB,
		},
	}
}

// DefaultVolumeConfig returns the default volume caps applied when a user
// supplies no overriding flags.
func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{
		MaxCryptedFiles:     DefaultMaxCryptedFiles,
		MaxOpenStorageFiles: DefaultMaxOpenStorageFiles(),
		MaxCachedSectors:    DefaultMaxCachedSectors,
		IOGranularity:       DefaultIOGranularity,
		ISFGrowSectors:      DefaultISFGrowSectors,
	}
}
