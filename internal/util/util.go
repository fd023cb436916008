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

// Package util holds small, dependency-free helpers shared across the
// cfg, logger, cmd, and aefs packages: path resolution, JSON stringification
// for debug logging, and size-unit conversion for volume cap flags.
package util

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// GCSFUSE_PARENT_PROCESS_DIR lets a daemonized child process resolve
// relative paths (config file, base directory) against the directory the
// original foreground process was launched from, rather than its own CWD
// (which may have changed, e.g. to "/", when the daemon detaches).
const GCSFUSE_PARENT_PROCESS_DIR = "GCSFUSE_PARENT_PROCESS_DIR"

// GetResolvedPath resolves filePath to an absolute path. A leading "~" is
// expanded against the user's home directory; any other relative path is
// resolved against GCSFUSE_PARENT_PROCESS_DIR if set, else the current
// working directory. An empty filePath resolves to "".
func GetResolvedPath(filePath string) (resolvedPath string, err error) {
	if filePath == "" {
		return "", nil
	}

	if strings.HasPrefix(filePath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, filePath[2:]), nil
	}

	if filepath.IsAbs(filePath) {
		return filePath, nil
	}

	baseDir := os.Getenv(GCSFUSE_PARENT_PROCESS_DIR)
	if baseDir == "" {
		baseDir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(baseDir, filePath), nil
}

// Stringify marshals v to a compact JSON string for debug/trace logging. On
// a marshalling failure it returns "" together with the error.
func Stringify(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MiBsToBytes converts a size in mebibytes to bytes.
func MiBsToBytes(mib uint64) uint64 {
	return mib << 20
}

// BytesToHigherMiBs converts a byte count to the smallest mebibyte count
// that covers it (rounding up).
func BytesToHigherMiBs(bytes uint64) uint64 {
	const mib = 1 << 20
	mibs := bytes / mib
	if bytes%mib != 0 {
		mibs++
	}
	return mibs
}

// IsolateContextFromParentContext returns a context that carries no values
// or cancellation from parent beyond the moment of the call: cancelling
// parent does not propagate.
func IsolateContextFromParentContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
