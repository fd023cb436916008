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

// AccessMode is the read/write disposition a storage file handle is opened
// with.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

// Behavioural open-file flags, independent of AccessMode.
const (
	O_APPEND = 1 << iota
	O_DIRECT
)

// OpenMode is the normalized open disposition the storage pool (spec §4.3)
// computes on each `<id>.enc` open/create call, from whether that call
// creates the file and whether the pool is read-only.
type OpenMode struct {
	AccessMode AccessMode
	FileFlags  int
}

// OpenFlagAttributes is the minimal boolean view of a volume's configured
// open flags that FileOpenMode needs; cfg.VolumeConfig, the storage pool's
// open-request adapter, and test doubles implement it.
type OpenFlagAttributes interface {
	IsReadOnly() bool
	IsWriteOnly() bool
	IsReadWrite() bool
	IsAppend() bool
	IsDirect() bool
}

// FileOpenMode derives an OpenMode from f. Access-mode booleans are checked
// read-only, write-only, read-write in that order; the first one set wins.
func FileOpenMode(f OpenFlagAttributes) OpenMode {
	var m OpenMode
	switch {
	case f.IsReadOnly():
		m.AccessMode = ReadOnly
	case f.IsWriteOnly():
		m.AccessMode = WriteOnly
	case f.IsReadWrite():
		m.AccessMode = ReadWrite
	}
	if f.IsAppend() {
		m.FileFlags |= O_APPEND
	}
	if f.IsDirect() {
		m.FileFlags |= O_DIRECT
	}
	return m
}

// OSFlags translates m into the os.O_* bitmask os.OpenFile expects.
func (m OpenMode) OSFlags() int {
	var flags int
	switch m.AccessMode {
	case ReadOnly:
		flags = os.O_RDONLY
	case WriteOnly:
		flags = os.O_WRONLY
	case ReadWrite:
		flags = os.O_RDWR
	}
	if m.FileFlags&O_APPEND != 0 {
		flags |= os.O_APPEND
	}
	if m.FileFlags&O_DIRECT != 0 {
		flags |= directOSFlag
	}
	return flags
}
