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

package cfg

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMaxOpenStorageFiles(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultMaxOpenStorageFiles(), 16)
	assert.Equal(t, max(16, 2*runtime.NumCPU()), DefaultMaxOpenStorageFiles())
}

func TestIsVolumeReadOnly(t *testing.T) {
	ro := &Config{Volume: VolumeConfig{ReadOnly: true}}
	rw := &Config{Volume: VolumeConfig{ReadOnly: false}}

	assert.True(t, IsVolumeReadOnly(ro))
	assert.False(t, IsVolumeReadOnly(rw))
}
