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

import "github.com/aefs/aefs/internal/util"

// String renders the resolved configuration as JSON for the startup log
// line. Unlike gcsfuse's config, aefsvol's Config has no bearer tokens or
// connection strings to redact, so this is a direct marshal.
func (c *Config) String() string {
	s, err := util.Stringify(c)
	if err != nil {
		return ""
	}
	return s
}
