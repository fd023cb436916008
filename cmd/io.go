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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aefs/aefs/internal/aefs/types"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer mustCloseVolume(v)

		id, err := v.QueryIDFromPath(v.RootID(), args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		info, err := v.QueryInfo(id)
		if err != nil {
			return err
		}

		const chunk = 1 << 20
		buf := make([]byte, chunk)
		var off uint64
		for off < info.FileSize {
			want := chunk
			if remaining := info.FileSize - off; remaining < uint64(chunk) {
				want = int(remaining)
			}
			n, err := v.ReadFile(id, off, buf[:want])
			if err != nil {
				return err
			}
			if _, err := os.Stdout.Write(buf[:n]); err != nil {
				return err
			}
			off += uint64(n)
			if n == 0 {
				break
			}
		}
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Create or overwrite a file from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer mustCloseVolume(v)

		id, err := v.QueryIDFromPath(v.RootID(), args[0])
		if err != nil {
			dir, name := splitParentName(args[0])
			parent, derr := v.QueryIDFromPath(v.RootID(), dir)
			if derr != nil {
				return fmt.Errorf("resolving parent of %s: %w", args[0], derr)
			}
			id, err = v.CreateBaseFile(&types.FileInfo{Flags: types.FlagIFREG})
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}
			if err := v.AddEntry(parent, name, id, 0); err != nil {
				return fmt.Errorf("linking %s: %w", args[0], err)
			}
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		if _, err := v.WriteFile(id, 0, data); err != nil {
			return fmt.Errorf("writing %s: %w", args[0], err)
		}
		if err := v.SetSize(id, uint64(len(data))); err != nil {
			return fmt.Errorf("sizing %s: %w", args[0], err)
		}
		fmt.Printf("wrote %d bytes to %s\n", len(data), args[0])
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory's entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer mustCloseVolume(v)

		dir, err := v.QueryIDFromPath(v.RootID(), path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		entries, err := v.ListDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			info, err := v.QueryInfo(e.ID)
			kind := "?"
			var size uint64
			if err == nil {
				size = info.FileSize
				switch types.FileType(info.Flags) {
				case types.FlagIFDIR:
					kind = "d"
				case types.FlagIFREG:
					kind = "f"
				case types.FlagIFLNK:
					kind = "l"
				case types.FlagIFEA:
					kind = "e"
				}
			}
			fmt.Printf("%s %10d %08x %s\n", kind, size, uint32(e.ID), e.Name)
		}
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Print a file's FileInfo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer mustCloseVolume(v)

		id, err := v.QueryIDFromPath(v.RootID(), args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		info, err := v.QueryInfo(id)
		if err != nil {
			return err
		}
		fmt.Printf("id:       %08x\n", uint32(id))
		fmt.Printf("flags:    %#x\n", info.Flags)
		fmt.Printf("size:     %d\n", info.FileSize)
		fmt.Printf("refcount: %d\n", info.RefCount)
		fmt.Printf("created:  %s\n", time.Unix(int64(info.TimeCreate), 0).UTC())
		fmt.Printf("accessed: %s\n", time.Unix(int64(info.TimeAccess), 0).UTC())
		fmt.Printf("written:  %s\n", time.Unix(int64(info.TimeWrite), 0).UTC())
		return nil
	},
}

// splitParentName splits a '/'-separated path into its parent directory
// path and final component, for write's implicit-create case.
func splitParentName(path string) (dir, name string) {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
