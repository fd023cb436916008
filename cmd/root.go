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

// Package cmd is aefsvol, the thin CLI driver spec §6 keeps in scope
// alongside the otherwise out-of-scope mkaefs/aefsck/aefsutil tools: it
// creates and accesses volumes and exercises reads, writes, directory
// listings, and stats against the core engines in internal/aefs.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aefs/aefs/cfg"
	"github.com/aefs/aefs/internal/logger"
	"github.com/aefs/aefs/internal/util"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "aefsvol",
	Short: "Create and access AEFS encrypted volumes",
	Long: `aefsvol creates and accesses AEFS encrypted-filesystem volumes: a
collection of ordinary host files in a base directory holding a fully
encrypted, random-access, hierarchical filesystem image. It is a thin
driver over the core engines (sector codec, storage pool, sector cache,
info-sector file, directory/EA/symlink engines), not a reimplementation
of mkaefs, aefsck, or aefsutil.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		parsed, err := cfg.Parse(viper.GetViper())
		if err != nil {
			return err
		}
		MountConfig = *parsed
		if err := logger.InitLogFile(MountConfig.Logging); err != nil {
			return fmt.Errorf("initializing log file: %w", err)
		}
		logger.SetLogFormat(MountConfig.Logging.Format)
		return nil
	},
}

// Execute runs the root command, printing any error to stderr and exiting
// non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	resolved, err := util.GetResolvedPath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
	}
}
