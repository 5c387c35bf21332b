// crowlink
// Copyright (c) 2025 The CrowDisplay Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of crowlink.
//
// crowlink is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// crowlink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with crowlink; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// fileConfig mirrors the UI-facing connection flags so frequently used
// settings can live in a file instead of being retyped.
type fileConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Verbose  bool   `yaml:"verbose"`
}

// applyConfigFile fills in flags the user left at their defaults from
// the YAML config file. Explicit flags always win. A missing default
// config file is not an error; a missing --config file is.
func applyConfigFile() error {
	path := configPath
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".crowctl.yaml")
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if explicit {
			return fmt.Errorf("config %s: %w", path, err)
		}
		return nil
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	if portName == "" && cfg.Port != "" {
		portName = cfg.Port
	}
	if !rootCmd.PersistentFlags().Changed("baud") && cfg.Baud != 0 {
		baudRate = cfg.Baud
	}
	if wsURL == "" && cfg.URL != "" {
		wsURL = cfg.URL
	}
	if wsUsername == "" && cfg.Username != "" {
		wsUsername = cfg.Username
	}
	if !verbose && cfg.Verbose {
		verbose = true
		setupLogging(true)
	}

	return nil
}
