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
	"os"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"
)

var log = logging.MustGetLogger("crowctl")

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "crowctl",
	Short: "CrowDisplay link diagnostic tool",
	Long: `crowctl - monitor and exercise the CrowDisplay panel-companion link.

Provides commands for live traffic monitoring, typed command injection,
round-trip measurement and offline decoding of captured radio traffic.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Left without --port and --url, the companion serial port is auto-detected.

For WebSocket authentication, the password is read from the CROWCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell
history.

Flag defaults can be kept in a YAML config file (--config, default
~/.crowctl.yaml).`,
	Version:       "1.2.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		setupLogging(verbose)
		if verbose {
			crowlink.SetDebugEnabled(true)
		}
		return applyConfigFile()
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.crowctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func setupLogging(verbose bool) {
	format := logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{message}`)
	backend := logging.NewBackendFormatter(
		logging.NewLogBackend(os.Stderr, "", 0), format)
	leveled := logging.AddModuleLevel(backend)
	if verbose {
		leveled.SetLevel(logging.DEBUG, "")
	} else {
		leveled.SetLevel(logging.INFO, "")
	}
	logging.SetBackend(leveled)
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		return err
	}
	return nil
}
