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

// sendkey delivers a single hotkey chord to the companion and reports
// whether it was acknowledged. It is the smallest useful crowlink
// program: connect, send, wait, exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/detection"
	// Import the detector so auto-detection can find the companion.
	_ "github.com/NoobyNull/CrowDisplay-sub000/detection/uart"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/serial"
)

type config struct {
	devicePath *string
	chord      *string
	timeout    *time.Duration
	baud       *int
	debug      *bool
}

func parseFlags() *config {
	cfg := &config{
		devicePath: flag.String("device", "",
			"Serial device path (e.g., /dev/ttyUSB0 or COM3). Leave empty for auto-detection."),
		chord:   flag.String("chord", "", "Hotkey chord to send, e.g. ctrl+alt+f13 or gui+1"),
		timeout: flag.Duration("timeout", 5*time.Second, "Timeout for connection and delivery"),
		baud:    flag.Int("baud", serial.DefaultBaudRate, "Baud rate for the serial link"),
		debug:   flag.Bool("debug", false, "Enable debug output"),
	}
	flag.Parse()

	if *cfg.debug {
		crowlink.SetDebugEnabled(true)
	}

	return cfg
}

func buildConnectOptions(cfg *config) []crowlink.ConnectOption {
	newTransport := func(path string) (crowlink.Transport, error) {
		if path == "" {
			return nil, errors.New("empty device path")
		}
		transport, err := serial.New(path, serial.WithBaudRate(*cfg.baud))
		if err != nil {
			return nil, fmt.Errorf("failed to open serial transport: %w", err)
		}
		return transport, nil
	}
	newTransportFromDevice := func(device detection.DeviceInfo) (crowlink.Transport, error) {
		return newTransport(device.Path)
	}

	var connectOpts []crowlink.ConnectOption
	if *cfg.devicePath == "" {
		connectOpts = append(connectOpts,
			crowlink.WithAutoDetection(),
			crowlink.WithTransportFromDeviceFactory(newTransportFromDevice))
		_, _ = fmt.Println("Auto-detecting companion...")
	} else {
		connectOpts = append(connectOpts, crowlink.WithTransportFactory(newTransport))
		_, _ = fmt.Printf("Opening device: %s\n", *cfg.devicePath)
	}

	connectOpts = append(connectOpts, crowlink.WithConnectTimeout(*cfg.timeout))
	return connectOpts
}

func run() int {
	cfg := parseFlags()

	if *cfg.chord == "" {
		_, _ = fmt.Fprintln(os.Stderr, "sendkey: -chord is required, e.g. -chord ctrl+alt+f13")
		flag.Usage()
		return 2
	}
	hotkey, err := crowlink.ParseHotkey(*cfg.chord)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sendkey: %v\n", err)
		return 2
	}

	link, err := crowlink.ConnectLink(*cfg.devicePath, buildConnectOptions(cfg)...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sendkey: connect: %v\n", err)
		return 1
	}
	defer func() { _ = link.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *cfg.timeout)
	defer cancel()

	start := time.Now()
	status, err := link.SendHotkeyAndWait(ctx, hotkey.Modifiers, hotkey.Keycode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sendkey: %s not delivered: %v\n", hotkey.Chord(), err)
		return 1
	}
	elapsed := time.Since(start)

	if status != crowlink.AckOK {
		_, _ = fmt.Printf("%s delivered in %s, but the companion reported %s\n",
			hotkey.Chord(), elapsed.Round(time.Microsecond), status)
		return 1
	}

	_, _ = fmt.Printf("%s delivered in %s\n", hotkey.Chord(), elapsed.Round(time.Microsecond))
	return 0
}

func main() {
	os.Exit(run())
}
