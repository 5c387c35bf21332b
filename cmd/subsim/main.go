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

// subsim simulates the companion half of a CrowDisplay pair over the
// UDP radio rig. It acknowledges hotkeys, prints every decoded
// command, pushes synthetic telemetry and optionally executes DDC
// commands against a real display.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio/udpradio"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("subsim")

const defaultCompanionAddr = "02:cd:00:00:00:02"

func setupLogging(verbose bool) {
	format := logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module} %{message}`)
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

func run() int {
	listenAddr := flag.String("listen", "0.0.0.0:17320", "UDP address to receive radio datagrams on")
	peerList := flag.String("peers", "", "Comma-separated bootstrap UDP addresses of panels")
	channel := flag.Uint("channel", 6, "Radio channel the link is pinned to (1-14)")
	hwAddr := flag.String("addr", defaultCompanionAddr, "Hardware address this companion reports")
	ddcBus := flag.String("ddc-bus", "", "I2C bus for DDC/CI execution (empty disables)")
	displayNum := flag.Uint("display", 0, "Display number this companion answers DDC commands for")
	statsInterval := flag.Duration("stats-interval", 5*time.Second, "Synthetic telemetry interval (0 disables)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	setupLogging(*verbose)
	if *verbose {
		crowlink.SetDebugEnabled(true)
	}

	local, err := crowlink.ParsePeerAddr(*hwAddr)
	if err != nil {
		log.Errorf("bad -addr: %v", err)
		return 2
	}
	if *channel < 1 || *channel > 14 {
		log.Errorf("bad -channel: %d is outside 1-14", *channel)
		return 2
	}

	var peers []string
	if *peerList != "" {
		peers = strings.Split(*peerList, ",")
	}

	driver, err := udpradio.New(udpradio.Config{
		ListenAddr: *listenAddr,
		PeerAddrs:  peers,
		LocalAddr:  local,
	})
	if err != nil {
		log.Errorf("udp radio: %v", err)
		return 1
	}

	transport, err := radio.New(driver, radio.WithChannel(uint8(*channel)))
	if err != nil {
		log.Errorf("radio transport: %v", err)
		return 1
	}

	companion, err := NewCompanion(transport, Config{
		DDCBus:        *ddcBus,
		Display:       byte(*displayNum),
		StatsInterval: *statsInterval,
	})
	if err != nil {
		log.Errorf("companion: %v", err)
		_ = transport.Close()
		return 1
	}
	defer func() { _ = companion.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	log.Infof("companion %s listening on %s, channel %d", local, *listenAddr, *channel)
	if err := companion.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("run: %v", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
