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

/*
Package crowlink implements the command link between a CrowDisplay
touch panel and its USB companion dongle.

The panel is a battery-powered touch deck; the companion enumerates on
the host as a USB keyboard and injects whatever the panel asks for.
Between them sits a small-frame wireless link with no delivery
guarantees, which this package turns into a reliable command channel:
hotkeys, media keys, power requests and monitor control travel from
the panel to the companion, telemetry and wall-clock time travel back.

Features:
  - Reliable delivery with acknowledgment, timeout and retransmit
  - Fire-and-forget telemetry alongside acknowledged commands
  - Heartbeat probing and link health callbacks
  - Multiple transports: 2.4 GHz radio, serial, UDP for development
  - Typed messages with a compact binary wire format
  - Retry logic with configurable backoff
  - Mock and stub transports for testing without hardware

Basic Usage:

	import (
	    crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	    "github.com/NoobyNull/CrowDisplay-sub000/transport/serial"
	)

	// Create a serial transport to a cabled companion
	transport, err := serial.New("/dev/ttyACM0")
	if err != nil {
	    log.Fatal(err)
	}

	// Create the link
	link, err := crowlink.NewLink(transport)
	if err != nil {
	    log.Fatal(err)
	}
	defer link.Close()

	// Or create with custom options
	link, err = crowlink.NewLink(transport,
	    crowlink.WithAckTimeout(60*time.Millisecond),
	    crowlink.WithMaxAttempts(5),
	)

	// Watch the link and the traffic on it
	link.OnLinkDown(func() {
	    log.Println("companion lost")
	})
	link.OnDeliveryFailure(func(f crowlink.DeliveryFailure) {
	    log.Printf("dropped %s after %d attempts", f.Type, f.Attempts)
	})
	link.Handle(crowlink.TypeStats, func(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	    stats := msg.(*crowlink.Stats)
	    log.Printf("host CPU %d%%", stats.CPULoadPct)
	    return crowlink.AckOK
	})

	// Fire a chord at the host
	if _, err := link.SendHotkey(crowlink.ModLeftCtrl|crowlink.ModLeftShift, crowlink.KeyF13); err != nil {
	    log.Fatal(err)
	}

	// Drive the link until shutdown
	if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    log.Fatal(err)
	}

For one-shot tools there are synchronous variants that poll internally
and report the companion's answer:

	status, err := link.SendHotkeyAndWait(ctx, crowlink.ModLeftGUI, crowlink.KeyA)

ConnectLink bundles transport creation, link setup and a liveness
probe, with optional auto-detection of the companion's USB bridge.

Transport Selection:

The link runs over any Transport implementation:

  - radio: the production path, a 2.4 GHz driver behind a lossless queue
  - serial: companions cabled over a USB CDC or UART bridge
  - udpradio: two processes on one machine, for development
  - stubradio: scripted in-memory radio for tests and simulators

Reliability:

Commands that matter carry an acknowledgment requirement in their
type. The link retransmits an unacknowledged message on a fixed
timeout and gives up after a bounded number of attempts, surfacing the
loss exactly once, either to the waiting caller or through the
delivery failure callback. Delivery is at-least-once; a command may
reach the companion twice when an acknowledgment is lost.

Error Handling:

All operations return meaningful errors that can be inspected:

	if errors.Is(err, crowlink.ErrNoACK) {
	    // companion never answered
	}
	if errors.Is(err, crowlink.ErrQueueFull) {
	    // too many commands in flight, try later
	}

Thread Safety:

Send, the typed send helpers, Stats and the registration methods are
safe from any goroutine. Poll and Run must be confined to a single
goroutine, and all callbacks fire on that goroutine. A handler may
send on the link it was called from.
*/
package crowlink
