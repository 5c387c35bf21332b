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

// Package radio provides the connectionless radio transport between
// panel and companion. The radio link layer already delivers whole
// packets with integrity checking, so messages travel as a bare TYPE
// byte followed by the payload with no extra framing.
package radio

import (
	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

// ReceiveHandler is called for every link-layer packet addressed to
// this node. src is the sender's hardware address and rssi the signal
// strength in dBm. The packet buffer is only valid for the duration of
// the call.
type ReceiveHandler func(src crowlink.PeerAddr, rssi int, pkt []byte)

// DriverConfig carries the initial radio setup.
type DriverConfig struct {
	// Channel is the radio channel the link runs on, 1-14.
	Channel uint8
}

// APConfig describes the access point raised for the configuration
// portal.
type APConfig struct {
	// SSID is the network name the portal advertises.
	SSID string
	// Password secures the portal network. Empty means open.
	Password string
	// Channel the AP beacons on. The transport pins this to the link
	// channel regardless of what the caller asks for.
	Channel uint8
	// MaxClients caps concurrent portal clients. Zero means driver
	// default.
	MaxClients int
	// Hidden suppresses SSID broadcast.
	Hidden bool
}

// Driver abstracts the radio hardware. Implementations exist for real
// radios, for UDP-backed development rigs and for scripted test stubs.
//
// Drivers must invoke the receive handler sequentially from a single
// goroutine. The transport's receive path relies on that to stay
// lock-free.
type Driver interface {
	// Start brings the radio up in station mode on the configured
	// channel
	Start(cfg DriverConfig) error

	// SetChannel retunes the radio. Safe to call while an AP is up
	SetChannel(ch uint8) error

	// SetMode switches the radio operating mode
	SetMode(mode crowlink.RadioMode) error

	// StartAP raises an access point alongside station operation.
	// Requires RadioModeAPSTA or RadioModeAP
	StartAP(cfg APConfig) error

	// StopAP tears the access point down, leaving station mode alone
	StopAP() error

	// Send transmits one link-layer packet to dest, or to all peers
	// for the broadcast address. It must not block on airtime
	Send(dest crowlink.PeerAddr, pkt []byte) error

	// SetReceiveHandler installs the packet callback. Passing nil
	// detaches the previous handler
	SetReceiveHandler(fn ReceiveHandler)

	// LocalAddr returns this node's hardware address
	LocalAddr() crowlink.PeerAddr

	// Close shuts the radio down
	Close() error
}
