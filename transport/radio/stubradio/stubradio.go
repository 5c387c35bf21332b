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

// Package stubradio provides an in-memory radio driver for tests and
// the companion simulator. Two drivers can be wired back to back to
// form a lossless air gap, and every fallible operation can be scripted
// to fail.
package stubradio

import (
	"sync"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio"
)

// TxPacket records one transmitted packet.
type TxPacket struct {
	Data []byte
	Dest crowlink.PeerAddr
}

// Driver is a scripted in-memory radio.
type Driver struct {
	handler radio.ReceiveHandler
	peer    *Driver

	// Scripted failures, returned once set until cleared.
	StartErr      error
	SetModeErr    error
	SetChannelErr error
	StartAPErr    error
	StopAPErr     error
	SendErr       error

	// APHopChannel, when nonzero, makes StartAP drag the radio to this
	// channel instead of the requested one, the way some chips retune
	// to a scan-derived channel during AP bring-up.
	APHopChannel uint8

	txLog      []TxPacket
	channelLog []uint8
	modeLog    []crowlink.RadioMode

	apCfg radio.APConfig
	addr  crowlink.PeerAddr
	rssi  int

	channel uint8
	mode    crowlink.RadioMode
	apUp    bool
	started bool
	closed  bool

	mu sync.Mutex
}

// New returns a driver with the given hardware address.
func New(addr crowlink.PeerAddr) *Driver {
	return &Driver{addr: addr, rssi: -50}
}

// Wire cross-connects two drivers so packets sent on one arrive on the
// other when both sit on the same channel.
func Wire(a, b *Driver) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()

	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// Start brings the stub up on the configured channel.
func (d *Driver) Start(cfg radio.DriverConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartErr != nil {
		return d.StartErr
	}
	d.started = true
	d.channel = cfg.Channel
	d.channelLog = append(d.channelLog, cfg.Channel)
	return nil
}

// SetChannel retunes the stub and records the transition.
func (d *Driver) SetChannel(ch uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SetChannelErr != nil {
		return d.SetChannelErr
	}
	d.channel = ch
	d.channelLog = append(d.channelLog, ch)
	return nil
}

// SetMode switches the stub's mode and records the transition.
func (d *Driver) SetMode(mode crowlink.RadioMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SetModeErr != nil {
		return d.SetModeErr
	}
	d.mode = mode
	d.modeLog = append(d.modeLog, mode)
	return nil
}

// StartAP raises the stub AP.
func (d *Driver) StartAP(cfg radio.APConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartAPErr != nil {
		return d.StartAPErr
	}
	d.apUp = true
	d.apCfg = cfg
	d.channel = cfg.Channel
	if d.APHopChannel != 0 {
		d.channel = d.APHopChannel
	}
	d.channelLog = append(d.channelLog, d.channel)
	return nil
}

// StopAP tears the stub AP down.
func (d *Driver) StopAP() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StopAPErr != nil {
		return d.StopAPErr
	}
	d.apUp = false
	return nil
}

// Send logs the packet and delivers it to the wired peer when the
// channels line up and the destination matches.
func (d *Driver) Send(dest crowlink.PeerAddr, pkt []byte) error {
	d.mu.Lock()
	if d.SendErr != nil {
		err := d.SendErr
		d.mu.Unlock()
		return err
	}

	data := make([]byte, len(pkt))
	copy(data, pkt)
	d.txLog = append(d.txLog, TxPacket{Data: data, Dest: dest})

	peer := d.peer
	channel := d.channel
	src := d.addr
	rssi := d.rssi
	d.mu.Unlock()

	if peer == nil {
		return nil
	}

	peer.mu.Lock()
	match := peer.channel == channel && (dest.IsBroadcast() || dest == peer.addr)
	handler := peer.handler
	peer.mu.Unlock()

	if match && handler != nil {
		handler(src, rssi, data)
	}
	return nil
}

// SetReceiveHandler installs or detaches the packet callback.
func (d *Driver) SetReceiveHandler(fn radio.ReceiveHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = fn
}

// LocalAddr returns the stub's hardware address.
func (d *Driver) LocalAddr() crowlink.PeerAddr {
	return d.addr
}

// Close shuts the stub down.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.handler = nil
	return nil
}

// InjectRx delivers a packet to this driver's handler as if it arrived
// over the air.
func (d *Driver) InjectRx(src crowlink.PeerAddr, rssi int, pkt []byte) {
	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()
	if handler != nil {
		handler(src, rssi, pkt)
	}
}

// SetRSSI sets the signal strength reported for packets this driver
// originates.
func (d *Driver) SetRSSI(rssi int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rssi = rssi
}

// TxLog returns the packets sent so far.
func (d *Driver) TxLog() []TxPacket {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TxPacket, len(d.txLog))
	copy(out, d.txLog)
	return out
}

// ChannelLog returns every channel the stub has been tuned to, in order.
func (d *Driver) ChannelLog() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint8, len(d.channelLog))
	copy(out, d.channelLog)
	return out
}

// ModeLog returns every mode transition, in order.
func (d *Driver) ModeLog() []crowlink.RadioMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]crowlink.RadioMode, len(d.modeLog))
	copy(out, d.modeLog)
	return out
}

// Channel returns the channel the stub currently sits on.
func (d *Driver) Channel() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

// Mode returns the stub's current mode.
func (d *Driver) Mode() crowlink.RadioMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// APUp reports whether the stub AP is raised.
func (d *Driver) APUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.apUp
}

// APConfig returns the config of the last raised AP.
func (d *Driver) APConfig() radio.APConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.apCfg
}

// Closed reports whether Close has been called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Ensure Driver implements radio.Driver
var _ radio.Driver = (*Driver)(nil)
