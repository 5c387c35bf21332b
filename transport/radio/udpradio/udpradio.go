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

// Package udpradio implements the radio driver on UDP datagrams so
// both halves of the deck can run as host processes on a development
// rig. Each datagram carries a channel byte and the sender's hardware
// address in front of the payload; receivers drop datagrams for other
// channels the way an off-channel radio simply hears nothing.
package udpradio

import (
	"errors"
	"fmt"
	"net"
	"sync"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio"
)

const (
	// headerLen is CHANNEL(1) + SRC(6).
	headerLen = 7

	// maxDatagram bounds reads from the socket.
	maxDatagram = 512
)

// Config describes the UDP rig.
type Config struct {
	// ListenAddr is the UDP address to bind, e.g. "127.0.0.1:17320".
	ListenAddr string
	// PeerAddrs are bootstrap UDP destinations used for broadcast and
	// for unicast to peers not yet heard from.
	PeerAddrs []string
	// LocalAddr is the hardware address this node reports.
	LocalAddr crowlink.PeerAddr
	// RSSI is the synthetic signal strength attached to everything
	// received. Zero means -50.
	RSSI int
}

// Driver implements radio.Driver over UDP.
type Driver struct {
	conn    *net.UDPConn
	handler radio.ReceiveHandler
	remotes []*net.UDPAddr
	learned map[crowlink.PeerAddr]*net.UDPAddr
	done    chan struct{}

	listenAddr string
	local      crowlink.PeerAddr
	rssi       int

	chanDropped uint64

	channel uint8
	mode    crowlink.RadioMode
	apUp    bool
	started bool
	closed  bool

	mu sync.Mutex
	wg sync.WaitGroup
}

// New prepares a driver. The socket is bound when the transport calls
// Start.
func New(cfg Config) (*Driver, error) {
	d := &Driver{
		listenAddr: cfg.ListenAddr,
		local:      cfg.LocalAddr,
		rssi:       cfg.RSSI,
		learned:    make(map[crowlink.PeerAddr]*net.UDPAddr),
		done:       make(chan struct{}),
	}
	if d.rssi == 0 {
		d.rssi = -50
	}

	for _, peer := range cfg.PeerAddrs {
		addr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			return nil, fmt.Errorf("resolve peer %q: %w", peer, err)
		}
		d.remotes = append(d.remotes, addr)
	}

	return d, nil
}

// Start binds the socket and begins receiving.
func (d *Driver) Start(cfg radio.DriverConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.New("udpradio: already started")
	}

	laddr, err := net.ResolveUDPAddr("udp", d.listenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen address %q: %w", d.listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("bind %q: %w", d.listenAddr, err)
	}

	d.conn = conn
	d.channel = cfg.Channel
	d.started = true

	d.wg.Add(1)
	go d.receiveLoop()

	return nil
}

// receiveLoop is the single goroutine that invokes the handler.
func (d *Driver) receiveLoop() {
	defer d.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, raddr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.done:
				return
			default:
			}
			// Transient socket errors: keep the rig alive.
			continue
		}
		if n < headerLen {
			continue
		}

		var src crowlink.PeerAddr
		copy(src[:], buf[1:headerLen])

		d.mu.Lock()
		if buf[0] != d.channel {
			d.chanDropped++
			d.mu.Unlock()
			continue
		}
		d.learned[src] = raddr
		handler := d.handler
		rssi := d.rssi
		d.mu.Unlock()

		if handler != nil {
			handler(src, rssi, buf[headerLen:n])
		}
	}
}

// SetChannel retunes the rig. Datagrams already in flight for the old
// channel will be filtered out.
func (d *Driver) SetChannel(ch uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channel = ch
	return nil
}

// SetMode records the mode. The rig has no real radio roles.
func (d *Driver) SetMode(mode crowlink.RadioMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
	return nil
}

// StartAP records the portal as up. Serving the actual portal is out of
// the driver's hands on a development rig.
func (d *Driver) StartAP(radio.APConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != crowlink.RadioModeAP && d.mode != crowlink.RadioModeAPSTA {
		return fmt.Errorf("udpradio: mode %s cannot host an AP", d.mode)
	}
	d.apUp = true
	return nil
}

// StopAP records the portal as down.
func (d *Driver) StopAP() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apUp = false
	return nil
}

// Send transmits one packet. Unicast goes to the UDP address the peer
// was last heard from; broadcast and unknown peers go to every
// bootstrap destination.
func (d *Driver) Send(dest crowlink.PeerAddr, pkt []byte) error {
	d.mu.Lock()
	if !d.started || d.closed {
		d.mu.Unlock()
		return errors.New("udpradio: not started")
	}

	datagram := make([]byte, 0, headerLen+len(pkt))
	datagram = append(datagram, d.channel)
	datagram = append(datagram, d.local[:]...)
	datagram = append(datagram, pkt...)

	var targets []*net.UDPAddr
	if !dest.IsBroadcast() {
		if raddr, ok := d.learned[dest]; ok {
			targets = []*net.UDPAddr{raddr}
		}
	}
	if targets == nil {
		targets = d.remotes
	}
	conn := d.conn
	d.mu.Unlock()

	if len(targets) == 0 {
		return fmt.Errorf("udpradio: no destination for %s", dest)
	}

	for _, raddr := range targets {
		if _, err := conn.WriteToUDP(datagram, raddr); err != nil {
			return fmt.Errorf("send to %s: %w", raddr, err)
		}
	}
	return nil
}

// SetReceiveHandler installs or detaches the packet callback.
func (d *Driver) SetReceiveHandler(fn radio.ReceiveHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = fn
}

// LocalAddr returns this node's hardware address.
func (d *Driver) LocalAddr() crowlink.PeerAddr {
	return d.local
}

// Close shuts the socket down and stops the receive loop.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	conn := d.conn
	d.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	d.wg.Wait()

	if err != nil {
		return fmt.Errorf("close udp socket: %w", err)
	}
	return nil
}

// ChannelDropped counts datagrams discarded for carrying the wrong
// channel byte.
func (d *Driver) ChannelDropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chanDropped
}

// BoundAddr returns the socket address after Start. Rigs that bind an
// ephemeral port hand this to the peer's PeerAddrs.
func (d *Driver) BoundAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Ensure Driver implements radio.Driver
var _ radio.Driver = (*Driver)(nil)
