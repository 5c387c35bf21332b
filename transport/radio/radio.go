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

package radio

import (
	"fmt"
	"sync"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/frame"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/spsc"
)

const (
	// DefaultChannel is the radio channel used when none is configured.
	DefaultChannel = 1

	// DefaultQueueDepth is the receive queue capacity. Received packets
	// beyond this are dropped newest-first until the consumer catches up.
	DefaultQueueDepth = 8

	// DefaultPeerExpiry resets the learned peer address to broadcast
	// after this much inbound silence.
	DefaultPeerExpiry = 2 * time.Second

	// maxChannel bounds the 2.4 GHz channel plan.
	maxChannel = 14
)

// rxPacket is one received link-layer packet queued between the driver
// callback and Poll.
type rxPacket struct {
	at   time.Time
	data []byte
	rssi int
	src  crowlink.PeerAddr
}

// Transport implements the crowlink.Transport interface on top of a
// radio Driver.
//
// Receive runs on the driver's callback goroutine and hands packets to
// the consumer through a single-producer single-consumer ring, so the
// callback never blocks on the consumer. Poll must only be called from
// one goroutine at a time.
type Transport struct {
	lastSeen    time.Time
	drv         Driver
	ring        *spsc.Ring[rxPacket]
	label       string
	peerExpiry  time.Duration
	lastRSSI    int
	queueDepth  int
	rxMalformed uint64
	mu          sync.Mutex
	peer        crowlink.PeerAddr
	channel     uint8
	mode        crowlink.RadioMode
	pinned      bool
	closed      bool
}

// Option configures the transport before the driver is started.
type Option func(*Transport)

// WithChannel selects the radio channel, 1-14.
func WithChannel(ch uint8) Option {
	return func(t *Transport) {
		t.channel = ch
	}
}

// WithPeerExpiry overrides how long a learned peer address survives
// without inbound traffic. Zero disables expiry.
func WithPeerExpiry(d time.Duration) Option {
	return func(t *Transport) {
		t.peerExpiry = d
	}
}

// WithQueueDepth overrides the receive queue capacity.
func WithQueueDepth(n int) Option {
	return func(t *Transport) {
		t.queueDepth = n
	}
}

// WithPeer pins the peer address up front instead of learning it from
// the first inbound packet. A pinned peer does not expire to broadcast
// until the transport has actually heard traffic and learned from it.
func WithPeer(addr crowlink.PeerAddr) Option {
	return func(t *Transport) {
		t.peer = addr
		t.pinned = true
	}
}

// New starts the driver in station mode and returns a ready transport
func New(drv Driver, opts ...Option) (*Transport, error) {
	t := &Transport{
		drv:        drv,
		channel:    DefaultChannel,
		peerExpiry: DefaultPeerExpiry,
		queueDepth: DefaultQueueDepth,
		peer:       crowlink.BroadcastAddr,
		mode:       crowlink.RadioModeSTA,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.channel < 1 || t.channel > maxChannel {
		return nil, fmt.Errorf("%w: channel %d not in 1-%d", crowlink.ErrChannelRange, t.channel, maxChannel)
	}

	t.ring = spsc.NewRing[rxPacket](t.queueDepth)

	if err := drv.Start(DriverConfig{Channel: t.channel}); err != nil {
		return nil, fmt.Errorf("failed to start radio driver: %w", err)
	}
	if err := drv.SetMode(crowlink.RadioModeSTA); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("radio station mode: %w: %w", crowlink.ErrRadioMode, err)
	}

	t.label = drv.LocalAddr().String()
	drv.SetReceiveHandler(t.handleReceive)

	return t, nil
}

// handleReceive runs on the driver goroutine. It must return quickly
// and never block on the consumer.
func (t *Transport) handleReceive(src crowlink.PeerAddr, rssi int, pkt []byte) {
	if len(pkt) == 0 {
		t.mu.Lock()
		t.rxMalformed++
		t.mu.Unlock()
		return
	}

	now := time.Now()

	t.mu.Lock()
	t.lastSeen = now
	t.lastRSSI = rssi
	// Reply-to-last-sender peer learning. Whoever talked to us most
	// recently is where unicast replies go. From here on the peer is
	// learned, so the silence-expiry window applies to it.
	t.peer = src
	t.pinned = false
	t.mu.Unlock()

	// The driver owns pkt only for the duration of the callback.
	data := make([]byte, len(pkt))
	copy(data, pkt)

	// A full ring drops the newest packet and the ring counts it.
	t.ring.Push(rxPacket{at: now, data: data, rssi: rssi, src: src})
}

// Send transmits one message to the learned peer, or broadcasts while
// no peer is known
func (t *Transport) Send(typ crowlink.MessageType, payload []byte) error {
	if len(payload) > frame.MaxPayloadLen {
		return crowlink.NewDataTooLargeError("Send", t.label)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return crowlink.NewTransportNotReadyError("Send", t.label)
	}
	t.expirePeerLocked()
	dest := t.peer
	t.mu.Unlock()

	pkt := make([]byte, 0, 1+len(payload))
	pkt = append(pkt, byte(typ))
	pkt = append(pkt, payload...)

	if err := t.drv.Send(dest, pkt); err != nil {
		return &crowlink.TransportError{
			Op: "Send", Port: t.label,
			Err:       fmt.Errorf("%w: %w", crowlink.ErrTransportWrite, err),
			Type:      crowlink.ErrorTypeTransient,
			Retryable: true,
		}
	}
	return nil
}

// Poll returns the next queued inbound message, or nil when the queue
// is empty
func (t *Transport) Poll() (*crowlink.Inbound, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, crowlink.NewTransportNotReadyError("Poll", t.label)
	}
	t.expirePeerLocked()
	t.mu.Unlock()

	pkt, ok := t.ring.Pop()
	if !ok {
		return nil, nil
	}

	return &crowlink.Inbound{
		At:      pkt.at,
		Type:    crowlink.MessageType(pkt.data[0]),
		Payload: pkt.data[1:],
		From:    pkt.src,
		RSSI:    pkt.rssi,
	}, nil
}

// expirePeerLocked reverts to broadcast once the peer has been silent
// past the expiry window. Callers hold t.mu.
func (t *Transport) expirePeerLocked() {
	if t.peerExpiry <= 0 || t.pinned || t.peer.IsBroadcast() {
		return
	}
	if t.lastSeen.IsZero() || time.Since(t.lastSeen) > t.peerExpiry {
		t.peer = crowlink.BroadcastAddr
	}
}

// LinkState returns a snapshot of link health
func (t *Transport) LinkState() crowlink.LinkState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return crowlink.LinkState{
		LastSeen: t.lastSeen,
		RSSI:     t.lastRSSI,
		Channel:  t.channel,
		Mode:     t.mode,
	}
}

// Close detaches from the driver and shuts it down
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.drv.SetReceiveHandler(nil)
	if err := t.drv.Close(); err != nil {
		return fmt.Errorf("failed to close radio driver: %w", err)
	}
	return nil
}

// Type returns the transport kind
func (*Transport) Type() crowlink.TransportKind {
	return crowlink.TransportRadio
}

// HasCapability reports transport capabilities
func (*Transport) HasCapability(capability crowlink.TransportCapability) bool {
	switch capability {
	case crowlink.CapabilityRSSI, crowlink.CapabilityBroadcast, crowlink.CapabilityIntegrity:
		return true
	default:
		return false
	}
}

// Peer returns the current unicast destination, or the broadcast
// address while no peer is known.
func (t *Transport) Peer() crowlink.PeerAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expirePeerLocked()
	return t.peer
}

// Channel returns the configured link channel.
func (t *Transport) Channel() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel
}

// LocalAddr returns this node's hardware address.
func (t *Transport) LocalAddr() crowlink.PeerAddr {
	return t.drv.LocalAddr()
}

// RxDropped counts packets discarded because the receive queue was full.
func (t *Transport) RxDropped() uint32 {
	return t.ring.Dropped()
}

// RxMalformed counts link-layer packets too short to carry a type byte.
func (t *Transport) RxMalformed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rxMalformed
}

// Ensure Transport implements crowlink.Transport
var _ crowlink.Transport = (*Transport)(nil)
var _ crowlink.TransportCapabilityChecker = (*Transport)(nil)
