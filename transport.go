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

package crowlink

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// PeerAddr identifies a peer on the link. Radio transports carry real
// hardware addresses; serial transports report the zero address because
// the cable has exactly one far end.
type PeerAddr [6]byte

// BroadcastAddr is the address a radio transport sends to before any
// peer has been learned from received traffic.
var BroadcastAddr = PeerAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String returns the address in colon-separated hex form.
func (a PeerAddr) String() string {
	parts := make([]string, len(a))
	for i, b := range a {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

// IsBroadcast returns true if the address is the broadcast address.
func (a PeerAddr) IsBroadcast() bool {
	return a == BroadcastAddr
}

// IsZero returns true if the address is unset.
func (a PeerAddr) IsZero() bool {
	return a == PeerAddr{}
}

// ParsePeerAddr parses a colon-separated hex address such as
// "24:6f:28:9a:b3:0c".
func ParsePeerAddr(s string) (PeerAddr, error) {
	var addr PeerAddr
	parts := strings.Split(s, ":")
	if len(parts) != len(addr) {
		return PeerAddr{}, fmt.Errorf("%w: peer address %q must have 6 octets", ErrInvalidParameter, s)
	}
	for i, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil || len(b) != 1 {
			return PeerAddr{}, fmt.Errorf("%w: peer address %q has invalid octet %q", ErrInvalidParameter, s, part)
		}
		addr[i] = b[0]
	}
	return addr, nil
}

// RadioMode represents the operating mode of a radio transport.
type RadioMode uint8

const (
	// RadioModeOff means the radio is not initialized.
	RadioModeOff RadioMode = iota
	// RadioModeSTA is the normal station mode used for peer traffic.
	RadioModeSTA
	// RadioModeAP is access point mode with station mode disabled.
	RadioModeAP
	// RadioModeAPSTA is combined mode used while the configuration
	// portal is up so peer traffic keeps flowing.
	RadioModeAPSTA
)

// String returns a human-readable mode name.
func (m RadioMode) String() string {
	switch m {
	case RadioModeOff:
		return "off"
	case RadioModeSTA:
		return "sta"
	case RadioModeAP:
		return "ap"
	case RadioModeAPSTA:
		return "ap_sta"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// LinkState is a point-in-time snapshot of link health as seen by one
// transport instance.
type LinkState struct {
	// LastSeen is the arrival time of the most recent valid inbound
	// message. Zero if nothing has been received yet.
	LastSeen time.Time
	// RSSI is the signal strength of the last received message in dBm.
	// Zero for transports without CapabilityRSSI.
	RSSI int
	// Channel is the radio channel the link runs on. Zero for wired
	// transports.
	Channel uint8
	// Mode is the current radio operating mode. RadioModeOff for wired
	// transports.
	Mode RadioMode
}

// Up reports whether the link has seen traffic within the given window.
func (s LinkState) Up(window time.Duration) bool {
	return !s.LastSeen.IsZero() && time.Since(s.LastSeen) < window
}

// Inbound is a single received message together with its receive
// metadata.
type Inbound struct {
	// At is the local arrival time.
	At time.Time
	// Payload is the message payload. The slice is owned by the caller.
	Payload []byte
	// RSSI is the signal strength for this message, if the transport
	// reports it.
	RSSI int
	// From is the sender address, if the transport reports one.
	From PeerAddr
	// Type is the message type byte.
	Type MessageType
}

// Transport defines the interface for moving messages between the two
// halves of the deck. This can be implemented by serial or radio
// backends.
type Transport interface {
	// Send transmits one message to the peer side
	Send(typ MessageType, payload []byte) error

	// Poll performs one receive step and returns the next complete
	// inbound message, or nil when none is pending
	Poll() (*Inbound, error)

	// LinkState returns a snapshot of link health
	LinkState() LinkState

	// Close closes the transport connection
	Close() error

	// Type returns the transport kind
	Type() TransportKind
}

// TransportKind represents the kind of transport
type TransportKind string

const (
	// TransportSerial represents the wired UART/USB-CDC transport.
	TransportSerial TransportKind = "serial"
	// TransportRadio represents the connectionless radio transport.
	TransportRadio TransportKind = "radio"
	// TransportMock represents a mock transport for testing
	TransportMock TransportKind = "mock"
)

// TransportCapability represents specific capabilities or behaviors of a transport
type TransportCapability string

const (
	// CapabilityRSSI indicates the transport reports per-message signal
	// strength
	CapabilityRSSI TransportCapability = "rssi"

	// CapabilityBroadcast indicates the transport can address a frame to
	// all peers rather than a single learned address
	CapabilityBroadcast TransportCapability = "broadcast"

	// CapabilityIntegrity indicates the transport's link layer already
	// guarantees frame boundaries and payload integrity, so the
	// checksummed wire framing is skipped
	CapabilityIntegrity TransportCapability = "integrity"
)

// TransportCapabilityChecker defines an interface for querying transport capabilities
// This provides a clean, type-safe alternative to type switches on TransportKind
type TransportCapabilityChecker interface {
	// HasCapability returns true if the transport has the specified capability
	HasCapability(capability TransportCapability) bool
}

// TransportHasCapability reports whether t implements
// TransportCapabilityChecker and claims the given capability.
func TransportHasCapability(t Transport, capability TransportCapability) bool {
	if checker, ok := t.(TransportCapabilityChecker); ok {
		return checker.HasCapability(capability)
	}
	return false
}

// TransportWithRetry wraps a Transport with retry capabilities
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// Send transmits a message with retry logic
func (t *TransportWithRetry) Send(typ MessageType, payload []byte) error {
	return RetryWithConfig(context.Background(), t.config, func() error {
		if err := t.transport.Send(typ, payload); err != nil {
			// Wrap transport errors for better error handling
			return &TransportError{
				Op:        "Send",
				Err:       err,
				Type:      GetErrorType(err),
				Retryable: IsRetryable(err),
			}
		}
		return nil
	})
}

// Poll performs one receive step without retry. A poll that returns
// nothing is not a failure, and a corrupt frame must surface to the
// caller's statistics rather than be silently re-polled.
func (t *TransportWithRetry) Poll() (*Inbound, error) {
	in, err := t.transport.Poll()
	if err != nil {
		return in, fmt.Errorf("poll on underlying transport: %w", err)
	}
	return in, nil
}

// LinkState returns a snapshot of link health
func (t *TransportWithRetry) LinkState() LinkState {
	return t.transport.LinkState()
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// Type returns the transport kind
func (t *TransportWithRetry) Type() TransportKind {
	return t.transport.Type()
}

// HasCapability forwards capability checking to the underlying transport
func (t *TransportWithRetry) HasCapability(capability TransportCapability) bool {
	if capChecker, ok := t.transport.(TransportCapabilityChecker); ok {
		return capChecker.HasCapability(capability)
	}
	return false
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}
