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

// Package serial provides the wired UART transport between panel and
// companion. Every message is wrapped in the checksummed wire framing
// because a raw byte stream has no boundaries of its own.
package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/frame"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/transport"
)

const (
	// DefaultBaudRate matches the firmware UART configuration.
	DefaultBaudRate = 115200

	// defaultReadTimeout keeps Poll short so callers can interleave
	// sends between polls.
	defaultReadTimeout = 5 * time.Millisecond

	// readChunkSize is the per-poll read buffer size.
	readChunkSize = 256

	// openRetries and openRetryDelay govern re-opening a port that is
	// momentarily still held by a previous holder.
	openRetries    = 2
	openRetryDelay = 50 * time.Millisecond
)

// Transport implements the crowlink.Transport interface over a serial port
type Transport struct {
	lastSeen    time.Time
	port        serial.Port
	parser      *frame.Parser
	portName    string
	readBuf     []byte
	readTimeout time.Duration
	baudRate    int
	mu          sync.Mutex
	closed      bool
}

// Option configures the transport before the port is opened.
type Option func(*Transport)

// WithBaudRate overrides the default baud rate.
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		t.baudRate = baud
	}
}

// WithReadTimeout overrides the per-poll read timeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.readTimeout = timeout
	}
}

// New opens the given serial port at 8N1 and returns a ready transport
func New(portName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		portName:    portName,
		baudRate:    DefaultBaudRate,
		readTimeout: defaultReadTimeout,
		parser:      frame.NewParser(),
		readBuf:     make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(t)
	}

	mode := &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	// A companion port released moments ago (detection probe, previous
	// session) can still be held by the OS; retry the open briefly.
	var lastErr error
	port, err := transport.WithRetry(transport.RetryConfig{
		Description: "open " + portName,
		MaxRetries:  openRetries,
		RetryDelay:  openRetryDelay,
		OnRetryFailed: func() error {
			return fmt.Errorf("failed to open serial port %s: %w", portName, lastErr)
		},
	}, func() (serial.Port, bool, error) {
		p, openErr := serial.Open(portName, mode)
		if openErr != nil {
			lastErr = openErr
			return nil, true, nil
		}
		return p, false, nil
	})
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	// Discard whatever accumulated while nobody was listening. The
	// parser would resynchronize anyway but stale input makes the
	// first poll misleading.
	_ = port.ResetInputBuffer()

	t.port = port
	return t, nil
}

// NewFromPort wraps an already-open port. Used by tests and by callers
// that need non-standard port setup.
func NewFromPort(port serial.Port, portName string, opts ...Option) *Transport {
	t := &Transport{
		port:        port,
		portName:    portName,
		baudRate:    DefaultBaudRate,
		readTimeout: defaultReadTimeout,
		parser:      frame.NewParser(),
		readBuf:     make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send frames one message and writes it to the port
func (t *Transport) Send(typ crowlink.MessageType, payload []byte) error {
	framed, err := frame.Encode(byte(typ), payload)
	if err != nil {
		if errors.Is(err, frame.ErrPayloadTooLarge) {
			return crowlink.NewDataTooLargeError("Send", t.portName)
		}
		return fmt.Errorf("encode frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return crowlink.NewTransportNotReadyError("Send", t.portName)
	}

	n, err := t.port.Write(framed)
	if err != nil {
		return &crowlink.TransportError{
			Op: "Send", Port: t.portName,
			Err:       fmt.Errorf("%w: %w", crowlink.ErrTransportWrite, err),
			Type:      crowlink.ErrorTypeTransient,
			Retryable: true,
		}
	}
	if n != len(framed) {
		return &crowlink.TransportError{
			Op: "Send", Port: t.portName,
			Err:       fmt.Errorf("%w: short write %d of %d bytes", crowlink.ErrTransportWrite, n, len(framed)),
			Type:      crowlink.ErrorTypeTransient,
			Retryable: true,
		}
	}

	return nil
}

// Poll reads whatever the port has buffered, feeds the stream parser
// and returns the next complete frame. Corrupt frames are counted in
// ParserStats and dropped; the parser resynchronizes on its own.
func (t *Transport) Poll() (*crowlink.Inbound, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, crowlink.NewTransportNotReadyError("Poll", t.portName)
	}

	// Drain frames already carried over from the previous read before
	// touching the port again.
	if in, err := t.nextFrame(); in != nil || err != nil {
		return in, err
	}

	n, err := t.port.Read(t.readBuf)
	if err != nil {
		return nil, &crowlink.TransportError{
			Op: "Poll", Port: t.portName,
			Err:       fmt.Errorf("%w: %w", crowlink.ErrTransportRead, err),
			Type:      crowlink.ErrorTypeTransient,
			Retryable: true,
		}
	}
	if n == 0 {
		// Read timeout with nothing buffered.
		return nil, nil
	}

	t.parser.Feed(t.readBuf[:n])
	return t.nextFrame()
}

// nextFrame runs one parser step. Callers hold t.mu.
func (t *Transport) nextFrame() (*crowlink.Inbound, error) {
	f, err := t.parser.Poll()
	if err != nil {
		// The parser counted the drop and has already resynchronized.
		// Line noise is routine on a serial wire, not a poll failure.
		crowlink.Debugf("%s: dropped frame: %v", t.portName, err)
		return nil, nil
	}
	if f == nil {
		return nil, nil
	}

	now := time.Now()
	t.lastSeen = now

	return &crowlink.Inbound{
		At:      now,
		Type:    crowlink.MessageType(f.Type),
		Payload: f.Payload,
	}, nil
}

// LinkState returns a snapshot of link health
func (t *Transport) LinkState() crowlink.LinkState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return crowlink.LinkState{LastSeen: t.lastSeen}
}

// Close closes the serial port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// Type returns the transport kind
func (*Transport) Type() crowlink.TransportKind {
	return crowlink.TransportSerial
}

// HasCapability reports transport capabilities
func (*Transport) HasCapability(crowlink.TransportCapability) bool {
	// The wire is point to point with no addressing, signal metric or
	// link-layer integrity. Framing provides the integrity instead.
	return false
}

// ParserStats exposes framing counters for diagnostics.
func (t *Transport) ParserStats() frame.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parser.Stats()
}

// PortName returns the device path this transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}

// Ensure Transport implements crowlink.Transport
var _ crowlink.Transport = (*Transport)(nil)
var _ crowlink.TransportCapabilityChecker = (*Transport)(nil)
