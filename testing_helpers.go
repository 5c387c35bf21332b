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
	"sync"
	"time"
)

// SentMessage is one captured Send call.
type SentMessage struct {
	Payload []byte
	Type    MessageType
}

// MockTransport is a scriptable in-memory transport. It captures
// outbound traffic, serves queued inbound messages, and can stand in
// for the peer by acknowledging reliable messages automatically.
type MockTransport struct {
	lastSeen     time.Time
	sendErr      error
	pollErr      error
	capabilities map[TransportCapability]bool
	sent         []SentMessage
	inbound      []*Inbound
	autoAck      *AckStatus
	loseNext     int
	rssi         int
	mu           sync.Mutex
	closed       bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		capabilities: make(map[TransportCapability]bool),
		rssi:         -50,
	}
}

// Send captures the message. With auto-ack enabled, acknowledged types
// immediately queue the configured acknowledgment unless the
// transmission was scripted to be lost.
func (m *MockTransport) Send(typ MessageType, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewTransportNotReadyError("Send", "mock")
	}
	if m.sendErr != nil {
		return m.sendErr
	}

	m.sent = append(m.sent, SentMessage{
		Payload: append([]byte(nil), payload...),
		Type:    typ,
	})

	if !typ.Acked() || m.autoAck == nil {
		return nil
	}
	if m.loseNext > 0 {
		m.loseNext--
		return nil
	}
	m.queueLocked(TypeHotkeyAck, []byte{byte(*m.autoAck)})
	return nil
}

// Poll serves the next queued inbound message.
func (m *MockTransport) Poll() (*Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, NewTransportNotReadyError("Poll", "mock")
	}
	if m.pollErr != nil {
		err := m.pollErr
		m.pollErr = nil
		return nil, err
	}
	if len(m.inbound) == 0 {
		return nil, nil
	}

	in := m.inbound[0]
	m.inbound = m.inbound[1:]
	m.lastSeen = in.At
	return in, nil
}

// LinkState reports the mock's scripted state.
func (m *MockTransport) LinkState() LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return LinkState{
		LastSeen: m.lastSeen,
		RSSI:     m.rssi,
		Mode:     RadioModeOff,
	}
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Type returns TransportMock
func (*MockTransport) Type() TransportKind {
	return TransportMock
}

// HasCapability reports capabilities configured with SetCapability.
func (m *MockTransport) HasCapability(capability TransportCapability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capabilities[capability]
}

// SetCapability scripts one capability flag.
func (m *MockTransport) SetCapability(capability TransportCapability, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilities[capability] = enabled
}

// QueueInbound queues a raw inbound message for Poll.
func (m *MockTransport) QueueInbound(typ MessageType, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueLocked(typ, payload)
}

// QueueMessage encodes a message and queues it for Poll.
func (m *MockTransport) QueueMessage(msg Message) error {
	typ, payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	m.QueueInbound(typ, payload)
	return nil
}

func (m *MockTransport) queueLocked(typ MessageType, payload []byte) {
	m.inbound = append(m.inbound, &Inbound{
		At:      time.Now(),
		Payload: append([]byte(nil), payload...),
		RSSI:    m.rssi,
		Type:    typ,
	})
}

// EnableAutoAck makes the mock acknowledge every reliable message with
// the given status, standing in for the peer.
func (m *MockTransport) EnableAutoAck(status AckStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoAck = &status
}

// LoseNext scripts the next n reliable transmissions to vanish without
// an acknowledgment. Only meaningful with auto-ack enabled.
func (m *MockTransport) LoseNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loseNext = n
}

// SetSendError makes every Send fail with err until cleared with nil.
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetPollError makes the next Poll fail with err.
func (m *MockTransport) SetPollError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErr = err
}

// SetLastSeen scripts the peer's last-heard timestamp.
func (m *MockTransport) SetLastSeen(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = t
}

// SetRSSI scripts the reported signal strength.
func (m *MockTransport) SetRSSI(rssi int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rssi = rssi
}

// Sent returns a copy of all captured Send calls.
func (m *MockTransport) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentOfType counts captured Send calls of one type.
func (m *MockTransport) SentOfType(typ MessageType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sent {
		if s.Type == typ {
			count++
		}
	}
	return count
}

// ClearSent discards the captured Send log.
func (m *MockTransport) ClearSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

var _ Transport = (*MockTransport)(nil)
var _ TransportCapabilityChecker = (*MockTransport)(nil)

// BlockingMockTransport is a mock transport that can block Send on demand.
// This is used for testing deadlock scenarios and context cancellation
type BlockingMockTransport struct {
	blockChan chan struct{}
	sendErr   error
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
}

// NewBlockingMockTransport creates a new blocking mock transport
func NewBlockingMockTransport() *BlockingMockTransport {
	return &BlockingMockTransport{
		blockChan: make(chan struct{}),
		timeout:   5 * time.Second, // Default timeout
	}
}

// Send blocks until Unblock() is called, the timeout expires, or the
// transport is closed
func (m *BlockingMockTransport) Send(MessageType, []byte) error {
	m.mu.Lock()
	blockChan := m.blockChan
	closed := m.closed
	sendErr := m.sendErr
	timeout := m.timeout
	m.mu.Unlock()

	if closed {
		return ErrTransportWrite
	}

	// Wait for either unblock signal or timeout
	select {
	case <-blockChan:
		// Operation was unblocked, proceed normally
	case <-time.After(timeout):
		return NewTimeoutError("Send", "mock")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportWrite
	}
	return sendErr
}

// Poll never has traffic.
func (m *BlockingMockTransport) Poll() (*Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, NewTransportNotReadyError("Poll", "mock")
	}
	return nil, nil
}

// LinkState reports an idle link.
func (*BlockingMockTransport) LinkState() LinkState {
	return LinkState{}
}

// Unblock allows one blocked Send to proceed
func (m *BlockingMockTransport) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// Close unblocks all operations and marks transport as closed
func (m *BlockingMockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.blockChan)
	}
	return nil
}

// SetSendError configures the error Send returns once unblocked.
func (m *BlockingMockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetTimeout configures the timeout for blocking operations
func (m *BlockingMockTransport) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

// Type returns TransportMock
func (*BlockingMockTransport) Type() TransportKind {
	return TransportMock
}

var _ Transport = (*BlockingMockTransport)(nil)
