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

package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/frame"
)

// fakePort scripts reads chunk by chunk and captures writes.
type fakePort struct {
	readErr  error
	writeErr error
	reads    [][]byte
	written  []byte
	closed   bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.reads) == 0 {
		// Mimics a read timeout with an idle line.
		return 0, nil
	}
	chunk := p.reads[0]
	n := copy(buf, chunk)
	if n < len(chunk) {
		p.reads[0] = chunk[n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, buf...)
	return len(buf), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (*fakePort) SetMode(*serial.Mode) error { return nil }

func (*fakePort) SetReadTimeout(time.Duration) error { return nil }

func (*fakePort) Drain() error { return nil }

func (*fakePort) ResetInputBuffer() error { return nil }

func (*fakePort) ResetOutputBuffer() error { return nil }

func (*fakePort) SetDTR(bool) error { return nil }

func (*fakePort) SetRTS(bool) error { return nil }

func (*fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }

func (*fakePort) Break(time.Duration) error { return nil }

func newTestTransport(port *fakePort) *Transport {
	return NewFromPort(port, "/dev/ttyTEST0")
}

// TestTransportCreation verifies basic transport creation and properties
func TestTransportCreation(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(&fakePort{})
	assert.Equal(t, crowlink.TransportSerial, tr.Type())
	assert.Equal(t, "/dev/ttyTEST0", tr.PortName())
	assert.True(t, tr.LinkState().LastSeen.IsZero())
}

// TestSendWritesWireFrame verifies sends hit the port as complete frames
func TestSendWritesWireFrame(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	tr := newTestTransport(port)

	payload := []byte{0x03, 0x3A}
	require.NoError(t, tr.Send(crowlink.TypeHotkey, payload))

	want, err := frame.Encode(byte(crowlink.TypeHotkey), payload)
	require.NoError(t, err)
	assert.Equal(t, want, port.written)
	assert.Equal(t, byte(frame.StartByte), port.written[0])
}

// TestSendOversizedPayload verifies the payload cap surfaces as a typed error
func TestSendOversizedPayload(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(&fakePort{})
	err := tr.Send(crowlink.TypeStats, make([]byte, frame.MaxPayloadLen+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrDataTooLarge)
}

// TestPollDecodesFrame verifies a buffered frame comes back as an inbound message
func TestPollDecodesFrame(t *testing.T) {
	t.Parallel()

	framed, err := frame.Encode(byte(crowlink.TypeHotkeyAck), []byte{0x00})
	require.NoError(t, err)

	port := &fakePort{reads: [][]byte{framed}}
	tr := newTestTransport(port)

	in, err := tr.Poll()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, crowlink.TypeHotkeyAck, in.Type)
	assert.Equal(t, []byte{0x00}, in.Payload)
	assert.False(t, in.At.IsZero())
	assert.False(t, tr.LinkState().LastSeen.IsZero())
}

// TestPollIdleLine verifies an idle port polls clean
func TestPollIdleLine(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(&fakePort{})
	in, err := tr.Poll()
	require.NoError(t, err)
	assert.Nil(t, in)
}

// TestPollFragmentedFrame verifies reassembly across reads
func TestPollFragmentedFrame(t *testing.T) {
	t.Parallel()

	framed, err := frame.Encode(byte(crowlink.TypeMediaKey), []byte{0xCD, 0x00})
	require.NoError(t, err)

	port := &fakePort{reads: [][]byte{framed[:3], framed[3:]}}
	tr := newTestTransport(port)

	in, err := tr.Poll()
	require.NoError(t, err)
	assert.Nil(t, in, "half a frame should produce nothing")

	in, err = tr.Poll()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, crowlink.TypeMediaKey, in.Type)
	assert.Equal(t, []byte{0xCD, 0x00}, in.Payload)
}

// TestPollCorruptFrameResyncs verifies a bad checksum is counted and
// swallowed and the stream recovers on the next valid frame
func TestPollCorruptFrameResyncs(t *testing.T) {
	t.Parallel()

	bad, err := frame.Encode(byte(crowlink.TypeHotkey), []byte{0x01, 0x04})
	require.NoError(t, err)
	bad[len(bad)-1] ^= 0xFF

	good, err := frame.Encode(byte(crowlink.TypeHotkey), []byte{0x01, 0x05})
	require.NoError(t, err)

	port := &fakePort{reads: [][]byte{append(append([]byte{}, bad...), good...)}}
	tr := newTestTransport(port)

	// Line noise is not a poll failure; the caller sees nothing.
	in, err := tr.Poll()
	require.NoError(t, err)
	assert.Nil(t, in)

	in, err = tr.Poll()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, []byte{0x01, 0x05}, in.Payload)

	stats := tr.ParserStats()
	assert.Equal(t, uint64(1), stats.CRCErrors)
	assert.Equal(t, uint64(1), stats.Frames)
}

// TestPollMultipleBufferedFrames verifies frames queue in order across polls
func TestPollMultipleBufferedFrames(t *testing.T) {
	t.Parallel()

	var stream []byte
	for _, widget := range []byte{1, 2, 3} {
		framed, err := frame.Encode(byte(crowlink.TypeButton), []byte{0x00, widget})
		require.NoError(t, err)
		stream = append(stream, framed...)
	}

	tr := newTestTransport(&fakePort{reads: [][]byte{stream}})

	for _, widget := range []byte{1, 2, 3} {
		in, err := tr.Poll()
		require.NoError(t, err)
		require.NotNil(t, in)
		assert.Equal(t, []byte{0x00, widget}, in.Payload)
	}

	in, err := tr.Poll()
	require.NoError(t, err)
	assert.Nil(t, in)
}

// TestClosedTransport verifies operations fail cleanly after Close
func TestClosedTransport(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	tr := newTestTransport(port)
	require.NoError(t, tr.Close())
	assert.True(t, port.closed)

	err := tr.Send(crowlink.TypePing, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrTransportNotReady)

	_, err = tr.Poll()
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrTransportNotReady)

	assert.NoError(t, tr.Close(), "double close should be a no-op")
}

// TestCapabilities verifies the wired transport claims none of the radio traits
func TestCapabilities(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(&fakePort{})
	assert.False(t, tr.HasCapability(crowlink.CapabilityRSSI))
	assert.False(t, tr.HasCapability(crowlink.CapabilityBroadcast))
	assert.False(t, tr.HasCapability(crowlink.CapabilityIntegrity))
}
