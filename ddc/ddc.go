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

// Package ddc executes display control adjustments over DDC/CI. The
// companion applies the panel's DDC command messages to its attached
// display through this package.
package ddc

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

const (
	// ddcAddr is the 7-bit address every DDC/CI capable display
	// answers on.
	ddcAddr = 0x37

	// writeDest is the 8-bit write form of ddcAddr. The DDC/CI
	// checksum covers it even though the bus layer sends it.
	writeDest = 0x6E

	// hostSource identifies the host in outgoing messages.
	hostSource = 0x51

	// replyDest seeds reply checksums.
	replyDest = 0x50

	// lengthFlag marks the length byte of a DDC/CI message.
	lengthFlag = 0x80

	// VCP opcodes.
	opGetVCP      = 0x01
	opGetVCPReply = 0x02
	opSetVCP      = 0x03

	// replyDelay is how long a display may take to stage a GetVCP
	// reply.
	replyDelay = 40 * time.Millisecond

	// Max clock frequency. DDC/CI is specified at 100 kHz.
	maxClockFreq = 100 * physic.KiloHertz
)

// Common VCP feature codes.
const (
	VCPLuminance   = 0x10
	VCPContrast    = 0x12
	VCPInputSelect = 0x60
	VCPAudioVolume = 0x62
	VCPPowerMode   = 0xD6
)

// DDC errors
var (
	// ErrVCPUnsupported indicates the display rejected the VCP code.
	ErrVCPUnsupported = errors.New("vcp code unsupported by display")

	// ErrNullReply indicates the display had no reply staged.
	ErrNullReply = errors.New("null reply from display")

	// errWrongCode marks a stale reply for a different VCP code.
	errWrongCode = errors.New("reply for a different vcp code")
)

// Monitor drives one DDC/CI capable display on an I2C bus.
type Monitor struct {
	bus     i2c.BusCloser
	dev     *i2c.Dev
	busName string
}

// Buses returns the registered I2C bus names a display may sit on.
func Buses() []string {
	refs := i2creg.All()
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names
}

// Open attaches to the display on the named I2C bus. An empty name
// opens the first available bus.
func Open(busName string) (*Monitor, error) {
	// Initialize host
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}

	// Create device with the DDC/CI display address
	dev := &i2c.Dev{Addr: ddcAddr, Bus: bus}

	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	return &Monitor{
		bus:     bus,
		dev:     dev,
		busName: busName,
	}, nil
}

// Close releases the underlying bus.
func (m *Monitor) Close() error {
	if m.bus == nil {
		return nil
	}
	if err := m.bus.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// SetVCP writes a VCP feature value to the display.
func (m *Monitor) SetVCP(code byte, value uint16) error {
	if err := m.dev.Tx(buildSetVCP(code, value), nil); err != nil {
		return fmt.Errorf("ddc write failed on %s: %w", m.busName, err)
	}
	return nil
}

// GetVCP reads a VCP feature's current and maximum value.
func (m *Monitor) GetVCP(code byte) (current, maxValue uint16, err error) {
	if err := m.dev.Tx(buildGetVCP(code), nil); err != nil {
		return 0, 0, fmt.Errorf("ddc request failed on %s: %w", m.busName, err)
	}

	// The display needs time to stage the reply.
	time.Sleep(replyDelay)

	const maxTries = 3
	var lastErr error
	for tries := 0; tries < maxTries; tries++ {
		buf := make([]byte, vcpReplyLen)
		if err := m.dev.Tx(nil, buf); err != nil {
			return 0, 0, fmt.Errorf("ddc reply read failed on %s: %w", m.busName, err)
		}

		reply, err := parseVCPReply(buf)
		if err == nil && reply.code != code {
			err = fmt.Errorf("%w: got 0x%02X, want 0x%02X", errWrongCode, reply.code, code)
		}
		if err == nil {
			return reply.current, reply.max, nil
		}

		// A slow display stages its reply late; stale and corrupt
		// replies drain on re-read.
		if errors.Is(err, ErrNullReply) ||
			errors.Is(err, errWrongCode) ||
			errors.Is(err, crowlink.ErrChecksumMismatch) {
			lastErr = err
			time.Sleep(replyDelay)
			continue
		}
		return 0, 0, err
	}

	return 0, 0, fmt.Errorf("ddc read on %s gave up: %w", m.busName, lastErr)
}

// AdjustVCP applies a relative step to a VCP feature, clamped to the
// display's reported range.
func (m *Monitor) AdjustVCP(code byte, adjust crowlink.DDCAdjust, step uint16) error {
	current, maxValue, err := m.GetVCP(code)
	if err != nil {
		return err
	}

	var target uint16
	switch adjust {
	case crowlink.DDCUp:
		target = current + step
		if target > maxValue || target < current {
			target = maxValue
		}
	case crowlink.DDCDown:
		if step > current {
			target = 0
		} else {
			target = current - step
		}
	case crowlink.DDCSet:
		target = step
		if maxValue > 0 && target > maxValue {
			target = maxValue
		}
	default:
		return fmt.Errorf("%w: ddc adjustment 0x%02X", crowlink.ErrInvalidParameter, byte(adjust))
	}

	return m.SetVCP(code, target)
}

// Apply executes one command message from the panel. Display routing
// on multi-head companions is the caller's job; a Monitor drives a
// single display.
func (m *Monitor) Apply(cmd crowlink.DDCCommand) error {
	switch cmd.Adjust {
	case crowlink.DDCSet:
		return m.SetVCP(cmd.VCP, cmd.Value)
	case crowlink.DDCUp, crowlink.DDCDown:
		return m.AdjustVCP(cmd.VCP, cmd.Adjust, cmd.Value)
	default:
		return fmt.Errorf("%w: ddc adjustment 0x%02X", crowlink.ErrInvalidParameter, byte(cmd.Adjust))
	}
}

// buildSetVCP assembles a Set VCP Feature message, checksum included.
func buildSetVCP(code byte, value uint16) []byte {
	msg := []byte{hostSource, lengthFlag | 4, opSetVCP, code, byte(value >> 8), byte(value)}
	return append(msg, xorChecksum(writeDest, msg))
}

// buildGetVCP assembles a Get VCP Feature request.
func buildGetVCP(code byte) []byte {
	msg := []byte{hostSource, lengthFlag | 2, opGetVCP, code}
	return append(msg, xorChecksum(writeDest, msg))
}

// xorChecksum folds the seed and message bytes per DDC/CI.
func xorChecksum(seed byte, msg []byte) byte {
	chk := seed
	for _, b := range msg {
		chk ^= b
	}
	return chk
}

// vcpReplyLen is the wire size of a Get VCP Feature reply.
const vcpReplyLen = 11

// vcpReply is a decoded Get VCP Feature reply.
type vcpReply struct {
	code    byte
	vcpType byte
	current uint16
	max     uint16
}

// parseVCPReply validates and decodes a Get VCP Feature reply.
func parseVCPReply(buf []byte) (vcpReply, error) {
	if len(buf) < vcpReplyLen {
		return vcpReply{}, fmt.Errorf("%w: ddc reply truncated at %d bytes", crowlink.ErrFrameCorrupted, len(buf))
	}
	if buf[0] != writeDest {
		return vcpReply{}, fmt.Errorf("%w: ddc reply source 0x%02X", crowlink.ErrFrameCorrupted, buf[0])
	}
	if buf[1] == lengthFlag {
		return vcpReply{}, ErrNullReply
	}
	if buf[1] != lengthFlag|8 {
		return vcpReply{}, fmt.Errorf("%w: ddc reply length 0x%02X", crowlink.ErrFrameCorrupted, buf[1])
	}
	if chk := xorChecksum(replyDest, buf[:vcpReplyLen-1]); chk != buf[vcpReplyLen-1] {
		return vcpReply{}, fmt.Errorf("%w: ddc reply checksum 0x%02X, computed 0x%02X",
			crowlink.ErrChecksumMismatch, buf[vcpReplyLen-1], chk)
	}
	if buf[2] != opGetVCPReply {
		return vcpReply{}, fmt.Errorf("%w: ddc reply opcode 0x%02X", crowlink.ErrFrameCorrupted, buf[2])
	}

	switch buf[3] {
	case 0x00:
	case 0x01:
		return vcpReply{}, ErrVCPUnsupported
	default:
		return vcpReply{}, fmt.Errorf("%w: ddc result code 0x%02X", crowlink.ErrFrameCorrupted, buf[3])
	}

	return vcpReply{
		code:    buf[4],
		vcpType: buf[5],
		max:     uint16(buf[6])<<8 | uint16(buf[7]),
		current: uint16(buf[8])<<8 | uint16(buf[9]),
	}, nil
}
