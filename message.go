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
	"encoding/binary"
	"fmt"
)

// MessageType is the TYPE byte of a wire frame.
type MessageType byte

// Message type codes
const (
	// TypeHotkey carries a modifier+keycode chord, panel to companion.
	TypeHotkey MessageType = 0x01
	// TypeHotkeyAck reports the outcome of a received hotkey.
	TypeHotkeyAck MessageType = 0x02
	// TypeMediaKey carries a HID consumer-control usage.
	TypeMediaKey MessageType = 0x03
	// TypePing is an empty liveness probe, answered with TypeHotkeyAck.
	TypePing MessageType = 0x04
	// TypeStats carries host telemetry, companion to panel.
	TypeStats MessageType = 0x05
	// TypePowerState requests a host power transition.
	TypePowerState MessageType = 0x06
	// TypeTimeSync distributes wall-clock time to the panel.
	TypeTimeSync MessageType = 0x07
	// TypeDDC carries a monitor VCP adjustment for the companion to
	// execute over DDC/CI.
	TypeDDC MessageType = 0x08
	// TypeButton reports a raw widget press for host-side binding.
	TypeButton MessageType = 0x09
)

// String returns the symbolic name of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeHotkey:
		return "hotkey"
	case TypeHotkeyAck:
		return "hotkey_ack"
	case TypeMediaKey:
		return "media_key"
	case TypePing:
		return "ping"
	case TypeStats:
		return "stats"
	case TypePowerState:
		return "power_state"
	case TypeTimeSync:
		return "time_sync"
	case TypeDDC:
		return "ddc"
	case TypeButton:
		return "button"
	default:
		return fmt.Sprintf("type(0x%02X)", byte(t))
	}
}

// Acked returns true if the protocol expects an acknowledgment for
// this message type.
func (t MessageType) Acked() bool {
	switch t {
	case TypeHotkey, TypeMediaKey, TypePing, TypePowerState, TypeDDC, TypeButton:
		return true
	case TypeHotkeyAck, TypeStats, TypeTimeSync:
		return false
	default:
		return false
	}
}

// AckType returns the message type that acknowledges t. Only valid for
// types where Acked() is true, plus TypePing.
func (t MessageType) AckType() MessageType {
	return TypeHotkeyAck
}

// Message is one decoded protocol message. The set of implementations
// is closed; DecodeMessage covers every wire type.
type Message interface {
	// Type returns the wire type byte for this message.
	Type() MessageType

	// appendPayload appends the encoded payload to dst. It also seals
	// the interface to this package.
	appendPayload(dst []byte) ([]byte, error)
}

// AckStatus is the status byte of a HotkeyAck.
type AckStatus byte

// HotkeyAck status codes
const (
	AckOK        AckStatus = 0x00 // delivered and injected
	AckMalformed AckStatus = 0x01 // payload did not decode
	AckFailed    AckStatus = 0x02 // injection into the host failed
	AckBusy      AckStatus = 0x03 // companion queue full, try later
)

// String returns the symbolic name of the status.
func (s AckStatus) String() string {
	switch s {
	case AckOK:
		return "ok"
	case AckMalformed:
		return "malformed"
	case AckFailed:
		return "failed"
	case AckBusy:
		return "busy"
	default:
		return fmt.Sprintf("status(0x%02X)", byte(s))
	}
}

// PowerMode is the requested host power transition.
type PowerMode byte

// Power transition codes
const (
	PowerWake     PowerMode = 0x00
	PowerSleep    PowerMode = 0x01
	PowerShutdown PowerMode = 0x02
	PowerRestart  PowerMode = 0x03
)

// String returns the symbolic name of the power mode.
func (m PowerMode) String() string {
	switch m {
	case PowerWake:
		return "wake"
	case PowerSleep:
		return "sleep"
	case PowerShutdown:
		return "shutdown"
	case PowerRestart:
		return "restart"
	default:
		return fmt.Sprintf("power(0x%02X)", byte(m))
	}
}

// DDCAdjust selects how a DDC value is applied.
type DDCAdjust byte

// DDC adjustment modes
const (
	DDCSet  DDCAdjust = 0x00 // write Value as-is
	DDCUp   DDCAdjust = 0x01 // step the current value up by Value
	DDCDown DDCAdjust = 0x02 // step the current value down by Value
)

// String returns the symbolic name of the adjustment mode.
func (a DDCAdjust) String() string {
	switch a {
	case DDCSet:
		return "set"
	case DDCUp:
		return "up"
	case DDCDown:
		return "down"
	default:
		return fmt.Sprintf("adjust(0x%02X)", byte(a))
	}
}

// Hotkey is a modifier+keycode chord for the companion to inject as a
// USB HID report.
type Hotkey struct {
	// Modifiers is the HID modifier bitmask (LCtrl 0x01 .. RGUI 0x80).
	Modifiers byte
	// Keycode is the HID usage ID from the keyboard page.
	Keycode byte
}

// Type returns TypeHotkey.
func (Hotkey) Type() MessageType { return TypeHotkey }

func (m Hotkey) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, m.Modifiers, m.Keycode), nil
}

// HotkeyAck reports the outcome of a delivered message.
type HotkeyAck struct {
	Status AckStatus
}

// Type returns TypeHotkeyAck.
func (HotkeyAck) Type() MessageType { return TypeHotkeyAck }

func (m HotkeyAck) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, byte(m.Status)), nil
}

// MediaKey is a HID consumer-control usage such as play/pause or
// volume up.
type MediaKey struct {
	// Usage is the usage ID from the HID consumer page, e.g. 0x00CD
	// for play/pause.
	Usage uint16
}

// Type returns TypeMediaKey.
func (MediaKey) Type() MessageType { return TypeMediaKey }

func (m MediaKey) appendPayload(dst []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint16(dst, m.Usage), nil
}

// Ping is an empty liveness probe.
type Ping struct{}

// Type returns TypePing.
func (Ping) Type() MessageType { return TypePing }

func (Ping) appendPayload(dst []byte) ([]byte, error) {
	return dst, nil
}

// PowerState requests a host power transition via the companion.
type PowerState struct {
	Mode PowerMode
}

// Type returns TypePowerState.
func (PowerState) Type() MessageType { return TypePowerState }

func (m PowerState) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, byte(m.Mode)), nil
}

// TimeSync distributes wall-clock time so the panel can show a clock
// without its own RTC battery.
type TimeSync struct {
	// Unix is seconds since the epoch, local time already applied by
	// the sender.
	Unix uint32
}

// Type returns TypeTimeSync.
func (TimeSync) Type() MessageType { return TypeTimeSync }

func (m TimeSync) appendPayload(dst []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(dst, m.Unix), nil
}

// DDCCommand is a monitor control adjustment for the companion to
// execute on its attached display.
type DDCCommand struct {
	// VCP is the VCP feature code, e.g. 0x10 for luminance.
	VCP byte
	// Value is the target value for DDCSet or the step size for
	// DDCUp/DDCDown.
	Value uint16
	// Adjust selects absolute or relative application.
	Adjust DDCAdjust
	// Display selects the output on multi-head companions, zero-based.
	Display byte
}

// Type returns TypeDDC.
func (DDCCommand) Type() MessageType { return TypeDDC }

func (m DDCCommand) appendPayload(dst []byte) ([]byte, error) {
	dst = append(dst, m.VCP)
	dst = binary.LittleEndian.AppendUint16(dst, m.Value)
	return append(dst, byte(m.Adjust), m.Display), nil
}

// Button reports a raw widget press for hosts that bind actions on
// their side instead of baking hotkeys into the panel layout.
type Button struct {
	// Page is the panel page the widget lives on.
	Page byte
	// Widget is the widget index within the page.
	Widget byte
}

// Type returns TypeButton.
func (Button) Type() MessageType { return TypeButton }

func (m Button) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, m.Page, m.Widget), nil
}

// EncodeMessage encodes a message into its wire type and payload. The
// returned payload is freshly allocated.
func EncodeMessage(m Message) (MessageType, []byte, error) {
	payload, err := m.appendPayload(nil)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return m.Type(), payload, nil
}

// AppendMessage appends the encoded payload of m to dst and returns the
// wire type alongside the extended buffer.
func AppendMessage(dst []byte, m Message) (MessageType, []byte, error) {
	payload, err := m.appendPayload(dst)
	if err != nil {
		return 0, dst, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return m.Type(), payload, nil
}

// DecodeMessage decodes a payload for the given wire type. Unknown
// types return ErrUnknownType so callers can drop them quietly; a
// newer peer may speak types this build has never heard of.
func DecodeMessage(typ MessageType, payload []byte) (Message, error) {
	switch typ {
	case TypeHotkey:
		if len(payload) != 2 {
			return nil, payloadSizeError(typ, 2, len(payload))
		}
		return Hotkey{Modifiers: payload[0], Keycode: payload[1]}, nil

	case TypeHotkeyAck:
		if len(payload) != 1 {
			return nil, payloadSizeError(typ, 1, len(payload))
		}
		return HotkeyAck{Status: AckStatus(payload[0])}, nil

	case TypeMediaKey:
		if len(payload) != 2 {
			return nil, payloadSizeError(typ, 2, len(payload))
		}
		return MediaKey{Usage: binary.LittleEndian.Uint16(payload)}, nil

	case TypePing:
		if len(payload) != 0 {
			return nil, payloadSizeError(typ, 0, len(payload))
		}
		return Ping{}, nil

	case TypeStats:
		return decodeStats(payload)

	case TypePowerState:
		if len(payload) != 1 {
			return nil, payloadSizeError(typ, 1, len(payload))
		}
		return PowerState{Mode: PowerMode(payload[0])}, nil

	case TypeTimeSync:
		if len(payload) != 4 {
			return nil, payloadSizeError(typ, 4, len(payload))
		}
		return TimeSync{Unix: binary.LittleEndian.Uint32(payload)}, nil

	case TypeDDC:
		if len(payload) != 5 {
			return nil, payloadSizeError(typ, 5, len(payload))
		}
		return DDCCommand{
			VCP:     payload[0],
			Value:   binary.LittleEndian.Uint16(payload[1:3]),
			Adjust:  DDCAdjust(payload[3]),
			Display: payload[4],
		}, nil

	case TypeButton:
		if len(payload) != 2 {
			return nil, payloadSizeError(typ, 2, len(payload))
		}
		return Button{Page: payload[0], Widget: payload[1]}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, byte(typ))
	}
}

func payloadSizeError(typ MessageType, want, got int) error {
	return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrPayloadSize, typ, want, got)
}
