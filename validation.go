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
	"fmt"
)

// HID keycodes 0x01 through 0x03 are keyboard error indicators, not
// keys a widget can press.
const maxReservedKeycode = 0x03

// ValidateMessage checks semantic field constraints before a message is
// committed to the wire. The wire codec only enforces sizes; this
// catches values a companion would have to reject, such as an empty
// hotkey chord or an out-of-range adjustment direction.
func ValidateMessage(msg Message) error {
	switch m := msg.(type) {
	case Hotkey:
		return validateHotkey(m)
	case MediaKey:
		if m.Usage == 0 {
			return fmt.Errorf("%w: media key usage cannot be zero", ErrInvalidParameter)
		}
	case PowerState:
		if m.Mode > PowerRestart {
			return fmt.Errorf("%w: power mode %d out of range", ErrInvalidParameter, m.Mode)
		}
	case DDCCommand:
		return validateDDC(m)
	case HotkeyAck:
		if m.Status > AckBusy {
			return fmt.Errorf("%w: ack status %d out of range", ErrInvalidParameter, m.Status)
		}
	case *Stats:
		if len(m.MediaTitleRaw) > maxMediaTitleBytes {
			return fmt.Errorf("%w: media title %d bytes exceeds %d",
				ErrDataTooLarge, len(m.MediaTitleRaw), maxMediaTitleBytes)
		}
	}
	return nil
}

func validateHotkey(m Hotkey) error {
	if m.Keycode == 0 && m.Modifiers == 0 {
		return fmt.Errorf("%w: hotkey chord is empty", ErrInvalidParameter)
	}
	if m.Keycode >= 0x01 && m.Keycode <= maxReservedKeycode {
		return fmt.Errorf("%w: keycode 0x%02X is a reserved HID error code", ErrInvalidParameter, m.Keycode)
	}
	return nil
}

func validateDDC(m DDCCommand) error {
	if m.VCP == 0 {
		return fmt.Errorf("%w: VCP code cannot be zero", ErrInvalidParameter)
	}
	if m.Adjust > DDCDown {
		return fmt.Errorf("%w: adjustment direction %d out of range", ErrInvalidParameter, m.Adjust)
	}
	return nil
}

// WithValidation makes the link validate outbound messages with
// ValidateMessage before sending them.
func WithValidation() Option {
	return func(l *Link) error {
		l.config.ValidateOutbound = true
		return nil
	}
}
