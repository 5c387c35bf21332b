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
	"strconv"
	"strings"
)

// Modifier bitmask values for the Hotkey modifiers byte, from the USB
// HID boot keyboard report format
const (
	ModLeftCtrl   byte = 0x01 // Left Control
	ModLeftShift  byte = 0x02 // Left Shift
	ModLeftAlt    byte = 0x04 // Left Alt
	ModLeftGUI    byte = 0x08 // Left GUI (Windows/Command)
	ModRightCtrl  byte = 0x10 // Right Control
	ModRightShift byte = 0x20 // Right Shift
	ModRightAlt   byte = 0x40 // Right Alt (AltGr)
	ModRightGUI   byte = 0x80 // Right GUI
)

// Keyboard usage codes from the HID keyboard/keypad page commonly bound
// to deck widgets
const (
	KeyA           byte = 0x04
	KeyEnter       byte = 0x28
	KeyEscape      byte = 0x29
	KeyBackspace   byte = 0x2A
	KeyTab         byte = 0x2B
	KeySpace       byte = 0x2C
	KeyCapsLock    byte = 0x39
	KeyF1          byte = 0x3A
	KeyPrintScreen byte = 0x46
	KeyInsert      byte = 0x49
	KeyHome        byte = 0x4A
	KeyPageUp      byte = 0x4B
	KeyDelete      byte = 0x4C
	KeyEnd         byte = 0x4D
	KeyPageDown    byte = 0x4E
	KeyRight       byte = 0x4F
	KeyLeft        byte = 0x50
	KeyDown        byte = 0x51
	KeyUp          byte = 0x52
)

// F13 through F24 sit beyond the physical function row on most
// keyboards, which keeps deck bindings from colliding with real
// keystrokes
const (
	KeyF13 byte = 0x68
	KeyF14 byte = 0x69
	KeyF15 byte = 0x6A
	KeyF16 byte = 0x6B
	KeyF17 byte = 0x6C
	KeyF18 byte = 0x6D
	KeyF19 byte = 0x6E
	KeyF20 byte = 0x6F
	KeyF21 byte = 0x70
	KeyF22 byte = 0x71
	KeyF23 byte = 0x72
	KeyF24 byte = 0x73
)

// Consumer-control usages for the MediaKey usage field, from the HID
// consumer page
const (
	UsageBrightnessUp   uint16 = 0x006F // Display Brightness Increment
	UsageBrightnessDown uint16 = 0x0070 // Display Brightness Decrement
	UsageScanNext       uint16 = 0x00B5 // Scan Next Track
	UsageScanPrevious   uint16 = 0x00B6 // Scan Previous Track
	UsageStop           uint16 = 0x00B7 // Stop
	UsageEject          uint16 = 0x00B8 // Eject
	UsagePlayPause      uint16 = 0x00CD // Play/Pause
	UsageMute           uint16 = 0x00E2 // Mute
	UsageVolumeUp       uint16 = 0x00E9 // Volume Increment
	UsageVolumeDown     uint16 = 0x00EA // Volume Decrement
)

// modifierNames maps the chord spellings users type to modifier bits.
var modifierNames = map[string]byte{
	"ctrl":   ModLeftCtrl,
	"lctrl":  ModLeftCtrl,
	"rctrl":  ModRightCtrl,
	"shift":  ModLeftShift,
	"lshift": ModLeftShift,
	"rshift": ModRightShift,
	"alt":    ModLeftAlt,
	"lalt":   ModLeftAlt,
	"ralt":   ModRightAlt,
	"altgr":  ModRightAlt,
	"gui":    ModLeftGUI,
	"win":    ModLeftGUI,
	"cmd":    ModLeftGUI,
	"super":  ModLeftGUI,
	"rgui":   ModRightGUI,
}

// namedKeys maps key spellings that are not letters, digits or function
// keys.
var namedKeys = map[string]byte{
	"enter":       KeyEnter,
	"return":      KeyEnter,
	"esc":         KeyEscape,
	"escape":      KeyEscape,
	"backspace":   KeyBackspace,
	"tab":         KeyTab,
	"space":       KeySpace,
	"capslock":    KeyCapsLock,
	"printscreen": KeyPrintScreen,
	"insert":      KeyInsert,
	"home":        KeyHome,
	"pageup":      KeyPageUp,
	"delete":      KeyDelete,
	"del":         KeyDelete,
	"end":         KeyEnd,
	"pagedown":    KeyPageDown,
	"right":       KeyRight,
	"left":        KeyLeft,
	"down":        KeyDown,
	"up":          KeyUp,
}

// usageNames maps media key spellings to consumer-control usages.
var usageNames = map[string]uint16{
	"brightnessup":   UsageBrightnessUp,
	"brightnessdown": UsageBrightnessDown,
	"next":           UsageScanNext,
	"prev":           UsageScanPrevious,
	"previous":       UsageScanPrevious,
	"stop":           UsageStop,
	"eject":          UsageEject,
	"playpause":      UsagePlayPause,
	"play":           UsagePlayPause,
	"mute":           UsageMute,
	"volumeup":       UsageVolumeUp,
	"volumedown":     UsageVolumeDown,
}

// ParseHotkey parses a chord such as "ctrl+shift+f13" or "alt+tab" into
// a Hotkey message. The final element names the key; everything before
// it is a modifier. A chord of only modifiers, such as "gui", sends the
// modifier byte with no keycode.
func ParseHotkey(s string) (Hotkey, error) {
	var hk Hotkey

	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Hotkey{}, fmt.Errorf("%w: empty element in chord %q", ErrInvalidParameter, s)
		}

		if bit, ok := modifierNames[part]; ok {
			hk.Modifiers |= bit
			continue
		}

		// Only the last element may be a key.
		if i != len(parts)-1 {
			return Hotkey{}, fmt.Errorf("%w: unknown modifier %q in chord %q", ErrInvalidParameter, part, s)
		}
		key, err := parseKeyName(part)
		if err != nil {
			return Hotkey{}, fmt.Errorf("%w: %q in chord %q", ErrInvalidParameter, part, s)
		}
		hk.Keycode = key
	}

	if hk.Modifiers == 0 && hk.Keycode == 0 {
		return Hotkey{}, fmt.Errorf("%w: empty chord", ErrInvalidParameter)
	}
	return hk, nil
}

// parseKeyName resolves one lowercased key spelling to its usage code.
func parseKeyName(s string) (byte, error) {
	if key, ok := namedKeys[s]; ok {
		return key, nil
	}

	if len(s) == 1 {
		c := s[0]
		switch {
		case c >= 'a' && c <= 'z':
			return KeyA + (c - 'a'), nil
		case c >= '1' && c <= '9':
			return 0x1E + (c - '1'), nil
		case c == '0':
			return 0x27, nil
		}
		return 0, fmt.Errorf("unknown key %q", s)
	}

	if strings.HasPrefix(s, "f") {
		n, err := strconv.Atoi(s[1:])
		if err == nil && n >= 1 && n <= 12 {
			return KeyF1 + byte(n-1), nil
		}
		if err == nil && n >= 13 && n <= 24 {
			return KeyF13 + byte(n-13), nil
		}
	}

	if strings.HasPrefix(s, "0x") {
		n, err := strconv.ParseUint(s[2:], 16, 8)
		if err == nil {
			return byte(n), nil
		}
	}

	return 0, fmt.Errorf("unknown key %q", s)
}

// Chord returns the hotkey in the "ctrl+shift+f13" spelling accepted by
// ParseHotkey.
func (m Hotkey) Chord() string {
	var parts []string
	bits := []struct {
		name string
		bit  byte
	}{
		{"ctrl", ModLeftCtrl},
		{"shift", ModLeftShift},
		{"alt", ModLeftAlt},
		{"gui", ModLeftGUI},
		{"rctrl", ModRightCtrl},
		{"rshift", ModRightShift},
		{"ralt", ModRightAlt},
		{"rgui", ModRightGUI},
	}
	for _, b := range bits {
		if m.Modifiers&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if m.Keycode != 0 {
		parts = append(parts, keyName(m.Keycode))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// keyName resolves a keycode to its chord spelling.
func keyName(key byte) string {
	switch {
	case key >= KeyA && key <= KeyA+25:
		return string(rune('a' + key - KeyA))
	case key >= 0x1E && key <= 0x26:
		return string(rune('1' + key - 0x1E))
	case key == 0x27:
		return "0"
	case key >= KeyF1 && key <= KeyF1+11:
		return "f" + strconv.Itoa(int(key-KeyF1)+1)
	case key >= KeyF13 && key <= KeyF24:
		return "f" + strconv.Itoa(int(key-KeyF13)+13)
	}
	for name, code := range namedKeys {
		if code == key && name != "del" && name != "return" && name != "esc" {
			return name
		}
	}
	return fmt.Sprintf("0x%02X", key)
}

// ParseMediaUsage parses a media key name such as "playpause" or
// "volumeup". Unrecognized names fall through to 0x-prefixed hex.
func ParseMediaUsage(s string) (uint16, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if usage, ok := usageNames[name]; ok {
		return usage, nil
	}
	if strings.HasPrefix(name, "0x") {
		n, err := strconv.ParseUint(name[2:], 16, 16)
		if err == nil {
			return uint16(n), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown media key %q", ErrInvalidParameter, s)
}

// MediaUsageName returns the spelling for a consumer-control usage, or
// its hex form when no name is defined.
func MediaUsageName(usage uint16) string {
	switch usage {
	case UsageBrightnessUp:
		return "brightnessup"
	case UsageBrightnessDown:
		return "brightnessdown"
	case UsageScanNext:
		return "next"
	case UsageScanPrevious:
		return "previous"
	case UsageStop:
		return "stop"
	case UsageEject:
		return "eject"
	case UsagePlayPause:
		return "playpause"
	case UsageMute:
		return "mute"
	case UsageVolumeUp:
		return "volumeup"
	case UsageVolumeDown:
		return "volumedown"
	default:
		return fmt.Sprintf("0x%04X", usage)
	}
}
