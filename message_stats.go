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

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/encoding/unicode"
)

// maxMediaTitleBytes caps the raw UTF-16LE title so a fully populated
// Stats payload never exceeds the wire payload limit.
const maxMediaTitleBytes = 32

// Stats is host telemetry pushed from the companion to the panel. It
// travels as a CBOR map with integer keys so absent fields cost zero
// bytes and new fields can be added without breaking old panels.
type Stats struct {
	// MediaTitleRaw is the now-playing title as UTF-16LE bytes,
	// truncated by the sender. Use MediaTitle and SetMediaTitle
	// instead of touching it directly.
	MediaTitleRaw []byte `cbor:"7,keyasint,omitempty"`
	// UptimeSec is host uptime in seconds.
	UptimeSec uint32 `cbor:"1,keyasint,omitempty"`
	// TxDropped counts messages the companion dropped due to a full
	// transmit queue since boot.
	TxDropped uint32 `cbor:"9,keyasint,omitempty"`
	// CPULoadPct is host CPU load, 0-100.
	CPULoadPct uint8 `cbor:"2,keyasint,omitempty"`
	// MemUsedPct is host memory usage, 0-100.
	MemUsedPct uint8 `cbor:"3,keyasint,omitempty"`
	// VolumePct is the host output volume, 0-100.
	VolumePct uint8 `cbor:"4,keyasint,omitempty"`
	// LinkRSSI is the companion's view of link signal strength in dBm.
	LinkRSSI int8 `cbor:"8,keyasint,omitempty"`
	// Muted is true while host output is muted.
	Muted bool `cbor:"5,keyasint,omitempty"`
	// MediaPlaying is true while a media session is active.
	MediaPlaying bool `cbor:"6,keyasint,omitempty"`
}

// Type returns TypeStats.
func (*Stats) Type() MessageType { return TypeStats }

func (s *Stats) appendPayload(dst []byte) ([]byte, error) {
	if len(s.MediaTitleRaw) > maxMediaTitleBytes {
		return dst, fmt.Errorf("%w: media title %d bytes exceeds %d",
			ErrDataTooLarge, len(s.MediaTitleRaw), maxMediaTitleBytes)
	}
	data, err := cbor.Marshal(s)
	if err != nil {
		return dst, fmt.Errorf("marshal stats: %w", err)
	}
	return append(dst, data...), nil
}

func decodeStats(payload []byte) (Message, error) {
	var s Stats
	if err := cbor.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &s, nil
}

// MediaTitle decodes the raw UTF-16LE title into a Go string.
func (s *Stats) MediaTitle() (string, error) {
	if len(s.MediaTitleRaw) == 0 {
		return "", nil
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(s.MediaTitleRaw)
	if err != nil {
		return "", fmt.Errorf("decode media title: %w", err)
	}
	return string(out), nil
}

// SetMediaTitle encodes the title as UTF-16LE and truncates it to the
// wire cap without splitting a surrogate pair.
func (s *Stats) SetMediaTitle(title string) error {
	if title == "" {
		s.MediaTitleRaw = nil
		return nil
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	raw, err := enc.Bytes([]byte(title))
	if err != nil {
		return fmt.Errorf("encode media title: %w", err)
	}
	if len(raw) > maxMediaTitleBytes {
		raw = raw[:maxMediaTitleBytes]
		last := binary.LittleEndian.Uint16(raw[len(raw)-2:])
		if last >= 0xD800 && last <= 0xDBFF {
			raw = raw[:len(raw)-2]
		}
	}
	s.MediaTitleRaw = raw
	return nil
}
