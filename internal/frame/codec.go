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

package frame

import "errors"

// Codec errors. The stream parser and transports count and log these;
// they are never surfaced past the transport boundary.
var (
	ErrPayloadTooLarge = errors.New("frame: payload exceeds maximum length")
	ErrShortFrame      = errors.New("frame: buffer shorter than minimum frame")
	ErrBadStart        = errors.New("frame: missing start byte")
	ErrLengthRange     = errors.New("frame: length field out of range")
	ErrTruncated       = errors.New("frame: buffer does not match length field")
	ErrCRC             = errors.New("frame: checksum mismatch")
)

// Frame is one validated wire unit. Payload is never longer than
// MaxPayloadLen and is owned by the frame.
type Frame struct {
	Payload []byte
	Type    byte
}

// Encode serializes (typ, payload) into a complete wire frame:
// START LENGTH TYPE PAYLOAD CRC8, with the CRC covering
// LENGTH through the end of the payload.
func Encode(typ byte, payload []byte) ([]byte, error) {
	return AppendEncode(make([]byte, 0, Overhead+len(payload)), typ, payload)
}

// AppendEncode appends the encoded frame to dst and returns the
// extended slice. Nothing is appended when the payload is oversized.
func AppendEncode(dst []byte, typ byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return dst, ErrPayloadTooLarge
	}
	length := byte(len(payload))
	dst = append(dst, StartByte, length, typ)
	dst = append(dst, payload...)
	dst = append(dst, Checksum(length, typ, payload))
	return dst, nil
}

// Decode validates a complete frame held in buf and returns its type
// and a copy of its payload. It is the single-shot path for inputs
// with known boundaries; byte streams go through the Parser instead.
func Decode(buf []byte) (typ byte, payload []byte, err error) {
	if len(buf) < Overhead {
		return 0, nil, ErrShortFrame
	}
	if buf[0] != StartByte {
		return 0, nil, ErrBadStart
	}
	length := int(buf[1])
	if length > MaxPayloadLen {
		return 0, nil, ErrLengthRange
	}
	if len(buf) != headerLen+length+1 {
		return 0, nil, ErrTruncated
	}
	typ = buf[2]
	body := buf[headerLen : headerLen+length]
	if Checksum(buf[1], typ, body) != buf[len(buf)-1] {
		return 0, nil, ErrCRC
	}
	payload = make([]byte, length)
	copy(payload, body)
	return typ, payload, nil
}
