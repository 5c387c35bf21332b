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

// Package frame implements the checksummed wire format shared by both
// link endpoints: encoding, single-shot decoding, and an incremental
// stream parser for byte-oriented transports.
package frame

// Frame markers and control bytes
const (
	// StartByte begins every frame on byte-stream transports.
	StartByte = 0xAA
)

// Frame size limits
const (
	// MaxPayloadLen bounds the payload of a single frame. It must fit,
	// together with the type byte, inside one radio packet.
	MaxPayloadLen = 64

	// headerLen counts START, LENGTH and TYPE.
	headerLen = 3

	// Overhead is the framing cost on top of the payload
	// (START + LENGTH + TYPE + CRC8).
	Overhead = 4

	// MaxFrameLen is the largest possible encoded frame.
	MaxFrameLen = MaxPayloadLen + Overhead
)

// DefaultYieldBudget is the maximum number of buffered bytes a single
// Parser.Poll call consumes before yielding back to the caller.
const DefaultYieldBudget = 256
