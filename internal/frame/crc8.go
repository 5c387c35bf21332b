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

// CRC-8/MAXIM parameters: polynomial 0x31 reflected, zero init, zero
// xorout. Check value over "123456789" is 0xA1.
const crc8Poly = 0x8C

// crc8Update folds one byte into a running CRC.
func crc8Update(crc, b byte) byte {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x01 != 0 {
			crc = (crc >> 1) ^ crc8Poly
		} else {
			crc >>= 1
		}
	}
	return crc
}

// CRC8 returns the CRC-8/MAXIM checksum of data.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crc8Update(crc, b)
	}
	return crc
}

// Checksum computes the frame trailer: the CRC8 over LENGTH, TYPE and
// the payload bytes, in wire order.
func Checksum(length, typ byte, payload []byte) byte {
	crc := crc8Update(0, length)
	crc = crc8Update(crc, typ)
	for _, b := range payload {
		crc = crc8Update(crc, b)
	}
	return crc
}
