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
	"log"
	"os"
)

// debugEnabled gates verbose protocol tracing. Set CROWLINK_DEBUG to any
// non-empty value to enable it.
var debugEnabled = os.Getenv("CROWLINK_DEBUG") != ""

// SetDebugEnabled toggles verbose protocol tracing at runtime, for
// tools that expose a debug flag.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

func debugf(format string, args ...any) {
	if debugEnabled {
		log.Printf("crowlink: "+format, args...)
	}
}

// Debugf writes a protocol trace line when debugging is enabled. The
// transport subpackages share the hub's trace gate through it.
func Debugf(format string, args ...any) {
	debugf(format, args...)
}

func debugln(args ...any) {
	if debugEnabled {
		log.Println(append([]any{"crowlink:"}, args...)...)
	}
}
