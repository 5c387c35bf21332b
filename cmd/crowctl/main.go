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

// crowctl is the CrowDisplay link diagnostic tool: it monitors live
// traffic, sends typed commands, measures round trips and decodes
// captured radio traffic offline.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
