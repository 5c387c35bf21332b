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

// Package testing carries shared companion-side fixtures: a scripted
// virtual companion and the canned state it boots with.
package testing

import (
	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/ddc"
)

// Hardware addresses for two-node test rigs
var (
	// TestPanelAddr is the panel half of a simulated deck.
	TestPanelAddr = crowlink.PeerAddr{0x24, 0x6F, 0x28, 0x10, 0x20, 0x30}

	// TestCompanionAddr is the dongle half of a simulated deck.
	TestCompanionAddr = crowlink.PeerAddr{0x24, 0x6F, 0x28, 0x40, 0x50, 0x60}
)

// DefaultVCPTable returns the display controls a stock companion's
// monitor exposes, at their power-on values.
func DefaultVCPTable() map[byte]*VCPFeature {
	return map[byte]*VCPFeature{
		ddc.VCPLuminance:   {Current: 50, Max: 100},
		ddc.VCPContrast:    {Current: 75, Max: 100},
		ddc.VCPAudioVolume: {Current: 30, Max: 100},
		ddc.VCPInputSelect: {Current: 0x11, Max: 0x12},
	}
}

// BootStats is the first telemetry report a companion sends after
// powering up, before any host metrics have settled.
func BootStats() *crowlink.Stats {
	return &crowlink.Stats{
		UptimeSec:  1,
		CPULoadPct: 8,
		MemUsedPct: 35,
		VolumePct:  30,
		LinkRSSI:   -48,
	}
}
