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

package main

import (
	"context"
	"time"
)

// telemetryLoop pushes a STATS report from the engine on every
// interval while a panel link is up, folding real link measurements
// into the otherwise synthetic figures.
func (c *Companion) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.link.Up() {
				continue
			}

			state := c.transport.LinkState()
			c.engine.SetLinkRSSI(int8(state.RSSI))

			stats := c.engine.NextStats()
			stats.TxDropped = c.transport.RxDropped()
			if err := c.link.SendStats(stats); err != nil {
				log.Debugf("telemetry: %v", err)
			}
		}
	}
}
