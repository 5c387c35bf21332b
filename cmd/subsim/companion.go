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
	"fmt"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/ddc"
	companionsim "github.com/NoobyNull/CrowDisplay-sub000/internal/testing"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio"
)

// Config tunes the simulated companion.
type Config struct {
	// DDCBus names the I2C bus used to execute DDC commands. Empty
	// keeps them on the engine's virtual control table.
	DDCBus string
	// Display is the display number this companion answers for.
	Display byte
	// StatsInterval paces telemetry. Zero disables it.
	StatsInterval time.Duration
}

// Companion runs the VirtualCompanion engine over a real radio link:
// the same message handling the tests exercise, answering an actual
// panel, with DDC commands optionally routed to a real display.
type Companion struct {
	engine    *companionsim.VirtualCompanion
	link      *crowlink.Link
	transport *radio.Transport
	display   *ddc.Monitor
	config    Config
}

// NewCompanion attaches the engine to a fresh link over the given
// radio transport.
func NewCompanion(transport *radio.Transport, config Config) (*Companion, error) {
	link, err := crowlink.NewLink(transport)
	if err != nil {
		return nil, err
	}

	c := &Companion{
		engine:    companionsim.NewVirtualCompanion(),
		link:      link,
		transport: transport,
		config:    config,
	}

	if config.DDCBus != "" {
		monitor, err := ddc.Open(config.DDCBus)
		if err != nil {
			return nil, fmt.Errorf("open DDC bus %s: %w", config.DDCBus, err)
		}
		c.display = monitor
		c.engine.SetDDCApplier(c.applyDDC)
	}

	c.engine.Attach(link)
	link.OnMessage(func(msg crowlink.Message, in *crowlink.Inbound) {
		// Heartbeats would drown the activity log.
		if _, ok := msg.(crowlink.Ping); ok {
			log.Debugf("ping from %s (rssi %d)", in.From, in.RSSI)
			return
		}
		log.Infof("%s from %s (rssi %d)", describe(msg), in.From, in.RSSI)
	})
	link.OnLinkUp(func() { log.Info("panel link up") })
	link.OnLinkDown(func() { log.Warning("panel link down") })

	return c, nil
}

// Run polls the link until the context ends and keeps telemetry
// flowing while a panel is listening.
func (c *Companion) Run(ctx context.Context) error {
	if c.config.StatsInterval > 0 {
		go c.telemetryLoop(ctx)
	}
	return c.link.Run(ctx)
}

// Close releases the link and the DDC bus.
func (c *Companion) Close() error {
	if c.display != nil {
		_ = c.display.Close()
	}
	return c.link.Close()
}

// applyDDC executes one DDC command on the attached display. Commands
// for other display numbers are accepted without touching the bus.
func (c *Companion) applyDDC(cmd crowlink.DDCCommand) error {
	if cmd.Display != c.config.Display {
		log.Debugf("DDC for display %d ignored, serving display %d", cmd.Display, c.config.Display)
		return nil
	}
	if err := c.display.Apply(cmd); err != nil {
		return err
	}
	log.Infof("DDC vcp 0x%02X %s %d applied", cmd.VCP, cmd.Adjust, cmd.Value)
	return nil
}

// describe renders one inbound message for the activity log.
func describe(msg crowlink.Message) string {
	switch m := msg.(type) {
	case crowlink.Hotkey:
		return "hotkey " + m.Chord()
	case crowlink.MediaKey:
		return "media key " + crowlink.MediaUsageName(m.Usage)
	case crowlink.Button:
		return fmt.Sprintf("button page %d widget %d", m.Page, m.Widget)
	case crowlink.PowerState:
		return "power state " + m.Mode.String()
	case crowlink.TimeSync:
		return "time sync " + time.Unix(int64(m.Unix), 0).Format(time.RFC3339)
	case crowlink.DDCCommand:
		return fmt.Sprintf("DDC vcp 0x%02X %s %d", m.VCP, m.Adjust, m.Value)
	case crowlink.Ping:
		return "ping"
	default:
		return msg.Type().String()
	}
}
