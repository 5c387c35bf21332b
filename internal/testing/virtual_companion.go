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

package testing

import (
	"sync"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

// VCPFeature is one virtual display control with its current setting
// and reported range.
type VCPFeature struct {
	Current uint16
	Max     uint16
}

// VirtualCompanion simulates the dongle half of the deck: it consumes
// the panel's messages, keeps the state a real companion would keep,
// and produces the telemetry a real companion would send. Attach wires
// it to a Link; the companion simulator binary and the tests drive the
// same engine.
type VirtualCompanion struct {
	start time.Time
	clock time.Time

	acks     map[crowlink.MessageType]crowlink.AckStatus
	vcp      map[byte]*VCPFeature
	ddcApply func(crowlink.DDCCommand) error

	hotkeys   []crowlink.Hotkey
	mediaKeys []uint16
	buttons   []crowlink.Button

	mediaTitle string

	statsSeq   uint32
	clockSyncs int

	power crowlink.PowerMode

	volumePct uint8
	rssi      int8

	muted        bool
	mediaPlaying bool

	mu sync.Mutex
}

// NewVirtualCompanion creates a companion with the default display
// control table and the volume at a comfortable level.
func NewVirtualCompanion() *VirtualCompanion {
	return &VirtualCompanion{
		start:     time.Now(),
		acks:      make(map[crowlink.MessageType]crowlink.AckStatus),
		vcp:       DefaultVCPTable(),
		power:     crowlink.PowerWake,
		volumePct: 30,
		rssi:      -48,
	}
}

// Attach registers the companion's handlers on the link. The link's
// polling goroutine becomes the only writer of companion state.
func (c *VirtualCompanion) Attach(link *crowlink.Link) {
	link.Handle(crowlink.TypeHotkey, c.handleHotkey)
	link.Handle(crowlink.TypeMediaKey, c.handleMediaKey)
	link.Handle(crowlink.TypeButton, c.handleButton)
	link.Handle(crowlink.TypePowerState, c.handlePowerState)
	link.Handle(crowlink.TypeDDC, c.handleDDC)
	link.Handle(crowlink.TypeTimeSync, c.handleTimeSync)
	link.Handle(crowlink.TypePing, c.handlePing)
}

// SetAckStatus scripts the acknowledgment status for one message type.
// Unscripted types acknowledge with AckOK.
func (c *VirtualCompanion) SetAckStatus(typ crowlink.MessageType, status crowlink.AckStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks[typ] = status
}

// SetDDCApplier routes DDC commands to an external sink, such as a real
// display, instead of the virtual control table. A sink error turns
// into an AckFailed acknowledgment.
func (c *VirtualCompanion) SetDDCApplier(fn func(crowlink.DDCCommand) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ddcApply = fn
}

// SetMediaTitle scripts the now-playing title reported in telemetry.
func (c *VirtualCompanion) SetMediaTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mediaTitle = title
}

// SetLinkRSSI scripts the signal strength reported in telemetry.
func (c *VirtualCompanion) SetLinkRSSI(rssi int8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rssi = rssi
}

func (c *VirtualCompanion) status(typ crowlink.MessageType) crowlink.AckStatus {
	if s, ok := c.acks[typ]; ok {
		return s
	}
	return crowlink.AckOK
}

func (c *VirtualCompanion) handleHotkey(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	hk, ok := msg.(crowlink.Hotkey)
	if !ok {
		return crowlink.AckFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.hotkeys = append(c.hotkeys, hk)
	return c.status(crowlink.TypeHotkey)
}

func (c *VirtualCompanion) handleMediaKey(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	mk, ok := msg.(crowlink.MediaKey)
	if !ok {
		return crowlink.AckFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mediaKeys = append(c.mediaKeys, mk.Usage)

	// Media keys move the state a real host would move, so telemetry
	// sent afterwards reflects the keypress.
	switch mk.Usage {
	case crowlink.UsageVolumeUp:
		if c.volumePct <= 95 {
			c.volumePct += 5
		} else {
			c.volumePct = 100
		}
	case crowlink.UsageVolumeDown:
		if c.volumePct >= 5 {
			c.volumePct -= 5
		} else {
			c.volumePct = 0
		}
	case crowlink.UsageMute:
		c.muted = !c.muted
	case crowlink.UsagePlayPause:
		c.mediaPlaying = !c.mediaPlaying
	}
	return c.status(crowlink.TypeMediaKey)
}

func (c *VirtualCompanion) handleButton(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	b, ok := msg.(crowlink.Button)
	if !ok {
		return crowlink.AckFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buttons = append(c.buttons, b)
	return c.status(crowlink.TypeButton)
}

func (c *VirtualCompanion) handlePowerState(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	ps, ok := msg.(crowlink.PowerState)
	if !ok {
		return crowlink.AckFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.power = ps.Mode
	return c.status(crowlink.TypePowerState)
}

func (c *VirtualCompanion) handleDDC(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	cmd, ok := msg.(crowlink.DDCCommand)
	if !ok {
		return crowlink.AckFailed
	}

	c.mu.Lock()
	apply := c.ddcApply
	c.mu.Unlock()

	if apply != nil {
		if err := apply(cmd); err != nil {
			return crowlink.AckFailed
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.status(crowlink.TypeDDC)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	feature, ok := c.vcp[cmd.VCP]
	if !ok {
		return crowlink.AckFailed
	}

	switch cmd.Adjust {
	case crowlink.DDCSet:
		if cmd.Value > feature.Max {
			feature.Current = feature.Max
		} else {
			feature.Current = cmd.Value
		}
	case crowlink.DDCUp:
		target := feature.Current + cmd.Value
		if target > feature.Max || target < feature.Current {
			target = feature.Max
		}
		feature.Current = target
	case crowlink.DDCDown:
		if cmd.Value > feature.Current {
			feature.Current = 0
		} else {
			feature.Current -= cmd.Value
		}
	default:
		return crowlink.AckFailed
	}
	return c.status(crowlink.TypeDDC)
}

func (c *VirtualCompanion) handleTimeSync(msg crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	ts, ok := msg.(crowlink.TimeSync)
	if !ok {
		return crowlink.AckFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = time.Unix(int64(ts.Unix), 0)
	c.clockSyncs++
	return crowlink.AckOK
}

func (c *VirtualCompanion) handlePing(_ crowlink.Message, _ *crowlink.Inbound) crowlink.AckStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status(crowlink.TypePing)
}

// NextStats produces the next telemetry report. Load figures wander so
// consecutive reports look like a live host; volume, mute and media
// state reflect the keys received so far.
func (c *VirtualCompanion) NextStats() *crowlink.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statsSeq++
	s := &crowlink.Stats{
		UptimeSec:    uint32(time.Since(c.start) / time.Second),
		CPULoadPct:   uint8(12 + (c.statsSeq*7)%23),
		MemUsedPct:   uint8(40 + (c.statsSeq*3)%11),
		VolumePct:    c.volumePct,
		LinkRSSI:     c.rssi,
		Muted:        c.muted,
		MediaPlaying: c.mediaPlaying,
	}
	if c.mediaPlaying && c.mediaTitle != "" {
		_ = s.SetMediaTitle(c.mediaTitle)
	}
	return s
}

// Hotkeys returns the chords received so far.
func (c *VirtualCompanion) Hotkeys() []crowlink.Hotkey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]crowlink.Hotkey, len(c.hotkeys))
	copy(out, c.hotkeys)
	return out
}

// MediaKeys returns the consumer-control usages received so far.
func (c *VirtualCompanion) MediaKeys() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, len(c.mediaKeys))
	copy(out, c.mediaKeys)
	return out
}

// Buttons returns the raw widget presses received so far.
func (c *VirtualCompanion) Buttons() []crowlink.Button {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]crowlink.Button, len(c.buttons))
	copy(out, c.buttons)
	return out
}

// Power returns the last requested power state.
func (c *VirtualCompanion) Power() crowlink.PowerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power
}

// Clock returns the last synced wall-clock time and whether a sync has
// arrived at all.
func (c *VirtualCompanion) Clock() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock, c.clockSyncs > 0
}

// VCP returns a snapshot of one virtual display control.
func (c *VirtualCompanion) VCP(code byte) (VCPFeature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	feature, ok := c.vcp[code]
	if !ok {
		return VCPFeature{}, false
	}
	return *feature, true
}

// Volume returns the current virtual output volume.
func (c *VirtualCompanion) Volume() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volumePct
}
