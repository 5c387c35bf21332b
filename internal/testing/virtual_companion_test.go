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

package testing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/ddc"
	testutil "github.com/NoobyNull/CrowDisplay-sub000/internal/testing"
)

// newCompanionRig wires a virtual companion to a link over a mock
// transport. The panel side is played by queueing inbound messages.
func newCompanionRig(t *testing.T) (*crowlink.Link, *crowlink.MockTransport, *testutil.VirtualCompanion) {
	t.Helper()

	mock := crowlink.NewMockTransport()
	link, err := crowlink.NewLink(mock, crowlink.WithoutHeartbeat())
	require.NoError(t, err)

	companion := testutil.NewVirtualCompanion()
	companion.Attach(link)
	return link, mock, companion
}

// lastAck returns the status byte of the most recent acknowledgment the
// companion sent.
func lastAck(t *testing.T, mock *crowlink.MockTransport) crowlink.AckStatus {
	t.Helper()

	sent := mock.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Type == crowlink.TypeHotkeyAck {
			require.Len(t, sent[i].Payload, 1)
			return crowlink.AckStatus(sent[i].Payload[0])
		}
	}
	t.Fatal("no acknowledgment sent")
	return 0
}

func TestVirtualCompanionRecordsHotkeys(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)

	require.NoError(t, mock.QueueMessage(crowlink.Hotkey{Modifiers: crowlink.ModLeftCtrl, Keycode: crowlink.KeyA}))
	require.NoError(t, mock.QueueMessage(crowlink.Hotkey{Keycode: crowlink.KeyF13}))
	require.NoError(t, link.Poll())

	got := companion.Hotkeys()
	require.Len(t, got, 2)
	assert.Equal(t, crowlink.ModLeftCtrl, got[0].Modifiers)
	assert.Equal(t, crowlink.KeyA, got[0].Keycode)
	assert.Equal(t, crowlink.KeyF13, got[1].Keycode)

	assert.Equal(t, 2, mock.SentOfType(crowlink.TypeHotkeyAck))
	assert.Equal(t, crowlink.AckOK, lastAck(t, mock))
}

func TestVirtualCompanionScriptedAckStatus(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)
	companion.SetAckStatus(crowlink.TypeHotkey, crowlink.AckBusy)

	require.NoError(t, mock.QueueMessage(crowlink.Hotkey{Keycode: crowlink.KeyEnter}))
	require.NoError(t, link.Poll())

	assert.Equal(t, crowlink.AckBusy, lastAck(t, mock))
}

func TestVirtualCompanionMediaKeysMoveHostState(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)
	require.Equal(t, uint8(30), companion.Volume())

	require.NoError(t, mock.QueueMessage(crowlink.MediaKey{Usage: crowlink.UsageVolumeUp}))
	require.NoError(t, mock.QueueMessage(crowlink.MediaKey{Usage: crowlink.UsageVolumeUp}))
	require.NoError(t, mock.QueueMessage(crowlink.MediaKey{Usage: crowlink.UsageMute}))
	require.NoError(t, mock.QueueMessage(crowlink.MediaKey{Usage: crowlink.UsagePlayPause}))
	require.NoError(t, link.Poll())

	assert.Equal(t, uint8(40), companion.Volume())
	assert.Len(t, companion.MediaKeys(), 4)

	stats := companion.NextStats()
	assert.Equal(t, uint8(40), stats.VolumePct)
	assert.True(t, stats.Muted)
	assert.True(t, stats.MediaPlaying)
}

func TestVirtualCompanionVolumeClamps(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, mock.QueueMessage(crowlink.MediaKey{Usage: crowlink.UsageVolumeUp}))
	}
	require.NoError(t, link.Poll())
	assert.Equal(t, uint8(100), companion.Volume())

	for i := 0; i < 25; i++ {
		require.NoError(t, mock.QueueMessage(crowlink.MediaKey{Usage: crowlink.UsageVolumeDown}))
	}
	require.NoError(t, link.Poll())
	assert.Equal(t, uint8(0), companion.Volume())
}

func TestVirtualCompanionDDCDrivesVirtualDisplay(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)

	require.NoError(t, mock.QueueMessage(crowlink.DDCCommand{
		VCP: ddc.VCPLuminance, Value: 80, Adjust: crowlink.DDCSet,
	}))
	require.NoError(t, link.Poll())

	feature, ok := companion.VCP(ddc.VCPLuminance)
	require.True(t, ok)
	assert.Equal(t, uint16(80), feature.Current)
	assert.Equal(t, crowlink.AckOK, lastAck(t, mock))

	// Stepping past the range clamps at the reported maximum.
	require.NoError(t, mock.QueueMessage(crowlink.DDCCommand{
		VCP: ddc.VCPLuminance, Value: 50, Adjust: crowlink.DDCUp,
	}))
	require.NoError(t, link.Poll())

	feature, _ = companion.VCP(ddc.VCPLuminance)
	assert.Equal(t, uint16(100), feature.Current)

	// A control the virtual display does not expose fails the command.
	require.NoError(t, mock.QueueMessage(crowlink.DDCCommand{
		VCP: 0x99, Value: 1, Adjust: crowlink.DDCSet,
	}))
	require.NoError(t, link.Poll())
	assert.Equal(t, crowlink.AckFailed, lastAck(t, mock))
}

func TestVirtualCompanionDDCApplierDelegates(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)

	var applied []crowlink.DDCCommand
	companion.SetDDCApplier(func(cmd crowlink.DDCCommand) error {
		applied = append(applied, cmd)
		return nil
	})

	cmd := crowlink.DDCCommand{VCP: ddc.VCPContrast, Value: 90, Adjust: crowlink.DDCSet}
	require.NoError(t, mock.QueueMessage(cmd))
	require.NoError(t, link.Poll())

	require.Len(t, applied, 1)
	assert.Equal(t, cmd, applied[0])
	assert.Equal(t, crowlink.AckOK, lastAck(t, mock))

	// The virtual table is bypassed while a real sink is attached.
	feature, _ := companion.VCP(ddc.VCPContrast)
	assert.Equal(t, uint16(75), feature.Current)

	companion.SetDDCApplier(func(crowlink.DDCCommand) error {
		return errors.New("display unplugged")
	})
	require.NoError(t, mock.QueueMessage(cmd))
	require.NoError(t, link.Poll())
	assert.Equal(t, crowlink.AckFailed, lastAck(t, mock))
}

func TestVirtualCompanionPowerAndClock(t *testing.T) {
	t.Parallel()

	link, mock, companion := newCompanionRig(t)
	assert.Equal(t, crowlink.PowerWake, companion.Power())

	_, synced := companion.Clock()
	assert.False(t, synced)

	require.NoError(t, mock.QueueMessage(crowlink.PowerState{Mode: crowlink.PowerSleep}))
	require.NoError(t, mock.QueueMessage(crowlink.TimeSync{Unix: 1_700_000_000}))
	require.NoError(t, link.Poll())

	assert.Equal(t, crowlink.PowerSleep, companion.Power())
	clock, synced := companion.Clock()
	assert.True(t, synced)
	assert.Equal(t, time.Unix(1_700_000_000, 0), clock)
}

func TestVirtualCompanionNextStatsEvolves(t *testing.T) {
	t.Parallel()

	companion := testutil.NewVirtualCompanion()
	companion.SetMediaTitle("Paranoid Android")
	companion.SetLinkRSSI(-61)

	first := companion.NextStats()
	second := companion.NextStats()

	// Load figures wander between reports.
	assert.NotEqual(t, first.CPULoadPct, second.CPULoadPct)
	assert.Equal(t, int8(-61), first.LinkRSSI)

	// The title rides along only while media is playing.
	_, err := first.MediaTitle()
	require.NoError(t, err)
	assert.Empty(t, first.MediaTitleRaw)
}

func TestVirtualCompanionBootFixtures(t *testing.T) {
	t.Parallel()

	table := testutil.DefaultVCPTable()
	require.Contains(t, table, byte(ddc.VCPLuminance))
	assert.Equal(t, uint16(50), table[ddc.VCPLuminance].Current)

	boot := testutil.BootStats()
	assert.Equal(t, uint8(30), boot.VolumePct)
	assert.False(t, boot.MediaPlaying)
}
