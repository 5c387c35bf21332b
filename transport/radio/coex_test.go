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

package radio_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/radio/stubradio"
)

const linkChannel = uint8(11)

func portalConfig() radio.APConfig {
	return radio.APConfig{
		SSID:     "CrowDisplay-Setup",
		Password: "crowcrow",
		// Deliberately wrong. The transport must pin the link channel.
		Channel: 6,
	}
}

// TestEnterConfigMode verifies the portal comes up in AP+STA mode with
// the AP pinned to the link channel
func TestEnterConfigMode(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	require.NoError(t, tr.EnterConfigMode(portalConfig()))

	assert.True(t, tr.InConfigMode())
	assert.True(t, drv.APUp())
	assert.Equal(t, crowlink.RadioModeAPSTA, drv.Mode())
	assert.Equal(t, crowlink.RadioModeAPSTA, tr.LinkState().Mode)

	// The requested channel 6 must never reach the hardware.
	assert.Equal(t, linkChannel, drv.APConfig().Channel)
	assert.Equal(t, linkChannel, drv.Channel())
	for _, ch := range drv.ChannelLog() {
		assert.Equal(t, linkChannel, ch)
	}
}

// TestEnterConfigModeRepinsAfterHop verifies the defensive re-tune when
// AP bring-up drags the radio off the link channel
func TestEnterConfigModeRepinsAfterHop(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	drv.APHopChannel = 3

	require.NoError(t, tr.EnterConfigMode(portalConfig()))
	assert.Equal(t, linkChannel, drv.Channel(), "re-pin must undo the bring-up hop")

	log := drv.ChannelLog()
	require.NotEmpty(t, log)
	assert.Equal(t, linkChannel, log[len(log)-1])
}

// TestEnterConfigModeIdempotent verifies a second enter is a no-op
func TestEnterConfigModeIdempotent(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	require.NoError(t, tr.EnterConfigMode(portalConfig()))
	modeTransitions := len(drv.ModeLog())

	require.NoError(t, tr.EnterConfigMode(portalConfig()))
	assert.Len(t, drv.ModeLog(), modeTransitions, "no extra driver calls on re-enter")
}

// TestEnterConfigModeModeFailure verifies a failed mode switch leaves a
// consistent station-only state
func TestEnterConfigModeModeFailure(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	drv.SetModeErr = errors.New("no memory for softap")

	err := tr.EnterConfigMode(portalConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrRadioMode)

	assert.False(t, tr.InConfigMode())
	assert.False(t, drv.APUp())
	assert.Equal(t, crowlink.RadioModeSTA, tr.LinkState().Mode)
}

// TestEnterConfigModeAPFailure verifies AP bring-up failure rolls the
// radio back to station mode on the link channel
func TestEnterConfigModeAPFailure(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	drv.StartAPErr = errors.New("beacon init failed")

	err := tr.EnterConfigMode(portalConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrRadioMode)

	assert.False(t, tr.InConfigMode())
	assert.False(t, drv.APUp())
	assert.Equal(t, crowlink.RadioModeSTA, drv.Mode())
	assert.Equal(t, linkChannel, drv.Channel())

	modes := drv.ModeLog()
	require.NotEmpty(t, modes)
	assert.Equal(t, crowlink.RadioModeSTA, modes[len(modes)-1], "rollback must end in station mode")
}

// TestEnterConfigModeRepinFailure verifies a failed re-pin tears the AP
// back down rather than leaving it off-channel
func TestEnterConfigModeRepinFailure(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	drv.APHopChannel = 3
	drv.SetChannelErr = errors.New("channel busy")

	err := tr.EnterConfigMode(portalConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrChannelRange)

	assert.False(t, tr.InConfigMode())
	assert.False(t, drv.APUp())
	assert.Equal(t, crowlink.RadioModeSTA, drv.Mode())
}

// TestExitConfigMode verifies teardown returns to station mode on the
// link channel
func TestExitConfigMode(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	require.NoError(t, tr.EnterConfigMode(portalConfig()))
	require.NoError(t, tr.ExitConfigMode())

	assert.False(t, tr.InConfigMode())
	assert.False(t, drv.APUp())
	assert.Equal(t, crowlink.RadioModeSTA, drv.Mode())
	assert.Equal(t, linkChannel, drv.Channel())
	assert.Equal(t, crowlink.RadioModeSTA, tr.LinkState().Mode)
}

// TestExitConfigModeIdempotent verifies exit without enter is a no-op
func TestExitConfigModeIdempotent(t *testing.T) {
	t.Parallel()

	tr, _ := newTestRadio(t, radio.WithChannel(linkChannel))
	require.NoError(t, tr.ExitConfigMode())
}

// TestExitConfigModeStopFailure verifies a failed teardown still
// reports station mode so callers never see a half-exited state
func TestExitConfigModeStopFailure(t *testing.T) {
	t.Parallel()

	tr, drv := newTestRadio(t, radio.WithChannel(linkChannel))
	require.NoError(t, tr.EnterConfigMode(portalConfig()))

	drv.StopAPErr = errors.New("ap handle stuck")
	err := tr.ExitConfigMode()
	require.Error(t, err)
	assert.ErrorIs(t, err, crowlink.ErrRadioMode)

	assert.False(t, tr.InConfigMode())
	assert.Equal(t, crowlink.RadioModeSTA, tr.LinkState().Mode)
	assert.Equal(t, crowlink.RadioModeSTA, drv.Mode())
}

// TestTrafficFlowsInConfigMode verifies peer traffic keeps moving while
// the portal is up
func TestTrafficFlowsInConfigMode(t *testing.T) {
	t.Parallel()

	panelDrv := stubradio.New(panelAddr)
	companionDrv := stubradio.New(companionAddr)
	stubradio.Wire(panelDrv, companionDrv)

	panel, err := radio.New(panelDrv, radio.WithChannel(linkChannel))
	require.NoError(t, err)
	defer func() { _ = panel.Close() }()

	companion, err := radio.New(companionDrv, radio.WithChannel(linkChannel))
	require.NoError(t, err)
	defer func() { _ = companion.Close() }()

	require.NoError(t, panel.EnterConfigMode(portalConfig()))

	require.NoError(t, companion.Send(crowlink.TypeStats, []byte{0xA0}))
	in, err := panel.Poll()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, crowlink.TypeStats, in.Type)

	require.NoError(t, panel.Send(crowlink.TypeHotkey, []byte{0x00, 0x04}))
	in, err = companion.Poll()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, crowlink.TypeHotkey, in.Type)
}
