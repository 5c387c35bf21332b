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

package radio

import (
	"fmt"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

// EnterConfigMode raises the configuration portal access point while
// keeping peer traffic alive in combined AP+STA mode.
//
// A single radio can only sit on one channel, so the AP is pinned to
// the link channel no matter what cfg asks for. On any failure the
// radio is rolled back to plain station mode on the link channel, never
// left in a half-configured state.
func (t *Transport) EnterConfigMode(cfg APConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return crowlink.NewTransportNotReadyError("EnterConfigMode", t.label)
	}
	if t.mode == crowlink.RadioModeAPSTA {
		return nil
	}

	cfg.Channel = t.channel

	if err := t.drv.SetMode(crowlink.RadioModeAPSTA); err != nil {
		t.rollbackToStationLocked()
		return fmt.Errorf("enter config mode: %w: %w", crowlink.ErrRadioMode, err)
	}

	if err := t.drv.StartAP(cfg); err != nil {
		t.rollbackToStationLocked()
		return fmt.Errorf("enter config mode: start AP: %w: %w", crowlink.ErrRadioMode, err)
	}

	// AP bring-up is allowed to retune the radio on some chips. Pin the
	// link channel again so the peer link survives.
	if err := t.drv.SetChannel(t.channel); err != nil {
		_ = t.drv.StopAP()
		t.rollbackToStationLocked()
		return fmt.Errorf("enter config mode: re-pin channel %d: %w: %w", t.channel, crowlink.ErrChannelRange, err)
	}

	t.mode = crowlink.RadioModeAPSTA
	return nil
}

// ExitConfigMode tears the portal down and returns to plain station
// mode on the link channel. The mode is forced back to station even if
// a teardown step fails, so the transport never reports a half-exited
// state; the first failure is returned.
func (t *Transport) ExitConfigMode() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return crowlink.NewTransportNotReadyError("ExitConfigMode", t.label)
	}
	if t.mode != crowlink.RadioModeAPSTA {
		return nil
	}

	var firstErr error

	if err := t.drv.StopAP(); err != nil {
		firstErr = fmt.Errorf("exit config mode: stop AP: %w: %w", crowlink.ErrRadioMode, err)
	}
	if err := t.drv.SetMode(crowlink.RadioModeSTA); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("exit config mode: %w: %w", crowlink.ErrRadioMode, err)
	}
	if err := t.drv.SetChannel(t.channel); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("exit config mode: re-pin channel %d: %w: %w", t.channel, crowlink.ErrChannelRange, err)
	}

	t.mode = crowlink.RadioModeSTA
	return firstErr
}

// InConfigMode reports whether the portal AP is currently up.
func (t *Transport) InConfigMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode == crowlink.RadioModeAPSTA
}

// rollbackToStationLocked is a best-effort return to station mode on
// the link channel. Callers hold t.mu.
func (t *Transport) rollbackToStationLocked() {
	_ = t.drv.SetMode(crowlink.RadioModeSTA)
	_ = t.drv.SetChannel(t.channel)
	t.mode = crowlink.RadioModeSTA
}
