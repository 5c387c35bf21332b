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
	"context"
	"errors"
	"fmt"
	"time"
)

// waitPollInterval paces the self-pumping loop inside sendAndWait. It
// sits well under the acknowledgment timeout so a retransmit deadline
// is never overshot by a full poll period.
const waitPollInterval = time.Millisecond

// sendAndWait sends one acknowledged message and blocks until the peer
// answers, delivery fails, or the context ends. The link pumps itself
// while waiting, so this must not run concurrently with Run.
func (l *Link) sendAndWait(ctx context.Context, msg Message) (AckStatus, error) {
	if l.running.Load() {
		return 0, errors.New("link is driven by Run; use Send and callbacks instead")
	}

	// Check if context is already cancelled
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("context cancelled before sending: %w", ctx.Err())
	default:
	}

	if l.config.ValidateOutbound {
		if err := ValidateMessage(msg); err != nil {
			return 0, err
		}
	}
	typ, payload, err := EncodeMessage(msg)
	if err != nil {
		return 0, err
	}
	if !typ.Acked() {
		return 0, fmt.Errorf("%w: %s carries no acknowledgment", ErrInvalidParameter, typ)
	}

	waiter := make(chan ackResult, 1)
	l.mu.Lock()
	_, err = l.sendLocked(typ, payload, false, waiter)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.abandonWaiter(waiter)
			return 0, fmt.Errorf("context cancelled while waiting for acknowledgment: %w", ctx.Err())
		case res := <-waiter:
			if res.err != nil {
				return 0, res.err
			}
			return res.status, nil
		case <-ticker.C:
			if err := l.Poll(); err != nil {
				debugf("wait poll: %v", err)
			}
		}
	}
}

// abandonWaiter detaches a waiter whose caller gave up, so the eventual
// outcome is not delivered twice.
func (l *Link) abandonWaiter(waiter chan ackResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.pending {
		if p.waiter == waiter {
			p.waiter = nil
			return
		}
	}
}

// SendHotkeyAndWait sends a modifier+keycode chord and blocks until the
// companion acknowledges it.
func (l *Link) SendHotkeyAndWait(ctx context.Context, modifiers, keycode byte) (AckStatus, error) {
	return l.sendAndWait(ctx, Hotkey{Modifiers: modifiers, Keycode: keycode})
}

// SendMediaKeyAndWait sends a consumer-control usage and blocks until
// the companion acknowledges it.
func (l *Link) SendMediaKeyAndWait(ctx context.Context, usage uint16) (AckStatus, error) {
	return l.sendAndWait(ctx, MediaKey{Usage: usage})
}

// SendButtonAndWait sends a raw widget press and blocks until the
// companion acknowledges it.
func (l *Link) SendButtonAndWait(ctx context.Context, page, widget byte) (AckStatus, error) {
	return l.sendAndWait(ctx, Button{Page: page, Widget: widget})
}

// SendPowerStateAndWait requests a host power transition and blocks
// until the companion acknowledges it.
func (l *Link) SendPowerStateAndWait(ctx context.Context, mode PowerMode) (AckStatus, error) {
	return l.sendAndWait(ctx, PowerState{Mode: mode})
}

// SendDDCAndWait sends a monitor control adjustment and blocks until
// the companion acknowledges it.
func (l *Link) SendDDCAndWait(ctx context.Context, cmd DDCCommand) (AckStatus, error) {
	return l.sendAndWait(ctx, cmd)
}

// PingAndWait probes the peer and returns the round-trip time.
func (l *Link) PingAndWait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := l.sendAndWait(ctx, Ping{}); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
