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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

// Monitor-specific errors
var (
	ErrAlreadyRunning = errors.New("monitor is already running")
	ErrNotRunning     = errors.New("monitor is not running")
	ErrQueueFull      = errors.New("command queue is full")
	ErrStopped        = errors.New("monitor was stopped")
)

// command is one queued link operation awaiting its turn in the loop.
type command struct {
	op     func(*crowlink.Link) error
	result chan error
	ctx    context.Context
}

// Do runs op inside the monitor's loop, serialized with the poll
// cycle, and returns its error. The context bounds the wait; commands
// still queued when the monitor stops fail with ErrStopped. A command
// accepted in the instant the loop exits may never run, so pass a
// context with a deadline when shutdown can race the call.
func (m *Monitor) Do(ctx context.Context, op func(*crowlink.Link) error) error {
	if !m.running.Load() {
		return ErrNotRunning
	}

	cmd := &command{op: op, result: make(chan error, 1), ctx: ctx}
	select {
	case m.commands <- cmd:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		// The loop may still execute the command; its result send is
		// non-blocking either way.
		return fmt.Errorf("command abandoned: %w", ctx.Err())
	}
}

// execute runs one queued command unless its context already ended.
func (m *Monitor) execute(cmd *command) {
	select {
	case <-cmd.ctx.Done():
		m.sendResult(cmd, cmd.ctx.Err())
		return
	default:
	}

	err := cmd.op(m.link)
	m.commandsRun.Add(1)
	m.sendResult(cmd, err)
}

// sendResult hands the outcome to the waiting caller without blocking
// on one that already gave up.
func (*Monitor) sendResult(cmd *command, err error) {
	select {
	case cmd.result <- err:
	default:
	}
}

// failPending drains the queue when the loop exits.
func (m *Monitor) failPending(err error) {
	for {
		select {
		case cmd := <-m.commands:
			m.sendResult(cmd, err)
		default:
			return
		}
	}
}

// commandContext applies the configured default deadline when the
// caller's context carries none.
func (m *Monitor) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.CommandTimeout)
}

// SendHotkey queues a hotkey chord for delivery to the companion.
// A delivery that later exhausts its attempts surfaces through
// OnDeliveryFailure, not here.
func (m *Monitor) SendHotkey(ctx context.Context, modifiers, keycode byte) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		_, err := l.SendHotkey(modifiers, keycode)
		return err
	})
}

// SendMediaKey queues a consumer-control usage for delivery.
func (m *Monitor) SendMediaKey(ctx context.Context, usage uint16) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		_, err := l.SendMediaKey(usage)
		return err
	})
}

// SendButton queues a raw widget press for delivery.
func (m *Monitor) SendButton(ctx context.Context, page, widget byte) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		_, err := l.SendButton(page, widget)
		return err
	})
}

// SendPowerState queues a host power transition request.
func (m *Monitor) SendPowerState(ctx context.Context, mode crowlink.PowerMode) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		_, err := l.SendPowerState(mode)
		return err
	})
}

// SendDDC queues a monitor control adjustment.
func (m *Monitor) SendDDC(ctx context.Context, cmd crowlink.DDCCommand) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		_, err := l.SendDDC(cmd)
		return err
	})
}

// SendStats queues host telemetry, fire and forget.
func (m *Monitor) SendStats(ctx context.Context, s *crowlink.Stats) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		return l.SendStats(s)
	})
}

// SendTimeSync queues a wall-clock update, fire and forget.
func (m *Monitor) SendTimeSync(ctx context.Context, t time.Time) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		return l.SendTimeSync(t)
	})
}

// Ping queues a liveness probe. The answer shows up as link health,
// not as a return value; use Link().PingAndWait for a measured round
// trip while the monitor is paused.
func (m *Monitor) Ping(ctx context.Context) error {
	ctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.Do(ctx, func(l *crowlink.Link) error {
		_, err := l.SendPing()
		return err
	})
}
