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

// Package monitor drives a crowlink.Link from a dedicated run loop and
// turns its callbacks into a companion session: debounced presence
// events, forwarded traffic and delivery failures, metrics, and a
// command queue that keeps other goroutines off the poll path.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

// Config holds monitor tuning.
type Config struct {
	// PollInterval is the base cadence of the poll cycle.
	PollInterval time.Duration
	// IdleAfter is how long the link must stay silent before the loop
	// slows down to IdleInterval.
	IdleAfter time.Duration
	// IdleInterval is the cadence while the link is silent. Inbound
	// traffic restores PollInterval on the next cycle.
	IdleInterval time.Duration
	// LossGrace is how long a down link may recover before the
	// companion counts as lost.
	LossGrace time.Duration
	// CommandTimeout bounds the typed send helpers when the caller's
	// context has no deadline of its own.
	CommandTimeout time.Duration
	// CommandQueue is the capacity of the command queue.
	CommandQueue int
}

// DefaultConfig returns the tuning used when New receives nil.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   5 * time.Millisecond,
		IdleAfter:      5 * time.Second,
		IdleInterval:   50 * time.Millisecond,
		LossGrace:      time.Second,
		CommandTimeout: time.Second,
		CommandQueue:   16,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", crowlink.ErrInvalidParameter)
	}
	if c.IdleInterval < c.PollInterval {
		return fmt.Errorf("%w: idle interval %v below poll interval %v",
			crowlink.ErrInvalidParameter, c.IdleInterval, c.PollInterval)
	}
	if c.IdleAfter <= 0 {
		return fmt.Errorf("%w: idle threshold must be positive", crowlink.ErrInvalidParameter)
	}
	if c.LossGrace < 0 {
		return fmt.Errorf("%w: loss grace must not be negative", crowlink.ErrInvalidParameter)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%w: command timeout must be positive", crowlink.ErrInvalidParameter)
	}
	if c.CommandQueue < 1 {
		return fmt.Errorf("%w: command queue needs at least one slot", crowlink.ErrInvalidParameter)
	}
	return nil
}

// Metrics is a snapshot of monitor counters.
type Metrics struct {
	LastCycleLatency time.Duration
	PollCycles       int64
	PollErrors       int64
	CommandsRun      int64
}

// Monitor owns a link's poll cycle. Set the exported callbacks before
// Start or Run; they fire on the run goroutine, so they may send on
// the link but must not block it.
type Monitor struct {
	link   *crowlink.Link
	config *Config

	// OnMessage sees every decoded inbound message.
	OnMessage func(crowlink.Message, *crowlink.Inbound)
	// OnDeliveryFailure fires when a command exhausts its attempts.
	OnDeliveryFailure func(crowlink.DeliveryFailure)
	// OnCompanionFound fires when a companion first appears.
	OnCompanionFound func()
	// OnCompanionLost fires when a companion loss outlives the grace
	// window.
	OnCompanionLost func()
	// OnError sees poll cycle errors. The loop continues either way.
	OnError func(error)

	commands   chan *command
	cancelFunc context.CancelFunc

	session session

	pollCycles     atomic.Int64
	pollErrors     atomic.Int64
	commandsRun    atomic.Int64
	lastCycleNanos atomic.Int64
	lastTraffic    atomic.Int64

	// prevRx is the loop's snapshot of the link's inbound counters.
	prevRx uint64

	stopMutex sync.Mutex
	running   atomic.Bool
	isPaused  atomic.Bool
}

// New wraps link in a monitor. A nil config uses DefaultConfig.
func New(link *crowlink.Link, config *Config) (*Monitor, error) {
	if link == nil {
		return nil, errors.New("link cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		link:     link,
		config:   config,
		commands: make(chan *command, config.CommandQueue),
	}
	m.lastTraffic.Store(time.Now().UnixNano())
	m.hookLink()
	return m, nil
}

// hookLink routes the link's callbacks through the monitor.
func (m *Monitor) hookLink() {
	m.link.OnMessage(func(msg crowlink.Message, in *crowlink.Inbound) {
		if cb := m.OnMessage; cb != nil {
			cb(msg, in)
		}
	})
	m.link.OnDeliveryFailure(func(f crowlink.DeliveryFailure) {
		if cb := m.OnDeliveryFailure; cb != nil {
			cb(f)
		}
	})
	m.link.OnLinkUp(func() {
		if m.session.noteUp(time.Now()) {
			if cb := m.OnCompanionFound; cb != nil {
				cb()
			}
		}
	})
	m.link.OnLinkDown(func() {
		m.session.noteDown(time.Now(), m.config.LossGrace)
	})
}

// Run drives the link until ctx ends. The monitor owns the poll path
// while running; do not call link.Poll or link.Run alongside it.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return m.runHeld(ctx)
}

// Start runs the monitor on a background goroutine. Errors other than
// cancellation reach OnError.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	go func() {
		if err := m.runHeld(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if cb := m.OnError; cb != nil {
				cb(err)
			}
		}
	}()
	return nil
}

// runHeld is the running-flagged body shared by Run and Start. The
// caller has already won the CompareAndSwap.
func (m *Monitor) runHeld(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.stopMutex.Lock()
	m.cancelFunc = cancel
	m.stopMutex.Unlock()

	defer func() {
		cancel()
		m.stopMutex.Lock()
		m.cancelFunc = nil
		m.stopMutex.Unlock()
		m.running.Store(false)
	}()

	return m.loop(runCtx)
}

// Stop cancels the run loop and blocks until it exits. Stopping a
// monitor that is not running is a no-op.
func (m *Monitor) Stop() error {
	if !m.running.Load() {
		return nil
	}

	m.stopMutex.Lock()
	cancel := m.cancelFunc
	m.stopMutex.Unlock()
	if cancel != nil {
		cancel()
	}

	for m.running.Load() {
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Pause suspends the poll cycle so another goroutine may drive the
// link directly, for example for a blocking round trip. Queued
// commands keep executing. Pausing twice is idempotent.
func (m *Monitor) Pause() {
	m.isPaused.Store(true)
}

// Resume restarts the poll cycle after Pause.
func (m *Monitor) Resume() {
	m.isPaused.Store(false)
}

// IsPaused reports whether the poll cycle is suspended.
func (m *Monitor) IsPaused() bool {
	return m.isPaused.Load()
}

// IsRunning reports whether the run loop is active.
func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

// Link returns the underlying link.
func (m *Monitor) Link() *crowlink.Link {
	return m.link
}

// Session returns the current companion session snapshot.
func (m *Monitor) Session() SessionInfo {
	return m.session.info()
}

// CompanionPresent reports debounced companion presence.
func (m *Monitor) CompanionPresent() bool {
	return m.session.info().Present
}

// Metrics returns a snapshot of the monitor counters.
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		LastCycleLatency: time.Duration(m.lastCycleNanos.Load()),
		PollCycles:       m.pollCycles.Load(),
		PollErrors:       m.pollErrors.Load(),
		CommandsRun:      m.commandsRun.Load(),
	}
}

// Close stops the monitor and closes the link.
func (m *Monitor) Close() error {
	_ = m.Stop()
	if err := m.link.Close(); err != nil {
		return fmt.Errorf("failed to close link: %w", err)
	}
	return nil
}

// loop alternates poll cycles with queued commands until ctx ends.
func (m *Monitor) loop(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.failPending(ErrStopped)
			return ctx.Err()
		case cmd := <-m.commands:
			m.execute(cmd)
		case <-ticker.C:
			if !m.isPaused.Load() {
				m.cycle()
			}
			ticker.Reset(m.interval())
		}
	}
}

// cycle runs one poll pass and the bookkeeping around it.
func (m *Monitor) cycle() {
	start := time.Now()
	err := m.link.Poll()
	m.pollCycles.Add(1)
	m.lastCycleNanos.Store(time.Since(start).Nanoseconds())

	if err != nil {
		m.pollErrors.Add(1)
		if cb := m.OnError; cb != nil {
			cb(err)
		}
	}

	// Acknowledgments count as traffic too, so watch the link counters
	// rather than the message callback.
	stats := m.link.Stats()
	if rx := stats.RxMessages + stats.RxAcks; rx != m.prevRx {
		m.prevRx = rx
		m.lastTraffic.Store(start.UnixNano())
	}

	if m.session.expire(time.Now()) {
		if cb := m.OnCompanionLost; cb != nil {
			cb()
		}
	}
}

// interval picks the cadence for the next cycle. A silent link slows
// the loop down; traffic restores the base cadence.
func (m *Monitor) interval() time.Duration {
	idle := time.Since(time.Unix(0, m.lastTraffic.Load()))
	if idle > m.config.IdleAfter {
		return m.config.IdleInterval
	}
	return m.config.PollInterval
}
