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
	"sync"
	"time"
)

// sessionPhase is the finite state machine for companion presence
type sessionPhase int

const (
	phaseSearching sessionPhase = iota
	phaseConnected
	phaseGrace
)

// SessionInfo is a snapshot of the companion session.
type SessionInfo struct {
	// ConnectedAt is when the current session began, zero while no
	// companion is present.
	ConnectedAt time.Time
	// Flaps counts link drops that recovered inside the grace window.
	Flaps int
	// Drops counts confirmed companion losses.
	Drops int
	// Present reports debounced companion presence. It stays true
	// during the grace window after a link drop.
	Present bool
}

// session debounces link health transitions into companion presence
// events. A drop only counts once the grace window runs out, so brief
// radio fades never reach the caller.
type session struct {
	connectedAt time.Time
	graceUntil  time.Time
	flaps       int
	drops       int
	mu          sync.Mutex
	phase       sessionPhase
}

// noteUp records a link-up transition. Returns true when a new
// companion appeared rather than a flap recovering.
func (s *session) noteUp(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phaseSearching:
		s.phase = phaseConnected
		s.connectedAt = now
		return true
	case phaseGrace:
		s.phase = phaseConnected
		s.flaps++
	case phaseConnected:
	}
	return false
}

// noteDown records a link-down transition and arms the grace window.
func (s *session) noteDown(now time.Time, grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != phaseConnected {
		return
	}
	s.phase = phaseGrace
	s.graceUntil = now.Add(grace)
}

// expire confirms a companion loss once the grace window has passed.
// Returns true exactly once per confirmed loss.
func (s *session) expire(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != phaseGrace || now.Before(s.graceUntil) {
		return false
	}
	s.phase = phaseSearching
	s.connectedAt = time.Time{}
	s.drops++
	return true
}

// info returns a snapshot of the session.
func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionInfo{
		ConnectedAt: s.connectedAt,
		Flaps:       s.flaps,
		Drops:       s.drops,
		Present:     s.phase != phaseSearching,
	}
}
