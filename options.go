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
	"fmt"
	"time"
)

// Option is a functional option for configuring a Link
type Option func(*Link) error

// WithLinkConfig replaces the entire link configuration.
func WithLinkConfig(config *LinkConfig) Option {
	return func(l *Link) error {
		if config == nil {
			return fmt.Errorf("%w: link config cannot be nil", ErrInvalidParameter)
		}
		cfg := *config
		l.config = &cfg
		return nil
	}
}

// WithAckTimeout sets the per-attempt wait for an acknowledgment.
func WithAckTimeout(timeout time.Duration) Option {
	return func(l *Link) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: ack timeout must be positive", ErrInvalidParameter)
		}
		l.config.AckTimeout = timeout
		return nil
	}
}

// WithMaxAttempts sets the transmission budget per reliable message,
// the first send included.
func WithMaxAttempts(attempts int) Option {
	return func(l *Link) error {
		if attempts < 1 {
			return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidParameter)
		}
		l.config.MaxAttempts = attempts
		return nil
	}
}

// WithHeartbeatInterval sets the idle-link probe pace.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(l *Link) error {
		if interval <= 0 {
			return fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidParameter)
		}
		l.config.HeartbeatInterval = interval
		return nil
	}
}

// WithoutHeartbeat disables automatic liveness probes.
func WithoutHeartbeat() Option {
	return func(l *Link) error {
		l.config.Heartbeat = false
		return nil
	}
}

// WithLinkTimeout sets the silence window after which the link counts
// as down.
func WithLinkTimeout(timeout time.Duration) Option {
	return func(l *Link) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: link timeout must be positive", ErrInvalidParameter)
		}
		l.config.LinkTimeout = timeout
		return nil
	}
}

// WithPendingLimit caps how many reliable messages may await
// acknowledgment at once.
func WithPendingLimit(limit int) Option {
	return func(l *Link) error {
		if limit < 1 {
			return fmt.Errorf("%w: pending limit must be at least 1", ErrInvalidParameter)
		}
		l.config.PendingLimit = limit
		return nil
	}
}

// WithPollInterval sets the Run loop pace.
func WithPollInterval(interval time.Duration) Option {
	return func(l *Link) error {
		if interval <= 0 {
			return fmt.Errorf("%w: poll interval must be positive", ErrInvalidParameter)
		}
		l.config.PollInterval = interval
		return nil
	}
}
