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
	"time"
)

// TransportOptimizer provides transport-specific link timing
type TransportOptimizer interface {
	// OptimizeForLink returns transport-specific link timing parameters
	OptimizeForLink() *OptimizedLinkParams

	// GetStabilizationDelay returns the required settle time after open
	GetStabilizationDelay() time.Duration
}

// OptimizedLinkParams contains transport-optimized link timing parameters
type OptimizedLinkParams struct {
	AckTimeout         time.Duration
	HeartbeatInterval  time.Duration
	LinkTimeout        time.Duration
	PollInterval       time.Duration
	StabilizationDelay time.Duration
	MaxAttempts        int
}

// getOptimizedLinkParams returns optimized link timing for the current transport
func (l *Link) getOptimizedLinkParams() *OptimizedLinkParams {
	// Check if transport provides its own optimization
	if optimizer, ok := l.transport.(TransportOptimizer); ok {
		return optimizer.OptimizeForLink()
	}

	// Default optimization based on transport kind
	switch l.transport.Type() {
	case TransportSerial:
		return getSerialOptimizedParams()

	case TransportRadio:
		return getRadioOptimizedParams()

	case TransportMock:
		// Mock transport uses default parameters for testing
		return getDefaultOptimizedParams()

	default:
		return getDefaultOptimizedParams()
	}
}

// getSerialOptimizedParams returns serial-optimized link timing
func getSerialOptimizedParams() *OptimizedLinkParams {
	return &OptimizedLinkParams{
		AckTimeout:         25 * time.Millisecond, // round trip on the wire is sub-millisecond
		HeartbeatInterval:  500 * time.Millisecond,
		LinkTimeout:        2 * time.Second,
		PollInterval:       time.Millisecond,
		StabilizationDelay: 50 * time.Millisecond, // USB-CDC settle after open
		MaxAttempts:        DefaultMaxAttempts,
	}
}

// getRadioOptimizedParams returns radio-optimized link timing
func getRadioOptimizedParams() *OptimizedLinkParams {
	return &OptimizedLinkParams{
		AckTimeout:         40 * time.Millisecond, // airtime plus peer scheduling jitter
		HeartbeatInterval:  500 * time.Millisecond,
		LinkTimeout:        2 * time.Second,
		PollInterval:       time.Millisecond,
		StabilizationDelay: 10 * time.Millisecond,
		MaxAttempts:        DefaultMaxAttempts,
	}
}

// getDefaultOptimizedParams returns default link timing
func getDefaultOptimizedParams() *OptimizedLinkParams {
	return &OptimizedLinkParams{
		AckTimeout:         DefaultAckTimeout,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		LinkTimeout:        DefaultLinkTimeout,
		PollInterval:       time.Millisecond,
		StabilizationDelay: 0,
		MaxAttempts:        DefaultMaxAttempts,
	}
}
