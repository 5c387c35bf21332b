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

// Package transport provides internal helpers shared by the transport
// implementations.
package transport

import (
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
)

// RetryOperation is one attempt of a retryable operation. It returns
// the result, whether another attempt should be made, and any error
// that must abort the loop immediately. Returning (zero, true, nil)
// means "not yet, try again".
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig shapes a WithRetry loop.
type RetryConfig struct {
	// OnRetry runs between attempts; a non-nil return aborts the loop.
	OnRetry func() error
	// OnRetryFailed runs once when all attempts are spent. Its error,
	// if any, replaces the generic exhaustion error.
	OnRetryFailed func() error
	// Description names the operation for diagnostics.
	Description string
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// WithRetry runs operation until it succeeds, aborts, or exhausts
// config.MaxRetries additional attempts. The transports use it for
// open and handshake paths where the hardware needs a moment to
// settle after enumeration.
func WithRetry[T any](config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, again, err := operation()
		if err != nil {
			return zero, err
		}
		if !again {
			return result, nil
		}
		if attempt >= config.MaxRetries {
			return zero, retriesExhausted(config)
		}

		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}
		if config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
	}
}

func retriesExhausted(config RetryConfig) error {
	if config.OnRetryFailed != nil {
		if err := config.OnRetryFailed(); err != nil {
			return err
		}
	}
	return crowlink.NewTransportError("retry", "unknown", crowlink.ErrCommunicationFailed, crowlink.ErrorTypeTransient)
}

// TimeoutRetry polls operation until it succeeds, aborts, or the
// timeout elapses, sleeping a millisecond between attempts. Suits
// wait-for-ready loops where no attempt count makes sense.
func TimeoutRetry[T any](timeout time.Duration, operation RetryOperation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		result, again, err := operation()
		if err != nil {
			return zero, err
		}
		if !again {
			return result, nil
		}
		time.Sleep(time.Millisecond)
	}

	return zero, crowlink.NewTimeoutError("timeoutRetry", "unknown")
}
