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
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls the blocking retry helper used for connection
// setup and the *AndWait conveniences. The in-flight command retry of
// the link itself is poll-driven and never sleeps; see Link.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, first included.
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the grown delay.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay between attempts.
	BackoffMultiplier float64
	// Jitter is the random fraction (0..1) applied to each delay.
	Jitter float64
	// RetryTimeout bounds the whole retry sequence. Zero means no
	// overall bound beyond the caller's context.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the retry policy tuned for opening ports
// and short configuration exchanges.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      2 * time.Second,
	}
}

// RetryWithConfig runs fn until it succeeds, returns a non-retryable
// error, or the attempt budget is spent. Classification comes from
// IsRetryable. The context cancels waiting between attempts, not a
// running fn.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := config.InitialBackoff
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(jitteredDelay(backoff, config.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// jitteredDelay spreads a delay by up to ±jitter of its value so
// lockstep retries against the same port desynchronize.
func jitteredDelay(d time.Duration, jitter float64) time.Duration {
	if d <= 0 {
		return 0
	}
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	spread := (rand.Float64()*2 - 1) * jitter
	out := time.Duration(float64(d) * (1 + spread))
	if out < 0 {
		out = 0
	}
	return out
}
