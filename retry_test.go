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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_RetriesTransientErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return ErrTransportRead
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_StopsOnPermanentError(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return ErrInvalidParameter
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestRetryWithConfig_ExhaustsBudget(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return ErrNoACK
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoACK)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_ContextCancellation(t *testing.T) {
	t.Parallel()
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Hour
	cfg.RetryTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := RetryWithConfig(ctx, cfg, func() error {
		calls++
		return ErrTransportTimeout
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_NilConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	err := RetryWithConfig(context.Background(), nil, func() error {
		return nil
	})
	require.NoError(t, err)
}

func TestRetryWithConfig_NonStandardError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "unclassified errors are permanent")
}

func TestJitteredDelayBounds(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := jitteredDelay(base, 0.25)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
	assert.Equal(t, base, jitteredDelay(base, 0))
	assert.Equal(t, time.Duration(0), jitteredDelay(0, 0.5))
}
