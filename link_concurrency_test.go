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
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestConcurrentSendersWhilePolling verifies that multiple goroutines
// can send through one link while another drives Run, without
// deadlocking
func TestConcurrentSendersWhilePolling(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithoutHeartbeat(),
		WithPollInterval(time.Millisecond),
		WithAckTimeout(5*time.Millisecond),
	)
	mock.EnableAutoAck(AckOK)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- link.Run(ctx)
	}()

	const numGoroutines = 8

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := link.SendHotkey(byte(id), byte(j))
				// A full pending window is expected under load;
				// anything else is not.
				if err != nil && !errors.Is(err, ErrQueueFull) {
					t.Errorf("unexpected send error: %v", err)
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(5 * time.Second):
		t.Fatal("Deadlock detected - senders did not complete")
	}

	cancel()
	<-runDone
}

// TestSendTimeoutReleasesLink verifies that a transport write that
// times out leaves the link usable, not wedged on its mutex
func TestSendTimeoutReleasesLink(t *testing.T) {
	t.Parallel()

	blocking := NewBlockingMockTransport()
	blocking.SetTimeout(20 * time.Millisecond)
	defer func() { _ = blocking.Close() }()

	link, err := NewLink(blocking, WithoutHeartbeat())
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}

	start := time.Now()
	_, err = link.SendHotkey(0x00, 0x04)
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if !errors.Is(err, ErrTransportTimeout) {
		t.Errorf("Expected transport timeout, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Send held the link too long: %v", elapsed)
	}

	// The mutex must be free again: further calls return promptly.
	done := make(chan struct{})
	go func() {
		_, _ = link.SendHotkey(0x00, 0x05)
		_ = link.PendingCount()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Link wedged after transport timeout")
	}
}

// TestHandlerMaySendWithoutDeadlock verifies that a handler running on
// the poll goroutine can send through the same link
func TestHandlerMaySendWithoutDeadlock(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	link.Handle(TypeButton, func(Message, *Inbound) AckStatus {
		// Answer a widget press with a telemetry push.
		if err := link.SendStats(&Stats{VolumePct: 35}); err != nil {
			t.Errorf("send from handler: %v", err)
		}
		return AckOK
	})

	if err := mock.QueueMessage(Button{Page: 1, Widget: 2}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = link.Poll()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(time.Second):
		t.Fatal("Deadlock detected - handler send blocked the poll cycle")
	}

	if got := mock.SentOfType(TypeStats); got != 1 {
		t.Errorf("Expected 1 stats message, got %d", got)
	}
}

// TestConcurrentSendAndClose randomly races senders against Close to
// detect hangs and panics
func TestConcurrentSendAndClose(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.EnableAutoAck(AckOK)

	const numOperations = 20

	var wg sync.WaitGroup
	wg.Add(numOperations)
	for i := 0; i < numOperations; i++ {
		go func(id int) {
			defer wg.Done()

			if id == numOperations/2 {
				time.Sleep(time.Duration(id%5) * time.Millisecond)
				_ = link.Close()
				return
			}

			time.Sleep(time.Duration(id%10) * time.Millisecond)
			// Errors after close are expected; hangs are not.
			_, _ = link.SendHotkey(byte(id), byte(id))
			_ = link.Poll()
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(5 * time.Second):
		t.Fatal("Some operations did not complete - possible goroutine leak")
	}
}

// TestWaitersUnderConcurrentCancellation cancels synchronous sends at
// random points to detect stuck waiters
func TestWaitersUnderConcurrentCancellation(t *testing.T) {
	t.Parallel()

	const numOperations = 10

	links := make([]*Link, numOperations)
	for i := 0; i < numOperations; i++ {
		link, mock := newTestLink(t,
			WithoutHeartbeat(),
			WithAckTimeout(5*time.Millisecond),
			WithMaxAttempts(2),
		)
		if i%2 == 0 {
			mock.EnableAutoAck(AckOK)
		}
		links[i] = link
	}

	var wg sync.WaitGroup
	wg.Add(numOperations)
	for i := 0; i < numOperations; i++ {
		go func(id int) {
			defer wg.Done()

			timeout := time.Duration(1+id%8) * time.Millisecond
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			// Success, ErrNoACK and context errors are all legitimate
			// outcomes; only a hang is a failure.
			_, _ = links[id].SendHotkeyAndWait(ctx, byte(id), byte(id))
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(5 * time.Second):
		t.Fatal("Some waiters did not complete")
	}
}
