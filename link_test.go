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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLink(t *testing.T, opts ...Option) (*Link, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	link, err := NewLink(mock, opts...)
	require.NoError(t, err)
	return link, mock
}

// pollUntil drives the link until cond holds or the deadline passes.
func pollUntil(t *testing.T, link *Link, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = link.Poll()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestNewLinkDefaults(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t)
	cfg := link.Config()

	assert.Equal(t, DefaultAckTimeout, cfg.AckTimeout)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultLinkTimeout, cfg.LinkTimeout)
	assert.Equal(t, DefaultPendingLimit, cfg.PendingLimit)
	assert.True(t, cfg.Heartbeat)
	assert.False(t, cfg.ValidateOutbound)
	require.NoError(t, cfg.Validate())
}

func TestNewLinkOptionValidation(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()

	_, err := NewLink(mock, WithAckTimeout(0))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewLink(mock, WithMaxAttempts(0))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewLink(mock, WithLinkConfig(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	link, err := NewLink(mock,
		WithAckTimeout(10*time.Millisecond),
		WithMaxAttempts(5),
		WithPendingLimit(2),
		WithoutHeartbeat(),
	)
	require.NoError(t, err)

	cfg := link.Config()
	assert.Equal(t, 10*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 2, cfg.PendingLimit)
	assert.False(t, cfg.Heartbeat)
}

func TestLinkDeliveredFirstAttempt(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.EnableAutoAck(AckOK)

	seq, err := link.SendHotkey(0x03, 0x3A)
	require.NoError(t, err)
	assert.NotZero(t, seq)
	assert.Equal(t, 1, link.PendingCount())

	require.NoError(t, link.Poll())

	assert.Equal(t, 0, link.PendingCount())
	assert.Equal(t, 1, mock.SentOfType(TypeHotkey))

	stats := link.Stats()
	assert.Equal(t, uint64(1), stats.TxMessages)
	assert.Equal(t, uint64(1), stats.RxAcks)
	assert.Equal(t, uint64(0), stats.TxRetries)
}

func TestLinkFireAndForget(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	seq, err := link.Send(&Stats{VolumePct: 40})
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, link.SendTimeSync(time.Unix(0x66CC2211, 0)))

	assert.Equal(t, 0, link.PendingCount())
	assert.Equal(t, 1, mock.SentOfType(TypeStats))
	assert.Equal(t, 1, mock.SentOfType(TypeTimeSync))
}

func TestLinkRetransmitsUntilAcked(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithoutHeartbeat(),
		WithAckTimeout(5*time.Millisecond),
	)
	mock.EnableAutoAck(AckOK)
	mock.LoseNext(1)

	var failures int
	link.OnDeliveryFailure(func(DeliveryFailure) { failures++ })

	_, err := link.SendMediaKey(0x00CD)
	require.NoError(t, err)

	pollUntil(t, link, func() bool { return link.PendingCount() == 0 })

	assert.Equal(t, 2, mock.SentOfType(TypeMediaKey))
	assert.Equal(t, 0, failures)

	stats := link.Stats()
	assert.Equal(t, uint64(1), stats.TxRetries)
	assert.Equal(t, uint64(1), stats.RxAcks)
}

func TestLinkDeliveryFailureSurfacedExactlyOnce(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithoutHeartbeat(),
		WithAckTimeout(3*time.Millisecond),
		WithMaxAttempts(3),
	)

	var failures []DeliveryFailure
	link.OnDeliveryFailure(func(f DeliveryFailure) { failures = append(failures, f) })

	seq, err := link.SendHotkey(0x01, 0x04)
	require.NoError(t, err)

	pollUntil(t, link, func() bool { return len(failures) > 0 })

	// Keep polling; the failure must not be reported again.
	for i := 0; i < 20; i++ {
		_ = link.Poll()
		time.Sleep(time.Millisecond)
	}

	require.Len(t, failures, 1)
	assert.Equal(t, seq, failures[0].Seq)
	assert.Equal(t, TypeHotkey, failures[0].Type)
	assert.Equal(t, 3, failures[0].Attempts)
	require.ErrorIs(t, failures[0].Err, ErrNoACK)

	assert.Equal(t, 3, mock.SentOfType(TypeHotkey))
	assert.Equal(t, 0, link.PendingCount())
	assert.Equal(t, uint64(1), link.Stats().DeliveryFailures)
}

func TestLinkAckCompletesOldestPending(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithoutHeartbeat(),
		WithAckTimeout(3*time.Millisecond),
		WithMaxAttempts(1),
	)

	var failures []DeliveryFailure
	link.OnDeliveryFailure(func(f DeliveryFailure) { failures = append(failures, f) })

	_, err := link.SendHotkey(0x00, 0x29)
	require.NoError(t, err)
	_, err = link.SendMediaKey(0x00E9)
	require.NoError(t, err)
	require.Equal(t, 2, link.PendingCount())

	// One acknowledgment arrives. It must complete the hotkey, the
	// older of the two.
	mock.QueueMessage(HotkeyAck{Status: AckOK})
	require.NoError(t, link.Poll())
	require.Equal(t, 1, link.PendingCount())

	pollUntil(t, link, func() bool { return len(failures) == 1 })
	assert.Equal(t, TypeMediaKey, failures[0].Type)
}

func TestLinkStaleAckIgnored(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	mock.QueueMessage(HotkeyAck{Status: AckOK})
	require.NoError(t, link.Poll())

	assert.Equal(t, uint64(1), link.Stats().RxAcks)
	assert.Equal(t, 0, link.PendingCount())
}

func TestLinkPendingLimit(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t,
		WithoutHeartbeat(),
		WithPendingLimit(2),
	)

	_, err := link.SendHotkey(0x00, 0x04)
	require.NoError(t, err)
	_, err = link.SendHotkey(0x00, 0x05)
	require.NoError(t, err)

	_, err = link.SendHotkey(0x00, 0x06)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, link.PendingCount())
}

func TestLinkSendErrorNotQueued(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.SetSendError(ErrTransportWrite)

	_, err := link.SendHotkey(0x00, 0x04)
	require.ErrorIs(t, err, ErrTransportWrite)
	assert.Equal(t, 0, link.PendingCount())
}

func TestLinkHandlerAckStatus(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	var got Message
	link.Handle(TypeButton, func(msg Message, _ *Inbound) AckStatus {
		got = msg
		return AckBusy
	})

	require.NoError(t, mock.QueueMessage(Button{Page: 2, Widget: 7}))
	require.NoError(t, link.Poll())

	require.Equal(t, Button{Page: 2, Widget: 7}, got)

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypeHotkeyAck, sent[0].Type)
	assert.Equal(t, []byte{byte(AckBusy)}, sent[0].Payload)
}

func TestLinkUnhandledMessageAckedOK(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	require.NoError(t, mock.QueueMessage(Button{Page: 0, Widget: 1}))
	require.NoError(t, link.Poll())

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypeHotkeyAck, sent[0].Type)
	assert.Equal(t, []byte{byte(AckOK)}, sent[0].Payload)
}

func TestLinkUnknownTypeDropped(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	mock.QueueInbound(MessageType(0x7F), []byte{0x01, 0x02})
	require.NoError(t, link.Poll())

	// A newer peer's type is not an error and must not be answered:
	// a reply here would complete an unrelated pending command.
	assert.Empty(t, mock.Sent())
	assert.Equal(t, uint64(1), link.Stats().RxUnknown)
	assert.Equal(t, uint64(0), link.Stats().RxErrors)
}

func TestLinkUnknownTypeLeavesPendingAlone(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	// One hotkey in flight, its acknowledgment outstanding.
	_, err := link.SendHotkey(ModLeftCtrl, KeyA)
	require.NoError(t, err)
	require.Equal(t, 1, link.PendingCount())

	mock.QueueInbound(MessageType(0x7F), []byte{0xAA})
	require.NoError(t, link.Poll())

	// The hotkey is still waiting for its real acknowledgment.
	assert.Equal(t, 1, link.PendingCount())
}

func TestLinkShortStatsNotAcked(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	// A truncated telemetry frame is counted but never answered:
	// telemetry is fire-and-forget.
	mock.QueueInbound(TypeStats, []byte{0xFF})
	require.NoError(t, link.Poll())

	assert.Empty(t, mock.Sent())
	assert.Equal(t, uint64(1), link.Stats().RxErrors)
}

func TestLinkShortPayloadAckedMalformed(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	mock.QueueInbound(TypeHotkey, []byte{0x01})
	_ = link.Poll()

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypeHotkeyAck, sent[0].Type)
	assert.Equal(t, []byte{byte(AckMalformed)}, sent[0].Payload)
}

func TestLinkBrokenAckNotAnswered(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	// A truncated acknowledgment must not trigger an acknowledgment of
	// its own.
	mock.QueueInbound(TypeHotkeyAck, nil)
	_ = link.Poll()

	assert.Empty(t, mock.Sent())
	assert.Equal(t, uint64(1), link.Stats().RxErrors)
}

func TestLinkObserverSeesUnackedTraffic(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	var seen []MessageType
	link.OnMessage(func(msg Message, _ *Inbound) {
		seen = append(seen, msg.Type())
	})

	require.NoError(t, mock.QueueMessage(&Stats{CPULoadPct: 12}))
	require.NoError(t, mock.QueueMessage(TimeSync{Unix: 100}))
	require.NoError(t, link.Poll())

	assert.Equal(t, []MessageType{TypeStats, TypeTimeSync}, seen)
	// Telemetry is never acknowledged.
	assert.Empty(t, mock.Sent())
}

func TestLinkPollErrorSurfaced(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.SetPollError(NewFrameCorruptedError("Poll", "mock"))

	err := link.Poll()
	require.ErrorIs(t, err, ErrFrameCorrupted)
	assert.Equal(t, uint64(1), link.Stats().RxErrors)

	// The cycle recovers on the next poll.
	require.NoError(t, link.Poll())
}

func TestLinkHeartbeatProbesIdleLink(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithHeartbeatInterval(5*time.Millisecond),
		WithAckTimeout(time.Second),
	)

	// Idle link, stale last-seen: the first cycle probes.
	require.NoError(t, link.Poll())
	assert.Equal(t, 1, mock.SentOfType(TypePing))
	assert.Equal(t, uint64(1), link.Stats().HeartbeatsSent)

	// The probe is still in flight, so the next interval must not
	// stack a second one.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, link.Poll())
	assert.Equal(t, 1, mock.SentOfType(TypePing))
}

func TestLinkHeartbeatSuppressedByTraffic(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithHeartbeatInterval(5*time.Millisecond))
	mock.SetLastSeen(time.Now())

	require.NoError(t, link.Poll())
	assert.Equal(t, 0, mock.SentOfType(TypePing))
}

func TestLinkHeartbeatFailureStaysSilent(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithHeartbeatInterval(2*time.Millisecond),
		WithAckTimeout(2*time.Millisecond),
		WithMaxAttempts(2),
	)

	var failures int
	link.OnDeliveryFailure(func(DeliveryFailure) { failures++ })

	pollUntil(t, link, func() bool { return link.Stats().DeliveryFailures >= 1 })

	// Lost probes report through link health, not the failure callback.
	assert.Equal(t, 0, failures)
	assert.GreaterOrEqual(t, mock.SentOfType(TypePing), 2)
}

func TestLinkHealthTransitions(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t,
		WithoutHeartbeat(),
		WithLinkTimeout(20*time.Millisecond),
	)

	var ups, downs int
	link.OnLinkUp(func() { ups++ })
	link.OnLinkDown(func() { downs++ })

	// Nothing heard yet: the link starts down and stays there without
	// a spurious transition.
	require.NoError(t, link.Poll())
	assert.Equal(t, 0, ups)
	assert.Equal(t, 0, downs)
	assert.False(t, link.Up())

	// First inbound traffic brings the link up.
	require.NoError(t, mock.QueueMessage(TimeSync{Unix: 1}))
	require.NoError(t, link.Poll())
	assert.Equal(t, 1, ups)
	assert.True(t, link.Up())

	// Silence past the timeout takes it down again.
	time.Sleep(25 * time.Millisecond)
	require.NoError(t, link.Poll())
	assert.Equal(t, 1, ups)
	assert.Equal(t, 1, downs)
	assert.False(t, link.Up())
}

func TestLinkRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t, WithoutHeartbeat(), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	// A second Run must refuse while the first is active.
	time.Sleep(5 * time.Millisecond)
	err := link.Run(ctx)
	require.Error(t, err)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestLinkRunDispatchesTraffic(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat(), WithPollInterval(time.Millisecond))

	received := make(chan Message, 1)
	link.Handle(TypeButton, func(msg Message, _ *Inbound) AckStatus {
		received <- msg
		return AckOK
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	require.NoError(t, mock.QueueMessage(Button{Page: 1, Widget: 3}))

	select {
	case msg := <-received:
		assert.Equal(t, Button{Page: 1, Widget: 3}, msg)
	case <-time.After(time.Second):
		t.Fatal("message not dispatched")
	}

	cancel()
	<-done
}

func TestSendAndWaitDelivered(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.EnableAutoAck(AckOK)

	status, err := link.SendHotkeyAndWait(context.Background(), 0x03, 0x3A)
	require.NoError(t, err)
	assert.Equal(t, AckOK, status)
	assert.Equal(t, 0, link.PendingCount())
}

func TestSendAndWaitStatusPropagated(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.EnableAutoAck(AckFailed)

	status, err := link.SendDDCAndWait(context.Background(), DDCCommand{
		VCP:    0x10,
		Value:  30,
		Adjust: DDCSet,
	})
	require.NoError(t, err)
	assert.Equal(t, AckFailed, status)
}

func TestSendAndWaitDeliveryFailure(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t,
		WithoutHeartbeat(),
		WithAckTimeout(2*time.Millisecond),
		WithMaxAttempts(2),
	)

	_, err := link.SendMediaKeyAndWait(context.Background(), 0x00CD)
	require.ErrorIs(t, err, ErrNoACK)
	assert.Equal(t, 0, link.PendingCount())

	// The waiter consumed the failure; the callback must stay quiet.
	assert.Equal(t, uint64(1), link.Stats().DeliveryFailures)
}

func TestSendAndWaitContextCancelled(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t,
		WithoutHeartbeat(),
		WithAckTimeout(time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := link.SendButtonAndWait(ctx, 0, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned message still times out internally without
	// panicking on its detached waiter.
	_ = link.Poll()
}

func TestSendAndWaitPreCancelled(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := link.SendHotkeyAndWait(ctx, 0x00, 0x04)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mock.Sent())
}

func TestSendAndWaitRejectsFireAndForget(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t, WithoutHeartbeat())

	_, err := link.sendAndWait(context.Background(), &Stats{})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSendAndWaitRefusedWhileRunning(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t, WithoutHeartbeat(), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()
	time.Sleep(5 * time.Millisecond)

	_, err := link.SendHotkeyAndWait(context.Background(), 0x00, 0x04)
	require.Error(t, err)

	cancel()
	<-done
}

func TestPingAndWait(t *testing.T) {
	t.Parallel()

	link, mock := newTestLink(t, WithoutHeartbeat())
	mock.EnableAutoAck(AckOK)

	rtt, err := link.PingAndWait(context.Background())
	require.NoError(t, err)
	assert.Positive(t, rtt)
	assert.Equal(t, 1, mock.SentOfType(TypePing))
}

func TestConnectLinkWithFactory(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.EnableAutoAck(AckOK)

	factory := func(path string) (Transport, error) {
		assert.Equal(t, "/dev/ttyUSB7", path)
		return mock, nil
	}

	link, err := ConnectLink("/dev/ttyUSB7",
		WithTransportFactory(factory),
		WithLinkOptions(WithoutHeartbeat()),
		WithConnectTimeout(time.Second),
	)
	require.NoError(t, err)
	defer func() { _ = link.Close() }()

	// The connection probe pinged the companion.
	assert.Equal(t, 1, mock.SentOfType(TypePing))
}

func TestConnectLinkWithTransportRetry(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.EnableAutoAck(AckOK)
	factory := func(string) (Transport, error) { return mock, nil }

	link, err := ConnectLink("port",
		WithTransportFactory(factory),
		WithTransportRetry(nil),
		WithLinkOptions(WithoutHeartbeat()),
		WithConnectTimeout(time.Second),
	)
	require.NoError(t, err)
	defer func() { _ = link.Close() }()

	// The link talks through the retry wrapper, not the raw transport.
	wrapper, ok := link.Transport().(*TransportWithRetry)
	require.True(t, ok)
	assert.Equal(t, TransportMock, wrapper.Type())
	assert.Equal(t, 1, mock.SentOfType(TypePing))
}

func TestConnectLinkSkipsProbeWithoutTimeout(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	factory := func(string) (Transport, error) { return mock, nil }

	link, err := ConnectLink("port",
		WithTransportFactory(factory),
		WithConnectTimeout(0),
	)
	require.NoError(t, err)
	defer func() { _ = link.Close() }()

	assert.Equal(t, 0, mock.SentOfType(TypePing))
}

func TestConnectLinkProbeFailure(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	factory := func(string) (Transport, error) { return mock, nil }

	_, err := ConnectLink("port",
		WithTransportFactory(factory),
		WithLinkOptions(
			WithAckTimeout(2*time.Millisecond),
			WithMaxAttempts(2),
		),
		WithConnectTimeout(200*time.Millisecond),
	)
	require.ErrorIs(t, err, ErrNoACK)
}

func TestConnectLinkRequiresFactory(t *testing.T) {
	t.Parallel()

	_, err := ConnectLink("port")
	require.Error(t, err)
}
