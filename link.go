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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NoobyNull/CrowDisplay-sub000/detection"
)

// Link timing defaults
const (
	// DefaultAckTimeout is how long a reliable message waits for its
	// acknowledgment before retransmitting.
	DefaultAckTimeout = 40 * time.Millisecond
	// DefaultMaxAttempts bounds transmissions per reliable message,
	// the first send included.
	DefaultMaxAttempts = 3
	// DefaultHeartbeatInterval paces liveness pings on an idle link.
	DefaultHeartbeatInterval = 500 * time.Millisecond
	// DefaultLinkTimeout is how much inbound silence marks the link down.
	DefaultLinkTimeout = 2 * time.Second
	// DefaultPendingLimit caps messages awaiting acknowledgment.
	DefaultPendingLimit = 8

	// maxInboundPerPoll bounds how many messages one Poll consumes so
	// a burst cannot starve retransmission and heartbeat work.
	maxInboundPerPoll = 32
)

// LinkConfig contains configuration options for the Link
type LinkConfig struct {
	// AckTimeout is the per-attempt wait for an acknowledgment.
	AckTimeout time.Duration
	// HeartbeatInterval paces liveness probes while the link is idle.
	HeartbeatInterval time.Duration
	// LinkTimeout is the silence window after which the link counts as
	// down.
	LinkTimeout time.Duration
	// PollInterval paces the Run loop.
	PollInterval time.Duration
	// MaxAttempts bounds transmissions per reliable message.
	MaxAttempts int
	// PendingLimit caps messages awaiting acknowledgment.
	PendingLimit int
	// Heartbeat enables automatic liveness probes.
	Heartbeat bool
	// ValidateOutbound runs ValidateMessage on outbound messages.
	ValidateOutbound bool
}

// DefaultLinkConfig returns default link configuration
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		AckTimeout:        DefaultAckTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		LinkTimeout:       DefaultLinkTimeout,
		PollInterval:      time.Millisecond,
		MaxAttempts:       DefaultMaxAttempts,
		PendingLimit:      DefaultPendingLimit,
		Heartbeat:         true,
	}
}

// Validate checks the configuration for usable values.
func (c *LinkConfig) Validate() error {
	if c.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive", ErrInvalidParameter)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidParameter)
	}
	if c.PendingLimit < 1 {
		return fmt.Errorf("%w: pending limit must be at least 1", ErrInvalidParameter)
	}
	return nil
}

// Handler processes one inbound message and returns the status for its
// acknowledgment. The return value is ignored for message types that
// are not acknowledged.
type Handler func(msg Message, in *Inbound) AckStatus

// DeliveryFailure describes a reliable message that exhausted its
// transmission attempts without an acknowledgment.
type DeliveryFailure struct {
	Err      error
	Seq      uint32
	Type     MessageType
	Attempts int
}

type ackResult struct {
	err    error
	status AckStatus
}

// pendingMessage is one reliable message awaiting its acknowledgment.
type pendingMessage struct {
	deadline time.Time
	waiter   chan ackResult
	payload  []byte
	seq      uint32
	typ      MessageType
	attempts int
	internal bool
}

// LinkStats counts link activity since construction.
type LinkStats struct {
	TxMessages       uint64
	TxRetries        uint64
	RxMessages       uint64
	RxAcks           uint64
	RxErrors         uint64
	RxUnknown        uint64
	AcksSent         uint64
	HeartbeatsSent   uint64
	DeliveryFailures uint64
}

// Link provides reliable message delivery on top of a Transport: it
// tracks acknowledgments, retransmits on timeout, emits heartbeats and
// watches link health.
//
// Acknowledgments carry no sequence number on the wire, so they
// complete pending messages strictly in first-in first-out order. That
// holds because both halves run a single outstanding conversation in
// practice; the PendingLimit exists to keep a misbehaving peer from
// growing the window.
//
// Thread Safety: Send methods, Stats and callback registration are safe
// from any goroutine. Poll (and therefore Run) must be driven from a
// single goroutine; callbacks fire on that goroutine.
type Link struct {
	lastPing time.Time

	transport Transport
	config    *LinkConfig

	handlers          map[MessageType]Handler
	onMessage         func(Message, *Inbound)
	onLinkUp          func()
	onLinkDown        func()
	onDeliveryFailure func(DeliveryFailure)

	pending []*pendingMessage
	nextSeq uint32

	stats LinkStats

	mu      sync.Mutex
	running atomic.Bool
	up      bool
}

// NewLink creates a new link over the given transport. Timing defaults
// come from the transport kind and can be overridden with options.
func NewLink(transport Transport, opts ...Option) (*Link, error) {
	link := &Link{
		transport: transport,
		handlers:  make(map[MessageType]Handler),
	}
	link.config = linkConfigFromParams(link.getOptimizedLinkParams())

	// Apply options
	for _, opt := range opts {
		if err := opt(link); err != nil {
			return nil, err
		}
	}

	if err := link.config.Validate(); err != nil {
		return nil, err
	}

	return link, nil
}

func linkConfigFromParams(params *OptimizedLinkParams) *LinkConfig {
	return &LinkConfig{
		AckTimeout:        params.AckTimeout,
		HeartbeatInterval: params.HeartbeatInterval,
		LinkTimeout:       params.LinkTimeout,
		PollInterval:      params.PollInterval,
		MaxAttempts:       params.MaxAttempts,
		PendingLimit:      DefaultPendingLimit,
		Heartbeat:         true,
	}
}

// Transport returns the underlying transport
func (l *Link) Transport() Transport {
	return l.transport
}

// Config returns a copy of the active configuration.
func (l *Link) Config() LinkConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.config
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Up reports the last computed link health.
func (l *Link) Up() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

// PendingCount returns how many reliable messages await acknowledgment.
func (l *Link) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Handle registers a handler for one message type. The handler's return
// value becomes the acknowledgment status for acknowledged types.
func (l *Link) Handle(typ MessageType, fn Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[typ] = fn
}

// OnMessage registers an observer invoked for every decoded inbound
// message after its handler ran. Acknowledgments are not observed.
func (l *Link) OnMessage(fn func(Message, *Inbound)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = fn
}

// OnLinkUp registers a callback for down-to-up health transitions.
func (l *Link) OnLinkUp(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLinkUp = fn
}

// OnLinkDown registers a callback for up-to-down health transitions.
func (l *Link) OnLinkDown(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLinkDown = fn
}

// OnDeliveryFailure registers a callback invoked exactly once for each
// reliable message that exhausted its attempts.
func (l *Link) OnDeliveryFailure(fn func(DeliveryFailure)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDeliveryFailure = fn
}

// Send queues one message for delivery. Acknowledged types are tracked
// and retransmitted until acknowledged or the attempt budget runs out;
// everything else is fire and forget. The returned sequence number
// identifies the message in delivery failure callbacks and is zero for
// fire-and-forget types.
func (l *Link) Send(msg Message) (uint32, error) {
	if l.config.ValidateOutbound {
		if err := ValidateMessage(msg); err != nil {
			return 0, err
		}
	}
	typ, payload, err := EncodeMessage(msg)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sendLocked(typ, payload, false, nil)
}

// SendHotkey sends a modifier+keycode chord.
func (l *Link) SendHotkey(modifiers, keycode byte) (uint32, error) {
	return l.Send(Hotkey{Modifiers: modifiers, Keycode: keycode})
}

// SendMediaKey sends a consumer-control usage.
func (l *Link) SendMediaKey(usage uint16) (uint32, error) {
	return l.Send(MediaKey{Usage: usage})
}

// SendButton sends a raw widget press.
func (l *Link) SendButton(page, widget byte) (uint32, error) {
	return l.Send(Button{Page: page, Widget: widget})
}

// SendPowerState requests a host power transition.
func (l *Link) SendPowerState(mode PowerMode) (uint32, error) {
	return l.Send(PowerState{Mode: mode})
}

// SendDDC sends a monitor control adjustment.
func (l *Link) SendDDC(cmd DDCCommand) (uint32, error) {
	return l.Send(cmd)
}

// SendPing sends a liveness probe.
func (l *Link) SendPing() (uint32, error) {
	return l.Send(Ping{})
}

// SendStats pushes a telemetry report, fire and forget.
func (l *Link) SendStats(s *Stats) error {
	_, err := l.Send(s)
	return err
}

// SendTimeSync distributes the given wall-clock time, fire and forget.
func (l *Link) SendTimeSync(t time.Time) error {
	_, err := l.Send(TimeSync{Unix: uint32(t.Unix())})
	return err
}

// sendLocked transmits one message and tracks it when its type is
// acknowledged. Callers hold l.mu.
func (l *Link) sendLocked(typ MessageType, payload []byte, internal bool, waiter chan ackResult) (uint32, error) {
	if !typ.Acked() {
		if err := l.transport.Send(typ, payload); err != nil {
			return 0, err
		}
		l.stats.TxMessages++
		return 0, nil
	}

	if len(l.pending) >= l.config.PendingLimit {
		return 0, fmt.Errorf("%w: %d messages awaiting acknowledgment", ErrQueueFull, len(l.pending))
	}

	if err := l.transport.Send(typ, payload); err != nil {
		return 0, err
	}

	l.nextSeq++
	seq := l.nextSeq
	l.stats.TxMessages++
	l.pending = append(l.pending, &pendingMessage{
		deadline: time.Now().Add(l.config.AckTimeout),
		waiter:   waiter,
		payload:  payload,
		seq:      seq,
		typ:      typ,
		attempts: 1,
		internal: internal,
	})
	return seq, nil
}

// Poll runs one link cycle: drain inbound traffic, retransmit overdue
// messages, emit the heartbeat and update link health. Returns the
// first receive error of the cycle, if any; the cycle completes either
// way.
func (l *Link) Poll() error {
	rxErr := l.drainInbound()
	failures := l.sweepPending()
	l.emitHeartbeat()
	transition := l.updateHealth()

	for _, failure := range failures {
		l.mu.Lock()
		cb := l.onDeliveryFailure
		l.mu.Unlock()
		if cb != nil {
			cb(failure)
		}
	}
	if transition != nil {
		transition()
	}

	return rxErr
}

// Run polls the link until the context ends. Callbacks fire on this
// goroutine. Returns the context's error on cancellation.
func (l *Link) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("link is already running")
	}
	defer l.running.Store(false)

	interval := l.config.PollInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Poll(); err != nil {
				debugf("link poll: %v", err)
			}
		}
	}
}

// drainInbound consumes buffered inbound messages up to the per-cycle
// budget.
func (l *Link) drainInbound() error {
	var firstErr error
	for i := 0; i < maxInboundPerPoll; i++ {
		in, err := l.transport.Poll()
		if err != nil {
			l.mu.Lock()
			l.stats.RxErrors++
			l.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if in == nil {
			break
		}
		l.dispatch(in)
	}
	return firstErr
}

// dispatch routes one inbound message: acknowledgments complete pending
// sends, everything else goes through the handler registry and gets
// acknowledged when its type demands it.
func (l *Link) dispatch(in *Inbound) {
	msg, err := DecodeMessage(in.Type, in.Payload)
	if err != nil {
		debugf("inbound %s: %v", in.Type, err)

		// A type this build does not know is a newer peer talking,
		// not an error. Drop it silently so the FIFO ack order stays
		// aligned with what the peer actually sent.
		if errors.Is(err, ErrUnknownType) {
			l.mu.Lock()
			l.stats.RxUnknown++
			l.mu.Unlock()
			return
		}

		l.mu.Lock()
		l.stats.RxErrors++
		l.mu.Unlock()

		// Tell the peer not to keep retrying something we will never
		// decode. Only types that expect a reply get one; a broken
		// acknowledgment or a mangled fire-and-forget frame does not.
		if in.Type.Acked() {
			l.sendAck(AckMalformed)
		}
		return
	}

	if ack, ok := msg.(HotkeyAck); ok {
		l.completeOldest(ack)
		return
	}

	l.mu.Lock()
	l.stats.RxMessages++
	handler := l.handlers[in.Type]
	observer := l.onMessage
	l.mu.Unlock()

	status := AckOK
	if handler != nil {
		status = handler(msg, in)
	}
	if observer != nil {
		observer(msg, in)
	}

	if in.Type.Acked() {
		l.sendAck(status)
	}
}

// completeOldest matches an acknowledgment to the oldest pending
// message. Stale acknowledgments with nothing outstanding are dropped.
func (l *Link) completeOldest(ack HotkeyAck) {
	l.mu.Lock()
	l.stats.RxAcks++
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	p := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	l.mu.Unlock()

	if p.waiter != nil {
		p.waiter <- ackResult{status: ack.Status}
	}
}

// sendAck answers the peer, fire and forget. A lost acknowledgment is
// recovered by the peer's own retransmit.
func (l *Link) sendAck(status AckStatus) {
	typ, payload, err := EncodeMessage(HotkeyAck{Status: status})
	if err != nil {
		return
	}
	if err := l.transport.Send(typ, payload); err != nil {
		debugf("ack send: %v", err)
		return
	}
	l.mu.Lock()
	l.stats.AcksSent++
	l.mu.Unlock()
}

// sweepPending retransmits overdue messages and collects the ones that
// exhausted their attempts. Failures surface exactly once, either to
// the message's waiter or through the collected callbacks.
func (l *Link) sweepPending() []DeliveryFailure {
	now := time.Now()
	var failures []DeliveryFailure

	l.mu.Lock()
	keep := l.pending[:0]
	for _, p := range l.pending {
		if now.Before(p.deadline) {
			keep = append(keep, p)
			continue
		}

		if p.attempts >= l.config.MaxAttempts {
			l.stats.DeliveryFailures++
			err := fmt.Errorf("%w: %s after %d attempts", ErrNoACK, p.typ, p.attempts)
			switch {
			case p.waiter != nil:
				p.waiter <- ackResult{err: err}
			case p.internal:
				// Heartbeat probes report through link health instead.
			default:
				failures = append(failures, DeliveryFailure{
					Err:      err,
					Seq:      p.seq,
					Type:     p.typ,
					Attempts: p.attempts,
				})
			}
			continue
		}

		p.attempts++
		p.deadline = now.Add(l.config.AckTimeout)
		l.stats.TxRetries++
		if err := l.transport.Send(p.typ, p.payload); err != nil {
			debugf("retransmit %s seq %d: %v", p.typ, p.seq, err)
		}
		keep = append(keep, p)
	}
	for i := len(keep); i < len(l.pending); i++ {
		l.pending[i] = nil
	}
	l.pending = keep
	l.mu.Unlock()

	return failures
}

// emitHeartbeat sends a liveness probe when the link has been quiet for
// a full heartbeat interval.
func (l *Link) emitHeartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.config.Heartbeat {
		return
	}
	now := time.Now()
	if now.Sub(l.lastPing) < l.config.HeartbeatInterval {
		return
	}
	l.lastPing = now

	// Fresh inbound traffic already proves the link.
	if l.transport.LinkState().Up(l.config.HeartbeatInterval) {
		return
	}
	// One probe in flight at a time.
	for _, p := range l.pending {
		if p.internal {
			return
		}
	}

	typ, payload, err := EncodeMessage(Ping{})
	if err != nil {
		return
	}
	if _, err := l.sendLocked(typ, payload, true, nil); err != nil {
		debugf("heartbeat: %v", err)
		return
	}
	l.stats.HeartbeatsSent++
}

// updateHealth recomputes link health and returns the transition
// callback to fire, if any.
func (l *Link) updateHealth() func() {
	up := l.transport.LinkState().Up(l.config.LinkTimeout)

	l.mu.Lock()
	defer l.mu.Unlock()
	if up == l.up {
		return nil
	}
	l.up = up
	if up {
		return l.onLinkUp
	}
	return l.onLinkDown
}

// Close closes the link's transport. Messages still awaiting
// acknowledgment are dropped without a failure callback.
func (l *Link) Close() error {
	if l.transport != nil {
		if err := l.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectLink
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for link connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	retry                  *RetryConfig
	linkOptions            []Option
	timeout                time.Duration
	autoDetect             bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithLinkOptions adds link-level options
func WithLinkOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.linkOptions = append(c.linkOptions, opts...)
		return nil
	}
}

// WithConnectTimeout bounds the peer liveness check performed after the
// link comes up. Zero skips the check.
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithTransportRetry wraps the opened transport in a TransportWithRetry
// so transient send failures are retried below the link's own
// acknowledgment loop. A nil config uses DefaultRetryConfig.
func WithTransportRetry(config *RetryConfig) ConnectOption {
	return func(c *connectConfig) error {
		if config == nil {
			config = DefaultRetryConfig()
		}
		c.retry = config
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		timeout: 5 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

func createTransport(path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(config.transportDeviceFactory)
	}
	return createManualTransport(path, config.transportFactory)
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of companion devices
func createAutoDetectedTransport(factory TransportFromDeviceFactory) (Transport, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	devices, err := detection.DetectAll(&opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	// Use the first detected device
	device := devices[0]
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(device)
}

// ConnectLink creates a link from a port path or auto-detection. This
// is a high-level convenience that handles transport creation, link
// setup and an optional peer liveness check.
//
// Example usage:
//
//	// Connect to a specific companion port
//	link, err := crowlink.ConnectLink("/dev/ttyUSB0",
//		crowlink.WithTransportFactory(factory))
//
//	// Auto-detect the companion
//	link, err := crowlink.ConnectLink("",
//		crowlink.WithAutoDetection(),
//		crowlink.WithTransportFromDeviceFactory(deviceFactory))
func ConnectLink(path string, opts ...ConnectOption) (*Link, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	transport, err := createTransport(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if config.retry != nil {
		transport = NewTransportWithRetry(transport, config.retry)
	}

	link, err := NewLink(transport, config.linkOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	// Let the device settle after open before talking to it. USB-CDC
	// adapters in particular drop the first bytes written too early.
	if delay := stabilizationDelay(transport); delay > 0 {
		time.Sleep(delay)
	}

	if config.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), config.timeout)
		defer cancel()
		if _, err := probePeer(ctx, link); err != nil {
			_ = link.Close()
			return nil, fmt.Errorf("companion not answering: %w", err)
		}
	}

	return link, nil
}

// stabilizationDelay returns the settle time the transport wants after
// open, preferring the transport's own answer over the per-kind default.
func stabilizationDelay(t Transport) time.Duration {
	if optimizer, ok := t.(TransportOptimizer); ok {
		return optimizer.GetStabilizationDelay()
	}
	switch t.Type() {
	case TransportSerial:
		return getSerialOptimizedParams().StabilizationDelay
	case TransportRadio:
		return getRadioOptimizedParams().StabilizationDelay
	case TransportMock:
		return 0
	default:
		return getDefaultOptimizedParams().StabilizationDelay
	}
}

// probePeer pings the peer once to confirm it answers.
func probePeer(ctx context.Context, link *Link) (AckStatus, error) {
	return link.sendAndWait(ctx, Ping{})
}
