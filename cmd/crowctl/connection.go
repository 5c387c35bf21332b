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

package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/NoobyNull/CrowDisplay-sub000/detection"
	// Import the detector so auto-detection can find the companion.
	_ "github.com/NoobyNull/CrowDisplay-sub000/detection/uart"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/frame"
	"github.com/NoobyNull/CrowDisplay-sub000/transport/serial"
	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

// openTransport opens the transport the connection flags describe:
// websocket when --url is set, the named serial port when --port is
// set, otherwise the best auto-detected companion port.
func openTransport() (crowlink.Transport, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = getPassword()
			if err != nil {
				return nil, "", err
			}
		}
		transport, err := openWebSocketTransport(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return transport, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	path := portName
	if path == "" {
		opts := detection.DefaultOptions()
		opts.Mode = detection.Safe
		device, err := detection.Detect(context.Background(), &opts)
		if err != nil {
			return nil, "", fmt.Errorf("no --port or --url given and auto-detection failed: %w", err)
		}
		path = device.Path
		log.Debugf("auto-detected %s (%s)", device.Path, device.Name)
	}

	transport, err := serial.New(path, serial.WithBaudRate(baudRate))
	if err != nil {
		return nil, "", err
	}
	return transport, fmt.Sprintf("Serial: %s @ %d", path, baudRate), nil
}

// openLink is openTransport plus link construction, shared by the
// traffic-touching subcommands.
func openLink(opts ...crowlink.Option) (*crowlink.Link, string, error) {
	transport, info, err := openTransport()
	if err != nil {
		return nil, "", err
	}
	link, err := crowlink.NewLink(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, "", err
	}
	return link, info, nil
}

// getPassword retrieves the websocket password from the environment or
// prompts for it without echo.
func getPassword() (string, error) {
	if pw := os.Getenv("CROWCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// wsTransport adapts a websocket bridge to the crowlink Transport
// interface. Each binary websocket message carries serial-format wire
// frames; a reader goroutine parses them and buffers the results so
// Poll never blocks.
type wsTransport struct {
	lastSeen time.Time
	conn     *websocket.Conn
	inbound  chan *crowlink.Inbound
	done     chan struct{}
	readErr  error
	url      string
	mu       sync.Mutex
	reported bool
	closed   bool
}

const wsInboundDepth = 32

func openWebSocketTransport(rawURL, username, password string, skipSSLVerify bool) (*wsTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify, //nolint:gosec // operator opt-in via --no-ssl-verify
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	t := &wsTransport{
		conn:    conn,
		inbound: make(chan *crowlink.Inbound, wsInboundDepth),
		done:    make(chan struct{}),
		url:     rawURL,
	}
	go t.readLoop()
	return t, nil
}

// readLoop parses binary websocket messages into frames until the
// connection fails. Non-binary messages are skipped.
func (t *wsTransport) readLoop() {
	defer close(t.done)
	parser := frame.NewParser()

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.readErr = err
			}
			t.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		parser.Feed(data)
		for {
			f, err := parser.Poll()
			if err != nil {
				log.Debugf("websocket frame: %v", err)
				continue
			}
			if f == nil {
				break
			}
			in := &crowlink.Inbound{
				At:      time.Now(),
				Type:    crowlink.MessageType(f.Type),
				Payload: append([]byte(nil), f.Payload...),
			}
			t.mu.Lock()
			t.lastSeen = in.At
			t.mu.Unlock()
			select {
			case t.inbound <- in:
			default:
				// Bridge is outrunning the consumer; drop new, same
				// as the radio ring.
				log.Debugf("websocket inbound buffer full, dropping %s", in.Type)
			}
		}
	}
}

func (t *wsTransport) Send(typ crowlink.MessageType, payload []byte) error {
	buf, err := frame.Encode(byte(typ), payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return crowlink.NewTransportNotReadyError("Send", t.url)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return crowlink.NewTransportError("Send", t.url, err, crowlink.ErrorTypeTransient)
	}
	return nil
}

func (t *wsTransport) Poll() (*crowlink.Inbound, error) {
	select {
	case in := <-t.inbound:
		return in, nil
	default:
	}

	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.readErr != nil && !t.reported {
			t.reported = true
			return nil, crowlink.NewTransportError("Poll", t.url, t.readErr, crowlink.ErrorTypePermanent)
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func (t *wsTransport) LinkState() crowlink.LinkState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return crowlink.LinkState{LastSeen: t.lastSeen}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close()
	<-t.done
	return err
}

func (*wsTransport) Type() crowlink.TransportKind {
	return crowlink.TransportSerial
}

var _ crowlink.Transport = (*wsTransport)(nil)
