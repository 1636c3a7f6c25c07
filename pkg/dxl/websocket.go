// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket bridge
var ErrConnectionClosed = errors.New("dxl: websocket connection closed")

// WebSocketConfig describes a serial-to-WebSocket bus bridge.
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// WebSocketPort tunnels raw bus bytes through a WebSocket bridge as binary
// messages. The bridge owns the transceiver, so there is no direction line
// on this side and Drain returns immediately.
type WebSocketPort struct {
	conn *websocket.Conn

	rx        chan []byte
	buf       []byte
	timeout   time.Duration
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// DialWebSocket connects to a bridge with optional HTTP Basic auth.
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocketPort, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocketPort(conn), nil
}

// NewWebSocketPort wraps an established connection and starts its reader.
func NewWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	p := &WebSocketPort{
		conn:    conn,
		rx:      make(chan []byte, 64),
		timeout: DefaultTimeout,
		done:    make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *WebSocketPort) readLoop() {
	defer close(p.rx)
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}

		// Only binary messages carry bus bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case p.rx <- data:
		case <-p.done:
			return
		}
	}
}

func (p *WebSocketPort) closedErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, p.err)
	}
	return ErrConnectionClosed
}

// Read returns buffered bridge data, waiting at most the read timeout.
// Like a serial port it returns 0, nil when the timeout expires.
func (p *WebSocketPort) Read(b []byte) (int, error) {
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}

	var expired <-chan time.Time
	if p.timeout >= 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-p.rx:
		if !ok {
			return 0, p.closedErr()
		}
		n := copy(b, data)
		p.buf = data[n:]
		return n, nil
	case <-expired:
		return 0, nil
	}
}

// Write sends b as one binary message
func (p *WebSocketPort) Write(b []byte) (int, error) {
	if err := p.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Drain is a no-op: the bridge transmits each message as a whole
func (p *WebSocketPort) Drain() error {
	return nil
}

// SetReadTimeout bounds Read. A negative timeout blocks until data arrives.
func (p *WebSocketPort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

// ResetInputBuffer drops everything received but not yet read
func (p *WebSocketPort) ResetInputBuffer() error {
	p.buf = nil
	for {
		select {
		case _, ok := <-p.rx:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

// Close closes the bridge connection
func (p *WebSocketPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}
