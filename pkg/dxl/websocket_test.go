// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newBridge starts a bridge that answers every v2 request like a device
// would, splitting the reply across two binary messages. Replies are not
// sent when silent is set.
func newBridge(t *testing.T, silent bool) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage || silent {
				continue
			}
			req, err := DecodeRequest(V2, data)
			if err != nil {
				continue
			}
			reply, _ := EncodeStatus(&Status{Revision: V2, ID: req.ID, Params: []byte{0x06, 0x04, 0x26}})

			_ = c.WriteMessage(websocket.TextMessage, []byte("bridge status"))
			_ = c.WriteMessage(websocket.BinaryMessage, reply[:5])
			_ = c.WriteMessage(websocket.BinaryMessage, reply[5:])
		}
	}))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialBridge(t *testing.T, url string) *WebSocketPort {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := DialWebSocket(ctx, WebSocketConfig{URL: url, Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatalf("DialWebSocket error: %v", err)
	}
	t.Cleanup(func() { port.Close() })
	return port
}

func TestWebSocketPort_Ping(t *testing.T) {
	_, url := newBridge(t, false)
	port := dialBridge(t, url)

	tr := NewSerialTransport(port, nil, time.Second, 0)
	conn := newTestConn(t, tr, DefaultConfig(V2))

	info, err := conn.Ping(7)
	if err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	if info.ID != 7 || info.ModelNumber != 1030 || info.Firmware != 38 {
		t.Errorf("info = %+v", info)
	}
}

func TestWebSocketPort_SilentBridgeTimesOut(t *testing.T) {
	_, url := newBridge(t, true)
	port := dialBridge(t, url)

	tr := NewSerialTransport(port, nil, 30*time.Millisecond, 0)
	conn := newTestConn(t, tr, DefaultConfig(V2))

	if _, err := conn.Ping(1); !errors.Is(err, ErrTimeout) {
		t.Errorf("Ping error = %v, want ErrTimeout", err)
	}
}

func TestWebSocketPort_ReadAfterClose(t *testing.T) {
	_, url := newBridge(t, true)
	port := dialBridge(t, url)

	if err := port.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	_ = port.SetReadTimeout(time.Second)

	buf := make([]byte, 8)
	if _, err := port.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Read error = %v, want ErrConnectionClosed", err)
	}
}

func TestDialWebSocket_Errors(t *testing.T) {
	_, url := newBridge(t, false)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  WebSocketConfig
		want string
	}{
		{"bad scheme", WebSocketConfig{URL: "http://localhost:1"}, "unsupported URL scheme"},
		{"bad password", WebSocketConfig{URL: url, Username: "admin", Password: "nope"}, "HTTP 401"},
		{"no credentials", WebSocketConfig{URL: url}, "HTTP 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DialWebSocket(ctx, tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("DialWebSocket error = %v, want %q", err, tt.want)
			}
		})
	}
}
