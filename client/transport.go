package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by a transport used before Connect or after Close
var ErrNotConnected = errors.New("not connected")

// Transport is the network side of a Client
type Transport interface {
	// Connect dials the server
	Connect(ctx context.Context) error

	// Close closes the connection
	Close() error

	// ReadMessage blocks until the next text message arrives
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text message. It is safe for concurrent use.
	WriteMessage(data []byte) error

	IsConnected() bool
}

// WebSocketTransport dials a thermavip daemon with gorilla/websocket
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer

	mu      sync.Mutex // guards conn and serializes writes
	conn    *websocket.Conn
	closing bool
}

// NewWebSocketTransport checks serverURL and returns an unconnected transport
func NewWebSocketTransport(serverURL string) (*WebSocketTransport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be ws or wss", serverURL)
	}
	return &WebSocketTransport{
		url:    serverURL,
		dialer: websocket.DefaultDialer,
	}, nil
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.closing = false
	t.mu.Unlock()
	return nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closing {
		return nil
	}
	t.closing = true
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

func (t *WebSocketTransport) ReadMessage() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}
	_, data, err := conn.ReadMessage()
	return data, err
}

func (t *WebSocketTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closing {
		return ErrNotConnected
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closing
}
