package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"thermavip/vip"
	"thermavip/vip/device"
)

// WebSocketSource is a Sequential driver reading JSON samples from a websocket feed
type WebSocketSource struct {
	url         string
	header      http.Header
	dialer      *websocket.Dialer
	idleTimeout time.Duration
	lastSample
}

type WebSocketOption func(*WebSocketSource)

func WithHeader(header http.Header) WebSocketOption {
	return func(w *WebSocketSource) { w.header = header }
}

func WithDialer(dialer *websocket.Dialer) WebSocketOption {
	return func(w *WebSocketSource) { w.dialer = dialer }
}

// WithIdleTimeout fails the stream when no message is received for d.
func WithIdleTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocketSource) { w.idleTimeout = d }
}

func NewWebSocketSource(rawURL string, opts ...WebSocketOption) *WebSocketSource {
	w := &WebSocketSource{url: rawURL, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebSocketSource) ClassName() string { return "WebSocket" }

func (w *WebSocketSource) URL() string { return w.url }

func (w *WebSocketSource) Type() device.Type { return device.Sequential }

func (w *WebSocketSource) SupportedModes() device.OpenMode { return device.ReadOnly }

func (w *WebSocketSource) Open(mode device.OpenMode) error {
	u, err := url.Parse(w.url)
	if err != nil {
		return fmt.Errorf("invalid websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid websocket url scheme %q", u.Scheme)
	}
	return nil
}

func (w *WebSocketSource) Close() error { return nil }

func (w *WebSocketSource) ReadData(t int64) (vip.Sample, error) {
	return w.read(t), nil
}

// Stream dials the feed and pushes every decoded message. Canceling ctx
// closes the connection.
func (w *WebSocketSource) Stream(ctx context.Context, sink device.Sink) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", w.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()
	sink.Connected()

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		if w.idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(w.idleTimeout)); err != nil {
				return err
			}
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("no message from %s for %s", w.url, w.idleTimeout)
			}
			return fmt.Errorf("read %s: %w", w.url, err)
		}
		s, err := DecodeSample(data)
		if err != nil {
			slog.Warn("Dropping invalid websocket message", "url", w.url, "err", err)
			continue
		}
		w.store(s)
		sink.Push(s)
	}
}
