// Package client talks to a running thermavip daemon over its WebSocket API.
// It mirrors the pool state from the server notifications and exposes the
// playback commands as blocking calls.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"thermavip/protocol"
)

const defaultRequestTimeout = 10 * time.Second

var (
	ErrClosed  = errors.New("client closed")
	ErrTimeout = errors.New("timeout waiting for response")
)

// CommandError is a command the server answered with success=false
type CommandError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotificationHandler is called for every server notification, after the
// mirrored state has been updated
type NotificationHandler func(msg *protocol.Message)

type Option func(*Client)

// WithTimeout sets how long a command waits for its result
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithNotificationHandler(h NotificationHandler) Option {
	return func(c *Client) { c.onNotify = h }
}

// Client is a connection to one daemon
type Client struct {
	ctx       context.Context
	cancel    context.CancelFunc
	transport Transport
	timeout   time.Duration
	onNotify  NotificationHandler

	requestID  int
	pending    map[string]chan *protocol.Message
	pendingMux sync.Mutex

	state     mirror
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a client that will dial serverURL, a ws:// or wss:// URL
// ending in the daemon's /ws path
func New(ctx context.Context, serverURL string, opts ...Option) (*Client, error) {
	transport, err := NewWebSocketTransport(serverURL)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(ctx, transport, opts...), nil
}

func NewWithTransport(ctx context.Context, transport Transport, opts ...Option) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		ctx:       clientCtx,
		cancel:    cancel,
		transport: transport,
		timeout:   defaultRequestTimeout,
		pending:   make(map[string]chan *protocol.Message),
		state:     newMirror(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server and starts reading its messages
func (c *Client) Connect() error {
	if err := c.transport.Connect(c.ctx); err != nil {
		return fmt.Errorf("error connecting to WebSocket server: %w", err)
	}
	go c.listenForMessages()
	return nil
}

// WaitReady blocks until the initial state has been received
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the connection is lost or the client closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.cancel()
	return c.transport.Close()
}

func (c *Client) listenForMessages() {
	defer c.closeOnce.Do(func() { close(c.done) })
	defer c.cancel()

	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Debug("WebSocket read failed", "err", err)
			}
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			slog.Debug("Error parsing message", "err", err)
			continue
		}

		if msg.RequestID != "" {
			c.pendingMux.Lock()
			ch, ok := c.pending[msg.RequestID]
			delete(c.pending, msg.RequestID)
			c.pendingMux.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}
		c.handleNotification(msg)
	}
}

// sendRequest sends one command and returns the data of a successful result
func (c *Client) sendRequest(msgType protocol.MessageType, payload interface{}) (json.RawMessage, error) {
	c.pendingMux.Lock()
	c.requestID++
	requestID := fmt.Sprintf("req-%d", c.requestID)
	responseCh := make(chan *protocol.Message, 1)
	c.pending[requestID] = responseCh
	c.pendingMux.Unlock()

	forget := func() {
		c.pendingMux.Lock()
		delete(c.pending, requestID)
		c.pendingMux.Unlock()
	}

	data, err := protocol.CreateMessage(msgType, payload, requestID)
	if err != nil {
		forget()
		return nil, fmt.Errorf("error creating message: %w", err)
	}
	if err := c.transport.WriteMessage(data); err != nil {
		forget()
		return nil, fmt.Errorf("error sending %s: %w", msgType, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var response *protocol.Message
	select {
	case response = <-responseCh:
	case <-timer.C:
		forget()
		return nil, fmt.Errorf("%s: %w", msgType, ErrTimeout)
	case <-c.done:
		forget()
		return nil, ErrClosed
	}

	var result protocol.CommandResultPayload
	if err := protocol.ParsePayload(response, &result); err != nil {
		return nil, fmt.Errorf("error parsing %s result: %w", msgType, err)
	}
	if !result.Success {
		if result.Error == nil {
			return nil, &CommandError{Code: protocol.ErrorCodeInternalServerError, Message: "unknown error"}
		}
		return nil, &CommandError{Code: result.Error.Code, Message: result.Error.Message}
	}
	return result.Data, nil
}

func (c *Client) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}
