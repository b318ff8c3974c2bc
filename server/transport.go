package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must stay below pongWait

	// sendQueueSize is how many messages may wait for a slow client before it is dropped
	sendQueueSize = 64
	// maxMessageSize bounds the commands read from a client
	maxMessageSize = 64 * 1024
)

var (
	// ErrClientNotFound is returned when sending to an unknown connection
	ErrClientNotFound = errors.New("client not found")
	// ErrSendQueueFull is returned when a client does not keep up; the client is dropped
	ErrSendQueueFull = errors.New("send queue full")
)

// WebSocketTransport abstracts the network layer of the WebSocket server
type WebSocketTransport interface {
	// Start starts serving. It blocks until the server stops.
	Start(options StartOptions) error

	// Stop shuts the server down
	Stop() error

	// SetMessageHandler sets the handler called for every message received from a client
	SetMessageHandler(handler func(connID string, message []byte) error)

	// SetConnectHandler sets the handler called when a client connects
	SetConnectHandler(handler func(connID string) error)

	// SetDisconnectHandler sets the handler called when a client disconnects
	SetDisconnectHandler(handler func(connID string))

	// SendMessage queues a message for one client
	SendMessage(connID string, message []byte) error

	// BroadcastMessage queues a message for every connected client
	BroadcastMessage(message []byte) error
}

// peer is one connected client. Messages are queued on send and written by
// writePump, the only writer of conn besides control frames.
type peer struct {
	conn     *websocket.Conn
	send     chan []byte
	gone     chan struct{}
	goneOnce sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		gone: make(chan struct{}),
	}
}

func (p *peer) enqueue(message []byte) error {
	select {
	case <-p.gone:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case p.send <- message:
		return nil
	case <-p.gone:
		return websocket.ErrCloseSent
	default:
		return ErrSendQueueFull
	}
}

func (p *peer) leave() {
	p.goneOnce.Do(func() { close(p.gone) })
}

// writePump drains the queue and pings the client until it leaves. A failed
// write closes the connection, which ends the read loop.
func (p *peer) writePump(connID string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.gone:
			return
		case message := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isConnectionClosedError(err) {
					slog.Warn("Write to client failed", "connID", connID, "err", err)
				}
				_ = p.conn.Close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("Ping failed", "connID", connID, "err", err)
				_ = p.conn.Close()
				return
			}
		}
	}
}

// DefaultWebSocketTransport is the default WebSocketTransport. The WebSocket
// endpoint is served on /ws; other handlers can be mounted on the same router.
type DefaultWebSocketTransport struct {
	ctx               context.Context
	cancel            context.CancelFunc
	server            *http.Server
	router            chi.Router
	upgrader          websocket.Upgrader
	clients           map[string]*peer
	clientsMutex      sync.RWMutex
	messageHandler    func(connID string, message []byte) error
	connectHandler    func(connID string) error
	disconnectHandler func(connID string)
}

// NewDefaultWebSocketTransport creates a transport listening on addr
func NewDefaultWebSocketTransport(ctx context.Context, addr string) *DefaultWebSocketTransport {
	transportCtx, cancel := context.WithCancel(ctx)

	transport := &DefaultWebSocketTransport{
		ctx:    transportCtx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins for development
				return true
			},
		},
		clients: make(map[string]*peer),
	}

	router := chi.NewRouter()
	router.Get("/ws", transport.handleWebSocket)
	transport.router = router

	transport.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return transport
}

// Router returns the router serving /ws
func (t *DefaultWebSocketTransport) Router() chi.Router {
	return t.router
}

// Handler returns the HTTP handler of the transport
func (t *DefaultWebSocketTransport) Handler() http.Handler {
	return t.router
}

// SetupStaticFileServer serves webRoot on every path not otherwise routed
func (t *DefaultWebSocketTransport) SetupStaticFileServer(webRoot string) error {
	if webRoot == "" {
		return nil
	}

	if _, err := os.Stat(webRoot); os.IsNotExist(err) {
		return fmt.Errorf("webroot directory '%s' not found: %v", webRoot, err)
	}

	t.router.Handle("/*", http.FileServer(http.Dir(webRoot)))
	slog.Info("Static file server configured", "webroot", webRoot)
	return nil
}

// Start binds the listener and serves until Stop
func (t *DefaultWebSocketTransport) Start(options StartOptions) error {
	listener, err := net.Listen("tcp", t.server.Addr)
	if err != nil {
		return err
	}
	if options.Ready != nil {
		options.Ready <- listener.Addr()
		close(options.Ready)
	}
	slog.Info("WebSocket server starting", "addr", listener.Addr().String())

	if options.CertFile != "" && options.KeyFile != "" {
		slog.Info("Using TLS with certificate", "certFile", options.CertFile)
		err = t.server.ServeTLS(listener, options.CertFile, options.KeyFile)
	} else {
		err = t.server.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down and closes every client connection
func (t *DefaultWebSocketTransport) Stop() error {
	slog.Info("Stopping WebSocket server", "addr", t.server.Addr)
	t.cancel()

	t.clientsMutex.RLock()
	peers := make([]*peer, 0, len(t.clients))
	for _, p := range t.clients {
		peers = append(peers, p)
	}
	t.clientsMutex.RUnlock()

	closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")
	for _, p := range peers {
		p.leave()
		_ = p.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))
		_ = p.conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.server.Shutdown(ctx)
	if err != nil {
		slog.Info("Error shutting down WebSocket server", "err", err)
	}
	return err
}

func (t *DefaultWebSocketTransport) SetMessageHandler(handler func(connID string, message []byte) error) {
	t.messageHandler = handler
}

func (t *DefaultWebSocketTransport) SetConnectHandler(handler func(connID string) error) {
	t.connectHandler = handler
}

func (t *DefaultWebSocketTransport) SetDisconnectHandler(handler func(connID string)) {
	t.disconnectHandler = handler
}

// ClientCount returns the number of connected clients
func (t *DefaultWebSocketTransport) ClientCount() int {
	t.clientsMutex.RLock()
	defer t.clientsMutex.RUnlock()
	return len(t.clients)
}

// isConnectionClosedError tells whether err means the client is gone
func isConnectionClosedError(err error) bool {
	switch {
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrSendQueueFull),
		errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrCloseSent):
		return true
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

func (t *DefaultWebSocketTransport) register(connID string, p *peer) {
	t.clientsMutex.Lock()
	t.clients[connID] = p
	t.clientsMutex.Unlock()
}

// unregister forgets a client and reports the disconnection, except during
// shutdown. It returns false when the client was already gone.
func (t *DefaultWebSocketTransport) unregister(connID string) bool {
	t.clientsMutex.Lock()
	p, ok := t.clients[connID]
	delete(t.clients, connID)
	t.clientsMutex.Unlock()
	if !ok {
		return false
	}
	p.leave()

	if t.ctx.Err() == nil && t.disconnectHandler != nil {
		t.disconnectHandler(connID)
	}
	return true
}

// drop disconnects a client that can no longer be written to
func (t *DefaultWebSocketTransport) drop(connID string, p *peer, reason error) {
	_ = p.conn.Close()
	if t.unregister(connID) {
		slog.Warn("Dropped WebSocket client", "connID", connID, "reason", reason)
	}
}

func (t *DefaultWebSocketTransport) SendMessage(connID string, message []byte) error {
	t.clientsMutex.RLock()
	p, ok := t.clients[connID]
	t.clientsMutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, connID)
	}

	if err := p.enqueue(message); err != nil {
		if errors.Is(err, ErrSendQueueFull) {
			t.drop(connID, p, err)
		}
		return fmt.Errorf("send to client %s: %w", connID, err)
	}
	return nil
}

func (t *DefaultWebSocketTransport) BroadcastMessage(message []byte) error {
	t.clientsMutex.RLock()
	peers := make(map[string]*peer, len(t.clients))
	for connID, p := range t.clients {
		peers[connID] = p
	}
	t.clientsMutex.RUnlock()

	for connID, p := range peers {
		if err := p.enqueue(message); errors.Is(err, ErrSendQueueFull) {
			t.drop(connID, p, err)
		}
	}
	return nil
}

func (t *DefaultWebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error upgrading to WebSocket", "err", err,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.Header.Get("User-Agent"))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	p := newPeer(conn)
	t.register(connID, p)
	defer t.unregister(connID)
	go p.writePump(connID)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if t.connectHandler != nil {
		if err := t.connectHandler(connID); err != nil {
			slog.Error("Error in connect handler", "connID", connID, "err", err)
			return
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				slog.Error("Unexpected WebSocket close error", "connID", connID, "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if t.messageHandler != nil {
			if err := t.messageHandler(connID, message); err != nil && !isConnectionClosedError(err) {
				slog.Error("Error in message handler", "connID", connID, "err", err)
			}
		}
	}
}
