package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"thermavip/protocol"
	"thermavip/vip/archive"
	"thermavip/vip/pool"
)

// StartOptions holds the options of WebSocketServer.Start
type StartOptions struct {
	// TLS certificate file (TLS is used when both files are set)
	CertFile string
	// TLS private key file
	KeyFile string
	// Ready receives the bound address, then is closed, once the listener is up
	Ready chan net.Addr
}

// StateOptions configures the save_state command
type StateOptions struct {
	Filename string
	Format   archive.Format
}

// WebSocketServer bridges a playback pool to WebSocket clients
type WebSocketServer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	transport   WebSocketTransport
	pools       *pool.Registry
	pool        *pool.Pool
	state       StateOptions
	startupTime time.Time
	done        chan struct{}
	stopOnce    sync.Once
}

// NewWebSocketServer creates a WebSocket server for p. pools is used by
// save_state and may be nil.
func NewWebSocketServer(ctx context.Context, transport WebSocketTransport, p *pool.Pool, pools *pool.Registry, state StateOptions) *WebSocketServer {
	serverCtx, cancel := context.WithCancel(ctx)

	ws := &WebSocketServer{
		ctx:         serverCtx,
		cancel:      cancel,
		transport:   transport,
		pools:       pools,
		pool:        p,
		state:       state,
		startupTime: time.Now(),
		done:        make(chan struct{}),
	}

	transport.SetConnectHandler(ws.handleClientConnect)
	transport.SetMessageHandler(ws.handleClientMessage)
	transport.SetDisconnectHandler(ws.handleClientDisconnect)

	events, unsubscribe := p.Subscribe(256)
	go func() {
		defer close(ws.done)
		defer unsubscribe()
		ws.listenForNotifications(events)
	}()

	return ws
}

func (ws *WebSocketServer) handleClientConnect(connID string) error {
	slog.Debug("New WebSocket connection established", "connID", connID)
	return ws.sendInitialStateToClient(connID)
}

func (ws *WebSocketServer) handleClientDisconnect(connID string) {
	slog.Debug("WebSocket connection closed", "connID", connID)
}

// handleClientMessage dispatches a client command and answers with a command_result
func (ws *WebSocketServer) handleClientMessage(connID string, message []byte) error {
	msg, err := protocol.ParseMessage(message)
	if err != nil {
		slog.Warn("Error parsing message", "err", err, "connID", connID)
		result := ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing message: %v", err)
		return ws.sendMessageToClient(connID, protocol.MessageTypeCommandResult, result, "")
	}

	var result protocol.CommandResultPayload
	switch msg.Type {
	case protocol.MessageTypePlay:
		result = ws.handlePlayFromClient(msg)
	case protocol.MessageTypeStop:
		result = ws.handleStopFromClient(msg)
	case protocol.MessageTypeSeek:
		result = ws.handleSeekFromClient(msg)
	case protocol.MessageTypeSeekPos:
		result = ws.handleSeekPosFromClient(msg)
	case protocol.MessageTypeNext:
		result = ws.handleStepFromClient(ws.pool.Next)
	case protocol.MessageTypePrevious:
		result = ws.handleStepFromClient(ws.pool.Previous)
	case protocol.MessageTypeFirst:
		result = ws.handleStepFromClient(ws.pool.First)
	case protocol.MessageTypeLast:
		result = ws.handleStepFromClient(ws.pool.Last)
	case protocol.MessageTypeSetSpeed:
		result = ws.handleSetSpeedFromClient(msg)
	case protocol.MessageTypeSetMode:
		result = ws.handleSetModeFromClient(msg)
	case protocol.MessageTypeSetLimits:
		result = ws.handleSetLimitsFromClient(msg)
	case protocol.MessageTypeStreaming:
		result = ws.handleStreamingFromClient(msg)
	case protocol.MessageTypeListDevices:
		result = ws.handleListDevicesFromClient(msg)
	case protocol.MessageTypeEnableDevice:
		result = ws.handleEnableDeviceFromClient(msg)
	case protocol.MessageTypeSaveState:
		result = ws.handleSaveStateFromClient(msg)
	default:
		slog.Warn("Unknown message type", "type", msg.Type)
		result = ErrorResponse(protocol.ErrorCodeUnknownCommand, "Unknown message type: %s", msg.Type)
	}
	return ws.sendMessageToClient(connID, protocol.MessageTypeCommandResult, result, msg.RequestID)
}

// Start serves until Stop is called
func (ws *WebSocketServer) Start(options StartOptions) error {
	return ws.transport.Start(options)
}

// Stop stops the notification listener and the transport
func (ws *WebSocketServer) Stop() error {
	var err error
	ws.stopOnce.Do(func() {
		ws.cancel()
		<-ws.done
		err = ws.transport.Stop()
	})
	return err
}

func (ws *WebSocketServer) initialState() protocol.InitialStatePayload {
	return protocol.InitialStatePayload{
		Pool:              protocol.PoolToProtocol(ws.pool),
		Devices:           protocol.DevicesToProtocol(ws.pool),
		ServerStartupTime: ws.startupTime,
	}
}

func (ws *WebSocketServer) sendInitialStateToClient(connID string) error {
	return ws.sendMessageToClient(connID, protocol.MessageTypeInitialState, ws.initialState(), "")
}

func (ws *WebSocketServer) sendMessageToClient(connID string, msgType protocol.MessageType, payload interface{}, requestID string) error {
	data, err := protocol.CreateMessage(msgType, payload, requestID)
	if err != nil {
		return fmt.Errorf("error creating message: %v", err)
	}
	return ws.transport.SendMessage(connID, data)
}

func (ws *WebSocketServer) broadcastMessageToClients(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.CreateMessage(msgType, payload, "")
	if err != nil {
		slog.Error("Error creating broadcast message", "err", err, "type", msgType)
		return err
	}
	return ws.transport.BroadcastMessage(data)
}

// listenForNotifications broadcasts pool events until the server stops
func (ws *WebSocketServer) listenForNotifications(events <-chan pool.Event) {
	for {
		select {
		case <-ws.ctx.Done():
			slog.Debug("Notification listener stopped")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			msgType, payload := protocol.EventToNotification(ws.pool, e)
			_ = ws.broadcastMessageToClients(msgType, payload)
		}
	}
}

// ErrorResponse builds a failed command result
func ErrorResponse(code protocol.ErrorCode, format string, args ...interface{}) protocol.CommandResultPayload {
	return protocol.CommandResultPayload{
		Success: false,
		Error: &protocol.Error{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		},
	}
}

// SuccessResponse builds a successful command result carrying data
func SuccessResponse(data json.RawMessage) protocol.CommandResultPayload {
	return protocol.CommandResultPayload{
		Success: true,
		Data:    data,
	}
}

// poolResponse answers with the current pool state
func (ws *WebSocketServer) poolResponse() protocol.CommandResultPayload {
	data, err := json.Marshal(protocol.PoolToProtocol(ws.pool))
	if err != nil {
		return ErrorResponse(protocol.ErrorCodeInternalServerError, "Error marshaling pool: %v", err)
	}
	return SuccessResponse(data)
}
