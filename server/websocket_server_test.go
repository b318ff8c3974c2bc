package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"thermavip/protocol"
	"thermavip/vip/archive"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

// mockTransport records the messages sent by the server
type mockTransport struct {
	mock.Mock
	sent      chan []byte
	broadcast chan []byte
}

func newMockTransport() *mockTransport {
	m := &mockTransport{
		sent:      make(chan []byte, 16),
		broadcast: make(chan []byte, 64),
	}
	m.On("SetMessageHandler", mock.Anything).Return()
	m.On("SetConnectHandler", mock.Anything).Return()
	m.On("SetDisconnectHandler", mock.Anything).Return()
	return m
}

func (m *mockTransport) Start(options StartOptions) error {
	return m.Called(options).Error(0)
}

func (m *mockTransport) Stop() error {
	return m.Called().Error(0)
}

func (m *mockTransport) SetMessageHandler(handler func(connID string, message []byte) error) {
	m.Called(handler)
}

func (m *mockTransport) SetConnectHandler(handler func(connID string) error) {
	m.Called(handler)
}

func (m *mockTransport) SetDisconnectHandler(handler func(connID string)) {
	m.Called(handler)
}

func (m *mockTransport) SendMessage(connID string, message []byte) error {
	m.sent <- message
	return m.Called(connID, message).Error(0)
}

func (m *mockTransport) BroadcastMessage(message []byte) error {
	select {
	case m.broadcast <- message:
	default:
	}
	return nil
}

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(pool.WithName("Pool1"))
	gen := device.NewGenerator(nil)
	gen.SetTimeWindows(0, 11, 10)
	d := device.New(gen, device.WithName("signal"))
	require.NoError(t, d.Open(device.ReadOnly))
	require.NoError(t, p.Add(d))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestWebSocketServer(t *testing.T, state StateOptions) (*WebSocketServer, *mockTransport, *pool.Pool) {
	t.Helper()
	p := newTestPool(t)
	transport := newMockTransport()
	transport.On("SendMessage", "conn-1", mock.Anything).Return(nil)
	transport.On("Stop").Return(nil)

	ws := NewWebSocketServer(context.Background(), transport, p, nil, state)
	t.Cleanup(func() { _ = ws.Stop() })
	return ws, transport, p
}

// reply waits for the next message sent to a client
func reply(t *testing.T, ch <-chan []byte) *protocol.Message {
	t.Helper()
	select {
	case data := <-ch:
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")
	}
	return nil
}

func commandResult(t *testing.T, msg *protocol.Message) protocol.CommandResultPayload {
	t.Helper()
	require.Equal(t, protocol.MessageTypeCommandResult, msg.Type)
	var result protocol.CommandResultPayload
	require.NoError(t, protocol.ParsePayload(msg, &result))
	return result
}

func TestNewWebSocketServerSetsHandlers(t *testing.T) {
	_, transport, _ := newTestWebSocketServer(t, StateOptions{})
	transport.AssertCalled(t, "SetMessageHandler", mock.Anything)
	transport.AssertCalled(t, "SetConnectHandler", mock.Anything)
	transport.AssertCalled(t, "SetDisconnectHandler", mock.Anything)
}

func TestClientConnectSendsInitialState(t *testing.T) {
	ws, transport, _ := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.handleClientConnect("conn-1"))
	msg := reply(t, transport.sent)
	require.Equal(t, protocol.MessageTypeInitialState, msg.Type)

	var payload protocol.InitialStatePayload
	require.NoError(t, protocol.ParsePayload(msg, &payload))
	assert.Equal(t, "Pool1", payload.Pool.Name)
	assert.Equal(t, "temporal", payload.Pool.DeviceType)
	require.Len(t, payload.Devices, 1)
	assert.Equal(t, "signal", payload.Devices[0].Name)
	assert.False(t, payload.ServerStartupTime.IsZero())
}

func TestHandleClientMessageSeek(t *testing.T) {
	ws, transport, p := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"seek","payload":{"time":40},"requestId":"r1"}`)))
	msg := reply(t, transport.sent)
	assert.Equal(t, "r1", msg.RequestID)

	result := commandResult(t, msg)
	require.True(t, result.Success, "error: %+v", result.Error)
	var got protocol.Pool
	require.NoError(t, json.Unmarshal(result.Data, &got))
	require.NotNil(t, got.Time)
	assert.Equal(t, int64(40), *got.Time)
	assert.Equal(t, int64(40), p.Time())
}

func TestHandleClientMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		message string
		code    protocol.ErrorCode
	}{
		{name: "invalid json", message: `{"type":`, code: protocol.ErrorCodeInvalidRequestFormat},
		{name: "unknown command", message: `{"type":"explode"}`, code: protocol.ErrorCodeUnknownCommand},
		{name: "bad payload", message: `{"type":"seek","payload":{"time":"soon"}}`, code: protocol.ErrorCodeInvalidRequestFormat},
		{name: "invalid time", message: `{"type":"seek","payload":{"time":-9223372036854775807}}`, code: protocol.ErrorCodeInvalidParameters},
		{name: "negative position", message: `{"type":"seek_pos","payload":{"pos":-1}}`, code: protocol.ErrorCodeInvalidParameters},
		{name: "zero speed", message: `{"type":"set_speed","payload":{"speed":0}}`, code: protocol.ErrorCodeInvalidParameters},
		{name: "unknown mode", message: `{"type":"set_mode","payload":{"mode":"sideways","enabled":true}}`, code: protocol.ErrorCodeInvalidParameters},
		{name: "unknown device", message: `{"type":"enable_device","payload":{"name":"ghost","enabled":false}}`, code: protocol.ErrorCodeTargetNotFound},
		{name: "missing device name", message: `{"type":"enable_device","payload":{"enabled":false}}`, code: protocol.ErrorCodeInvalidParameters},
		{name: "unknown listed device", message: `{"type":"list_devices","payload":{"names":["ghost"]}}`, code: protocol.ErrorCodeTargetNotFound},
		{name: "no state file", message: `{"type":"save_state"}`, code: protocol.ErrorCodeInvalidParameters},
	}

	ws, transport, _ := newTestWebSocketServer(t, StateOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ws.handleClientMessage("conn-1", []byte(tt.message)))
			result := commandResult(t, reply(t, transport.sent))
			assert.False(t, result.Success)
			require.NotNil(t, result.Error)
			assert.Equal(t, tt.code, result.Error.Code)
		})
	}
}

func TestHandleClientMessageEnableDevice(t *testing.T) {
	ws, transport, p := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"enable_device","payload":{"name":"signal","enabled":false}}`)))
	result := commandResult(t, reply(t, transport.sent))
	require.True(t, result.Success)

	var got protocol.Device
	require.NoError(t, json.Unmarshal(result.Data, &got))
	assert.Equal(t, "signal", got.Name)
	assert.False(t, got.Enabled)

	d, ok := p.Device("signal")
	require.True(t, ok)
	assert.False(t, d.IsEnabled())
}

func TestHandleClientMessageListDevices(t *testing.T) {
	ws, transport, _ := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"list_devices"}`)))
	result := commandResult(t, reply(t, transport.sent))
	require.True(t, result.Success)

	var got []protocol.Device
	require.NoError(t, json.Unmarshal(result.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "signal", got[0].Name)
	assert.Equal(t, int64(11), got[0].Size)
}

func TestHandleClientMessageSetSpeedAndMode(t *testing.T) {
	ws, transport, p := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"set_speed","payload":{"speed":2.5}}`)))
	require.True(t, commandResult(t, reply(t, transport.sent)).Success)
	assert.Equal(t, 2.5, p.PlaySpeed())

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"set_mode","payload":{"mode":"repeat","enabled":true}}`)))
	require.True(t, commandResult(t, reply(t, transport.sent)).Success)
	assert.True(t, p.TestMode(pool.Repeat))
}

func TestHandleClientMessageSetLimitsMovesForward(t *testing.T) {
	ws, transport, p := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"set_limits","payload":{"enabled":true,"begin":10,"end":30}}`)))
	require.True(t, commandResult(t, reply(t, transport.sent)).Success)

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"set_limits","payload":{"enabled":true,"begin":60,"end":90}}`)))
	result := commandResult(t, reply(t, transport.sent))
	require.True(t, result.Success, "error: %+v", result.Error)

	var got protocol.Pool
	require.NoError(t, json.Unmarshal(result.Data, &got))
	require.NotNil(t, got.StopBegin)
	require.NotNil(t, got.StopEnd)
	assert.Equal(t, int64(60), *got.StopBegin)
	assert.Equal(t, int64(90), *got.StopEnd)
	assert.Equal(t, int64(60), p.StopBeginTime())
	assert.Equal(t, int64(90), p.StopEndTime())
}

func TestHandleClientMessageSaveState(t *testing.T) {
	dir := t.TempDir()
	ws, transport, _ := newTestWebSocketServer(t, StateOptions{Filename: filepath.Join(dir, "state.json"), Format: archive.FormatJSON})

	require.NoError(t, ws.handleClientMessage("conn-1", []byte(`{"type":"save_state"}`)))
	result := commandResult(t, reply(t, transport.sent))
	require.True(t, result.Success, "error: %+v", result.Error)

	f, err := archive.LoadFromFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	require.Len(t, f.Pools, 1)
	assert.Equal(t, "Pool1", f.Pools[0].Name)

	yamlFile := filepath.Join(dir, "other.yaml")
	msg, err := protocol.CreateMessage(protocol.MessageTypeSaveState, protocol.SaveStatePayload{Filename: yamlFile}, "")
	require.NoError(t, err)
	require.NoError(t, ws.handleClientMessage("conn-1", msg))
	require.True(t, commandResult(t, reply(t, transport.sent)).Success)
	_, err = os.Stat(yamlFile)
	assert.NoError(t, err)
}

func TestPoolEventsAreBroadcast(t *testing.T) {
	_, transport, p := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, p.SeekTime(20))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-transport.broadcast:
			msg, err := protocol.ParseMessage(data)
			require.NoError(t, err)
			if msg.Type != protocol.MessageTypeTimeChanged {
				continue
			}
			var payload protocol.TimeChangedPayload
			require.NoError(t, protocol.ParsePayload(msg, &payload))
			assert.Equal(t, "Pool1", payload.Pool)
			assert.Equal(t, int64(20), payload.Time)
			return
		case <-deadline:
			t.Fatal("time_changed was not broadcast")
		}
	}
}

func TestWebSocketServerStop(t *testing.T) {
	ws, transport, _ := newTestWebSocketServer(t, StateOptions{})

	require.NoError(t, ws.Stop())
	require.NoError(t, ws.Stop())
	transport.AssertNumberOfCalls(t, "Stop", 1)
}
