package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/protocol"
	"thermavip/vip"
)

func notification(t *testing.T, msgType protocol.MessageType, payload interface{}) *protocol.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &protocol.Message{Type: msgType, Payload: data}
}

func int64p(v int64) *int64 { return &v }

func newMirroredClient(t *testing.T) *Client {
	t.Helper()
	c := NewWithTransport(context.Background(), &WebSocketTransport{})
	c.handleNotification(notification(t, protocol.MessageTypeInitialState, protocol.InitialStatePayload{
		Pool: protocol.Pool{
			Name:   "Pool1",
			Window: vip.TimeRangeList{{Start: 0, End: 100}},
			Time:   int64p(0),
			Speed:  1,
		},
		Devices: []protocol.Device{
			{Name: "signal", Type: "Temporal", Enabled: true},
			{Name: "camera", Type: "Sequential", Enabled: true},
		},
		ServerStartupTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	return c
}

func TestHandleInitialState(t *testing.T) {
	c := newMirroredClient(t)

	require.NoError(t, c.WaitReady(context.Background()))
	assert.Equal(t, "Pool1", c.Pool().Name)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), c.ServerStartupTime())

	var names []string
	for _, d := range c.Devices() {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"camera", "signal"}, names); diff != "" {
		t.Errorf("device names mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleTimeAndPlaying(t *testing.T) {
	c := newMirroredClient(t)

	c.handleNotification(notification(t, protocol.MessageTypeTimeChanged, protocol.TimeChangedPayload{Pool: "Pool1", Time: 30, Pos: int64p(3)}))
	p := c.Pool()
	require.NotNil(t, p.Time)
	assert.Equal(t, int64(30), *p.Time)
	assert.Equal(t, int64(3), *p.Pos)

	c.handleNotification(notification(t, protocol.MessageTypePlayingStarted, protocol.PlayingPayload{Pool: "Pool1", Time: 30}))
	assert.True(t, c.Pool().Playing)

	c.handleNotification(notification(t, protocol.MessageTypePlayingAdvanced, protocol.PlayingPayload{Pool: "Pool1", Time: 40}))
	assert.Equal(t, int64(40), *c.Pool().Time)
	assert.True(t, c.Pool().Playing)

	c.handleNotification(notification(t, protocol.MessageTypePlayingStopped, protocol.PlayingPayload{Pool: "Pool1", Time: 40}))
	assert.False(t, c.Pool().Playing)
}

func TestHandleNotificationOtherPool(t *testing.T) {
	c := newMirroredClient(t)

	c.handleNotification(notification(t, protocol.MessageTypeTimeChanged, protocol.TimeChangedPayload{Pool: "Pool2", Time: 70}))
	c.handleNotification(notification(t, protocol.MessageTypeDeviceRemoved, protocol.DeviceRemovedPayload{Pool: "Pool2", Name: "signal"}))

	assert.Equal(t, int64(0), *c.Pool().Time)
	_, ok := c.Device("signal")
	assert.True(t, ok)
}

func TestHandleStreamingChanged(t *testing.T) {
	c := newMirroredClient(t)

	c.handleNotification(notification(t, protocol.MessageTypeStreamingChanged, protocol.StreamingChangedPayload{Pool: "Pool1", Enabled: true}))
	assert.True(t, c.Pool().Streaming)

	c.handleNotification(notification(t, protocol.MessageTypeStreamingChanged, protocol.StreamingChangedPayload{Pool: "Pool1", Device: "camera", Enabled: true}))
	d, ok := c.Device("camera")
	require.True(t, ok)
	assert.True(t, d.Streaming)

	c.handleNotification(notification(t, protocol.MessageTypeStreamingChanged, protocol.StreamingChangedPayload{Pool: "Pool1", Device: "ghost", Enabled: true}))
	_, ok = c.Device("ghost")
	assert.False(t, ok)
}

func TestHandleDeviceAddedAndRemoved(t *testing.T) {
	c := newMirroredClient(t)

	c.handleNotification(notification(t, protocol.MessageTypeDeviceAdded, protocol.DeviceAddedPayload{Pool: "Pool1", Device: protocol.Device{Name: "reference", Type: "Temporal"}}))
	_, ok := c.Device("reference")
	assert.True(t, ok)

	c.handleNotification(notification(t, protocol.MessageTypeDeviceRemoved, protocol.DeviceRemovedPayload{Pool: "Pool1", Name: "signal"}))
	_, ok = c.Device("signal")
	assert.False(t, ok)
	assert.Len(t, c.Devices(), 2)
}

func TestHandlePoolChanged(t *testing.T) {
	c := newMirroredClient(t)

	c.handleNotification(notification(t, protocol.MessageTypePoolChanged, protocol.PoolChangedPayload{
		Pool:   protocol.Pool{Name: "Pool1", Speed: 4, Modes: "play_speed|repeat"},
		Reason: "modes_changed",
	}))
	assert.Equal(t, 4.0, c.Pool().Speed)
	assert.Equal(t, "play_speed|repeat", c.Pool().Modes)
}

func TestNotificationHandlerRunsAfterUpdate(t *testing.T) {
	var (
		c        *Client
		seen     []protocol.MessageType
		timeSeen int64
	)
	c = NewWithTransport(context.Background(), &WebSocketTransport{}, WithNotificationHandler(func(msg *protocol.Message) {
		seen = append(seen, msg.Type)
		if p := c.Pool(); p.Time != nil {
			timeSeen = *p.Time
		}
	}))

	c.handleNotification(notification(t, protocol.MessageTypeTimeChanged, protocol.TimeChangedPayload{Time: 60}))
	c.handleNotification(notification(t, protocol.MessageTypeLogNotification, protocol.LogNotificationPayload{Level: "WARN", Message: "late frame"}))
	c.handleNotification(&protocol.Message{Type: "unknown"})

	assert.Equal(t, []protocol.MessageType{protocol.MessageTypeTimeChanged, protocol.MessageTypeLogNotification, "unknown"}, seen)
	assert.Equal(t, int64(60), timeSeen)
}

func TestMalformedNotificationIsIgnored(t *testing.T) {
	c := newMirroredClient(t)

	c.handleNotification(&protocol.Message{Type: protocol.MessageTypeTimeChanged, Payload: json.RawMessage(`{"time":"soon"}`)})
	assert.Equal(t, int64(0), *c.Pool().Time)
}
