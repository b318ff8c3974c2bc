package stream

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/vip"
	"thermavip/vip/buffer"
	"thermavip/vip/device"
)

// feed serves count samples to every websocket client, then keeps the
// connection open until hold is closed.
func feed(t *testing.T, count int, hold <-chan struct{}) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 1; i <= count; i++ {
			data, _ := EncodeSample(vip.Sample{Time: int64(i * 100), Value: vip.Float64s{float64(i)}})
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSource(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	srv := feed(t, 3, hold)

	d := device.New(NewWebSocketSource(wsURL(srv)), device.WithName("feed"))
	require.NoError(t, d.Open(device.ReadOnly))
	in := buffer.NewInput("viewer", buffer.FIFO)
	d.Output().Connect(in)

	require.NoError(t, d.SetStreamingEnabled(true))
	assert.Equal(t, device.Connected, d.StreamingStatus())
	require.Eventually(t, func() bool { return d.Output().Count() == 3 }, 2*time.Second, time.Millisecond)

	samples := in.AllNext()
	require.Len(t, samples, 3)
	assert.Equal(t, int64(300), samples[2].Time)
	assert.Equal(t, vip.Float64s{3}, samples[2].Value)
	assert.Equal(t, "feed", samples[2].Source)
	assert.Equal(t, int64(300), d.Time())

	last, err := d.Driver().ReadData(0)
	require.NoError(t, err)
	assert.Equal(t, int64(300), last.Time)

	require.NoError(t, d.SetStreamingEnabled(false))
	assert.Equal(t, device.Disconnected, d.StreamingStatus())
}

func TestWebSocketSourceServerClose(t *testing.T) {
	srv := feed(t, 2, nil)
	d := device.New(NewWebSocketSource(wsURL(srv)))
	require.NoError(t, d.Open(device.ReadOnly))

	require.NoError(t, d.SetStreamingEnabled(true))
	require.Eventually(t, func() bool { return !d.IsStreamingEnabled() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(2), d.Output().Count())
	assert.NoError(t, d.Err(), "a normal closure is not an error")
}

func TestWebSocketSourceFailures(t *testing.T) {
	assert.Error(t, device.New(NewWebSocketSource("http://localhost")).Open(device.ReadOnly))

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	d := device.New(NewWebSocketSource(wsURL(srv)))
	require.NoError(t, d.Open(device.ReadOnly))
	assert.ErrorIs(t, d.SetStreamingEnabled(true), device.ErrStreamingFailed)
	assert.Equal(t, device.Failed, d.StreamingStatus())

	idleHold := make(chan struct{})
	defer close(idleHold)
	idle := feed(t, 0, idleHold)
	slow := device.New(NewWebSocketSource(wsURL(idle), WithIdleTimeout(20*time.Millisecond)))
	require.NoError(t, slow.Open(device.ReadOnly))
	require.NoError(t, slow.SetStreamingEnabled(true))
	require.Eventually(t, func() bool { return !slow.IsStreamingEnabled() }, 2*time.Second, time.Millisecond)
	assert.Error(t, slow.Err())
}

func TestParseRedisURL(t *testing.T) {
	options, channel, err := ParseRedisURL("redis://localhost:6380/2?channel=ir.camera")
	require.NoError(t, err)
	assert.Equal(t, "ir.camera", channel)
	assert.Equal(t, "localhost:6380", options.Addr)
	assert.Equal(t, 2, options.DB)

	_, _, err = ParseRedisURL("redis://localhost:6379")
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestRedisSourceUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	src := NewRedisSource(&redis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond, MaxRetries: -1}, "frames")
	d := device.New(src, device.WithConnectTimeout(5*time.Second))
	require.NoError(t, d.Open(device.ReadWrite))
	assert.Equal(t, "Redis", d.ClassName())

	assert.ErrorIs(t, d.SetStreamingEnabled(true), device.ErrStreamingFailed)
	assert.Error(t, d.Write(vip.Sample{Time: 1, Value: vip.Float64s{1}}))
	require.NoError(t, d.Close())

	assert.ErrorIs(t, NewRedisSource(&redis.Options{}, "").Open(device.ReadOnly), ErrNoChannel)
}

func TestRegister(t *testing.T) {
	r := device.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, []string{"Redis", "WebSocket"}, r.Names())

	kinds := r.PossibleReadDevices("ws://localhost:9000/feed", nil)
	require.Len(t, kinds, 1)
	assert.Equal(t, "WebSocket", kinds[0].Name)
	assert.Len(t, r.PossibleWriteDevices("redis://localhost:6379?channel=a"), 1)

	d, err := r.Create("Redis", "redis://localhost:6379?channel=frames")
	require.NoError(t, err)
	assert.Equal(t, "frames", d.Driver().(*RedisSource).Channel())
}
