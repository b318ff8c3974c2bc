package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/vip"
)

func eventSamples(times ...int64) []vip.Sample {
	res := make([]vip.Sample, 0, len(times))
	for _, t := range times {
		res = append(res, vip.Sample{Time: t, Value: vip.Float64s{float64(t)}})
	}
	return res
}

func TestSampleDevice(t *testing.T) {
	drv := NewSampleDevice(eventSamples(30, 10, 20, 20))
	assert.Len(t, drv.Samples(), 3)
	assert.Equal(t, vip.TimeRangeList{{Start: 10, End: 30}}, drv.TimeWindow())

	d := New(drv)
	require.NoError(t, d.Open(ReadOnly))
	require.NoError(t, d.Read(24, false))
	s, _ := d.Output().Data()
	assert.Equal(t, vip.Float64s{20}, s.Value)
	assert.Equal(t, int64(24), s.Time)

	drv.Add(vip.Sample{Time: 40, Value: vip.Float64s{40}})
	assert.Equal(t, int64(40), d.LastTime())
}

func TestEventDeviceSnapping(t *testing.T) {
	drv := NewEventDevice(eventSamples(0, 100, 106, 300), 10)
	assert.Equal(t, vip.TimeRangeList{{Start: 0, End: 0}, {Start: 100, End: 106}, {Start: 300, End: 300}}, drv.TimeWindow())

	tests := []struct {
		name  string
		input int64
		empty bool
		event int64
	}{
		{"after first event", 3, false, 0},
		{"before first event", -5, false, 0},
		{"far before first event", -20, true, 0},
		{"equidistant events", 103, false, 100},
		{"closer to the next event", 104, false, 106},
		{"between far events", 150, true, 0},
		{"after last event", 305, false, 300},
		{"far after last event", 320, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, handled := drv.ReadInvalidTime(tt.input)
			require.True(t, handled)
			if tt.empty {
				assert.True(t, s.IsEmpty())
				return
			}
			assert.Equal(t, tt.event, s.Time)
		})
	}
}

func TestEventDeviceRead(t *testing.T) {
	d := New(NewEventDevice(eventSamples(0, 100, 106, 300), 10))
	require.NoError(t, d.Open(ReadOnly))

	require.NoError(t, d.Read(103, false))
	s, _ := d.Output().Data()
	assert.Equal(t, int64(103), s.Time)
	assert.Equal(t, vip.Float64s{100}, s.Value)

	require.NoError(t, d.Read(200, false))
	s, _ = d.Output().Data()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, int64(200), s.Time)

	require.NoError(t, d.Read(106, false))
	s, _ = d.Output().Data()
	assert.Equal(t, vip.Float64s{106}, s.Value)
}

func TestEventDeviceSamplingChange(t *testing.T) {
	drv := NewEventDevice(eventSamples(0, 100), 10)
	s, _ := drv.ReadInvalidTime(50)
	assert.True(t, s.IsEmpty())

	drv.SetVideoSamplingTime(60)
	assert.Equal(t, int64(60), drv.VideoSamplingTime())
	s, _ = drv.ReadInvalidTime(50)
	assert.Equal(t, int64(100), s.Time)
}

func TestReplayDevice(t *testing.T) {
	src, _ := newGeneratorDevice(t, 0, 5, int64(2*time.Millisecond))
	d := New(NewReplayDevice(src))
	assert.Equal(t, Sequential, d.Type())
	require.NoError(t, d.Open(ReadOnly))

	require.NoError(t, d.SetStreamingEnabled(true))
	require.Eventually(t, func() bool { return d.Output().Count() >= 8 }, 2*time.Second, time.Millisecond,
		"replay restarts after the last frame")
	require.NoError(t, d.SetStreamingEnabled(false))

	s, ok := d.Output().Data()
	require.True(t, ok)
	assert.Equal(t, "ReplayDevice", s.Source)
	assert.Greater(t, s.Time, int64(time.Hour))
}

// tickClock moves forward by every duration waited on
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *tickClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	c.mu.Unlock()
	return ch
}

type pushFunc func(s vip.Sample)

func (f pushFunc) Push(s vip.Sample) { f(s) }

func (f pushFunc) Connected() {}

func TestReplayDeviceHoldsLastFrame(t *testing.T) {
	src, _ := newGeneratorDevice(t, 0, 3, int64(10*time.Millisecond))
	clock := &tickClock{now: time.Unix(1000, 0)}
	r := NewReplayDevice(src, WithReplayClock(clock))
	require.NoError(t, r.Open(ReadOnly))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	begin := clock.Now().UnixNano()
	var stamps []time.Duration
	var values []vip.Payload
	sink := pushFunc(func(s vip.Sample) {
		stamps = append(stamps, time.Duration(s.Time-begin))
		values = append(values, s.Value)
		if len(stamps) == 5 {
			cancel()
		}
	})
	require.NoError(t, r.Stream(ctx, sink))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{0, 6 * ms, 16 * ms, 26 * ms, 32 * ms}, stamps,
		"the last frame stays one sampling period before the restart")
	assert.Equal(t, values[0], values[3])
}

func TestReplayDeviceRequiresTemporalSource(t *testing.T) {
	seq := New(NewFuncSource("Live", func(ctx context.Context, sink Sink) error { return nil }))
	d := New(NewReplayDevice(seq))
	assert.Error(t, d.Open(ReadOnly))
}
