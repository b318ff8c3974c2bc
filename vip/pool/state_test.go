package pool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/vip"
	"thermavip/vip/buffer"
	"thermavip/vip/device"
)

func signalRegistry(t *testing.T) *device.Registry {
	t.Helper()
	r := device.NewRegistry()
	require.NoError(t, r.Register(device.Info{
		Name:    "Signal",
		Filters: []string{"*.sig"},
		Modes:   device.ReadOnly,
		New: func(path string) (device.Driver, error) {
			gen := device.NewGenerator(nil)
			gen.SetTimeWindows(0, 11, 10)
			return gen, nil
		},
	}))
	return r
}

func TestPoolSaveRestore(t *testing.T) {
	p, a, _ := scenarioPool(t)
	require.NoError(t, p.SetPlaySpeed(3))
	require.NoError(t, p.SeekTime(70))
	p.Save()

	require.NoError(t, p.SetPlaySpeed(0.5))
	p.SetRepeat(true)
	require.NoError(t, p.SeekTime(20))
	a.SetEnabled(false)
	p.SetListLimitType(buffer.Number)

	require.NoError(t, p.Restore())
	assert.Equal(t, 3.0, p.PlaySpeed())
	assert.False(t, p.TestMode(Repeat))
	assert.Equal(t, int64(70), p.Time())
	assert.True(t, a.IsEnabled())
	assert.Equal(t, buffer.DefaultLimits(), p.BufferLimits())

	require.NoError(t, p.Restore(), "restoring an empty stack does nothing")
}

func TestPoolStateRoundTrip(t *testing.T) {
	registry := signalRegistry(t)
	src := New(WithName("shot"))
	d, err := registry.Create("Signal", "run.sig", device.WithName("signal"))
	require.NoError(t, err)
	require.NoError(t, d.Open(device.ReadOnly))
	require.NoError(t, src.Add(d))

	d.SetTimestampingFilter(vip.NewTimestampingFilter(vip.RangeTransform{
		From: vip.TimeRange{Start: 0, End: 100},
		To:   vip.TimeRange{Start: 1000, End: 1100},
	}))
	require.NoError(t, src.SetPlaySpeed(2))
	src.SetRepeat(true)
	src.SetMaxListSize(7)
	require.NoError(t, src.SeekTime(1050))

	s := src.State()
	assert.Equal(t, "shot", s.Name)
	assert.Equal(t, int64(1050), s.Time)
	require.Len(t, s.Devices, 1)
	ds := s.Devices[0]
	assert.Equal(t, "signal", ds.Name)
	assert.Equal(t, "Signal", ds.Kind)
	assert.Equal(t, "run.sig", ds.Path)
	assert.Equal(t, device.ReadOnly.String(), ds.OpenMode)
	assert.True(t, ds.Enabled)
	assert.Len(t, ds.Filter, 1)

	encoded, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"modes":"play_speed|repeat"`)

	var decoded State
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	dst := New()
	require.NoError(t, dst.ApplyState(decoded, registry))
	assert.Equal(t, "shot", dst.Name())
	assert.Equal(t, 2.0, dst.PlaySpeed())
	assert.True(t, dst.TestMode(Repeat))
	assert.Equal(t, 7, dst.BufferLimits().MaxSize)
	assert.Equal(t, vip.TimeRangeList{{Start: 1000, End: 1100}}, dst.TimeWindow())
	assert.Equal(t, int64(1050), dst.Time())

	restored, ok := dst.Device("signal")
	require.True(t, ok)
	assert.True(t, restored.IsOpen())
	last, ok := restored.Output().Data()
	require.True(t, ok)
	assert.Equal(t, int64(1050), last.Time)
}

func TestPoolApplyStateWithoutRegistry(t *testing.T) {
	p := New()
	err := p.ApplyState(State{
		Speed:   1,
		Modes:   DefaultModes,
		Time:    vip.InvalidTime,
		Buffer:  buffer.DefaultLimits(),
		Devices: []DeviceState{{Name: "missing", Kind: "Signal", OpenMode: "read", Enabled: true}},
	}, nil)
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Empty(t, p.Devices())
}
