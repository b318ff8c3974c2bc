package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/vip"
	"thermavip/vip/buffer"
	"thermavip/vip/device"
	"thermavip/vip/pool"
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

// session builds one pool playing a filtered signal
func session(t *testing.T, devices *device.Registry) *pool.Registry {
	t.Helper()
	pools := pool.NewRegistry()
	p := pools.New()
	d, err := devices.Open("run.sig", nil, device.WithName("signal"))
	require.NoError(t, err)
	require.NoError(t, p.Add(d))

	d.SetTimestampingFilter(vip.NewTimestampingFilter(vip.RangeTransform{
		From: vip.TimeRange{Start: 0, End: 100},
		To:   vip.TimeRange{Start: 500, End: 700},
	}))
	require.NoError(t, p.SetPlaySpeed(4))
	p.SetModes(pool.UsePlaySpeed | pool.Repeat | pool.UseTimeLimits)
	p.SetStopBeginTime(520)
	p.SetStopEndTime(680)
	p.SetMissFramesEnabled(true)
	p.SetReadMaxFPS(25)
	p.SetListLimitType(buffer.Number)
	p.SetMaxListSize(12)
	require.NoError(t, p.SeekTime(600))
	return pools
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"state.json", FormatJSON},
		{"state.yaml", FormatYAML},
		{"STATE.YML", FormatYAML},
		{"state", FormatJSON},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFor(tt.filename), tt.filename)
	}

	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"state.json", "state.yaml"} {
		t.Run(name, func(t *testing.T) {
			devices := signalRegistry(t)
			saved := Capture(session(t, devices))
			require.Len(t, saved.Pools, 1)

			filename := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveToFile(filename, saved, FormatFor(filename)))
			_, err := os.Stat(filename + ".tmp")
			assert.True(t, os.IsNotExist(err), "the temporary file is renamed")

			loaded, err := LoadFromFile(filename)
			require.NoError(t, err)
			if diff := cmp.Diff(saved, loaded); diff != "" {
				t.Errorf("archive mismatch (-saved +loaded):\n%s", diff)
			}

			pools := pool.NewRegistry()
			require.NoError(t, Apply(loaded, pools, devices))
			p, ok := pools.Find("Pool1")
			require.True(t, ok)
			assert.Equal(t, 4.0, p.PlaySpeed())
			assert.Equal(t, pool.UsePlaySpeed|pool.Repeat|pool.UseTimeLimits, p.Modes())
			assert.Equal(t, int64(520), p.StopBeginTime())
			assert.Equal(t, int64(680), p.StopEndTime())
			assert.True(t, p.MissFramesEnabled())
			assert.Equal(t, 25, p.ReadMaxFPS())
			assert.Equal(t, buffer.Number, p.BufferLimits().Type)
			assert.Equal(t, 12, p.BufferLimits().MaxSize)
			assert.Equal(t, vip.TimeRangeList{{Start: 520, End: 680}}, p.TimeWindow())
			assert.Equal(t, int64(600), p.Time())

			if diff := cmp.Diff(saved.Pools[0].State, p.State()); diff != "" {
				t.Errorf("restored pool mismatch (-saved +restored):\n%s", diff)
			}
		})
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99, "pools": []}`), 0644))
	_, err = LoadFromFile(future)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("pools: [:"), 0644))
	_, err = LoadFromFile(broken)
	assert.Error(t, err)

	old := filepath.Join(dir, "old.json")
	require.NoError(t, os.WriteFile(old, []byte(`{"pools": [{"name": "Pool7", "speed": 2}]}`), 0644))
	f, err := LoadFromFile(old)
	require.NoError(t, err)
	assert.Equal(t, "Pool7", f.Pools[0].Name)
}
