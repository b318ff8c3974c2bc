package console

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/vip/archive"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

type testTarget struct {
	pool  *pool.Pool
	saved []string
}

func (t *testTarget) Pool() *pool.Pool { return t.pool }

func (t *testTarget) SaveState(filename string, format archive.Format) error {
	t.saved = append(t.saved, filename+":"+format.String())
	return nil
}

func (t *testTarget) Summary() string {
	return fmt.Sprintf("%s: %d devices", t.pool.Name(), len(t.pool.Devices()))
}

func newTestTarget(t *testing.T) *testTarget {
	t.Helper()
	p := pool.New(pool.WithName("Pool1"))
	for _, name := range []string{"signal", "reference"} {
		gen := device.NewGenerator(nil)
		gen.SetTimeWindows(0, 11, 10)
		d := device.New(gen, device.WithName(name))
		require.NoError(t, d.Open(device.ReadOnly))
		require.NoError(t, p.Add(d))
	}
	t.Cleanup(func() { _ = p.Close() })
	return &testTarget{pool: p}
}

func newTestProcessor(t *testing.T, target Target) (*CommandProcessor, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	processor := NewCommandProcessor(context.Background(), target, "state.json")
	processor.SetOutput(&out)
	processor.Start()
	t.Cleanup(processor.Stop)
	return processor, &out
}

func run(t *testing.T, processor *CommandProcessor, line string) error {
	t.Helper()
	cmd, err := NewCommandParser().ParseCommand(line)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	return processor.SendCommand(cmd)
}

func TestProcessorNavigation(t *testing.T) {
	target := newTestTarget(t)
	processor, out := newTestProcessor(t, target)
	p := target.pool

	require.NoError(t, run(t, processor, "seek 40"))
	assert.Equal(t, int64(40), p.Time())
	assert.Contains(t, out.String(), "time 40 (pos 4)")

	require.NoError(t, run(t, processor, "next"))
	assert.Equal(t, int64(50), p.Time())
	require.NoError(t, run(t, processor, "prev"))
	assert.Equal(t, int64(40), p.Time())
	require.NoError(t, run(t, processor, "last"))
	assert.Equal(t, int64(100), p.Time())
	require.NoError(t, run(t, processor, "first"))
	assert.Equal(t, int64(0), p.Time())
	require.NoError(t, run(t, processor, "pos 7"))
	assert.Equal(t, int64(70), p.Time())
}

func TestProcessorSettings(t *testing.T) {
	target := newTestTarget(t)
	processor, out := newTestProcessor(t, target)
	p := target.pool

	require.NoError(t, run(t, processor, "speed 3"))
	assert.Equal(t, 3.0, p.PlaySpeed())

	require.NoError(t, run(t, processor, "repeat on"))
	assert.True(t, p.TestMode(pool.Repeat))

	require.NoError(t, run(t, processor, "miss on"))
	assert.True(t, p.MissFramesEnabled())

	require.NoError(t, run(t, processor, "limits 20-60"))
	assert.True(t, p.TestMode(pool.UseTimeLimits))
	assert.Equal(t, int64(20), p.StopBeginTime())
	assert.Equal(t, int64(60), p.StopEndTime())
	assert.Contains(t, out.String(), "limits: 20-60")

	require.NoError(t, run(t, processor, "limits 70-90"))
	assert.Equal(t, int64(70), p.StopBeginTime())
	assert.Equal(t, int64(90), p.StopEndTime())

	require.NoError(t, run(t, processor, "limits off"))
	assert.False(t, p.TestMode(pool.UseTimeLimits))

	out.Reset()
	require.NoError(t, run(t, processor, "info"))
	assert.Contains(t, out.String(), "Pool1: 2 devices")
	assert.Contains(t, out.String(), "limits off")
}

func TestProcessorPlayAndStop(t *testing.T) {
	target := newTestTarget(t)
	processor, _ := newTestProcessor(t, target)

	require.NoError(t, run(t, processor, "repeat on"))
	require.NoError(t, run(t, processor, "play back"))
	assert.True(t, target.pool.TestMode(pool.Backward))
	require.NoError(t, run(t, processor, "stop"))
	assert.False(t, target.pool.IsPlaying())
}

func TestProcessorPlayWithoutTemporalDevice(t *testing.T) {
	p := pool.New()
	t.Cleanup(func() { _ = p.Close() })
	processor, _ := newTestProcessor(t, &testTarget{pool: p})

	assert.ErrorIs(t, run(t, processor, "play"), pool.ErrNoTemporalDevice)
}

func TestProcessorDevices(t *testing.T) {
	target := newTestTarget(t)
	processor, out := newTestProcessor(t, target)

	require.NoError(t, run(t, processor, "disable reference"))
	d, ok := target.pool.Device("reference")
	require.True(t, ok)
	assert.False(t, d.IsEnabled())

	require.NoError(t, run(t, processor, "devices"))
	assert.Contains(t, out.String(), "signal (")
	assert.Contains(t, out.String(), "reference (")
	assert.Contains(t, out.String(), "disabled")

	require.NoError(t, run(t, processor, "enable reference"))
	assert.True(t, d.IsEnabled())

	assert.Error(t, run(t, processor, "enable ghost"))
	assert.Error(t, run(t, processor, "devices ghost"))
}

func TestProcessorSave(t *testing.T) {
	target := newTestTarget(t)
	processor, out := newTestProcessor(t, target)

	require.NoError(t, run(t, processor, "save"))
	file := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, run(t, processor, "save "+file))
	assert.Equal(t, []string{"state.json:json", file + ":yaml"}, target.saved)
	assert.Contains(t, out.String(), "state saved to "+file)
}

func TestProcessorHelp(t *testing.T) {
	processor, out := newTestProcessor(t, newTestTarget(t))

	require.NoError(t, run(t, processor, "help"))
	assert.Contains(t, out.String(), "seek time")
}

func TestProcessorStop(t *testing.T) {
	processor, _ := newTestProcessor(t, newTestTarget(t))

	require.NoError(t, run(t, processor, "quit"))
	<-processor.done
	assert.ErrorIs(t, run(t, processor, "info"), ErrProcessorStopped)
}

func TestCompleter(t *testing.T) {
	complete := newCompleter(newTestTarget(t))
	texts := func(line string) []string {
		buf := prompt.NewBuffer()
		buf.InsertText(line, false, true)
		var got []string
		for _, s := range complete(*buf.Document()) {
			got = append(got, s.Text)
		}
		return got
	}

	assert.Equal(t, []string{"play", "pos", "prev"}, texts("p"))
	assert.Equal(t, []string{"on", "off"}, texts("repeat "))
	assert.Equal(t, []string{"off"}, texts("stream of"))
	assert.ElementsMatch(t, []string{"signal", "reference"}, texts("enable "))
	assert.Equal(t, []string{"reference"}, texts("enable signal "))
	assert.Equal(t, []string{"stop", "seek", "speed", "stream", "save"}, texts("help s"))
	assert.Empty(t, texts("seek "))
	assert.Empty(t, texts("rewind "))
}
