package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"

	"thermavip/vip"
	"thermavip/vip/device"
)

// Mode holds the playback flags
type Mode int

const (
	// UsePlaySpeed follows the wall clock scaled by the play speed. Without
	// it playback steps sample by sample as fast as the max FPS allows.
	UsePlaySpeed Mode = 1 << iota
	Repeat
	UseTimeLimits
	Backward
)

const DefaultModes = UsePlaySpeed

type modeName struct {
	mode Mode
	name string
}

var modeNames = []modeName{
	{UsePlaySpeed, "play_speed"},
	{Repeat, "repeat"},
	{UseTimeLimits, "time_limits"},
	{Backward, "backward"},
}

func (m Mode) String() string {
	var parts []string
	for _, n := range modeNames {
		if m&n.mode != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseMode parses "play_speed|repeat" style flags. An empty string is no flag.
func ParseMode(s string) (Mode, error) {
	var m Mode
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := slices.IndexFunc(modeNames, func(n modeName) bool { return n.name == part })
		if idx < 0 {
			return 0, fmt.Errorf("unknown playback mode %q", part)
		}
		m |= modeNames[idx].mode
	}
	return m, nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PlayState is passed to the play callbacks
type PlayState int

const (
	StartPlaying PlayState = iota
	Playing
	StopPlaying
)

func (s PlayState) String() string {
	switch s {
	case StartPlaying:
		return "start_playing"
	case Playing:
		return "playing"
	case StopPlaying:
		return "stop_playing"
	}
	return fmt.Sprintf("PlayState(%d)", int(s))
}

// PlayCallback is called from the playback worker. Returning false during
// Playing stops playback after the current frame; the result is ignored
// for the other states.
type PlayCallback func(state PlayState) bool

type playCallback struct {
	id int
	fn PlayCallback
}

type parameters struct {
	speed      float64
	modes      Mode
	missFrames bool
	stopBegin  int64
	stopEnd    int64
	maxFPS     int
}

func defaultParameters() parameters {
	return parameters{
		speed:     1,
		modes:     DefaultModes,
		stopBegin: vip.InvalidTime,
		stopEnd:   vip.InvalidTime,
		maxFPS:    DefaultMaxFPS,
	}
}

// player runs at most one playback worker
type player struct {
	mu      sync.Mutex
	playing atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func (p *Pool) parameters() parameters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

func (p *Pool) PlaySpeed() float64 {
	return p.parameters().speed
}

// SetPlaySpeed sets the real time multiplier. It applies to a running playback.
func (p *Pool) SetPlaySpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("invalid play speed %v", speed)
	}
	p.mu.Lock()
	p.params.speed = speed
	p.mu.Unlock()
	p.emit(Event{Type: ProcessingChanged})
	return nil
}

func (p *Pool) Modes() Mode {
	return p.parameters().modes
}

func (p *Pool) SetModes(m Mode) {
	p.mu.Lock()
	p.params.modes = m
	p.mu.Unlock()
	p.dirtyWindow.Store(true)
	p.emit(Event{Type: ProcessingChanged})
}

func (p *Pool) SetMode(m Mode, on bool) {
	p.mu.Lock()
	if (p.params.modes&m != 0) == on {
		p.mu.Unlock()
		return
	}
	if on {
		p.params.modes |= m
	} else {
		p.params.modes &^= m
	}
	p.mu.Unlock()
	p.dirtyWindow.Store(true)
	p.emit(Event{Type: ProcessingChanged})
}

func (p *Pool) TestMode(m Mode) bool {
	return p.Modes()&m != 0
}

func (p *Pool) SetRepeat(enable bool) {
	p.SetMode(Repeat, enable)
}

func (p *Pool) SetTimeLimitsEnabled(enable bool) {
	p.SetMode(UseTimeLimits, enable)
}

func (p *Pool) StopBeginTime() int64 {
	return p.parameters().stopBegin
}

func (p *Pool) StopEndTime() int64 {
	return p.parameters().stopEnd
}

// SetStopBeginTime sets the lower time limit. InvalidTime uses the window start.
func (p *Pool) SetStopBeginTime(t int64) {
	p.setStopTimes(func(params *parameters) { params.stopBegin = t })
}

// SetStopEndTime sets the upper time limit. InvalidTime uses the window end.
func (p *Pool) SetStopEndTime(t int64) {
	p.setStopTimes(func(params *parameters) { params.stopEnd = t })
}

// SetStopTimes sets both time limits, then orders them
func (p *Pool) SetStopTimes(begin, end int64) {
	p.setStopTimes(func(params *parameters) {
		params.stopBegin = begin
		params.stopEnd = end
	})
}

func (p *Pool) setStopTimes(set func(*parameters)) {
	p.mu.Lock()
	before := p.params
	set(&p.params)
	if p.params.stopEnd != vip.InvalidTime && p.params.stopEnd < p.params.stopBegin {
		p.params.stopBegin, p.params.stopEnd = p.params.stopEnd, p.params.stopBegin
	}
	changed := before != p.params
	limits := p.params.modes&UseTimeLimits != 0
	p.mu.Unlock()
	if !changed {
		return
	}
	if limits {
		p.dirtyWindow.Store(true)
	}
	p.emit(Event{Type: ProcessingChanged})
}

func (p *Pool) MissFramesEnabled() bool {
	return p.parameters().missFrames
}

// SetMissFramesEnabled lets playback jump to the wall clock time instead of
// reading every sample when it is late.
func (p *Pool) SetMissFramesEnabled(enable bool) {
	p.mu.Lock()
	p.params.missFrames = enable
	p.mu.Unlock()
}

func (p *Pool) ReadMaxFPS() int {
	return p.parameters().maxFPS
}

// SetReadMaxFPS bounds the frame rate of playback without play speed. 0 is unlimited.
func (p *Pool) SetReadMaxFPS(fps int) {
	p.mu.Lock()
	p.params.maxFPS = max(fps, 0)
	p.mu.Unlock()
}

func (params parameters) minFrameDelay() time.Duration {
	if params.maxFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(params.maxFPS)
}

// AddPlayCallback registers fn. Callbacks run in registration order.
func (p *Pool) AddPlayCallback(fn PlayCallback) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.playCallbacks = append(p.playCallbacks, playCallback{id: p.nextID, fn: fn})
	return p.nextID
}

func (p *Pool) RemovePlayCallback(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playCallbacks = slices.DeleteFunc(slices.Clone(p.playCallbacks), func(c playCallback) bool { return c.id == id })
}

// callPlayCallbacks reports whether every callback returned true.
func (p *Pool) callPlayCallbacks(state PlayState) bool {
	p.mu.RLock()
	callbacks := slices.Clone(p.playCallbacks)
	p.mu.RUnlock()
	ok := true
	for _, c := range callbacks {
		if !c.fn(state) {
			ok = false
		}
	}
	return ok
}

func (p *Pool) IsPlaying() bool {
	return p.player.playing.Load()
}

// Play starts the playback worker. A running playback keeps running with
// the current speed and modes.
func (p *Pool) Play() error {
	if !p.HasTemporalDevice() {
		return ErrNoTemporalDevice
	}
	p.player.mu.Lock()
	defer p.player.mu.Unlock()
	if p.IsPlaying() {
		return nil
	}

	if p.player.cancel != nil {
		p.player.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.player.cancel, p.player.done = cancel, done
	p.player.playing.Store(true)

	params := p.parameters()
	slog.Info("Starting playback", "pool", p.Name(), "speed", params.speed, "modes", params.modes, "time", p.Time())
	go func() {
		defer close(done)
		defer p.player.playing.Store(false)
		p.runPlay(ctx)
	}()
	p.emit(Event{Type: ProcessingChanged})
	return nil
}

func (p *Pool) PlayForward() error {
	p.SetMode(Backward, false)
	return p.Play()
}

func (p *Pool) PlayBackward() error {
	p.SetMode(Backward, true)
	return p.Play()
}

// Stop cancels the playback and waits for the worker to exit. It must not
// be called from a play callback.
func (p *Pool) Stop() {
	p.player.mu.Lock()
	defer p.player.mu.Unlock()
	if p.player.done == nil {
		return
	}
	p.player.cancel()
	<-p.player.done
	p.player.cancel, p.player.done = nil, nil
}

// WaitUntilStopped blocks until the playback ends by itself or ctx is done.
func (p *Pool) WaitUntilStopped(ctx context.Context) error {
	p.player.mu.Lock()
	done := p.player.done
	p.player.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait stops playback and streaming. No member read is issued by the pool
// workers once it returns.
func (p *Pool) Wait() {
	p.Stop()
	if err := p.SetStreamingEnabled(false); err != nil {
		slog.Warn("Failed to stop pool streaming", "pool", p.Name(), "err", err)
	}
}

// WaitTimeout is Wait bounded by timeout. It reports whether the workers exited in time.
func (p *Pool) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-p.clock.After(timeout):
		return false
	}
}

func (p *Pool) First() error {
	p.Stop()
	return p.SeekTime(p.FirstTime())
}

func (p *Pool) Last() error {
	p.Stop()
	return p.SeekTime(p.LastTime())
}

func (p *Pool) Next() error {
	p.Stop()
	return p.SeekTime(p.NextTime(p.Time()))
}

func (p *Pool) Previous() error {
	p.Stop()
	return p.SeekTime(p.PreviousTime(p.Time()))
}

// sleep waits d on the pool clock. It returns false when ctx is done first.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}

func (p *Pool) hasOpenTemporalDevice() bool {
	return len(p.IODevices(device.Temporal, true)) > 0
}

// runPlay is the playback loop
func (p *Pool) runPlay(ctx context.Context) {
	startWall := p.clock.Now()
	startTime := p.Time()
	speed := p.PlaySpeed()
	var elapsed int64

	p.callPlayCallbacks(StartPlaying)
	p.emit(Event{Type: PlayingStarted, Time: startTime})

	run := true
	for run && ctx.Err() == nil {
		params := p.parameters()
		backward := params.modes&Backward != 0
		repeat := params.modes&Repeat != 0
		var frameStart time.Time

		if params.modes&UsePlaySpeed != 0 {
			if params.speed != speed {
				startTime, speed = p.Time(), params.speed
				startWall = p.clock.Now()
				elapsed = 0
			} else {
				elapsed = int64(float64(p.clock.Now().Sub(startWall).Nanoseconds()) * speed)
			}

			current := startTime + elapsed
			if backward {
				current = startTime - elapsed
			}

			first, last, now := p.FirstTime(), p.LastTime(), p.Time()
			skipWait := false
			switch {
			case !backward && current > last && now >= last:
				if !repeat {
					run = false
					break
				}
				current, startTime, startWall = first, first, p.clock.Now()
				skipWait = true
			case backward && current < first && now <= first:
				if !repeat {
					run = false
					break
				}
				current, startTime, startWall = last, last, p.clock.Now()
				skipWait = true
			}
			if !run {
				break
			}

			if !skipWait {
				poolTime := p.ClosestTime(now)
				if !backward {
					next := poolTime
					if poolTime <= now {
						next = p.NextTime(poolTime)
					}
					if next != vip.InvalidTime {
						// next <= now waits on the last sample for the wall clock to pass the end
						if next > current || next <= now {
							if !p.sleep(ctx, time.Millisecond) {
								break
							}
							continue
						}
						if !params.missFrames {
							current = next
						}
					}
				} else {
					prev := poolTime
					if poolTime >= now {
						prev = p.PreviousTime(poolTime)
					}
					if prev != vip.InvalidTime {
						if prev < current || prev >= now {
							if !p.sleep(ctx, time.Millisecond) {
								break
							}
							continue
						}
						if !params.missFrames {
							current = prev
						}
					}
				}
			}

			if ctx.Err() != nil {
				break
			}
			if err := p.Read(current, !backward); err != nil {
				slog.Error("Playback read failed", "pool", p.Name(), "time", current, "err", err)
				run = false
			}
		} else {
			frameStart = p.clock.Now()
			var err error
			if backward {
				err = p.Read(p.PreviousTime(p.Time()), false)
			} else {
				err = p.Read(p.NextTime(p.Time()), false)
			}
			if err != nil {
				slog.Error("Playback read failed", "pool", p.Name(), "err", err)
				run = false
			}

			wrap := vip.InvalidTime
			if run && !backward && p.Time() >= p.LastTime() {
				wrap = p.FirstTime()
			} else if run && backward && p.Time() <= p.FirstTime() {
				wrap = p.LastTime()
			}
			if wrap != vip.InvalidTime {
				if !repeat {
					run = false
				} else if err := p.Read(wrap, false); err != nil {
					slog.Error("Playback wrap failed", "pool", p.Name(), "time", wrap, "err", err)
					run = false
				}
			}
		}

		if !run {
			break
		}
		if params.modes&UsePlaySpeed == 0 {
			if spent := p.clock.Now().Sub(frameStart); spent < params.minFrameDelay() {
				if !p.sleep(ctx, params.minFrameDelay()-spent) {
					break
				}
			}
		}
		if !p.hasOpenTemporalDevice() {
			run = false
			break
		}
		if !p.callPlayCallbacks(Playing) {
			run = false
		}
		p.emit(Event{Type: PlayingAdvancedOneFrame, Time: p.Time()})
	}

	p.callPlayCallbacks(StopPlaying)
	p.emit(Event{Type: PlayingStopped, Time: p.Time()})
	slog.Info("Playback stopped", "pool", p.Name(), "time", p.Time())
}
