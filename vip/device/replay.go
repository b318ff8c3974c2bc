package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"thermavip/vip"
)

// replayIdle is the wait when the current frame was already emitted.
const replayIdle = 2 * time.Millisecond

// Clock is the wall clock of a ReplayDevice. pool.TimeProvider satisfies it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ReplayDevice replays a Temporal device as a live Sequential stream at
// wall clock pace. The last frame is held for one sampling period, then the
// replay restarts from the first frame. Emitted samples are stamped with the
// wall clock time.
type ReplayDevice struct {
	source *Device
	clock  Clock

	mu   sync.RWMutex
	last vip.Sample
	has  bool
}

type ReplayOption func(*ReplayDevice)

// WithReplayClock replaces the wall clock
func WithReplayClock(clock Clock) ReplayOption {
	return func(r *ReplayDevice) { r.clock = clock }
}

func NewReplayDevice(source *Device, opts ...ReplayOption) *ReplayDevice {
	r := &ReplayDevice{source: source, clock: systemClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ReplayDevice) ClassName() string { return "ReplayDevice" }

func (r *ReplayDevice) Source() *Device { return r.source }

func (r *ReplayDevice) Type() Type { return Sequential }

func (r *ReplayDevice) SupportedModes() OpenMode { return ReadOnly }

func (r *ReplayDevice) Open(mode OpenMode) error {
	if r.source == nil {
		return errors.New("replay device has no source")
	}
	if r.source.Type() != Temporal {
		return fmt.Errorf("replay source %s is not temporal", r.source.Name())
	}
	if r.source.OpenMode()&ReadOnly == 0 {
		if err := r.source.Open(ReadOnly); err != nil {
			return err
		}
	}
	// first frame
	_, err := r.readFrame(r.source.FirstTime(), r.clock.Now().UnixNano())
	return err
}

func (r *ReplayDevice) Close() error {
	r.mu.Lock()
	r.has = false
	r.mu.Unlock()
	return nil
}

func (r *ReplayDevice) ReadData(t int64) (vip.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.has {
		return vip.EmptySample(t), nil
	}
	return r.last, nil
}

func (r *ReplayDevice) readFrame(t, stamp int64) (vip.Sample, error) {
	if err := r.source.Read(t, true); err != nil {
		return vip.Sample{}, err
	}
	s, ok := r.source.Output().Data()
	if !ok {
		return vip.Sample{}, fmt.Errorf("replay source %s produced no data", r.source.Name())
	}
	s.Time = stamp
	s.Source = ""
	r.mu.Lock()
	r.last, r.has = s, true
	r.mu.Unlock()
	return s, nil
}

func (r *ReplayDevice) Stream(ctx context.Context, sink Sink) error {
	start := r.clock.Now()
	first := r.source.FirstTime()
	last := r.source.LastTime()
	hold := replayIdle
	if sampling := r.source.EstimateSamplingTime(); sampling > 0 {
		hold = time.Duration(sampling)
	}
	prev := vip.InvalidTime
	var emitted time.Time
	connected := false

	for ctx.Err() == nil {
		now := r.clock.Now()
		closest := r.source.ClosestTime(first + now.Sub(start).Nanoseconds())
		if closest == vip.InvalidTime {
			return fmt.Errorf("replay source %s has no valid time", r.source.Name())
		}
		if closest == prev {
			if closest != last || now.Sub(emitted) < hold {
				select {
				case <-ctx.Done():
					return nil
				case <-r.clock.After(replayIdle):
				}
				continue
			}
			// restart
			start = now
			closest = first
		}
		prev = closest

		s, err := r.readFrame(closest, now.UnixNano())
		if err != nil {
			return err
		}
		emitted = now
		if !connected {
			sink.Connected()
			connected = true
		}
		sink.Push(s)
	}
	return nil
}
