package device

import (
	"sync"

	"golang.org/x/exp/slices"

	"thermavip/vip"
)

// SampleDevice is a Temporal driver over an explicit set of samples, such
// as an in-memory recording. Sample times are the device timestamps.
type SampleDevice struct {
	*Generator

	mu       sync.RWMutex
	times    []int64
	samples  map[int64]vip.Sample
	sampling int64
}

// NewSampleDevice creates a device over samples. Samples sharing a time
// keep the last one.
func NewSampleDevice(samples []vip.Sample) *SampleDevice {
	s := &SampleDevice{Generator: NewGenerator(nil)}
	s.SetSamples(samples)
	return s
}

func (s *SampleDevice) ClassName() string { return "SampleDevice" }

// SetSamples replaces the content and recomputes the timeline.
func (s *SampleDevice) SetSamples(samples []vip.Sample) {
	s.mu.Lock()
	s.samples = make(map[int64]vip.Sample, len(samples))
	for _, sample := range samples {
		s.samples[sample.Time] = sample
	}
	s.rebuildLocked()
	times, sampling := slices.Clone(s.times), s.sampling
	s.mu.Unlock()
	s.applyTimestamps(times, sampling)
}

// Add inserts one sample.
func (s *SampleDevice) Add(sample vip.Sample) {
	s.mu.Lock()
	if s.samples == nil {
		s.samples = map[int64]vip.Sample{}
	}
	s.samples[sample.Time] = sample
	s.rebuildLocked()
	times, sampling := slices.Clone(s.times), s.sampling
	s.mu.Unlock()
	s.applyTimestamps(times, sampling)
}

// Samples returns the samples sorted by time.
func (s *SampleDevice) Samples() []vip.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]vip.Sample, 0, len(s.times))
	for _, t := range s.times {
		res = append(res, s.samples[t])
	}
	return res
}

func (s *SampleDevice) rebuildLocked() {
	s.times = s.times[:0]
	for t := range s.samples {
		s.times = append(s.times, t)
	}
	slices.Sort(s.times)
}

func (s *SampleDevice) applyTimestamps(times []int64, sampling int64) {
	if sampling > 0 {
		s.Generator.SetTimestampsWithSampling(times, sampling)
	} else {
		s.Generator.SetTimestamps(times, true)
	}
}

func (s *SampleDevice) setSampling(sampling int64) {
	s.mu.Lock()
	s.sampling = sampling
	times := slices.Clone(s.times)
	s.mu.Unlock()
	s.applyTimestamps(times, sampling)
}

func (s *SampleDevice) sampleAt(t int64) (vip.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.samples[t]
	return sample, ok
}

// ReadData returns the sample at t, or the sample of the closest timestamp.
func (s *SampleDevice) ReadData(t int64) (vip.Sample, error) {
	if sample, ok := s.sampleAt(t); ok {
		return sample, nil
	}
	pos := s.TimeToPos(t)
	if pos == vip.InvalidPosition {
		return vip.EmptySample(t), nil
	}
	sample, _ := s.sampleAt(s.PosToTime(pos))
	return sample, nil
}

// EventDevice displays sparse events over a video timeline. Reads between
// events snap to an event within one video frame so that the overlay does
// not flicker; further away the device outputs an empty sample.
type EventDevice struct {
	*SampleDevice
}

// NewEventDevice creates an event device. videoSampling is the frame period
// of the video the events are attached to.
func NewEventDevice(events []vip.Sample, videoSampling int64) *EventDevice {
	e := &EventDevice{SampleDevice: &SampleDevice{Generator: NewGenerator(nil), sampling: videoSampling}}
	e.SetSamples(events)
	return e
}

func (e *EventDevice) ClassName() string { return "EventDevice" }

// SetVideoSamplingTime changes the snapping tolerance.
func (e *EventDevice) SetVideoSamplingTime(sampling int64) {
	e.setSampling(sampling)
}

func (e *EventDevice) VideoSamplingTime() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sampling
}

// ReadInvalidTime picks the event within one frame of t. Between two events
// closer than one frame, the closest wins and equidistant events resolve to
// the earlier one.
func (e *EventDevice) ReadInvalidTime(t int64) (vip.Sample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	times, sampling := e.times, e.sampling
	n := len(times)
	idx, _ := slices.BinarySearch(times, t)
	chosen := -1

	switch {
	case idx < n && idx == 0:
		if times[0]-t < sampling {
			chosen = 0
		}
	case idx < n:
		prev := idx - 1
		switch {
		case times[idx]-times[prev] < sampling:
			if t-times[prev] <= times[idx]-t {
				chosen = prev
			} else {
				chosen = idx
			}
		case times[idx]-t < sampling:
			chosen = idx
		case t-times[prev] < sampling:
			chosen = prev
		}
	case n > 0 && t-times[n-1] < sampling:
		chosen = n - 1
	}

	if chosen < 0 {
		return vip.EmptySample(t), true
	}
	return e.samples[times[chosen]], true
}
