package device

import (
	"errors"
	"math"
	"sync"

	"golang.org/x/exp/slices"

	"thermavip/vip"
)

// Producer computes the payload of a generated sample.
type Producer func(t int64, pos int64) (vip.Payload, error)

// Generator is a Temporal driver whose timeline is either a set of regular
// time ranges sharing one sampling step, or an explicit list of timestamps.
type Generator struct {
	mu         sync.RWMutex
	step       int64
	ranges     vip.TimeRangeList
	sizes      []int64
	size       int64
	timestamps []int64
	producer   Producer
	onChange   func()
}

// NewGenerator creates an empty generator. producer may be nil, in which
// case samples carry the time as a Float64s payload.
func NewGenerator(producer Producer) *Generator {
	return &Generator{producer: producer}
}

func (g *Generator) ClassName() string { return "Generator" }

func (g *Generator) Type() Type { return Temporal }

func (g *Generator) SupportedModes() OpenMode { return ReadOnly }

func (g *Generator) Open(mode OpenMode) error {
	if mode != ReadOnly {
		return ErrUnsupportedMode
	}
	return nil
}

func (g *Generator) Close() error { return nil }

func (g *Generator) OnTimestampingChanged(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

func (g *Generator) changed() {
	g.mu.RLock()
	fn := g.onChange
	g.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SamplingTime is the step between two samples of a range.
func (g *Generator) SamplingTime() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.step
}

// Timestamps returns the explicit timestamps, nil for regular ranges.
func (g *Generator) Timestamps() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.timestamps)
}

// SetTimeWindows sets one regular range of size samples starting at start.
func (g *Generator) SetTimeWindows(start, size, sampling int64) {
	g.mu.Lock()
	g.ranges = nil
	g.sizes = nil
	g.timestamps = nil
	g.size = 0
	g.step = 0
	if size > 0 {
		g.ranges = vip.TimeRangeList{{Start: start, End: start + (size-1)*sampling}}
		g.sizes = []int64{size}
		g.size = size
		g.step = sampling
	}
	g.mu.Unlock()
	g.changed()
}

// SetTimeRanges sets several regular ranges sharing the same step.
func (g *Generator) SetTimeRanges(ranges vip.TimeRangeList, step int64) {
	g.mu.Lock()
	g.ranges = slices.Clone(ranges)
	g.step = step
	g.sizes = make([]int64, len(ranges))
	g.timestamps = nil
	g.size = 0
	for i, r := range ranges {
		if step > 0 {
			g.sizes[i] = r.Width()/step + 1
		} else {
			g.sizes[i] = 1
		}
		g.size += g.sizes[i]
	}
	g.mu.Unlock()
	g.changed()
}

// SetTimeWindowsFromRange spreads size timestamps evenly over r.
func (g *Generator) SetTimeWindowsFromRange(r vip.TimeRange, size int64) {
	switch {
	case size <= 0:
		return
	case size == 1:
		g.SetTimestamps([]int64{r.Start}, false)
		return
	}
	times := make([]int64, size)
	sampling := float64(r.End-r.Start) / float64(size-1)
	for i := range times {
		times[i] = r.Start + int64(sampling*float64(i))
	}
	g.SetTimestamps(times, false)
}

// SetTimestamps sets explicit sorted timestamps. With multiRange, a gap
// larger than 4 times the smallest sampling starts a new range.
func (g *Generator) SetTimestamps(timestamps []int64, multiRange bool) {
	g.mu.Lock()
	g.setTimestampsLocked(timestamps)
	if len(timestamps) > 1 && multiRange {
		sampling := int64(math.MaxInt64)
		for i := 1; i < len(timestamps); i++ {
			if gap := timestamps[i] - timestamps[i-1]; gap != 0 && gap < sampling {
				sampling = gap
			}
		}
		if sampling == math.MaxInt64 {
			sampling = 0
		}
		g.splitRanges(func(gap int64) bool { return gap > 4*sampling })
		g.step = sampling
	}
	g.mu.Unlock()
	g.changed()
}

// SetTimestampsWithSampling sets explicit timestamps with a known sampling.
// A gap larger than 1.5 times the sampling starts a new range.
func (g *Generator) SetTimestampsWithSampling(timestamps []int64, sampling int64) {
	g.mu.Lock()
	g.setTimestampsLocked(timestamps)
	if len(timestamps) > 1 {
		g.splitRanges(func(gap int64) bool { return float64(gap) > 1.5*float64(sampling) })
		g.step = sampling
	}
	g.mu.Unlock()
	g.changed()
}

func (g *Generator) setTimestampsLocked(timestamps []int64) {
	g.ranges = nil
	g.sizes = nil
	g.step = 0
	g.timestamps = slices.Clone(timestamps)
	g.size = int64(len(timestamps))
	if len(timestamps) > 0 {
		g.sizes = []int64{g.size}
		g.ranges = vip.TimeRangeList{{Start: timestamps[0], End: timestamps[len(timestamps)-1]}}
		if len(timestamps) > 1 {
			g.step = timestamps[1] - timestamps[0]
		}
	}
}

func (g *Generator) splitRanges(newRange func(gap int64) bool) {
	ts := g.timestamps
	current := vip.TimeRange{Start: ts[0], End: ts[0]}
	ranges := vip.TimeRangeList{}
	sizes := []int64{1}
	for _, t := range ts[1:] {
		if newRange(t - current.End) {
			ranges = append(ranges, current)
			current = vip.TimeRange{Start: t, End: t}
			sizes = append(sizes, 1)
		} else {
			current.End = t
			sizes[len(sizes)-1]++
		}
	}
	g.ranges = append(ranges, current)
	g.sizes = sizes
}

func (g *Generator) TimeWindow() vip.TimeRangeList {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.ranges)
}

func (g *Generator) Size() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.size
}

func (g *Generator) PosToTime(pos int64) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := int64(len(g.timestamps)); n > 0 {
		return g.timestamps[min(max(pos, 0), n-1)]
	}
	if pos < 0 {
		return vip.InvalidTime
	}
	var cum int64
	for i, r := range g.ranges {
		if pos < cum+g.sizes[i] {
			return r.Start + (pos-cum)*g.step
		}
		cum += g.sizes[i]
	}
	return vip.InvalidTime
}

// TimeToPos returns the position of the sample closest to t. Equidistant
// samples resolve to the earlier one.
func (g *Generator) TimeToPos(t int64) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := len(g.timestamps); n > 0 {
		idx, _ := slices.BinarySearch(g.timestamps, t)
		switch {
		case idx == 0:
			return 0
		case idx >= n:
			return int64(n - 1)
		}
		if t-g.timestamps[idx-1] <= g.timestamps[idx]-t {
			return int64(idx - 1)
		}
		return int64(idx)
	}
	if len(g.ranges) == 0 {
		return vip.InvalidPosition
	}

	var cum int64
	for i, r := range g.ranges {
		last := cum + g.sizes[i] - 1
		if t < r.Start {
			if i == 0 {
				return 0
			}
			// gap between two ranges
			prevEnd := g.ranges[i-1].Start + (g.sizes[i-1]-1)*g.step
			if t-prevEnd <= r.Start-t {
				return cum - 1
			}
			return cum
		}
		if t <= r.End {
			if g.step <= 0 {
				return cum
			}
			// rounds half down, like the timestamps branch
			pos := cum + (2*(t-r.Start)+g.step-1)/(2*g.step)
			return min(pos, last)
		}
		cum += g.sizes[i]
	}
	return g.size - 1
}

func (g *Generator) ReadData(t int64) (vip.Sample, error) {
	pos := g.TimeToPos(t)
	if pos == vip.InvalidPosition {
		return vip.Sample{}, errors.New("generator has no time window")
	}
	g.mu.RLock()
	producer := g.producer
	g.mu.RUnlock()
	if producer == nil {
		return vip.Sample{Time: t, Value: vip.Float64s{float64(t)}}, nil
	}
	v, err := producer(t, pos)
	if err != nil {
		return vip.Sample{}, err
	}
	return vip.Sample{Time: t, Value: v}, nil
}
