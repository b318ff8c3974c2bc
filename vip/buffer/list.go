package buffer

import (
	"fmt"
	"math"
	"sync"

	"thermavip/vip"
)

// LimitType selects how a DataList bounds its content. Number and
// MemorySize may be combined.
type LimitType int

const (
	None       LimitType = 0
	Number     LimitType = 1
	MemorySize LimitType = 2
)

func (l LimitType) String() string {
	switch l {
	case None:
		return "none"
	case Number:
		return "number"
	case MemorySize:
		return "memory"
	case Number | MemorySize:
		return "number|memory"
	}
	return fmt.Sprintf("LimitType(%d)", int(l))
}

// ParseLimitType parses the names produced by LimitType.String.
func ParseLimitType(s string) (LimitType, error) {
	switch s {
	case "none", "":
		return None, nil
	case "number":
		return Number, nil
	case "memory":
		return MemorySize, nil
	case "number|memory":
		return Number | MemorySize, nil
	}
	return None, fmt.Errorf("unknown buffer limit type %q", s)
}

// ListType is the consumption policy of a DataList
type ListType int

const (
	FIFO ListType = iota
	LIFO
	// LastAvailable keeps only the last pushed sample
	LastAvailable
)

func (t ListType) String() string {
	switch t {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case LastAvailable:
		return "last"
	}
	return fmt.Sprintf("ListType(%d)", int(t))
}

const (
	DefaultMaxListSize   = math.MaxInt32
	DefaultMaxListMemory = 50_000_000
)

// Limits is the bound applied to a DataList.
type Limits struct {
	Type      LimitType `json:"type" yaml:"type"`
	MaxSize   int       `json:"max_size" yaml:"max_size"`
	MaxMemory int       `json:"max_memory" yaml:"max_memory"`
}

// DefaultLimits returns the process defaults: memory bound of 50MB.
func DefaultLimits() Limits {
	return Limits{Type: MemorySize, MaxSize: DefaultMaxListSize, MaxMemory: DefaultMaxListMemory}
}

// DataList is a bounded sample queue between one producer and one consumer.
// Push never blocks; samples beyond the bound are evicted oldest first.
type DataList interface {
	Type() ListType
	// Push appends s and returns the number of evicted samples.
	Push(s vip.Sample) int
	// Reset replaces the content with s.
	Reset(s vip.Sample)
	// Next consumes one sample. When nothing is pending it returns the last consumed sample.
	Next() (vip.Sample, bool)
	// AllNext consumes every pending sample in consumption order.
	AllNext() []vip.Sample
	// Probe returns the sample Next would return without consuming it.
	Probe() (vip.Sample, bool)
	Time() int64
	Empty() bool
	HasNewData() bool
	Remaining() int
	MemoryFootprint() int
	Clear()

	Limits() Limits
	SetLimits(l Limits)
}

// NewDataList creates an empty list of the given type.
func NewDataList(t ListType, limits Limits) DataList {
	switch t {
	case LIFO:
		l := &queueList{lifo: true}
		l.SetLimits(limits)
		return l
	case LastAvailable:
		l := &lastAvailableList{}
		l.SetLimits(limits)
		return l
	}
	l := &queueList{}
	l.SetLimits(limits)
	return l
}

// queueList implements FIFO and LIFO lists. The slice is ordered from the
// oldest to the newest sample in both cases; only consumption differs.
type queueList struct {
	mu        sync.Mutex
	lifo      bool
	items     []vip.Sample
	last      vip.Sample
	hasLast   bool
	limits    Limits
	footprint int
}

func (l *queueList) Type() ListType {
	if l.lifo {
		return LIFO
	}
	return FIFO
}

func (l *queueList) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits
}

func (l *queueList) SetLimits(limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = sanitize(limits)
	l.evict()
}

func sanitize(limits Limits) Limits {
	// room for one sample is always kept
	if limits.MaxSize < 1 {
		limits.MaxSize = 1
	}
	if limits.MaxMemory < 0 {
		limits.MaxMemory = 0
	}
	return limits
}

// evict drops the oldest samples until the bound is satisfied. The newest
// sample is always kept. Caller holds the lock.
func (l *queueList) evict() int {
	dropped := 0
	if l.limits.Type&Number != 0 {
		for len(l.items) > l.limits.MaxSize {
			l.dropOldest()
			dropped++
		}
	}
	if l.limits.Type&MemorySize != 0 {
		for len(l.items) > 1 && l.footprint > l.limits.MaxMemory {
			l.dropOldest()
			dropped++
		}
	}
	return dropped
}

func (l *queueList) dropOldest() {
	l.footprint -= l.items[0].MemoryFootprint()
	l.items[0] = vip.Sample{}
	l.items = l.items[1:]
}

func (l *queueList) Push(s vip.Sample) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
	l.footprint += s.MemoryFootprint()
	return l.evict()
}

func (l *queueList) Reset(s vip.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items[:0], s)
	l.footprint = s.MemoryFootprint()
}

func (l *queueList) Next() (vip.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) > 0 {
		var s vip.Sample
		if l.lifo {
			s = l.items[len(l.items)-1]
			l.items = l.items[:len(l.items)-1]
		} else {
			s = l.items[0]
			l.items[0] = vip.Sample{}
			l.items = l.items[1:]
		}
		l.footprint -= s.MemoryFootprint()
		l.last, l.hasLast = s, true
	}
	return l.last, l.hasLast
}

func (l *queueList) AllNext() []vip.Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		if l.hasLast {
			return []vip.Sample{l.last}
		}
		return nil
	}
	res := make([]vip.Sample, len(l.items))
	if l.lifo {
		for i, s := range l.items {
			res[len(res)-1-i] = s
		}
	} else {
		copy(res, l.items)
	}
	l.last, l.hasLast = res[len(res)-1], true
	l.items = nil
	l.footprint = 0
	return res
}

func (l *queueList) Probe() (vip.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) > 0 {
		if l.lifo {
			return l.items[len(l.items)-1], true
		}
		return l.items[0], true
	}
	return l.last, l.hasLast
}

func (l *queueList) Time() int64 {
	s, ok := l.Probe()
	if !ok {
		return vip.InvalidTime
	}
	return s.Time
}

func (l *queueList) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items) == 0 && !l.hasLast
}

func (l *queueList) HasNewData() bool {
	return l.Remaining() > 0
}

func (l *queueList) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *queueList) MemoryFootprint() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.footprint
}

// Clear drops pending samples but keeps the last consumed one.
func (l *queueList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.footprint = 0
}

type lastAvailableList struct {
	mu      sync.Mutex
	data    vip.Sample
	hasData bool
	fresh   bool
	limits  Limits
}

func (l *lastAvailableList) Type() ListType { return LastAvailable }

func (l *lastAvailableList) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits
}

func (l *lastAvailableList) SetLimits(limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = sanitize(limits)
}

func (l *lastAvailableList) Push(s vip.Sample) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	if l.fresh {
		dropped = 1
	}
	l.data, l.hasData, l.fresh = s, true, true
	return dropped
}

func (l *lastAvailableList) Reset(s vip.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data, l.hasData, l.fresh = s, true, true
}

func (l *lastAvailableList) Next() (vip.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fresh = false
	return l.data, l.hasData
}

func (l *lastAvailableList) AllNext() []vip.Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return nil
	}
	l.fresh = false
	return []vip.Sample{l.data}
}

func (l *lastAvailableList) Probe() (vip.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data, l.hasData
}

func (l *lastAvailableList) Time() int64 {
	s, ok := l.Probe()
	if !ok {
		return vip.InvalidTime
	}
	return s.Time
}

func (l *lastAvailableList) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.hasData
}

func (l *lastAvailableList) HasNewData() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fresh
}

func (l *lastAvailableList) Remaining() int {
	if l.HasNewData() {
		return 1
	}
	return 0
}

func (l *lastAvailableList) MemoryFootprint() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return 0
	}
	return l.data.MemoryFootprint()
}

func (l *lastAvailableList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fresh = false
}
