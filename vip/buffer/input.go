package buffer

import (
	"sync"
	"sync/atomic"

	"thermavip/vip"
)

// Input is a consumer endpoint. It owns a DataList fed by a device output
// and inherits its limits from its Manager unless they were set individually.
type Input struct {
	name    string
	manager *Manager

	mu       sync.Mutex
	list     DataList
	override bool

	received atomic.Int64
	dropped  atomic.Int64
	notify   chan struct{}
}

func newInput(name string, t ListType, limits Limits, m *Manager) *Input {
	return &Input{
		name:    name,
		manager: m,
		list:    NewDataList(t, limits),
		notify:  make(chan struct{}, 1),
	}
}

// NewInput creates a standalone input with the default limits.
func NewInput(name string, t ListType) *Input {
	return newInput(name, t, DefaultLimits(), nil)
}

func (in *Input) Name() string {
	return in.name
}

// Push implements the producer side. It never blocks.
func (in *Input) Push(s vip.Sample) {
	in.mu.Lock()
	dropped := in.list.Push(s)
	in.mu.Unlock()

	in.received.Add(1)
	if dropped > 0 {
		in.dropped.Add(int64(dropped))
	}
	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// Notify is signaled after a push. Several pushes may be coalesced into one signal.
func (in *Input) Notify() <-chan struct{} {
	return in.notify
}

// List returns the current list. The list changes when SetListType is called.
func (in *Input) List() DataList {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.list
}

func (in *Input) Next() (vip.Sample, bool) { return in.List().Next() }

func (in *Input) AllNext() []vip.Sample { return in.List().AllNext() }

func (in *Input) Probe() (vip.Sample, bool) { return in.List().Probe() }

// SetListType replaces the list, keeping its limits. Pending samples are dropped.
func (in *Input) SetListType(t ListType) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.list.Type() == t {
		return
	}
	in.list = NewDataList(t, in.list.Limits())
}

// SetLimits overrides the manager defaults for this input.
func (in *Input) SetLimits(l Limits) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.override = true
	in.list.SetLimits(l)
}

// UseDefaultLimits drops an individual override and follows the manager again.
func (in *Input) UseDefaultLimits() {
	limits := DefaultLimits()
	if in.manager != nil {
		limits = in.manager.Defaults()
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.override = false
	in.list.SetLimits(limits)
}

func (in *Input) inheritLimits(l Limits) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.override {
		in.list.SetLimits(l)
	}
}

// HasOverride reports whether SetLimits was called on this input.
func (in *Input) HasOverride() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.override
}

func (in *Input) Received() int64 { return in.received.Load() }

// Dropped is the number of samples evicted before being consumed.
func (in *Input) Dropped() int64 { return in.dropped.Load() }

// Close detaches the input from its manager.
func (in *Input) Close() {
	if in.manager != nil {
		in.manager.remove(in)
	}
}
