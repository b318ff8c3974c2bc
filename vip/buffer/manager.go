package buffer

import (
	"log/slog"
	"sync"
)

// Manager holds default buffer limits and applies them to every input it
// created. Managers are owned by their caller (one per pool, usually).
type Manager struct {
	mu       sync.Mutex
	defaults Limits
	listType ListType
	inputs   []*Input
}

// NewManager creates a manager with the process default limits and FIFO lists.
func NewManager() *Manager {
	return &Manager{defaults: DefaultLimits(), listType: FIFO}
}

// NewInput creates an input inheriting the current defaults.
func (m *Manager) NewInput(name string) *Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := newInput(name, m.listType, m.defaults, m)
	m.inputs = append(m.inputs, in)
	return in
}

func (m *Manager) remove(in *Input) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.inputs {
		if o == in {
			m.inputs = append(m.inputs[:i], m.inputs[i+1:]...)
			return
		}
	}
}

// Inputs returns the tracked inputs in creation order.
func (m *Manager) Inputs() []*Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*Input, len(m.inputs))
	copy(res, m.inputs)
	return res
}

func (m *Manager) Defaults() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults
}

// SetDefaults changes the defaults and applies them to every input without override.
func (m *Manager) SetDefaults(l Limits) {
	m.mu.Lock()
	m.defaults = l
	inputs := make([]*Input, len(m.inputs))
	copy(inputs, m.inputs)
	m.mu.Unlock()

	for _, in := range inputs {
		in.inheritLimits(l)
	}
	slog.Debug("Buffer defaults changed", "type", l.Type, "max_size", l.MaxSize, "max_memory", l.MaxMemory, "inputs", len(inputs))
}

func (m *Manager) SetListLimitType(t LimitType) {
	l := m.Defaults()
	l.Type = t
	m.SetDefaults(l)
}

func (m *Manager) SetMaxListSize(size int) {
	l := m.Defaults()
	l.MaxSize = size
	m.SetDefaults(l)
}

func (m *Manager) SetMaxListMemory(memory int) {
	l := m.Defaults()
	l.MaxMemory = memory
	m.SetDefaults(l)
}

// SetListType changes the list type of future inputs.
func (m *Manager) SetListType(t ListType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listType = t
}

// ClearInputBuffers drops every pending sample of every input.
func (m *Manager) ClearInputBuffers() {
	for _, in := range m.Inputs() {
		in.List().Clear()
	}
}

// Dropped sums the evicted samples of all inputs.
func (m *Manager) Dropped() int64 {
	var total int64
	for _, in := range m.Inputs() {
		total += in.Dropped()
	}
	return total
}
