package pool

import (
	"sync"
	"time"
)

// TimeProvider abstracts the wall clock used by the playback loop
type TimeProvider interface {
	Now() time.Time
	// After returns a channel that receives the current time after d
	After(d time.Duration) <-chan time.Time
}

// RealTimeProvider implements TimeProvider using real time
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time { return time.Now() }

func (RealTimeProvider) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// MockTimeProvider is a manually advanced clock for tests
type MockTimeProvider struct {
	mu      sync.Mutex
	timers  []*mockTimer
	nowTime time.Time
}

type mockTimer struct {
	deadline time.Time
	ch       chan time.Time
}

func NewMockTimeProvider() *MockTimeProvider {
	return &MockTimeProvider{nowTime: time.Unix(0, 0)}
}

func (m *MockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowTime
}

func (m *MockTimeProvider) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	m.timers = append(m.timers, &mockTimer{deadline: m.nowTime.Add(d), ch: ch})
	m.fireLocked()
	return ch
}

// Advance moves the clock forward and fires the expired timers
func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowTime = m.nowTime.Add(d)
	m.fireLocked()
}

// Pending returns the number of timers not fired yet
func (m *MockTimeProvider) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *MockTimeProvider) fireLocked() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if m.nowTime.Before(t.deadline) {
			kept = append(kept, t)
			continue
		}
		t.ch <- m.nowTime
		close(t.ch)
	}
	m.timers = kept
}
