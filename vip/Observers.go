package vip

import (
	"log/slog"
	"sync"
)

// DefaultObserverBuffer is the channel capacity used by Subscribe when 0 is given.
const DefaultObserverBuffer = 64

// Observers delivers events to subscribers in subscription order. Sends are
// non-blocking: an event is dropped for a subscriber whose channel is full.
type Observers[E any] struct {
	mu     sync.Mutex
	name   string
	nextID int
	subs   []subscriber[E]
}

type subscriber[E any] struct {
	id int
	ch chan E
}

// NewObservers creates an empty observer list. name is used in log messages.
func NewObservers[E any](name string) *Observers[E] {
	return &Observers[E]{name: name}
}

// Subscribe registers a new listener. The returned function unsubscribes and
// closes the channel.
func (o *Observers[E]) Subscribe(buffer int) (<-chan E, func()) {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	s := subscriber[E]{id: o.nextID, ch: make(chan E, buffer)}
	o.subs = append(o.subs, s)

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { o.unsubscribe(s.id) })
	}
}

func (o *Observers[E]) unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			close(s.ch)
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (o *Observers[E]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// Emit sends e to every subscriber without blocking.
func (o *Observers[E]) Emit(e E) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.subs {
		select {
		case s.ch <- e:
		default:
			slog.Warn("Observer channel full, event dropped", "observers", o.name, "subscriber", s.id)
		}
	}
}
