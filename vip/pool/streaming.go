package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"thermavip/vip/device"
)

// WatchdogInterval is the period of the check that disables pool streaming
// once no member streams anymore.
const WatchdogInterval = 100 * time.Millisecond

type poolStreaming struct {
	mu      sync.Mutex
	enabled atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func (p *Pool) IsStreamingEnabled() bool {
	return p.streaming.enabled.Load()
}

// SetStreamingEnabled starts or stops the streaming of every open Sequential
// member. When a member fails to start, the members already started are
// stopped again and the error is returned.
func (p *Pool) SetStreamingEnabled(enable bool) error {
	s := &p.streaming
	s.mu.Lock()
	members := p.IODevices(device.Sequential, true)

	var stopped chan struct{}
	if enable {
		for i, d := range members {
			if err := d.SetStreamingEnabled(true); err != nil {
				for j := i - 1; j >= 0; j-- {
					if err := members[j].SetStreamingEnabled(false); err != nil {
						slog.Warn("Failed to roll back streaming", "pool", p.Name(), "device", members[j].Name(), "err", err)
					}
				}
				s.mu.Unlock()
				return fmt.Errorf("enable streaming on pool %s: %w", p.Name(), err)
			}
		}
		if s.cancel == nil {
			p.startWatchdogLocked()
		}
	} else {
		for _, d := range members {
			if err := d.SetStreamingEnabled(false); err != nil {
				slog.Warn("Failed to stop streaming", "pool", p.Name(), "device", d.Name(), "err", err)
			}
		}
		if s.cancel != nil {
			s.cancel()
			stopped = s.done
			s.cancel, s.done = nil, nil
		}
	}
	changed := s.enabled.Swap(enable) != enable
	s.mu.Unlock()

	// the watchdog may be waiting for the lock
	if stopped != nil {
		<-stopped
	}
	if changed {
		slog.Info("Pool streaming changed", "pool", p.Name(), "enabled", enable, "devices", len(members))
		p.emit(Event{Type: StreamingChanged, Value: enable})
	}
	return nil
}

func (p *Pool) startWatchdogLocked() {
	s := &p.streaming
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.clock.After(WatchdogInterval):
			}
			if p.anyMemberStreaming() {
				continue
			}
			p.watchdogExpired(ctx)
			return
		}
	}()
}

func (p *Pool) anyMemberStreaming() bool {
	for _, d := range p.IODevices(device.Sequential, true) {
		if d.IsStreamingEnabled() {
			return true
		}
	}
	return false
}

// watchdogExpired disables pool streaming unless it was already disabled
// or restarted concurrently.
func (p *Pool) watchdogExpired(ctx context.Context) {
	s := &p.streaming
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	changed := s.enabled.Swap(false)
	s.mu.Unlock()

	if changed {
		slog.Info("No member streams anymore, pool streaming disabled", "pool", p.Name())
		p.emit(Event{Type: StreamingChanged, Value: false})
	}
}
