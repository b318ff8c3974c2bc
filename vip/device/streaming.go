package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"thermavip/vip"
)

// StreamStatus is the connection state of a streaming worker.
type StreamStatus int32

const (
	Disconnected StreamStatus = iota
	Connecting
	Connected
	Failed
)

func (s StreamStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("StreamStatus(%d)", int32(s))
}

// streamController runs at most one streaming worker.
type streamController struct {
	status atomic.Int32

	mu      sync.Mutex
	gen     int
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func (c *streamController) Status() StreamStatus {
	return StreamStatus(c.status.Load())
}

func (c *streamController) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// start launches the worker and waits up to timeout for the first status
// change. It returns the worker generation.
func (c *streamController) start(s Streamer, d *Device, timeout time.Duration, onExit func(gen int, err error)) (int, error) {
	c.mu.Lock()
	if c.done != nil {
		gen := c.gen
		c.mu.Unlock()
		return gen, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	changed := make(chan struct{})
	signal := sync.OnceFunc(func() { close(changed) })
	c.gen++
	gen := c.gen
	c.cancel, c.done, c.lastErr = cancel, done, nil
	c.status.Store(int32(Connecting))
	c.mu.Unlock()

	sink := &deviceSink{device: d, ctl: c, gen: gen, signal: signal}

	go func() {
		err := s.Stream(ctx, sink)
		canceled := ctx.Err() != nil
		switch {
		case canceled:
			c.status.Store(int32(Disconnected))
		case err != nil:
			c.status.Store(int32(Failed))
		default:
			c.status.Store(int32(Disconnected))
		}
		if err != nil && !canceled {
			c.mu.Lock()
			if c.gen == gen {
				c.lastErr = err
			}
			c.mu.Unlock()
		}
		signal()
		close(done)
		if !canceled && onExit != nil {
			onExit(gen, err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-changed:
	case <-timer.C:
	}

	if c.Status() == Failed {
		err := c.err()
		c.stop()
		if err == nil {
			err = ErrStreamingFailed
		} else {
			err = fmt.Errorf("%w: %v", ErrStreamingFailed, err)
		}
		return gen, err
	}
	return gen, nil
}

func (c *streamController) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// stop cancels the worker and waits for its exit.
func (c *streamController) stop() {
	c.mu.Lock()
	if c.done == nil {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	if c.done == done {
		c.cancel, c.done = nil, nil
	}
	c.mu.Unlock()
	if c.Status() != Failed {
		c.status.Store(int32(Disconnected))
	}
}

type deviceSink struct {
	device *Device
	ctl    *streamController
	gen    int
	signal func()
}

func (s *deviceSink) Push(sample vip.Sample) {
	s.device.push(sample)
}

func (s *deviceSink) Connected() {
	if s.ctl.status.CompareAndSwap(int32(Connecting), int32(Connected)) {
		slog.Info("Streaming connected", "device", s.device.Name())
	}
	s.signal()
}

// push is the streaming write path, serialized with pull reads.
func (d *Device) push(s vip.Sample) {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	if s.Time == vip.InvalidTime {
		s.Time = time.Now().UnixNano()
	}
	changed := d.setReadTime(s.Time)
	d.publish(s)
	if changed {
		d.notify(Event{Type: TimeChanged, Time: s.Time}, false)
	}
}

// StreamingStatus returns the connection state of the streaming worker.
func (d *Device) StreamingStatus() StreamStatus {
	return d.stream.Status()
}

func (d *Device) IsStreamingEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.streaming
}

// SetStreamingEnabled starts or stops the streaming worker of a Sequential
// device. Enabling twice starts one worker; disabling waits for the worker
// to exit. Enabling fails when the source reports a failure before the
// connect timeout; a source still connecting after it is accepted.
func (d *Device) SetStreamingEnabled(enable bool) error {
	if d.Type() != Sequential {
		return ErrUnsupportedMode
	}
	streamer, ok := d.driver.(Streamer)
	if !ok {
		return ErrUnsupportedMode
	}
	if enable && d.OpenMode()&ReadOnly == 0 {
		return ErrNotOpen
	}

	d.streamMu.Lock()
	if enable == d.IsStreamingEnabled() {
		d.streamMu.Unlock()
		return nil
	}
	if enable {
		if _, err := d.stream.start(streamer, d, d.connectTimeout, d.streamEnded); err != nil {
			d.streamMu.Unlock()
			err = fmt.Errorf("start streaming %s: %w", d.Name(), err)
			d.setErr(err)
			slog.Error("Streaming connection failed", "device", d.Name(), "err", err)
			return err
		}
	} else {
		d.stream.stop()
	}
	d.mu.Lock()
	d.streaming = enable
	d.mu.Unlock()
	d.streamMu.Unlock()

	d.emitStreaming(enable)
	return nil
}

func (d *Device) emitStreaming(enable bool) {
	if enable {
		d.notify(Event{Type: StreamingStarted}, false)
	} else {
		d.notify(Event{Type: StreamingStopped}, false)
	}
	d.notify(Event{Type: StreamingChanged, Value: enable}, true)
}

// streamEnded is called when a worker exits without being canceled.
func (d *Device) streamEnded(gen int, err error) {
	d.streamMu.Lock()
	d.stream.mu.Lock()
	current := d.stream.gen == gen
	d.stream.mu.Unlock()
	if !current || !d.IsStreamingEnabled() {
		d.streamMu.Unlock()
		return
	}
	d.stream.stop()
	d.mu.Lock()
	d.streaming = false
	d.mu.Unlock()
	d.streamMu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("streaming %s: %w", d.Name(), err)
		d.setErr(err)
		slog.Warn("Streaming worker stopped", "device", d.Name(), "err", err)
	} else {
		slog.Info("Streaming source ended", "device", d.Name())
	}
	d.emitStreaming(false)
}
