package device

import (
	"fmt"
	"time"

	"thermavip/vip"
)

func (d *Device) timeline() (Timeline, bool) {
	if d.driver.Type() != Temporal {
		return nil, false
	}
	tl, ok := d.driver.(Timeline)
	return tl, ok
}

// rawWindow is the driver window, empty when closed or not temporal.
func (d *Device) rawWindow(mode OpenMode) vip.TimeRangeList {
	if mode == NotOpen {
		return nil
	}
	tl, ok := d.timeline()
	if !ok {
		return nil
	}
	return tl.TimeWindow()
}

func (d *Device) computeWindow() vip.TimeRangeList {
	return d.rawWindow(d.OpenMode())
}

func (d *Device) computeSize() int64 {
	if !d.IsOpen() {
		return 0
	}
	tl, ok := d.timeline()
	if !ok {
		return 0
	}
	return tl.Size()
}

func (d *Device) computePosToTime(pos int64) int64 {
	tl, ok := d.timeline()
	if !ok || !d.IsOpen() {
		return vip.InvalidTime
	}
	return tl.PosToTime(pos)
}

func (d *Device) computeTimeToPos(t int64) int64 {
	tl, ok := d.timeline()
	if !ok || !d.IsOpen() {
		return vip.InvalidPosition
	}
	return tl.TimeToPos(t)
}

func (d *Device) computeClosest(t int64) int64 {
	if t == vip.InvalidTime {
		return vip.InvalidTime
	}
	if s, ok := d.driver.(Stepper); ok {
		return s.ClosestTime(t)
	}
	pos := d.computeTimeToPos(t)
	if pos == vip.InvalidPosition {
		return vip.InvalidTime
	}
	return d.computePosToTime(pos)
}

func (d *Device) computeNext(t int64) int64 {
	if t == vip.InvalidTime {
		return vip.InvalidTime
	}
	if s, ok := d.driver.(Stepper); ok {
		return s.NextTime(t)
	}
	pos := d.computeTimeToPos(t)
	if pos == vip.InvalidPosition {
		return vip.InvalidTime
	}
	return d.computePosToTime(min(pos+1, max(d.computeSize()-1, 0)))
}

func (d *Device) computePrevious(t int64) int64 {
	if t == vip.InvalidTime {
		return vip.InvalidTime
	}
	if s, ok := d.driver.(Stepper); ok {
		return s.PreviousTime(t)
	}
	pos := d.computeTimeToPos(t)
	if pos == vip.InvalidPosition {
		return vip.InvalidTime
	}
	return d.computePosToTime(max(pos-1, 0))
}

// filterInv applies the inverse filter only, without snapping to a sample.
func (d *Device) filterInv(t int64) (int64, bool) {
	if t == vip.InvalidTime {
		return t, true
	}
	return d.currentFilter().InvTransform(t)
}

// TransformTime converts a raw time to a visible time. Without filter, the
// result is the closest sample, inside tells whether t was in the raw window
// and exact whether t was a sample time.
func (d *Device) TransformTime(t int64) (res int64, inside bool, exact bool) {
	if t == vip.InvalidTime {
		return t, true, true
	}
	if f := d.currentFilter(); !f.IsEmpty() {
		res, inside = f.Transform(t)
		return res, inside, true
	}
	res = d.computeClosest(t)
	return res, d.computeWindow().Contains(t), res == t
}

// InvTransformTime converts a visible time to a raw time.
func (d *Device) InvTransformTime(t int64) (res int64, inside bool, exact bool) {
	if t == vip.InvalidTime {
		return t, true, true
	}
	if f := d.currentFilter(); !f.IsEmpty() {
		res, inside = f.InvTransform(t)
		return res, inside, true
	}
	res = d.computeClosest(t)
	return res, d.computeWindow().Contains(t), res == t
}

func (d *Device) transform(t int64) int64 {
	res, _, _ := d.TransformTime(t)
	return res
}

// TimeWindow is the visible window: the filter output, or the raw window.
func (d *Device) TimeWindow() vip.TimeRangeList {
	if f := d.currentFilter(); !f.IsEmpty() {
		return f.OutputTimeRangeList()
	}
	return d.computeWindow()
}

// TimeLimits returns the first and last visible times.
func (d *Device) TimeLimits() vip.TimeRange {
	return d.TimeWindow().Limits()
}

func (d *Device) FirstTime() int64 {
	return d.TimeLimits().Start
}

func (d *Device) LastTime() int64 {
	return d.TimeLimits().End
}

// Size is the number of samples of a Temporal device, 0 otherwise.
func (d *Device) Size() int64 {
	return d.computeSize()
}

// PosToTime returns the visible time of a sample position, clamped to the device size.
func (d *Device) PosToTime(pos int64) int64 {
	size := d.computeSize()
	if size <= 0 {
		return vip.InvalidTime
	}
	pos = min(max(pos, 0), size-1)
	return d.transform(d.computePosToTime(pos))
}

// TimeToPos returns the position of the sample closest to t.
func (d *Device) TimeToPos(t int64) int64 {
	limits := d.TimeLimits()
	if !limits.IsValid() || t == vip.InvalidTime {
		return vip.InvalidPosition
	}
	t = min(max(t, limits.Start), limits.End)
	raw, _, _ := d.InvTransformTime(t)
	return d.computeTimeToPos(raw)
}

// NextTime returns the sample following t. A time between two samples
// steps to the next one, the last time steps to itself.
func (d *Device) NextTime(t int64) int64 {
	raw, _ := d.filterInv(t)
	c := d.computeClosest(raw)
	if c == vip.InvalidTime {
		return vip.InvalidTime
	}
	n := c
	if c <= raw {
		n = d.computeNext(c)
	}
	return d.transform(n)
}

// PreviousTime returns the sample preceding t. The first time steps to itself.
func (d *Device) PreviousTime(t int64) int64 {
	raw, _ := d.filterInv(t)
	c := d.computeClosest(raw)
	if c == vip.InvalidTime {
		return vip.InvalidTime
	}
	p := c
	if c >= raw {
		p = d.computePrevious(c)
	}
	return d.transform(p)
}

// ClosestTime returns the sample closest to t, clamped to the window.
func (d *Device) ClosestTime(t int64) int64 {
	raw, _ := d.filterInv(t)
	return d.transform(d.computeClosest(raw))
}

// EstimateSamplingTime returns the gap between the first two samples.
func (d *Device) EstimateSamplingTime() int64 {
	first := d.FirstTime()
	next := d.NextTime(first)
	if first == vip.InvalidTime || next == vip.InvalidTime || first == next {
		return vip.InvalidTime
	}
	return next - first
}

// Time is the last read time, or the first time when never read.
func (d *Device) Time() int64 {
	d.mu.RLock()
	t := d.readTime
	d.mu.RUnlock()
	if t == vip.InvalidTime {
		return d.FirstTime()
	}
	return t
}

func (d *Device) checkReadable() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.mode&ReadOnly == 0 {
		return ErrNotOpen
	}
	if !d.enabled {
		return ErrDisabled
	}
	return nil
}

func (d *Device) setReadTime(t int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readTime == t {
		return false
	}
	d.readTime = t
	return true
}

func (d *Device) readDriver(raw int64, stamp int64, stampTime bool) error {
	s, err := d.driver.ReadData(raw)
	if err != nil {
		err = fmt.Errorf("read %s at %d: %w", d.Name(), raw, err)
		d.setErr(err)
		return err
	}
	if stampTime {
		s.Time = stamp
	}
	d.publish(s)
	return nil
}

func (d *Device) publish(s vip.Sample) {
	if s.Source == "" {
		s.Source = d.Name()
	}
	d.output.set(s)
}

// Read loads the sample at visible time t.
//
// Resource devices always read. Sequential devices read when t differs from
// the current time. Temporal devices give InvalidTimeReader drivers a chance
// to handle times that are not a sample of the window, refuse times whose
// closest sample is out of the window, and skip the read when t is the
// current time unless force is set.
func (d *Device) Read(t int64, force bool) error {
	if err := d.checkReadable(); err != nil {
		return err
	}
	d.readMu.Lock()
	defer d.readMu.Unlock()

	switch d.Type() {
	case Resource:
		return d.readDriver(t, t, false)
	case Sequential:
		if !d.setReadTime(t) {
			return ErrUnchanged
		}
		if err := d.readDriver(t, t, false); err != nil {
			return err
		}
		d.notify(Event{Type: TimeChanged, Time: t}, false)
		return nil
	}

	if t == vip.InvalidTime {
		return ErrInvalidTime
	}
	window := d.computeWindow()
	if len(window) == 0 {
		return ErrOutOfWindow
	}

	raw, inside, exact := d.InvTransformTime(t)
	closest := d.computeClosest(raw)

	if !exact || !inside {
		if r, ok := d.driver.(InvalidTimeReader); ok {
			realTime, _ := d.filterInv(t)
			if s, handled := r.ReadInvalidTime(realTime); handled {
				s.Time = t
				d.publish(s)
				return nil
			}
		}
	}

	limits := window.Limits()
	if closest == vip.InvalidTime || closest < limits.Start || closest > limits.End {
		return ErrOutOfWindow
	}
	if vl := d.TimeLimits(); t < vl.Start || t > vl.End {
		t = d.transform(closest)
	}

	if d.setReadTime(t) || force {
		d.notify(Event{Type: TimeChanged, Time: t}, false)
		return d.readDriver(closest, t, true)
	}
	return nil
}

// Reload reads the current time again.
func (d *Device) Reload() error {
	if err := d.checkReadable(); err != nil {
		return err
	}
	if r, ok := d.driver.(Reloader); ok {
		if err := r.Reload(); err != nil {
			err = fmt.Errorf("reload %s: %w", d.Name(), err)
			d.setErr(err)
			return err
		}
	}

	d.readMu.Lock()
	defer d.readMu.Unlock()

	switch d.Type() {
	case Resource:
		return d.readDriver(d.Time(), d.Time(), false)
	case Sequential:
		if d.IsStreamingEnabled() {
			return ErrUnsupportedMode
		}
		s, ok := d.output.Data()
		if !ok {
			return ErrUnchanged
		}
		d.output.set(s)
		return nil
	}

	t := d.Time()
	if t == vip.InvalidTime {
		return ErrOutOfWindow
	}
	raw, _, _ := d.InvTransformTime(t)
	return d.readDriver(d.computeClosest(raw), t, true)
}

// ReadCurrentData reads a Sequential device at the current wall clock time.
func (d *Device) ReadCurrentData() error {
	if d.Type() != Sequential {
		return ErrUnsupportedMode
	}
	return d.Read(time.Now().UnixNano(), false)
}
