package device

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"thermavip/vip"
)

// DefaultConnectTimeout bounds the wait of SetStreamingEnabled(true) for
// the source to connect.
const DefaultConnectTimeout = 2 * time.Second

// Option configures a Device
type Option func(*Device)

// WithName sets the initial name. A pool may rename the device to keep names unique.
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithPath sets the path the device was opened from.
func WithPath(path string) Option {
	return func(d *Device) { d.path = path }
}

// WithClassName overrides the class name derived from the driver.
func WithClassName(name string) Option {
	return func(d *Device) { d.className = name }
}

// WithConnectTimeout sets the streaming connection wait.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.connectTimeout = timeout }
}

type savedParameters struct {
	filter    *vip.TimestampingFilter
	enabled   bool
	streaming bool
}

// Device wraps a Driver and implements the device time model: visible
// time through the timestamping filter, stepping, reads and streaming.
// A Device is safe for concurrent use.
type Device struct {
	id             uuid.UUID
	driver         Driver
	className      string
	path           string
	connectTimeout time.Duration

	output *Output
	events *vip.Observers[Event]

	// readMu serializes pull reads and streaming pushes
	readMu sync.Mutex
	// streamMu serializes streaming state changes
	streamMu sync.Mutex
	stream   streamController

	mu        sync.RWMutex
	name      string
	mode      OpenMode
	enabled   bool
	filter    *vip.TimestampingFilter
	readTime  int64
	streaming bool
	err       error
	saved     []savedParameters
	owner     Owner
}

// New creates a closed, enabled device around driver.
func New(driver Driver, opts ...Option) *Device {
	d := &Device{
		id:             uuid.New(),
		driver:         driver,
		enabled:        true,
		readTime:       vip.InvalidTime,
		connectTimeout: DefaultConnectTimeout,
		output:         &Output{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.className == "" {
		d.className = classNameOf(driver)
	}
	if d.name == "" {
		d.name = d.className
	}
	d.events = vip.NewObservers[Event]("device:" + d.name)
	if n, ok := driver.(TimestampingNotifier); ok {
		n.OnTimestampingChanged(d.EmitTimestampingChanged)
	}
	return d
}

func classNameOf(driver Driver) string {
	if n, ok := driver.(ClassNamer); ok {
		return n.ClassName()
	}
	t := reflect.TypeOf(driver)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func (d *Device) ID() uuid.UUID { return d.id }

func (d *Device) Driver() Driver { return d.driver }

func (d *Device) ClassName() string { return d.className }

func (d *Device) Path() string { return d.path }

func (d *Device) Type() Type { return d.driver.Type() }

func (d *Device) SupportedModes() OpenMode { return d.driver.SupportedModes() }

func (d *Device) Output() *Output { return d.output }

func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *Device) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name = name
}

// Subscribe registers a listener for device events.
func (d *Device) Subscribe(buffer int) (<-chan Event, func()) {
	return d.events.Subscribe(buffer)
}

// AttachOwner installs the owner notified of structural changes.
func (d *Device) AttachOwner(o Owner) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != nil && d.owner != o {
		return ErrAlreadyOwned
	}
	d.owner = o
	return nil
}

// DetachOwner removes o if it is the current owner.
func (d *Device) DetachOwner(o Owner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner == o {
		d.owner = nil
	}
}

func (d *Device) notify(e Event, structural bool) {
	e.Device = d.Name()
	d.events.Emit(e)
	if !structural {
		return
	}
	d.mu.RLock()
	owner := d.owner
	d.mu.RUnlock()
	if owner != nil {
		owner.DeviceChanged(d, e.Type)
	}
}

func (d *Device) OpenMode() OpenMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

func (d *Device) IsOpen() bool {
	return d.OpenMode() != NotOpen
}

// Err returns the last error of the device, nil after a successful open.
func (d *Device) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

func (d *Device) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Open opens the driver. Opening a read device from the closed state resets its time.
func (d *Device) Open(mode OpenMode) error {
	if mode == NotOpen || mode&^d.driver.SupportedModes() != 0 {
		err := fmt.Errorf("open %s in mode %s: %w", d.Name(), mode, ErrUnsupportedMode)
		d.setErr(err)
		return err
	}
	if d.IsOpen() {
		if err := d.Close(); err != nil {
			slog.Warn("Failed to close device before reopening", "device", d.Name(), "err", err)
		}
	}
	if err := d.driver.Open(mode); err != nil {
		err = fmt.Errorf("open %s: %w", d.Name(), err)
		d.setErr(err)
		slog.Error("Failed to open device", "device", d.Name(), "path", d.path, "err", err)
		return err
	}

	window := d.rawWindow(mode)
	d.mu.Lock()
	if mode&ReadOnly != 0 {
		d.readTime = vip.InvalidTime
	}
	d.mode = mode
	d.err = nil
	if !d.filter.IsEmpty() {
		f := d.filter.Clone()
		f.SetInputTimeRangeList(window)
		d.filter = f
	}
	d.mu.Unlock()

	slog.Debug("Device opened", "device", d.Name(), "mode", mode, "type", d.Type())
	d.notify(Event{Type: Opened}, true)
	return nil
}

// Close stops streaming, closes the driver and resets the window and time.
func (d *Device) Close() error {
	if !d.IsOpen() {
		return nil
	}
	if d.IsStreamingEnabled() {
		_ = d.SetStreamingEnabled(false)
	}

	d.readMu.Lock()
	err := d.driver.Close()
	d.mu.Lock()
	d.mode = NotOpen
	d.readTime = vip.InvalidTime
	d.mu.Unlock()
	d.readMu.Unlock()

	if err != nil {
		err = fmt.Errorf("close %s: %w", d.Name(), err)
		d.setErr(err)
	}
	d.notify(Event{Type: Closed}, true)
	return err
}

func (d *Device) IsEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the device. A disabled device refuses reads
// and is ignored by its pool.
func (d *Device) SetEnabled(enable bool) {
	d.mu.Lock()
	if d.enabled == enable {
		d.mu.Unlock()
		return
	}
	d.enabled = enable
	d.mu.Unlock()
	d.notify(Event{Type: EnabledChanged, Value: enable}, true)
}

// TimestampingFilter returns a copy of the current filter, nil when none is set.
func (d *Device) TimestampingFilter() *vip.TimestampingFilter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter.Clone()
}

func (d *Device) currentFilter() *vip.TimestampingFilter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter
}

// SetTimestampingFilter installs a copy of f bound to the raw device window.
func (d *Device) SetTimestampingFilter(f *vip.TimestampingFilter) {
	var nf *vip.TimestampingFilter
	if !f.IsEmpty() {
		nf = f.Clone()
		nf.SetInputTimeRangeList(d.rawWindow(d.OpenMode()))
	}
	d.mu.Lock()
	d.filter = nf
	d.mu.Unlock()
	d.notify(Event{Type: TimestampingFilterChanged}, true)
}

// ResetTimestampingFilter removes the filter. Nothing happens without filter.
func (d *Device) ResetTimestampingFilter() {
	d.mu.Lock()
	if d.filter.IsEmpty() {
		d.mu.Unlock()
		return
	}
	d.filter = nil
	d.mu.Unlock()
	d.notify(Event{Type: TimestampingFilterChanged}, true)
}

// EmitTimestampingChanged must be called by drivers when their raw window changed.
func (d *Device) EmitTimestampingChanged() {
	window := d.rawWindow(d.OpenMode())
	d.mu.Lock()
	if !d.filter.IsEmpty() {
		f := d.filter.Clone()
		f.SetInputTimeRangeList(window)
		d.filter = f
	}
	d.mu.Unlock()
	d.notify(Event{Type: TimestampingChanged}, true)
}

// Save pushes the filter, enabled and streaming state.
func (d *Device) Save() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saved = append(d.saved, savedParameters{
		filter:    d.filter.Clone(),
		enabled:   d.enabled,
		streaming: d.streaming,
	})
}

// Restore pops the state pushed by Save. Nothing happens on an empty stack.
func (d *Device) Restore() error {
	d.mu.Lock()
	if len(d.saved) == 0 {
		d.mu.Unlock()
		return nil
	}
	p := d.saved[len(d.saved)-1]
	d.saved = d.saved[:len(d.saved)-1]
	d.mu.Unlock()

	d.SetTimestampingFilter(p.filter)
	d.SetEnabled(p.enabled)
	if d.Type() == Sequential && d.IsOpen() {
		return d.SetStreamingEnabled(p.streaming)
	}
	return nil
}

// Write applies s on a device opened for writing.
func (d *Device) Write(s vip.Sample) error {
	if d.OpenMode()&WriteOnly == 0 {
		return ErrNotOpen
	}
	if !d.IsEnabled() {
		return ErrDisabled
	}
	w, ok := d.driver.(Writer)
	if !ok {
		return ErrUnsupportedMode
	}
	if err := w.Apply(s); err != nil {
		err = fmt.Errorf("write %s: %w", d.Name(), err)
		d.setErr(err)
		return err
	}
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s, %s)", d.Name(), d.Type(), d.OpenMode())
}
