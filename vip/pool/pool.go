package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"thermavip/vip"
	"thermavip/vip/buffer"
	"thermavip/vip/device"
)

var (
	ErrNoTemporalDevice = errors.New("pool has no temporal device")
	ErrNotMember        = errors.New("device is not a pool member")
	ErrReadFailed       = errors.New("no member device could be read")
	ErrPlaying          = errors.New("pool is playing")
)

// DefaultMaxFPS bounds the read rate of playback without play speed
const DefaultMaxFPS = 100

// Option configures a Pool
type Option func(*Pool)

func WithName(name string) Option {
	return func(p *Pool) { p.name = name }
}

// WithTimeProvider replaces the wall clock of the playback loop and the streaming watchdog.
func WithTimeProvider(clock TimeProvider) Option {
	return func(p *Pool) { p.clock = clock }
}

// WithBufferManager shares a buffer manager between pools.
func WithBufferManager(m *buffer.Manager) Option {
	return func(p *Pool) { p.buffers = m }
}

func WithMaxReadThreadCount(count int) Option {
	return func(p *Pool) { p.readThreads = max(count, 0) }
}

type readCallback struct {
	id int
	fn ReadCallback
}

// ReadCallback is called with the pool time before every member read.
type ReadCallback func(t int64)

// Pool aggregates devices into one timeline. The union of the member
// windows is the pool window; stepping never skips a time of any member.
type Pool struct {
	clock   TimeProvider
	buffers *buffer.Manager
	events  *vip.Observers[Event]
	hook    *memberHook

	// readMu serializes pool reads
	readMu sync.Mutex

	mu            sync.RWMutex
	name          string
	devices       []*device.Device
	inputs        map[*device.Device][]*buffer.Input
	params        parameters
	saved         []savedParameters
	readTime      int64
	readThreads   int
	readCallbacks []readCallback
	playCallbacks []playCallback
	nextID        int

	// cached views, recomputed when dirty
	dirtyChildren atomic.Bool
	dirtyWindow   atomic.Bool
	cacheMu       sync.Mutex
	readers       []*device.Device
	deviceType    device.Type
	hasTemporal   bool
	hasSequential bool
	window        vip.TimeRangeList
	noLimits      vip.TimeRangeList
	size          int64

	player    player
	streaming poolStreaming
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		clock:      RealTimeProvider{},
		inputs:     map[*device.Device][]*buffer.Input{},
		params:     defaultParameters(),
		readTime:   vip.InvalidTime,
		deviceType: device.Resource,
		size:       vip.InvalidPosition,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffers == nil {
		p.buffers = buffer.NewManager()
	}
	if p.name == "" {
		p.name = "Pool"
	}
	p.hook = &memberHook{pool: p}
	p.events = vip.NewObservers[Event]("pool:" + p.name)
	return p
}

func (p *Pool) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Pool) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// Subscribe registers a listener for pool events.
func (p *Pool) Subscribe(buffer int) (<-chan Event, func()) {
	return p.events.Subscribe(buffer)
}

func (p *Pool) emit(e Event) {
	e.Pool = p.Name()
	p.events.Emit(e)
}

func (p *Pool) markDirty() {
	p.dirtyChildren.Store(true)
	p.dirtyWindow.Store(true)
}

// Add makes d a member. Its name is made unique in the pool and a read-only
// member is aligned on the pool time.
func (p *Pool) Add(d *device.Device) error {
	if err := d.AttachOwner(p.hook); err != nil {
		return fmt.Errorf("add %s to pool %s: %w", d.Name(), p.Name(), err)
	}

	p.mu.Lock()
	if slices.Contains(p.devices, d) {
		p.mu.Unlock()
		return nil
	}
	d.SetName(p.uniqueNameLocked(d))
	p.devices = append(slices.Clone(p.devices), d)
	p.mu.Unlock()
	p.markDirty()

	slog.Debug("Device added to pool", "pool", p.Name(), "device", d.Name(), "type", d.Type())
	p.emit(Event{Type: DeviceAdded, Device: d.Name()})
	p.align(d)
	return nil
}

func (p *Pool) uniqueNameLocked(d *device.Device) string {
	taken := make(map[string]bool, len(p.devices))
	for _, o := range p.devices {
		taken[o.Name()] = true
	}
	name := d.Name()
	if name == "" {
		name = d.ClassName()
	}
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", d.ClassName(), i)
	}
	return name
}

// align reads a new read-only member at the pool time, or moves the pool
// inside the member window.
func (p *Pool) align(d *device.Device) {
	if d.OpenMode() != device.ReadOnly {
		return
	}
	p.mu.RLock()
	rt := p.readTime
	p.mu.RUnlock()

	var err error
	switch d.Type() {
	case device.Temporal:
		switch {
		case rt == vip.InvalidTime:
			err = d.Read(d.FirstTime(), false)
		case rt < d.FirstTime():
			err = p.Read(d.FirstTime(), false)
		case rt > d.LastTime():
			err = p.Read(d.LastTime(), false)
		default:
			err = d.Read(rt, false)
		}
	case device.Resource:
		err = d.Read(p.Time(), false)
	}
	if err != nil {
		slog.Debug("Failed to align new member", "pool", p.Name(), "device", d.Name(), "err", err)
	}
}

// Remove detaches d from the pool. Playback is stopped and the streaming of d disabled.
func (p *Pool) Remove(d *device.Device) error {
	p.mu.Lock()
	idx := slices.Index(p.devices, d)
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("remove %s: %w", d.Name(), ErrNotMember)
	}
	p.devices = slices.Delete(slices.Clone(p.devices), idx, idx+1)
	inputs := p.inputs[d]
	delete(p.inputs, d)
	p.mu.Unlock()

	p.detach(d, inputs)
	p.markDirty()
	p.emit(Event{Type: DeviceRemoved, Device: d.Name()})
	return nil
}

func (p *Pool) detach(d *device.Device, inputs []*buffer.Input) {
	p.Stop()
	if d.IsStreamingEnabled() {
		if err := d.SetStreamingEnabled(false); err != nil {
			slog.Warn("Failed to stop streaming", "pool", p.Name(), "device", d.Name(), "err", err)
		}
	}
	d.DetachOwner(p.hook)
	for _, in := range inputs {
		d.Output().Disconnect(in)
		in.Close()
	}
}

// Clear closes and removes every member.
func (p *Pool) Clear() {
	p.Stop()
	if err := p.SetStreamingEnabled(false); err != nil {
		slog.Warn("Failed to stop pool streaming", "pool", p.Name(), "err", err)
	}

	p.mu.Lock()
	devices, inputs := p.devices, p.inputs
	p.devices = nil
	p.inputs = map[*device.Device][]*buffer.Input{}
	p.readTime = vip.InvalidTime
	p.mu.Unlock()

	for _, d := range devices {
		p.detach(d, inputs[d])
		if err := d.Close(); err != nil {
			slog.Warn("Failed to close device", "pool", p.Name(), "device", d.Name(), "err", err)
		}
		p.emit(Event{Type: DeviceRemoved, Device: d.Name()})
	}
	p.markDirty()
}

// Devices returns the members in insertion order.
func (p *Pool) Devices() []*device.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.devices)
}

// Device returns the member named name.
func (p *Pool) Device(name string) (*device.Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := slices.IndexFunc(p.devices, func(d *device.Device) bool { return d.Name() == name })
	if idx < 0 {
		return nil, false
	}
	return p.devices[idx], true
}

// Close closes every member.
func (p *Pool) Close() error {
	p.Stop()
	var errs []error
	for _, d := range p.Devices() {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenReadDevices opens the closed members supporting ReadOnly.
func (p *Pool) OpenReadDevices() error {
	var errs []error
	for _, d := range p.Devices() {
		if d.SupportedModes()&device.ReadOnly == 0 || d.IsOpen() {
			continue
		}
		if err := d.Open(device.ReadOnly); err != nil {
			errs = append(errs, err)
			continue
		}
		p.align(d)
	}
	return errors.Join(errs...)
}

// EnableExcept enables every member but except.
func (p *Pool) EnableExcept(except ...*device.Device) {
	for _, d := range p.Devices() {
		d.SetEnabled(!slices.Contains(except, d))
	}
}

// DisableExcept disables every member but except.
func (p *Pool) DisableExcept(except ...*device.Device) {
	for _, d := range p.Devices() {
		d.SetEnabled(slices.Contains(except, d))
	}
}

// refresh recomputes the member list, the device type and the window when dirty.
func (p *Pool) refresh() {
	if !p.dirtyChildren.Load() && !p.dirtyWindow.Load() {
		return
	}
	p.cacheMu.Lock()
	if p.dirtyChildren.Swap(false) {
		p.mu.RLock()
		readers := make([]*device.Device, 0, len(p.devices))
		for _, d := range p.devices {
			if d.OpenMode()&device.ReadOnly != 0 || d.SupportedModes()&device.ReadOnly != 0 {
				readers = append(readers, d)
			}
		}
		p.mu.RUnlock()
		p.readers = readers
	}
	changed := false
	if p.dirtyWindow.Swap(false) {
		changed = p.computeLocked()
	}
	typ := p.deviceType
	p.cacheMu.Unlock()

	if changed {
		slog.Debug("Pool device type changed", "pool", p.Name(), "type", typ)
		p.emit(Event{Type: DeviceTypeChanged})
	}
}

// computeLocked updates the device type and the windows. It reports whether
// the device type changed.
func (p *Pool) computeLocked() bool {
	hasTemporal, hasSequential := false, false
	var window vip.TimeRangeList
	var single *device.Device
	count := 0
	for _, d := range p.readers {
		if !d.IsEnabled() {
			continue
		}
		switch d.Type() {
		case device.Temporal:
			hasTemporal = true
		case device.Sequential:
			hasSequential = true
		}
		if !d.IsOpen() || d.Type() != device.Temporal || d.Size() == 1 {
			continue
		}
		window = append(window, d.TimeWindow()...)
		single = d
		count++
	}
	window = vip.Normalize(window)

	p.mu.RLock()
	params := p.params
	p.mu.RUnlock()

	p.noLimits = window
	if params.modes&UseTimeLimits != 0 && len(window) > 0 {
		limits := window.Limits()
		start, end := params.stopBegin, params.stopEnd
		if start == vip.InvalidTime {
			start = limits.Start
		}
		if end == vip.InvalidTime {
			end = limits.End
		}
		window = window.Clamp(start, end)
	}
	p.window = window

	p.size = vip.InvalidPosition
	if count == 1 {
		p.size = single.Size()
	}

	typ := device.Resource
	switch {
	case hasTemporal:
		typ = device.Temporal
	case hasSequential:
		typ = device.Sequential
	}
	changed := typ != p.deviceType
	p.deviceType, p.hasTemporal, p.hasSequential = typ, hasTemporal, hasSequential
	return changed
}

func (p *Pool) readDevices() []*device.Device {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return p.readers
}

// steppers are the enabled members opened for reading.
func (p *Pool) steppers() []*device.Device {
	var res []*device.Device
	for _, d := range p.readDevices() {
		if d.OpenMode()&device.ReadOnly != 0 && d.IsEnabled() {
			res = append(res, d)
		}
	}
	return res
}

// DeviceType is Temporal when an enabled member is Temporal, then Sequential, then Resource.
func (p *Pool) DeviceType() device.Type {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return p.deviceType
}

func (p *Pool) HasTemporalDevice() bool {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return p.hasTemporal
}

func (p *Pool) HasSequentialDevice() bool {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return p.hasSequential
}

// IODevices returns the read members of type t.
func (p *Pool) IODevices(t device.Type, openedOnly bool) []*device.Device {
	var res []*device.Device
	for _, d := range p.readDevices() {
		if d.Type() == t && (!openedOnly || d.IsOpen()) {
			res = append(res, d)
		}
	}
	return res
}

// TimeWindow is the union of the windows of the enabled, open Temporal
// members, clamped to the stop times when UseTimeLimits is set.
func (p *Pool) TimeWindow() vip.TimeRangeList {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return slices.Clone(p.window)
}

// TimeWindowNoLimits ignores the stop times.
func (p *Pool) TimeWindowNoLimits() vip.TimeRangeList {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return slices.Clone(p.noLimits)
}

func (p *Pool) TimeLimits() vip.TimeRange {
	return p.TimeWindow().Limits()
}

func (p *Pool) FirstTime() int64 {
	return p.TimeLimits().Start
}

func (p *Pool) LastTime() int64 {
	return p.TimeLimits().End
}

// Size is the size of the only Temporal member, InvalidPosition otherwise.
func (p *Pool) Size() int64 {
	p.refresh()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	return p.size
}

// Time is the last read time, or the first time.
func (p *Pool) Time() int64 {
	p.mu.RLock()
	t := p.readTime
	p.mu.RUnlock()
	if t == vip.InvalidTime {
		return p.FirstTime()
	}
	return t
}

// ClosestTime returns the member sample closest to t within the time limits.
func (p *Pool) ClosestTime(t int64) int64 {
	return p.closest(t, p.TimeLimits())
}

// ClosestTimeNoLimits is ClosestTime ignoring the stop times.
func (p *Pool) ClosestTimeNoLimits(t int64) int64 {
	return p.closest(t, p.TimeWindowNoLimits().Limits())
}

func (p *Pool) closest(t int64, limits vip.TimeRange) int64 {
	if t == vip.InvalidTime || !limits.IsValid() {
		return vip.InvalidTime
	}
	t = min(max(t, limits.Start), limits.End)

	best := vip.InvalidTime
	for _, d := range p.steppers() {
		c := d.ClosestTime(t)
		if c == vip.InvalidTime || c < limits.Start || c > limits.End {
			continue
		}
		if best == vip.InvalidTime || abs(t-c) < abs(t-best) {
			best = c
		}
	}
	if best == vip.InvalidTime {
		return t
	}
	return best
}

// NextTime returns the smallest member sample after the closest time of t.
// With no candidate it returns the last time.
func (p *Pool) NextTime(t int64) int64 {
	limits := p.TimeLimits()
	c := p.closest(t, limits)
	if c == vip.InvalidTime {
		return vip.InvalidTime
	}
	if c > t {
		return c
	}
	next := vip.InvalidTime
	for _, d := range p.steppers() {
		n := d.NextTime(c)
		if n == vip.InvalidTime || n <= c || n > limits.End {
			continue
		}
		if next == vip.InvalidTime || n < next {
			next = n
		}
	}
	if next == vip.InvalidTime {
		return limits.End
	}
	return next
}

// PreviousTime returns the largest member sample before the closest time of t.
// With no candidate it returns the first time.
func (p *Pool) PreviousTime(t int64) int64 {
	limits := p.TimeLimits()
	c := p.closest(t, limits)
	if c == vip.InvalidTime {
		return vip.InvalidTime
	}
	if c < t {
		return c
	}
	prev := vip.InvalidTime
	for _, d := range p.steppers() {
		n := d.PreviousTime(c)
		if n == vip.InvalidTime || n >= c || n < limits.Start {
			continue
		}
		if prev == vip.InvalidTime || n > prev {
			prev = n
		}
	}
	if prev == vip.InvalidTime {
		return limits.Start
	}
	return prev
}

// primary is the first enabled Temporal member with more than one sample.
func (p *Pool) primary() *device.Device {
	for _, d := range p.readDevices() {
		if d.Type() == device.Temporal && d.IsEnabled() && d.Size() > 1 {
			return d
		}
	}
	return nil
}

// PosToTime converts a position of the primary member.
func (p *Pool) PosToTime(pos int64) int64 {
	if d := p.primary(); d != nil {
		return d.PosToTime(pos)
	}
	return vip.InvalidTime
}

// TimeToPos converts a time to a position of the primary member.
func (p *Pool) TimeToPos(t int64) int64 {
	if d := p.primary(); d != nil {
		return d.TimeToPos(t)
	}
	return vip.InvalidPosition
}

func (p *Pool) setReadTime(t int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readTime == t {
		return false
	}
	p.readTime = t
	return true
}

// Read moves the pool to t and reads every enabled Temporal member at the
// closest sample. A t outside the time limits moves the pool to the closest
// sample instead. Member failures are logged; the read fails when no member
// could be read.
func (p *Pool) Read(t int64, force bool) error {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	if p.DeviceType() != device.Temporal {
		if p.setReadTime(t) || force {
			p.callReadCallbacks(t)
			p.emit(Event{Type: TimeChanged, Time: t})
		}
		return nil
	}

	if t == vip.InvalidTime {
		return device.ErrInvalidTime
	}
	limits := p.TimeLimits()
	if !limits.IsValid() {
		return device.ErrOutOfWindow
	}
	closest := p.closest(t, limits)
	if closest < limits.Start || closest > limits.End {
		return device.ErrOutOfWindow
	}
	if t < limits.Start || t > limits.End {
		t = closest
	}
	if !p.setReadTime(t) && !force {
		return nil
	}
	p.emit(Event{Type: TimeChanged, Time: t})
	return p.readMembers(closest)
}

// SeekTime is Read without force.
func (p *Pool) SeekTime(t int64) error {
	return p.Read(t, false)
}

// SeekPos reads at a position of the primary member.
func (p *Pool) SeekPos(pos int64) error {
	t := p.PosToTime(pos)
	if t == vip.InvalidTime {
		return ErrNoTemporalDevice
	}
	return p.Read(t, false)
}

func (p *Pool) callReadCallbacks(t int64) {
	p.mu.RLock()
	callbacks := slices.Clone(p.readCallbacks)
	p.mu.RUnlock()
	for _, c := range callbacks {
		c.fn(t)
	}
}

func (p *Pool) readMembers(t int64) error {
	p.callReadCallbacks(t)

	var devices []*device.Device
	for _, d := range p.readDevices() {
		if d.OpenMode()&device.ReadOnly != 0 && d.Type() == device.Temporal && d.IsEnabled() {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		return ErrNoTemporalDevice
	}

	var succeeded atomic.Int32
	read := func(d *device.Device) {
		if err := d.Read(t, true); err != nil {
			slog.Warn("Member read failed", "pool", p.Name(), "device", d.Name(), "time", t, "err", err)
			return
		}
		succeeded.Add(1)
	}

	threads := min(p.MaxReadThreadCount(), runtime.NumCPU(), len(devices))
	if threads > 1 {
		sem := make(chan struct{}, threads)
		var wg sync.WaitGroup
		for _, d := range devices {
			wg.Add(1)
			sem <- struct{}{}
			go func(d *device.Device) {
				defer wg.Done()
				defer func() { <-sem }()
				read(d)
			}(d)
		}
		wg.Wait()
	} else {
		for _, d := range devices {
			read(d)
		}
	}

	if succeeded.Load() == 0 {
		return fmt.Errorf("%w at %d", ErrReadFailed, t)
	}
	return nil
}

// Reload reads the current time again on every non Sequential member.
// Reloading is refused while playing.
func (p *Pool) Reload() error {
	if p.IsPlaying() {
		return ErrPlaying
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()

	t := p.Time()
	var errs []error
	for _, d := range p.readDevices() {
		if d.OpenMode()&device.ReadOnly == 0 || d.Type() == device.Sequential || !d.IsEnabled() {
			continue
		}
		if err := d.Read(t, true); err != nil {
			errs = append(errs, err)
		}
	}
	p.emit(Event{Type: TimeChanged, Time: t})
	return errors.Join(errs...)
}

// AddReadCallback registers fn, called before each member read. It returns an id for RemoveReadCallback.
func (p *Pool) AddReadCallback(fn ReadCallback) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.readCallbacks = append(p.readCallbacks, readCallback{id: p.nextID, fn: fn})
	return p.nextID
}

func (p *Pool) RemoveReadCallback(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readCallbacks = slices.DeleteFunc(slices.Clone(p.readCallbacks), func(c readCallback) bool { return c.id == id })
}

func (p *Pool) MaxReadThreadCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readThreads
}

// SetMaxReadThreadCount enables parallel member reads when count > 1.
func (p *Pool) SetMaxReadThreadCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readThreads = max(count, 0)
}

// Buffers returns the manager holding the buffer defaults of the pool inputs.
func (p *Pool) Buffers() *buffer.Manager {
	return p.buffers
}

// NewInput creates a consumer endpoint fed by the member d.
func (p *Pool) NewInput(d *device.Device, name string) (*buffer.Input, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.devices, d) {
		return nil, fmt.Errorf("input %s on %s: %w", name, d.Name(), ErrNotMember)
	}
	in := p.buffers.NewInput(name)
	d.Output().Connect(in)
	p.inputs[d] = append(p.inputs[d], in)
	return in, nil
}

// Inputs returns the endpoints created on d.
func (p *Pool) Inputs(d *device.Device) []*buffer.Input {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.inputs[d])
}

func (p *Pool) BufferLimits() buffer.Limits {
	return p.buffers.Defaults()
}

func (p *Pool) SetMaxListSize(size int) {
	p.buffers.SetMaxListSize(size)
}

func (p *Pool) SetMaxListMemory(memory int) {
	p.buffers.SetMaxListMemory(memory)
}

func (p *Pool) SetListLimitType(t buffer.LimitType) {
	p.buffers.SetListLimitType(t)
}

// ClearInputBuffers empties every input of the pool.
func (p *Pool) ClearInputBuffers() {
	p.buffers.ClearInputBuffers()
}

func (p *Pool) String() string {
	return fmt.Sprintf("%s(%d devices, %s)", p.Name(), len(p.Devices()), p.DeviceType())
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// memberHook receives the structural notifications of the members.
type memberHook struct {
	pool *Pool
}

func (h *memberHook) DeviceChanged(d *device.Device, e device.EventType) {
	p := h.pool
	switch e {
	case device.Opened, device.Closed, device.EnabledChanged:
		p.markDirty()
		p.emit(Event{Type: ProcessingChanged, Device: d.Name()})
	case device.TimestampingChanged:
		p.markDirty()
		p.emit(Event{Type: TimestampingChanged, Device: d.Name()})
		p.reloadIfIdle()
	case device.TimestampingFilterChanged:
		p.markDirty()
		p.emit(Event{Type: TimestampingFilterChanged, Device: d.Name()})
		p.reloadIfIdle()
	case device.StreamingChanged:
		p.emit(Event{Type: StreamingChanged, Device: d.Name(), Value: d.IsStreamingEnabled()})
	}
}

func (p *Pool) reloadIfIdle() {
	if p.IsPlaying() {
		return
	}
	if err := p.Reload(); err != nil && !errors.Is(err, ErrPlaying) {
		slog.Debug("Pool reload failed", "pool", p.Name(), "err", err)
	}
}
