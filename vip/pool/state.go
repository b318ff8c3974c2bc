package pool

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/exp/slices"

	"thermavip/vip"
	"thermavip/vip/buffer"
	"thermavip/vip/device"
)

type savedParameters struct {
	params  parameters
	time    int64
	limits  buffer.Limits
	devices []*device.Device
}

// Save pushes the playback parameters, the time, the buffer limits and the
// state of every member.
func (p *Pool) Save() {
	t := p.Time()
	limits := p.buffers.Defaults()
	p.mu.Lock()
	devices := slices.Clone(p.devices)
	p.saved = append(p.saved, savedParameters{params: p.params, time: t, limits: limits, devices: devices})
	p.mu.Unlock()
	for _, d := range devices {
		d.Save()
	}
}

// Restore pops the state pushed by Save and reads the saved time.
func (p *Pool) Restore() error {
	p.mu.Lock()
	if len(p.saved) == 0 {
		p.mu.Unlock()
		return nil
	}
	s := p.saved[len(p.saved)-1]
	p.saved = p.saved[:len(p.saved)-1]
	p.params = s.params
	p.mu.Unlock()
	p.dirtyWindow.Store(true)

	var errs []error
	for _, d := range s.devices {
		if err := d.Restore(); err != nil {
			errs = append(errs, err)
		}
	}
	p.buffers.SetDefaults(s.limits)
	if s.time != vip.InvalidTime {
		if err := p.Read(s.time, false); err != nil {
			errs = append(errs, err)
		}
	}
	p.emit(Event{Type: ProcessingChanged})
	return errors.Join(errs...)
}

// DeviceState is the persisted configuration of a member
type DeviceState struct {
	Name      string               `json:"name" yaml:"name"`
	Kind      string               `json:"kind" yaml:"kind"`
	Path      string               `json:"path,omitempty" yaml:"path,omitempty"`
	OpenMode  string               `json:"open_mode" yaml:"open_mode"`
	Enabled   bool                 `json:"enabled" yaml:"enabled"`
	Streaming bool                 `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Filter    []vip.RangeTransform `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// State is the persisted configuration of a pool
type State struct {
	Name       string        `json:"name" yaml:"name"`
	Speed      float64       `json:"speed" yaml:"speed"`
	Modes      Mode          `json:"modes" yaml:"modes"`
	MissFrames bool          `json:"miss_frames" yaml:"miss_frames"`
	StopBegin  int64         `json:"stop_begin" yaml:"stop_begin"`
	StopEnd    int64         `json:"stop_end" yaml:"stop_end"`
	MaxFPS     int           `json:"max_fps" yaml:"max_fps"`
	Time       int64         `json:"time" yaml:"time"`
	Buffer     buffer.Limits `json:"buffer" yaml:"buffer"`
	Devices    []DeviceState `json:"devices" yaml:"devices"`
}

// State externalizes the pool configuration.
func (p *Pool) State() State {
	params := p.parameters()
	s := State{
		Name:       p.Name(),
		Speed:      params.speed,
		Modes:      params.modes,
		MissFrames: params.missFrames,
		StopBegin:  params.stopBegin,
		StopEnd:    params.stopEnd,
		MaxFPS:     params.maxFPS,
		Time:       p.Time(),
		Buffer:     p.buffers.Defaults(),
	}
	for _, d := range p.Devices() {
		ds := DeviceState{
			Name:      d.Name(),
			Kind:      d.ClassName(),
			Path:      d.Path(),
			OpenMode:  d.OpenMode().String(),
			Enabled:   d.IsEnabled(),
			Streaming: d.IsStreamingEnabled(),
		}
		if f := d.TimestampingFilter(); !f.IsEmpty() {
			ds.Filter = f.Transforms()
		}
		s.Devices = append(s.Devices, ds)
	}
	return s
}

// ApplyState restores a configuration produced by State. Members are matched
// by name; missing members are created from registry when it is not nil.
func (p *Pool) ApplyState(s State, registry *device.Registry) error {
	p.Stop()
	if s.Name != "" {
		p.SetName(s.Name)
	}
	if s.Speed > 0 {
		if err := p.SetPlaySpeed(s.Speed); err != nil {
			return err
		}
	}
	p.SetModes(s.Modes)
	p.SetMissFramesEnabled(s.MissFrames)
	p.mu.Lock()
	p.params.stopBegin, p.params.stopEnd = s.StopBegin, s.StopEnd
	p.mu.Unlock()
	p.SetReadMaxFPS(s.MaxFPS)
	p.buffers.SetDefaults(s.Buffer)
	p.dirtyWindow.Store(true)

	var errs []error
	for _, ds := range s.Devices {
		if err := p.applyDeviceState(ds, registry); err != nil {
			errs = append(errs, err)
			slog.Warn("Failed to restore device", "pool", p.Name(), "device", ds.Name, "err", err)
		}
	}

	if s.Time != vip.InvalidTime && p.DeviceType() == device.Temporal {
		if err := p.Read(s.Time, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) applyDeviceState(ds DeviceState, registry *device.Registry) error {
	mode, err := device.ParseOpenMode(ds.OpenMode)
	if err != nil {
		return err
	}
	d, ok := p.Device(ds.Name)
	if !ok {
		if registry == nil {
			return fmt.Errorf("%w: %s", ErrNotMember, ds.Name)
		}
		d, err = registry.Create(ds.Kind, ds.Path, device.WithName(ds.Name))
		if err != nil {
			return err
		}
		if mode != device.NotOpen {
			if err := d.Open(mode); err != nil {
				return err
			}
		}
		if err := p.Add(d); err != nil {
			return err
		}
	} else if mode != device.NotOpen && d.OpenMode() != mode {
		if err := d.Open(mode); err != nil {
			return err
		}
	}

	d.SetEnabled(ds.Enabled)
	if len(ds.Filter) > 0 {
		d.SetTimestampingFilter(vip.NewTimestampingFilter(ds.Filter...))
	} else {
		d.ResetTimestampingFilter()
	}
	if d.Type() == device.Sequential && d.IsOpen() {
		return d.SetStreamingEnabled(ds.Streaming)
	}
	return nil
}
