package protocol

import (
	"thermavip/vip"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

func optionalTime(t int64) *int64 {
	if t == vip.InvalidTime {
		return nil
	}
	return &t
}

func optionalPos(pos int64) *int64 {
	if pos == vip.InvalidPosition {
		return nil
	}
	return &pos
}

// DeviceToProtocol converts a device to a protocol Device
func DeviceToProtocol(d *device.Device) Device {
	res := Device{
		ID:        d.ID().String(),
		Name:      d.Name(),
		Kind:      d.ClassName(),
		Path:      d.Path(),
		Type:      d.Type().String(),
		OpenMode:  d.OpenMode().String(),
		Enabled:   d.IsEnabled(),
		Streaming: d.IsStreamingEnabled(),
	}
	switch d.Type() {
	case device.Temporal:
		res.Window = d.TimeWindow()
		res.Size = d.Size()
		if d.IsOpen() {
			res.Time = optionalTime(d.Time())
		}
	case device.Sequential:
		res.Status = d.StreamingStatus().String()
		if s, ok := d.Output().Data(); ok {
			res.Time = optionalTime(s.Time)
		}
	}
	if err := d.Err(); err != nil {
		res.Error = err.Error()
	}
	return res
}

// DevicesToProtocol converts the members of p
func DevicesToProtocol(p *pool.Pool) []Device {
	devices := p.Devices()
	res := make([]Device, 0, len(devices))
	for _, d := range devices {
		res = append(res, DeviceToProtocol(d))
	}
	return res
}

// PoolToProtocol converts the playback state of p
func PoolToProtocol(p *pool.Pool) Pool {
	t := p.Time()
	window := p.TimeWindow()
	if window == nil {
		window = vip.TimeRangeList{}
	}
	return Pool{
		Name:       p.Name(),
		DeviceType: p.DeviceType().String(),
		Window:     window,
		Time:       optionalTime(t),
		Pos:        optionalPos(p.TimeToPos(t)),
		Size:       optionalPos(p.Size()),
		Playing:    p.IsPlaying(),
		Streaming:  p.IsStreamingEnabled(),
		Speed:      p.PlaySpeed(),
		Modes:      p.Modes().String(),
		MissFrames: p.MissFramesEnabled(),
		StopBegin:  optionalTime(p.StopBeginTime()),
		StopEnd:    optionalTime(p.StopEndTime()),
		MaxFPS:     p.ReadMaxFPS(),
	}
}

// EventToNotification maps a pool event to the notification broadcast to clients.
func EventToNotification(p *pool.Pool, e pool.Event) (MessageType, interface{}) {
	name := p.Name()
	switch e.Type {
	case pool.TimeChanged:
		return MessageTypeTimeChanged, TimeChangedPayload{Pool: name, Time: e.Time, Pos: optionalPos(p.TimeToPos(e.Time))}
	case pool.PlayingStarted:
		return MessageTypePlayingStarted, PlayingPayload{Pool: name, Time: e.Time}
	case pool.PlayingAdvancedOneFrame:
		return MessageTypePlayingAdvanced, PlayingPayload{Pool: name, Time: e.Time}
	case pool.PlayingStopped:
		return MessageTypePlayingStopped, PlayingPayload{Pool: name, Time: e.Time}
	case pool.StreamingChanged:
		return MessageTypeStreamingChanged, StreamingChangedPayload{Pool: name, Device: e.Device, Enabled: e.Value}
	case pool.DeviceAdded:
		if d, ok := p.Device(e.Device); ok {
			return MessageTypeDeviceAdded, DeviceAddedPayload{Pool: name, Device: DeviceToProtocol(d)}
		}
		return MessageTypeDeviceAdded, DeviceAddedPayload{Pool: name, Device: Device{Name: e.Device}}
	case pool.DeviceRemoved:
		return MessageTypeDeviceRemoved, DeviceRemovedPayload{Pool: name, Name: e.Device}
	}
	return MessageTypePoolChanged, PoolChangedPayload{Pool: PoolToProtocol(p), Reason: e.Type.String()}
}
