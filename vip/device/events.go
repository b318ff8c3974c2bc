package device

import "fmt"

// EventType identifies a device notification.
type EventType int

const (
	Opened EventType = iota
	Closed
	TimeChanged
	TimestampingChanged
	TimestampingFilterChanged
	StreamingStarted
	StreamingStopped
	StreamingChanged
	EnabledChanged
)

func (e EventType) String() string {
	switch e {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	case TimeChanged:
		return "time_changed"
	case TimestampingChanged:
		return "timestamping_changed"
	case TimestampingFilterChanged:
		return "timestamping_filter_changed"
	case StreamingStarted:
		return "streaming_started"
	case StreamingStopped:
		return "streaming_stopped"
	case StreamingChanged:
		return "streaming_changed"
	case EnabledChanged:
		return "enabled_changed"
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

// Event is a device notification.
type Event struct {
	Type   EventType
	Device string
	// Time is set for TimeChanged
	Time int64
	// Value carries the new state of StreamingChanged and EnabledChanged
	Value bool
}

// Owner is notified synchronously of structural device changes (open,
// close, enable, timestamping, streaming). A pool is the usual owner.
// The device holds none of its locks while calling it.
type Owner interface {
	DeviceChanged(d *Device, e EventType)
}
