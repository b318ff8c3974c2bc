package pool

import "fmt"

// EventType identifies a pool notification
type EventType int

const (
	TimeChanged EventType = iota
	DeviceTypeChanged
	DeviceAdded
	DeviceRemoved
	TimestampingChanged
	TimestampingFilterChanged
	PlayingStarted
	PlayingAdvancedOneFrame
	PlayingStopped
	StreamingChanged
	ProcessingChanged
)

func (e EventType) String() string {
	switch e {
	case TimeChanged:
		return "time_changed"
	case DeviceTypeChanged:
		return "device_type_changed"
	case DeviceAdded:
		return "device_added"
	case DeviceRemoved:
		return "device_removed"
	case TimestampingChanged:
		return "timestamping_changed"
	case TimestampingFilterChanged:
		return "timestamping_filter_changed"
	case PlayingStarted:
		return "playing_started"
	case PlayingAdvancedOneFrame:
		return "playing_advanced"
	case PlayingStopped:
		return "playing_stopped"
	case StreamingChanged:
		return "streaming_changed"
	case ProcessingChanged:
		return "processing_changed"
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

// Event is a pool notification. Device is set for member events.
type Event struct {
	Type   EventType
	Pool   string
	Device string
	Time   int64
	Value  bool
}
