package device

import (
	"context"
	"errors"
	"fmt"

	"thermavip/vip"
)

// Type is the temporal nature of a device.
type Type int

const (
	// Temporal devices have a time window and can be read at any time
	Temporal Type = iota
	// Sequential devices receive live data, only the current time is meaningful
	Sequential
	// Resource devices hold one static value
	Resource
)

func (t Type) String() string {
	switch t {
	case Temporal:
		return "temporal"
	case Sequential:
		return "sequential"
	case Resource:
		return "resource"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// OpenMode is a set of access flags.
type OpenMode int

const (
	NotOpen   OpenMode = 0
	ReadOnly  OpenMode = 1
	WriteOnly OpenMode = 2
	ReadWrite OpenMode = ReadOnly | WriteOnly
)

func (m OpenMode) String() string {
	switch m {
	case NotOpen:
		return "closed"
	case ReadOnly:
		return "read"
	case WriteOnly:
		return "write"
	case ReadWrite:
		return "read|write"
	}
	return fmt.Sprintf("OpenMode(%d)", int(m))
}

// ParseOpenMode parses the names produced by OpenMode.String.
func ParseOpenMode(s string) (OpenMode, error) {
	switch s {
	case "closed", "":
		return NotOpen, nil
	case "read":
		return ReadOnly, nil
	case "write":
		return WriteOnly, nil
	case "read|write":
		return ReadWrite, nil
	}
	return NotOpen, fmt.Errorf("unknown open mode %q", s)
}

var (
	ErrNotOpen          = errors.New("device not open")
	ErrDisabled         = errors.New("device disabled")
	ErrInvalidTime      = errors.New("invalid time")
	ErrOutOfWindow      = errors.New("time outside device window")
	ErrUnchanged        = errors.New("time unchanged")
	ErrUnsupportedMode  = errors.New("unsupported operation for this device")
	ErrStreamingFailed  = errors.New("streaming failed")
	ErrAlreadyOwned     = errors.New("device already belongs to a pool")
	ErrNoFactory        = errors.New("no device factory")
	ErrDuplicateFactory = errors.New("device factory already registered")
)

// Driver is the format specific part of a device: it opens the underlying
// resource and produces samples. Drivers never see visible (filtered) times,
// only raw times.
type Driver interface {
	Type() Type
	SupportedModes() OpenMode
	Open(mode OpenMode) error
	Close() error
	ReadData(t int64) (vip.Sample, error)
}

// Timeline is implemented by Temporal drivers.
type Timeline interface {
	// TimeWindow is the raw window, normalized.
	TimeWindow() vip.TimeRangeList
	// Size is the number of samples, 0 for devices without position.
	Size() int64
	PosToTime(pos int64) int64
	TimeToPos(t int64) int64
}

// Stepper overrides the position based stepping of a Timeline. Every method
// works on raw times.
type Stepper interface {
	NextTime(t int64) int64
	PreviousTime(t int64) int64
	ClosestTime(t int64) int64
}

// InvalidTimeReader handles reads at times that are not an exact sample or
// lie outside the window. ok=false lets the regular read proceed.
type InvalidTimeReader interface {
	ReadInvalidTime(t int64) (s vip.Sample, ok bool)
}

// Sink receives the samples of a streaming worker.
type Sink interface {
	// Push hands a sample to the device output. The sample keeps its own time.
	Push(s vip.Sample)
	// Connected reports that the source is established.
	Connected()
}

// Streamer is implemented by Sequential drivers. Stream runs the ingestion
// loop until ctx is canceled. An error returned before Connected was called
// marks the connection as failed.
type Streamer interface {
	Stream(ctx context.Context, sink Sink) error
}

// Writer is implemented by drivers opened in WriteOnly mode.
type Writer interface {
	Apply(s vip.Sample) error
}

// Reloader lets a driver refresh cached content before Device.Reload re-reads.
type Reloader interface {
	Reload() error
}

// ClassNamer gives the name used to build unique device names.
type ClassNamer interface {
	ClassName() string
}

// TimestampingNotifier is implemented by drivers whose window can change
// after opening. The device installs fn and the driver calls it on change.
type TimestampingNotifier interface {
	OnTimestampingChanged(fn func())
}
