package vip

import (
	"fmt"
	"maps"
)

// Payload is the opaque value carried by a Sample. The core never inspects
// it beyond its memory footprint.
type Payload interface {
	MemoryFootprint() int
}

// Bytes is a raw binary payload (encoded image, text file...).
type Bytes []byte

func (b Bytes) MemoryFootprint() int { return len(b) }

// Float64s is a numeric payload (signal samples, a flattened frame...).
type Float64s []float64

func (f Float64s) MemoryFootprint() int { return len(f) * 8 }

// Text is a string payload.
type Text string

func (t Text) MemoryFootprint() int { return len(t) }

// Sample is one unit of data produced by a device at a given time.
type Sample struct {
	Time       int64
	Value      Payload
	Attributes map[string]any
	// Source is the name of the producing device
	Source string
}

// EmptySample returns a sample without value stamped at t.
func EmptySample(t int64) Sample {
	return Sample{Time: t}
}

// IsEmpty reports whether the sample carries no value
func (s Sample) IsEmpty() bool {
	return s.Value == nil
}

// MemoryFootprint returns the payload size in bytes
func (s Sample) MemoryFootprint() int {
	if s.Value == nil {
		return 0
	}
	return s.Value.MemoryFootprint()
}

// Attribute returns the attribute value for key.
func (s Sample) Attribute(key string) (any, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

// WithAttribute returns a copy of s with key set. The attribute map of s is not modified.
func (s Sample) WithAttribute(key string, value any) Sample {
	attrs := make(map[string]any, len(s.Attributes)+1)
	maps.Copy(attrs, s.Attributes)
	attrs[key] = value
	s.Attributes = attrs
	return s
}

func (s Sample) String() string {
	return fmt.Sprintf("Sample{time: %d, source: %q, size: %d}", s.Time, s.Source, s.MemoryFootprint())
}
