// Package stream provides Sequential devices fed by network sources.
package stream

import (
	"encoding/json"
	"fmt"
	"sync"

	"thermavip/vip"
)

// Message is the wire form of a streamed sample. Time is in nanoseconds;
// a missing time is stamped on reception.
type Message struct {
	Time       *int64          `json:"time,omitempty"`
	Value      json.RawMessage `json:"value"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

// DecodeSample parses a Message. Numbers and number arrays become Float64s,
// strings become Text and any other value is kept as raw Bytes.
func DecodeSample(data []byte) (vip.Sample, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return vip.Sample{}, fmt.Errorf("invalid sample message: %w", err)
	}
	s := vip.Sample{Time: vip.InvalidTime, Attributes: m.Attributes}
	if m.Time != nil {
		s.Time = *m.Time
	}
	s.Value = decodeValue(m.Value)
	return s, nil
}

func decodeValue(raw json.RawMessage) vip.Payload {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return vip.Float64s{number}
	}
	var numbers []float64
	if err := json.Unmarshal(raw, &numbers); err == nil {
		return vip.Float64s(numbers)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return vip.Text(text)
	}
	return vip.Bytes(raw)
}

// EncodeSample is the inverse of DecodeSample for Float64s and Text values.
func EncodeSample(s vip.Sample) ([]byte, error) {
	m := Message{Attributes: s.Attributes}
	if s.Time != vip.InvalidTime {
		t := s.Time
		m.Time = &t
	}
	var value any
	switch v := s.Value.(type) {
	case vip.Float64s:
		if len(v) == 1 {
			value = v[0]
		} else {
			value = []float64(v)
		}
	case vip.Text:
		value = string(v)
	case vip.Bytes:
		if json.Valid(v) {
			m.Value = json.RawMessage(v)
		} else {
			value = string(v)
		}
	}
	if m.Value == nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		m.Value = raw
	}
	return json.Marshal(m)
}

// lastSample keeps the last streamed sample for pull reads
type lastSample struct {
	mu   sync.RWMutex
	last vip.Sample
	has  bool
}

func (l *lastSample) store(s vip.Sample) {
	l.mu.Lock()
	l.last, l.has = s, true
	l.mu.Unlock()
}

func (l *lastSample) read(t int64) vip.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.has {
		return vip.EmptySample(t)
	}
	return l.last
}
