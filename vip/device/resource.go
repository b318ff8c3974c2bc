package device

import (
	"sync"

	"thermavip/vip"
)

// ResourceDevice holds one static payload. Every read returns it.
type ResourceDevice struct {
	mu    sync.RWMutex
	value vip.Payload
	attrs map[string]any
}

func NewResourceDevice(value vip.Payload) *ResourceDevice {
	return &ResourceDevice{value: value}
}

func (r *ResourceDevice) ClassName() string { return "ResourceDevice" }

func (r *ResourceDevice) Type() Type { return Resource }

func (r *ResourceDevice) SupportedModes() OpenMode { return ReadWrite }

func (r *ResourceDevice) Open(OpenMode) error { return nil }

func (r *ResourceDevice) Close() error { return nil }

func (r *ResourceDevice) ReadData(int64) (vip.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return vip.Sample{Time: vip.InvalidTime, Value: r.value, Attributes: r.attrs}, nil
}

// Apply replaces the stored value.
func (r *ResourceDevice) Apply(s vip.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = s.Value
	r.attrs = s.Attributes
	return nil
}

func (r *ResourceDevice) Value() vip.Payload {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}
