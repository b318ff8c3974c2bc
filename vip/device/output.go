package device

import (
	"sync"

	"thermavip/vip"
	"thermavip/vip/buffer"
)

// Output holds the last sample produced by a device and forwards every new
// sample to the connected inputs. The last write wins.
type Output struct {
	mu     sync.RWMutex
	last   vip.Sample
	has    bool
	inputs []*buffer.Input
	count  int64
}

// Data returns the last sample, false when nothing was produced yet.
func (o *Output) Data() (vip.Sample, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last, o.has
}

// Count is the number of samples produced since creation.
func (o *Output) Count() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.count
}

// Connect forwards future samples to in.
func (o *Output) Connect(in *buffer.Input) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.inputs {
		if c == in {
			return
		}
	}
	o.inputs = append(o.inputs, in)
}

func (o *Output) Disconnect(in *buffer.Input) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.inputs {
		if c == in {
			o.inputs = append(o.inputs[:i], o.inputs[i+1:]...)
			return
		}
	}
}

// Inputs returns the connected inputs in connection order.
func (o *Output) Inputs() []*buffer.Input {
	o.mu.RLock()
	defer o.mu.RUnlock()
	res := make([]*buffer.Input, len(o.inputs))
	copy(res, o.inputs)
	return res
}

func (o *Output) set(s vip.Sample) {
	o.mu.Lock()
	o.last, o.has = s, true
	o.count++
	inputs := make([]*buffer.Input, len(o.inputs))
	copy(inputs, o.inputs)
	o.mu.Unlock()

	for _, in := range inputs {
		in.Push(s)
	}
}

func (o *Output) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last, o.has = vip.Sample{}, false
}
