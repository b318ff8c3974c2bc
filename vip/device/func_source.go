package device

import (
	"context"
	"errors"
	"sync"

	"thermavip/vip"
)

// IngestFunc runs the ingestion loop of a FuncSource until ctx is done.
type IngestFunc func(ctx context.Context, sink Sink) error

// FuncSource is a Sequential driver backed by a function. Pull reads return
// the last pushed sample.
type FuncSource struct {
	name   string
	ingest IngestFunc

	mu   sync.RWMutex
	last vip.Sample
	has  bool
}

// NewFuncSource creates a Sequential source. name is used as class name.
func NewFuncSource(name string, ingest IngestFunc) *FuncSource {
	return &FuncSource{name: name, ingest: ingest}
}

func (f *FuncSource) ClassName() string {
	if f.name == "" {
		return "FuncSource"
	}
	return f.name
}

func (f *FuncSource) Type() Type { return Sequential }

func (f *FuncSource) SupportedModes() OpenMode { return ReadOnly }

func (f *FuncSource) Open(mode OpenMode) error {
	if f.ingest == nil {
		return errors.New("source has no ingest function")
	}
	return nil
}

func (f *FuncSource) Close() error { return nil }

func (f *FuncSource) ReadData(t int64) (vip.Sample, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.has {
		return vip.EmptySample(t), nil
	}
	return f.last, nil
}

func (f *FuncSource) Stream(ctx context.Context, sink Sink) error {
	return f.ingest(ctx, &recordingSink{Sink: sink, f: f})
}

type recordingSink struct {
	Sink
	f *FuncSource
}

func (r *recordingSink) Push(s vip.Sample) {
	r.f.mu.Lock()
	r.f.last, r.f.has = s, true
	r.f.mu.Unlock()
	r.Sink.Push(s)
}
