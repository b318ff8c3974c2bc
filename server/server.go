package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"thermavip/config"
	"thermavip/vip"
	"thermavip/vip/archive"
	"thermavip/vip/buffer"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

// Server holds the device kinds, the pools and the playback pool driven by
// the console, the WebSocket server and the HTTP API.
type Server struct {
	ctx     context.Context
	cancel  context.CancelFunc
	devices *device.Registry
	pools   *pool.Registry
	pool    *pool.Pool
	done    chan struct{}
}

// NewServer registers the device kinds and creates the playback pool
func NewServer(ctx context.Context, opts ...pool.Option) (*Server, error) {
	devices := device.NewRegistry()
	if err := RegisterKinds(devices); err != nil {
		return nil, err
	}
	pools := pool.NewRegistry()
	p := pools.New(opts...)

	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		ctx:     ctx,
		cancel:  cancel,
		devices: devices,
		pools:   pools,
		pool:    p,
		done:    make(chan struct{}),
	}

	events, unsubscribe := p.Subscribe(64)
	go func() {
		defer close(s.done)
		defer unsubscribe()
		s.watch(events)
	}()
	return s, nil
}

// watch reports member changes on the console
func (s *Server) watch(events <-chan pool.Event) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case pool.DeviceAdded:
				fmt.Printf("Device added: %s\n", e.Device)
			case pool.DeviceRemoved:
				fmt.Printf("Device removed: %s\n", e.Device)
			case pool.StreamingChanged:
				if e.Device == "" && !e.Value {
					slog.Info("Streaming stopped", "pool", s.pool.Name())
				}
			}
		}
	}
}

func (s *Server) Devices() *device.Registry { return s.devices }

func (s *Server) Pools() *pool.Registry { return s.pools }

func (s *Server) Pool() *pool.Pool { return s.pool }

// AddDevice creates a configured device and adds it to the pool
func (s *Server) AddDevice(cfg config.DeviceConfig) (*device.Device, error) {
	d, err := CreateDevice(s.devices, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.pool.Add(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	slog.Info("Device opened", "name", d.Name(), "kind", d.ClassName(), "type", d.Type())
	return d, nil
}

// Configure adds the configured devices and applies the playback and buffer
// settings. Devices failing to open are reported and skipped.
func (s *Server) Configure(cfg *config.Config) error {
	var errs []error
	for _, dc := range cfg.Devices {
		if _, err := s.AddDevice(dc); err != nil {
			slog.Error("Failed to open device", "kind", dc.Kind, "name", dc.Name, "err", err)
			errs = append(errs, err)
		}
	}

	p := s.pool
	pb := cfg.Playback
	if err := p.SetPlaySpeed(pb.Speed); err != nil {
		errs = append(errs, err)
	}
	p.SetMode(pool.UsePlaySpeed, pb.UsePlaySpeed)
	p.SetRepeat(pb.Repeat)
	p.SetMissFramesEnabled(pb.MissFrames)
	p.SetReadMaxFPS(pb.MaxFPS)
	begin, end := p.StopBeginTime(), p.StopEndTime()
	if pb.StopBegin != nil {
		begin = *pb.StopBegin
	}
	if pb.StopEnd != nil {
		end = *pb.StopEnd
	}
	p.SetStopTimes(begin, end)
	p.SetTimeLimitsEnabled(pb.TimeLimits)

	limitType, err := buffer.ParseLimitType(cfg.Buffer.LimitType)
	if err != nil {
		errs = append(errs, err)
	} else {
		p.SetListLimitType(limitType)
	}
	if cfg.Buffer.MaxSize > 0 {
		p.SetMaxListSize(cfg.Buffer.MaxSize)
	}
	if cfg.Buffer.MaxMemory > 0 {
		p.SetMaxListMemory(cfg.Buffer.MaxMemory)
	}
	return errors.Join(errs...)
}

// StateFormat resolves the archive format of the configured state file
func StateFormat(cfg *config.Config) archive.Format {
	if cfg.State.Format != "" {
		if f, err := archive.ParseFormat(cfg.State.Format); err == nil {
			return f
		}
	}
	return archive.FormatFor(cfg.State.File)
}

// RestoreState applies the state file when it exists
func (s *Server) RestoreState(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	f, err := archive.LoadFromFile(filename)
	if err != nil {
		return err
	}
	if err := archive.Apply(f, s.pools, s.devices); err != nil {
		return err
	}
	slog.Info("State restored", "file", filename, "pools", len(f.Pools))
	return nil
}

// SaveState writes every pool to filename
func (s *Server) SaveState(filename string, format archive.Format) error {
	return archive.SaveToFile(filename, archive.Capture(s.pools), format)
}

// Shutdown stops the playback and the streaming of every pool
func (s *Server) Shutdown() {
	for _, p := range s.pools.Pools() {
		p.Stop()
		if p.IsStreamingEnabled() {
			if err := p.SetStreamingEnabled(false); err != nil {
				slog.Warn("Failed to stop streaming", "pool", p.Name(), "err", err)
			}
		}
	}
}

// Close closes every pool and its devices
func (s *Server) Close() error {
	s.cancel()
	<-s.done
	err := s.pools.Close()
	return err
}

// Summary describes the pool in one line
func (s *Server) Summary() string {
	p := s.pool
	t := "-"
	if cur := p.Time(); cur != vip.InvalidTime {
		t = fmt.Sprint(cur)
	}
	return fmt.Sprintf("%s: %d devices, %s, window %v, time %s, speed %g, modes %s",
		p.Name(), len(p.Devices()), p.DeviceType(), p.TimeWindow(), t, p.PlaySpeed(), p.Modes())
}
