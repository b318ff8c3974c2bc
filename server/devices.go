package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thermavip/config"
	"thermavip/vip"
	"thermavip/vip/device"
	"thermavip/vip/stream"
)

// Registered kind names
const (
	KindGenerator = "Generator"
	KindEvents    = "Events"
	KindResource  = "Resource"
	KindReplay    = "Replay"
	KindRedis     = "Redis"
	KindWebSocket = "WebSocket"
)

// RegisterKinds adds the built-in device kinds and the network sources to r.
//
// Generator, Events and Replay paths are query strings describing a
// timeline: "start=0&count=100&sampling=40ms" or "timestamps=0,40,80".
// Resource paths are the text served by the device.
func RegisterKinds(r *device.Registry) error {
	infos := []device.Info{
		{
			Name:        KindGenerator,
			Description: "Regular or explicit timeline of generated samples",
			Modes:       device.ReadOnly,
			New: func(path string) (device.Driver, error) {
				return newGenerator(path)
			},
		},
		{
			Name:        KindEvents,
			Description: "Sparse events snapped to a video timeline",
			Modes:       device.ReadOnly,
			New: func(path string) (device.Driver, error) {
				tl, err := parseTimeline(path)
				if err != nil {
					return nil, err
				}
				events := make([]vip.Sample, 0, len(tl.timestamps))
				for i, t := range tl.timestamps {
					events = append(events, vip.Sample{Time: t, Value: vip.Text(fmt.Sprintf("event %d", i))})
				}
				return device.NewEventDevice(events, tl.sampling), nil
			},
		},
		{
			Name:        KindResource,
			Description: "Single static text",
			Modes:       device.ReadOnly,
			New: func(path string) (device.Driver, error) {
				return device.NewResourceDevice(vip.Text(path)), nil
			},
		},
		{
			Name:        KindReplay,
			Description: "Generated timeline replayed as a live stream",
			Modes:       device.ReadOnly,
			New: func(path string) (device.Driver, error) {
				gen, err := newGenerator(path)
				if err != nil {
					return nil, err
				}
				return device.NewReplayDevice(device.New(gen, device.WithName("replay source"))), nil
			},
		},
	}
	for _, info := range infos {
		if err := r.Register(info); err != nil {
			return err
		}
	}
	return stream.Register(r)
}

type timeline struct {
	start, count, sampling int64
	timestamps             []int64
}

// parseDuration accepts Go durations and plain nanosecond counts
func parseDuration(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int64(d), nil
}

func parseTimeline(path string) (timeline, error) {
	var tl timeline
	q, err := url.ParseQuery(path)
	if err != nil {
		return tl, fmt.Errorf("invalid timeline %q: %w", path, err)
	}
	if v := q.Get("start"); v != "" {
		if tl.start, err = strconv.ParseInt(v, 10, 64); err != nil {
			return tl, fmt.Errorf("invalid start: %w", err)
		}
	}
	if v := q.Get("count"); v != "" {
		if tl.count, err = strconv.ParseInt(v, 10, 64); err != nil {
			return tl, fmt.Errorf("invalid count: %w", err)
		}
	}
	if v := q.Get("sampling"); v != "" {
		if tl.sampling, err = parseDuration(v); err != nil {
			return tl, fmt.Errorf("invalid sampling: %w", err)
		}
	}
	if v := q.Get("timestamps"); v != "" {
		for _, part := range strings.Split(v, ",") {
			t, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return tl, fmt.Errorf("invalid timestamp %q: %w", part, err)
			}
			tl.timestamps = append(tl.timestamps, t)
		}
	}
	return tl, nil
}

func (tl timeline) encode() string {
	q := url.Values{}
	if len(tl.timestamps) > 0 {
		parts := make([]string, len(tl.timestamps))
		for i, t := range tl.timestamps {
			parts[i] = strconv.FormatInt(t, 10)
		}
		q.Set("timestamps", strings.Join(parts, ","))
	} else {
		q.Set("start", strconv.FormatInt(tl.start, 10))
		q.Set("count", strconv.FormatInt(tl.count, 10))
	}
	if tl.sampling > 0 {
		q.Set("sampling", strconv.FormatInt(tl.sampling, 10))
	}
	return q.Encode()
}

func newGenerator(path string) (*device.Generator, error) {
	tl, err := parseTimeline(path)
	if err != nil {
		return nil, err
	}
	gen := device.NewGenerator(nil)
	switch {
	case len(tl.timestamps) > 0 && tl.sampling > 0:
		gen.SetTimestampsWithSampling(tl.timestamps, tl.sampling)
	case len(tl.timestamps) > 0:
		gen.SetTimestamps(tl.timestamps, true)
	case tl.count > 0 && tl.sampling > 0:
		gen.SetTimeWindows(tl.start, tl.count, tl.sampling)
	default:
		return nil, fmt.Errorf("generator %q needs timestamps or a count and a sampling", path)
	}
	return gen, nil
}

// DevicePath returns the registry kind and the path of a configured device
func DevicePath(cfg config.DeviceConfig) (string, string, error) {
	tl := timeline{start: cfg.Start, count: cfg.Count, sampling: int64(cfg.Sampling.Duration), timestamps: cfg.Timestamps}
	switch cfg.Kind {
	case config.KindGenerator:
		return KindGenerator, tl.encode(), nil
	case config.KindEvents:
		return KindEvents, tl.encode(), nil
	case config.KindReplay:
		return KindReplay, tl.encode(), nil
	case config.KindResource:
		return KindResource, cfg.Path, nil
	case config.KindWebSocket:
		return KindWebSocket, cfg.Path, nil
	case config.KindRedis:
		path := cfg.Path
		if path == "" {
			path = "redis://" + cfg.Addr
		}
		if cfg.Channel != "" {
			u, err := url.Parse(path)
			if err != nil {
				return "", "", fmt.Errorf("invalid redis url: %w", err)
			}
			q := u.Query()
			q.Set("channel", cfg.Channel)
			u.RawQuery = q.Encode()
			path = u.String()
		}
		return KindRedis, path, nil
	}
	return "", "", fmt.Errorf("unknown device kind %q", cfg.Kind)
}

// CreateDevice builds and opens a configured device
func CreateDevice(r *device.Registry, cfg config.DeviceConfig) (*device.Device, error) {
	kind, path, err := DevicePath(cfg)
	if err != nil {
		return nil, err
	}
	var opts []device.Option
	if cfg.Name != "" {
		opts = append(opts, device.WithName(cfg.Name))
	}
	d, err := r.Create(kind, path, opts...)
	if err != nil {
		return nil, err
	}
	if err := d.Open(device.ReadOnly); err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name(), err)
	}

	if len(cfg.Filter) > 0 {
		transforms := make([]vip.RangeTransform, 0, len(cfg.Filter))
		for _, f := range cfg.Filter {
			transforms = append(transforms, vip.RangeTransform{
				From: vip.TimeRange{Start: f.FromStart, End: f.FromEnd},
				To:   vip.TimeRange{Start: f.ToStart, End: f.ToEnd},
			})
		}
		d.SetTimestampingFilter(vip.NewTimestampingFilter(transforms...))
	}
	if cfg.Disabled {
		d.SetEnabled(false)
	}
	return d, nil
}
