package stream

import (
	"strings"

	"thermavip/vip/device"
)

// Register adds the Redis and WebSocket device kinds to r. Redis paths look
// like "redis://host:port/0?channel=name", WebSocket paths are ws:// or wss:// urls.
func Register(r *device.Registry) error {
	if err := r.Register(device.Info{
		Name:        "Redis",
		Description: "Samples published on a redis pub/sub channel",
		Modes:       device.ReadWrite,
		Probe: func(path string, _ []byte) bool {
			return strings.HasPrefix(path, "redis://") || strings.HasPrefix(path, "rediss://")
		},
		New: func(path string) (device.Driver, error) {
			options, channel, err := ParseRedisURL(path)
			if err != nil {
				return nil, err
			}
			return NewRedisSource(options, channel), nil
		},
	}); err != nil {
		return err
	}
	return r.Register(device.Info{
		Name:        "WebSocket",
		Description: "Samples read from a websocket feed",
		Modes:       device.ReadOnly,
		Probe: func(path string, _ []byte) bool {
			return strings.HasPrefix(path, "ws://") || strings.HasPrefix(path, "wss://")
		},
		New: func(path string) (device.Driver, error) {
			return NewWebSocketSource(path), nil
		},
	})
}
