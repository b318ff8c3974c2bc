package client

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"thermavip/protocol"
)

// mirror is the client side copy of the served pool
type mirror struct {
	mu      *sync.RWMutex
	pool    protocol.Pool
	devices map[string]protocol.Device
	startup time.Time
}

func newMirror() mirror {
	return mirror{mu: &sync.RWMutex{}, devices: make(map[string]protocol.Device)}
}

// Pool returns the last known pool state
func (c *Client) Pool() protocol.Pool {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.pool
}

// Devices returns the last known pool members, sorted by name
func (c *Client) Devices() []protocol.Device {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	devices := make([]protocol.Device, 0, len(c.state.devices))
	for _, d := range c.state.devices {
		devices = append(devices, d)
	}
	slices.SortFunc(devices, func(a, b protocol.Device) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return devices
}

func (c *Client) Device(name string) (protocol.Device, bool) {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	d, ok := c.state.devices[name]
	return d, ok
}

// ServerStartupTime is the daemon start time sent with the initial state
func (c *Client) ServerStartupTime() time.Time {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.startup
}

// forPool tells whether a notification about pool name concerns the mirror.
// The caller holds the lock.
func (m *mirror) forPool(name string) bool {
	return name == "" || m.pool.Name == "" || name == m.pool.Name
}

func (c *Client) setPool(p protocol.Pool) {
	c.state.mu.Lock()
	c.state.pool = p
	c.state.mu.Unlock()
}

func (c *Client) setDevice(d protocol.Device) {
	c.state.mu.Lock()
	c.state.devices[d.Name] = d
	c.state.mu.Unlock()
}

// handleNotification applies a server notification to the mirror
func (c *Client) handleNotification(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeInitialState:
		c.handleInitialState(msg)
	case protocol.MessageTypeTimeChanged:
		c.handleTimeChanged(msg)
	case protocol.MessageTypePlayingStarted, protocol.MessageTypePlayingAdvanced, protocol.MessageTypePlayingStopped:
		c.handlePlaying(msg)
	case protocol.MessageTypeStreamingChanged:
		c.handleStreamingChanged(msg)
	case protocol.MessageTypeDeviceAdded:
		c.handleDeviceAdded(msg)
	case protocol.MessageTypeDeviceRemoved:
		c.handleDeviceRemoved(msg)
	case protocol.MessageTypePoolChanged:
		c.handlePoolChanged(msg)
	case protocol.MessageTypeLogNotification:
		c.handleLogNotification(msg)
	default:
		slog.Debug("Ignoring unexpected message", "type", msg.Type)
	}

	if c.onNotify != nil {
		c.onNotify(msg)
	}
}

func (c *Client) handleInitialState(msg *protocol.Message) {
	var payload protocol.InitialStatePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing initial_state payload", "err", err)
		return
	}

	c.state.mu.Lock()
	c.state.pool = payload.Pool
	c.state.startup = payload.ServerStartupTime
	c.state.devices = make(map[string]protocol.Device, len(payload.Devices))
	for _, d := range payload.Devices {
		c.state.devices[d.Name] = d
	}
	c.state.mu.Unlock()

	c.markReady()
}

func (c *Client) handleTimeChanged(msg *protocol.Message) {
	var payload protocol.TimeChangedPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing time_changed payload", "err", err)
		return
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if !c.state.forPool(payload.Pool) {
		return
	}
	t := payload.Time
	c.state.pool.Time = &t
	c.state.pool.Pos = payload.Pos
}

func (c *Client) handlePlaying(msg *protocol.Message) {
	var payload protocol.PlayingPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing playing payload", "type", msg.Type, "err", err)
		return
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if !c.state.forPool(payload.Pool) {
		return
	}
	t := payload.Time
	c.state.pool.Time = &t
	switch msg.Type {
	case protocol.MessageTypePlayingStarted:
		c.state.pool.Playing = true
	case protocol.MessageTypePlayingStopped:
		c.state.pool.Playing = false
	}
}

func (c *Client) handleStreamingChanged(msg *protocol.Message) {
	var payload protocol.StreamingChangedPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing streaming_changed payload", "err", err)
		return
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if !c.state.forPool(payload.Pool) {
		return
	}
	if payload.Device == "" {
		c.state.pool.Streaming = payload.Enabled
		return
	}
	if d, ok := c.state.devices[payload.Device]; ok {
		d.Streaming = payload.Enabled
		c.state.devices[payload.Device] = d
	}
}

func (c *Client) handleDeviceAdded(msg *protocol.Message) {
	var payload protocol.DeviceAddedPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing device_added payload", "err", err)
		return
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.forPool(payload.Pool) && payload.Device.Name != "" {
		c.state.devices[payload.Device.Name] = payload.Device
	}
}

func (c *Client) handleDeviceRemoved(msg *protocol.Message) {
	var payload protocol.DeviceRemovedPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing device_removed payload", "err", err)
		return
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.forPool(payload.Pool) {
		delete(c.state.devices, payload.Name)
	}
}

func (c *Client) handlePoolChanged(msg *protocol.Message) {
	var payload protocol.PoolChangedPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing pool_changed payload", "err", err)
		return
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.forPool(payload.Pool.Name) {
		c.state.pool = payload.Pool
	}
}

func (c *Client) handleLogNotification(msg *protocol.Message) {
	var payload protocol.LogNotificationPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		slog.Debug("Error parsing log_notification payload", "err", err)
		return
	}
	slog.Debug("Server log", "level", payload.Level, "message", payload.Message, "attributes", payload.Attributes)
}
