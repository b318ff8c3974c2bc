package client

import (
	"encoding/json"
	"fmt"

	"thermavip/protocol"
)

// poolRequest sends a command answered with the pool state and stores it
func (c *Client) poolRequest(msgType protocol.MessageType, payload interface{}) (protocol.Pool, error) {
	data, err := c.sendRequest(msgType, payload)
	if err != nil {
		return protocol.Pool{}, err
	}
	var p protocol.Pool
	if err := json.Unmarshal(data, &p); err != nil {
		return protocol.Pool{}, fmt.Errorf("error parsing pool data: %w", err)
	}
	c.setPool(p)
	return p, nil
}

// Play starts the playback, backward when asked
func (c *Client) Play(backward bool) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypePlay, protocol.PlayPayload{Backward: backward})
}

func (c *Client) Stop() (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeStop, struct{}{})
}

// SeekTime moves the pool to the sample closest to t
func (c *Client) SeekTime(t int64) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeSeek, protocol.SeekPayload{Time: t})
}

func (c *Client) SeekPos(pos int64) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeSeekPos, protocol.SeekPosPayload{Pos: pos})
}

func (c *Client) Next() (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeNext, struct{}{})
}

func (c *Client) Previous() (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypePrevious, struct{}{})
}

func (c *Client) First() (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeFirst, struct{}{})
}

func (c *Client) Last() (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeLast, struct{}{})
}

func (c *Client) SetSpeed(speed float64) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeSetSpeed, protocol.SetSpeedPayload{Speed: speed})
}

// SetMode switches one playback mode: play_speed, repeat, time_limits or backward
func (c *Client) SetMode(mode string, enabled bool) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeSetMode, protocol.SetModePayload{Mode: mode, Enabled: enabled})
}

// SetLimits sets the playback bounds. A nil bound keeps the pool window.
func (c *Client) SetLimits(enabled bool, begin, end *int64) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeSetLimits, protocol.SetLimitsPayload{Enabled: enabled, Begin: begin, End: end})
}

func (c *Client) SetStreaming(enabled bool) (protocol.Pool, error) {
	return c.poolRequest(protocol.MessageTypeStreaming, protocol.StreamingPayload{Enabled: enabled})
}

// ListDevices asks the server for the named members, or all of them
func (c *Client) ListDevices(names ...string) ([]protocol.Device, error) {
	data, err := c.sendRequest(protocol.MessageTypeListDevices, protocol.ListDevicesPayload{Names: names})
	if err != nil {
		return nil, err
	}
	var devices []protocol.Device
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("error parsing device list: %w", err)
	}
	for _, d := range devices {
		c.setDevice(d)
	}
	return devices, nil
}

func (c *Client) EnableDevice(name string, enabled bool) (protocol.Device, error) {
	data, err := c.sendRequest(protocol.MessageTypeEnableDevice, protocol.EnableDevicePayload{Name: name, Enabled: enabled})
	if err != nil {
		return protocol.Device{}, err
	}
	var d protocol.Device
	if err := json.Unmarshal(data, &d); err != nil {
		return protocol.Device{}, fmt.Errorf("error parsing device data: %w", err)
	}
	c.setDevice(d)
	return d, nil
}

// SaveState makes the daemon write its state file. An empty filename uses
// the file configured on the server. It returns the file actually written.
func (c *Client) SaveState(filename string) (string, error) {
	data, err := c.sendRequest(protocol.MessageTypeSaveState, protocol.SaveStatePayload{Filename: filename})
	if err != nil {
		return "", err
	}
	var result struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("error parsing save_state result: %w", err)
	}
	return result.Filename, nil
}
