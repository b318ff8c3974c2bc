package protocol

import (
	"encoding/json"
	"time"

	"thermavip/vip"
)

// MessageType defines the type of message being sent between client and server
type MessageType string

const (
	// Server -> Client message types
	MessageTypeInitialState     MessageType = "initial_state"
	MessageTypeTimeChanged      MessageType = "time_changed"
	MessageTypePlayingStarted   MessageType = "playing_started"
	MessageTypePlayingStopped   MessageType = "playing_stopped"
	MessageTypePlayingAdvanced  MessageType = "playing_advanced"
	MessageTypeStreamingChanged MessageType = "streaming_changed"
	MessageTypeDeviceAdded      MessageType = "device_added"
	MessageTypeDeviceRemoved    MessageType = "device_removed"
	MessageTypePoolChanged      MessageType = "pool_changed"
	MessageTypeLogNotification  MessageType = "log_notification"
	MessageTypeCommandResult    MessageType = "command_result"

	// Client -> Server message types
	MessageTypePlay         MessageType = "play"
	MessageTypeStop         MessageType = "stop"
	MessageTypeSeek         MessageType = "seek"
	MessageTypeSeekPos      MessageType = "seek_pos"
	MessageTypeNext         MessageType = "next"
	MessageTypePrevious     MessageType = "previous"
	MessageTypeFirst        MessageType = "first"
	MessageTypeLast         MessageType = "last"
	MessageTypeSetSpeed     MessageType = "set_speed"
	MessageTypeSetMode      MessageType = "set_mode"
	MessageTypeSetLimits    MessageType = "set_limits"
	MessageTypeStreaming    MessageType = "streaming"
	MessageTypeListDevices  MessageType = "list_devices"
	MessageTypeEnableDevice MessageType = "enable_device"
	MessageTypeSaveState    MessageType = "save_state"
)

// ErrorCode defines error codes for error messages
type ErrorCode string

// Client Request Related
const (
	ErrorCodeInvalidRequestFormat ErrorCode = "INVALID_REQUEST_FORMAT"
	ErrorCodeInvalidParameters    ErrorCode = "INVALID_PARAMETERS"
	ErrorCodeTargetNotFound       ErrorCode = "TARGET_NOT_FOUND"
	ErrorCodeUnknownCommand       ErrorCode = "UNKNOWN_COMMAND"
)

// Server Related
const (
	ErrorCodePlaybackError       ErrorCode = "PLAYBACK_ERROR"
	ErrorCodeStreamingError      ErrorCode = "STREAMING_ERROR"
	ErrorCodeInternalServerError ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Message is the base structure for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// Error represents an error in the WebSocket protocol
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Device represents a pool member
type Device struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Path      string            `json:"path,omitempty"`
	Type      string            `json:"type"`
	OpenMode  string            `json:"openMode"`
	Enabled   bool              `json:"enabled"`
	Streaming bool              `json:"streaming,omitempty"`
	Status    string            `json:"status,omitempty"` // streaming status of Sequential devices
	Window    vip.TimeRangeList `json:"window,omitempty"`
	Time      *int64            `json:"time,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Pool represents the playback state of a pool
type Pool struct {
	Name       string            `json:"name"`
	DeviceType string            `json:"deviceType"`
	Window     vip.TimeRangeList `json:"window"`
	Time       *int64            `json:"time,omitempty"`
	Pos        *int64            `json:"pos,omitempty"`
	Size       *int64            `json:"size,omitempty"`
	Playing    bool              `json:"playing"`
	Streaming  bool              `json:"streaming"`
	Speed      float64           `json:"speed"`
	Modes      string            `json:"modes"`
	MissFrames bool              `json:"missFrames"`
	StopBegin  *int64            `json:"stopBegin,omitempty"`
	StopEnd    *int64            `json:"stopEnd,omitempty"`
	MaxFPS     int               `json:"maxFps"`
}

// InitialStatePayload is the payload for the initial_state message
type InitialStatePayload struct {
	Pool              Pool      `json:"pool"`
	Devices           []Device  `json:"devices"`
	ServerStartupTime time.Time `json:"serverStartupTime"`
}

// TimeChangedPayload is the payload for the time_changed message
type TimeChangedPayload struct {
	Pool string `json:"pool"`
	Time int64  `json:"time"`
	Pos  *int64 `json:"pos,omitempty"`
}

// PlayingPayload is the payload for the playing_started, playing_advanced and playing_stopped messages
type PlayingPayload struct {
	Pool string `json:"pool"`
	Time int64  `json:"time"`
}

// StreamingChangedPayload is the payload for the streaming_changed message.
// Device is empty for the pool wide streaming state.
type StreamingChangedPayload struct {
	Pool    string `json:"pool"`
	Device  string `json:"device,omitempty"`
	Enabled bool   `json:"enabled"`
}

// DeviceAddedPayload is the payload for the device_added message
type DeviceAddedPayload struct {
	Pool   string `json:"pool"`
	Device Device `json:"device"`
}

// DeviceRemovedPayload is the payload for the device_removed message
type DeviceRemovedPayload struct {
	Pool string `json:"pool"`
	Name string `json:"name"`
}

// PoolChangedPayload is the payload for the pool_changed message
type PoolChangedPayload struct {
	Pool   Pool   `json:"pool"`
	Reason string `json:"reason"`
}

// LogNotificationPayload is the payload for the log_notification message
type LogNotificationPayload struct {
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// CommandResultPayload is the payload for the command_result message
type CommandResultPayload struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// PlayPayload is the payload for the play message
type PlayPayload struct {
	Backward bool `json:"backward,omitempty"`
}

// SeekPayload is the payload for the seek message
type SeekPayload struct {
	Time int64 `json:"time"`
}

// SeekPosPayload is the payload for the seek_pos message
type SeekPosPayload struct {
	Pos int64 `json:"pos"`
}

// SetSpeedPayload is the payload for the set_speed message
type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

// SetModePayload is the payload for the set_mode message. Mode is one of
// "play_speed", "repeat", "time_limits" or "backward".
type SetModePayload struct {
	Mode    string `json:"mode"`
	Enabled bool   `json:"enabled"`
}

// SetLimitsPayload is the payload for the set_limits message. A nil bound
// falls back to the pool window.
type SetLimitsPayload struct {
	Enabled bool   `json:"enabled"`
	Begin   *int64 `json:"begin,omitempty"`
	End     *int64 `json:"end,omitempty"`
}

// StreamingPayload is the payload for the streaming message
type StreamingPayload struct {
	Enabled bool `json:"enabled"`
}

// ListDevicesPayload is the payload for the list_devices message
type ListDevicesPayload struct {
	Names []string `json:"names,omitempty"` // Specific device names to filter (optional)
}

// EnableDevicePayload is the payload for the enable_device message
type EnableDevicePayload struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// SaveStatePayload is the payload for the save_state message. An empty
// filename uses the configured state file.
type SaveStatePayload struct {
	Filename string `json:"filename,omitempty"`
}

// CreateMessage creates a new Message with the given type and payload
func CreateMessage(msgType MessageType, payload interface{}, requestID string) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	msg := Message{
		Type:      msgType,
		Payload:   payloadBytes,
		RequestID: requestID,
	}

	return json.Marshal(msg)
}

// ParseMessage parses a JSON message into a Message struct
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload parses the payload of a message into the given struct
func ParsePayload(msg *Message, payload interface{}) error {
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(msg.Payload, payload)
}
