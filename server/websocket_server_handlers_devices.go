package server

import (
	"encoding/json"
	"log/slog"
	"time"

	"thermavip/protocol"
	"thermavip/vip/archive"
)

// handleListDevicesFromClient handles a list_devices message from a client
func (ws *WebSocketServer) handleListDevicesFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.ListDevicesPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing list_devices payload: %v", err)
	}

	var results []protocol.Device
	if len(payload.Names) == 0 {
		results = protocol.DevicesToProtocol(ws.pool)
	} else {
		results = make([]protocol.Device, 0, len(payload.Names))
		for _, name := range payload.Names {
			d, ok := ws.pool.Device(name)
			if !ok {
				return ErrorResponse(protocol.ErrorCodeTargetNotFound, "no device named %s", name)
			}
			results = append(results, protocol.DeviceToProtocol(d))
		}
	}

	data, err := json.Marshal(results)
	if err != nil {
		return ErrorResponse(protocol.ErrorCodeInternalServerError, "Error marshaling devices: %v", err)
	}
	return SuccessResponse(data)
}

// handleEnableDeviceFromClient handles an enable_device message from a client
func (ws *WebSocketServer) handleEnableDeviceFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.EnableDevicePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing enable_device payload: %v", err)
	}
	if payload.Name == "" {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "device name is required")
	}

	d, ok := ws.pool.Device(payload.Name)
	if !ok {
		return ErrorResponse(protocol.ErrorCodeTargetNotFound, "no device named %s", payload.Name)
	}
	d.SetEnabled(payload.Enabled)

	data, err := json.Marshal(protocol.DeviceToProtocol(d))
	if err != nil {
		return ErrorResponse(protocol.ErrorCodeInternalServerError, "Error marshaling device: %v", err)
	}
	return SuccessResponse(data)
}

// handleStreamingFromClient toggles the pool wide streaming
func (ws *WebSocketServer) handleStreamingFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.StreamingPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing streaming payload: %v", err)
	}
	if err := ws.pool.SetStreamingEnabled(payload.Enabled); err != nil {
		return playbackError(err)
	}
	return ws.poolResponse()
}

// handleSaveStateFromClient writes the pools to the state file
func (ws *WebSocketServer) handleSaveStateFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.SaveStatePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing save_state payload: %v", err)
	}

	filename, format := ws.state.Filename, ws.state.Format
	if payload.Filename != "" {
		filename, format = payload.Filename, archive.FormatFor(payload.Filename)
	}
	if filename == "" {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "no state file configured")
	}

	var f archive.File
	if ws.pools != nil {
		f = archive.Capture(ws.pools)
	} else {
		f = archive.File{Version: archive.CurrentVersion, SavedAt: time.Now(), Pools: []archive.PoolState{{State: ws.pool.State()}}}
	}
	if err := archive.SaveToFile(filename, f, format); err != nil {
		slog.Error("Failed to save state", "file", filename, "err", err)
		return ErrorResponse(protocol.ErrorCodeInternalServerError, "%v", err)
	}

	data, err := json.Marshal(map[string]string{"filename": filename, "format": format.String()})
	if err != nil {
		return ErrorResponse(protocol.ErrorCodeInternalServerError, "%v", err)
	}
	return SuccessResponse(data)
}
