package server

import (
	"errors"
	"log/slog"

	"thermavip/protocol"
	"thermavip/vip"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

// playbackError maps a pool error to a command result
func playbackError(err error) protocol.CommandResultPayload {
	switch {
	case errors.Is(err, pool.ErrNoTemporalDevice), errors.Is(err, device.ErrOutOfWindow), errors.Is(err, device.ErrInvalidTime):
		return ErrorResponse(protocol.ErrorCodePlaybackError, "%v", err)
	case errors.Is(err, device.ErrStreamingFailed):
		return ErrorResponse(protocol.ErrorCodeStreamingError, "%v", err)
	}
	return ErrorResponse(protocol.ErrorCodeInternalServerError, "%v", err)
}

func (ws *WebSocketServer) handlePlayFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.PlayPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing play payload: %v", err)
	}

	play := ws.pool.PlayForward
	if payload.Backward {
		play = ws.pool.PlayBackward
	}
	if err := play(); err != nil {
		return playbackError(err)
	}
	slog.Info("Starting playback", "pool", ws.pool.Name(), "backward", payload.Backward, "speed", ws.pool.PlaySpeed())
	return ws.poolResponse()
}

func (ws *WebSocketServer) handleStopFromClient(*protocol.Message) protocol.CommandResultPayload {
	ws.pool.Stop()
	return ws.poolResponse()
}

func (ws *WebSocketServer) handleSeekFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.SeekPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing seek payload: %v", err)
	}
	if payload.Time == vip.InvalidTime {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "invalid seek time")
	}
	if err := ws.pool.SeekTime(payload.Time); err != nil {
		return playbackError(err)
	}
	return ws.poolResponse()
}

func (ws *WebSocketServer) handleSeekPosFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.SeekPosPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing seek_pos payload: %v", err)
	}
	if payload.Pos < 0 {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "negative position %d", payload.Pos)
	}
	if err := ws.pool.SeekPos(payload.Pos); err != nil {
		return playbackError(err)
	}
	return ws.poolResponse()
}

// handleStepFromClient runs one of next, previous, first or last
func (ws *WebSocketServer) handleStepFromClient(step func() error) protocol.CommandResultPayload {
	if err := step(); err != nil {
		return playbackError(err)
	}
	return ws.poolResponse()
}

func (ws *WebSocketServer) handleSetSpeedFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.SetSpeedPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing set_speed payload: %v", err)
	}
	if err := ws.pool.SetPlaySpeed(payload.Speed); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "%v", err)
	}
	return ws.poolResponse()
}

func (ws *WebSocketServer) handleSetModeFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.SetModePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing set_mode payload: %v", err)
	}
	mode, err := pool.ParseMode(payload.Mode)
	if err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "%v", err)
	}
	if mode == 0 {
		return ErrorResponse(protocol.ErrorCodeInvalidParameters, "no playback mode given")
	}
	ws.pool.SetMode(mode, payload.Enabled)
	return ws.poolResponse()
}

func (ws *WebSocketServer) handleSetLimitsFromClient(msg *protocol.Message) protocol.CommandResultPayload {
	var payload protocol.SetLimitsPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ErrorResponse(protocol.ErrorCodeInvalidRequestFormat, "Error parsing set_limits payload: %v", err)
	}

	begin, end := vip.InvalidTime, vip.InvalidTime
	if payload.Begin != nil {
		begin = *payload.Begin
	}
	if payload.End != nil {
		end = *payload.End
	}
	ws.pool.SetStopTimes(begin, end)
	ws.pool.SetTimeLimitsEnabled(payload.Enabled)
	return ws.poolResponse()
}
