package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndParseMessage(t *testing.T) {
	begin := int64(20)
	data, err := CreateMessage(MessageTypeSetLimits, SetLimitsPayload{Enabled: true, Begin: &begin}, "req-1")
	require.NoError(t, err)

	msg, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeSetLimits, msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)

	var payload SetLimitsPayload
	require.NoError(t, ParsePayload(msg, &payload))
	if diff := cmp.Diff(SetLimitsPayload{Enabled: true, Begin: &begin}, payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageWireFormat(t *testing.T) {
	data, err := CreateMessage(MessageTypeSeek, SeekPayload{Time: 1500}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"seek","payload":{"time":1500}}`, string(data))

	data, err = CreateMessage(MessageTypeCommandResult, CommandResultPayload{
		Success: false,
		Error:   &Error{Code: ErrorCodeTargetNotFound, Message: "no device named probe"},
	}, "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "command_result",
		"payload": {"success": false, "error": {"code": "TARGET_NOT_FOUND", "message": "no device named probe"}},
		"requestId": "42"
	}`, string(data))
}

func TestParsePayloadWithoutPayload(t *testing.T) {
	for _, raw := range []string{`{"type":"stop"}`, `{"type":"stop","payload":null}`} {
		msg, err := ParseMessage([]byte(raw))
		require.NoError(t, err)

		payload := PlayPayload{Backward: true}
		require.NoError(t, ParsePayload(msg, &payload), raw)
		assert.True(t, payload.Backward, "payload is left untouched")
	}
}

func TestParseMessageErrors(t *testing.T) {
	_, err := ParseMessage([]byte(`{"type":`))
	assert.Error(t, err)

	msg, err := ParseMessage([]byte(`{"type":"seek","payload":{"time":"soon"}}`))
	require.NoError(t, err)
	var payload SeekPayload
	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, ParsePayload(msg, &payload), &typeErr)
}
