package ocpp

import (
	"encoding/json"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

func TestParseFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *Message
	}{
		{
			name: "call",
			raw:  `[2,"19223201","BootNotification",{"chargePointVendor":"VendorX","chargePointModel":"SingleSocketCharger"}]`,
			want: &Message{
				Type:     protocol.MessageTypeCall,
				UniqueID: "19223201",
				Action:   "BootNotification",
				Payload:  json.RawMessage(`{"chargePointVendor":"VendorX","chargePointModel":"SingleSocketCharger"}`),
			},
		},
		{
			name: "call result",
			raw:  `[3,"abc",{"status":"Accepted"}]`,
			want: &Message{
				Type:     protocol.MessageTypeCallResult,
				UniqueID: "abc",
				Payload:  json.RawMessage(`{"status":"Accepted"}`),
			},
		},
		{
			name: "call error",
			raw:  `[4,"abc","NotImplemented","no",{"hint":1}]`,
			want: &Message{
				Type:             protocol.MessageTypeCallError,
				UniqueID:         "abc",
				ErrorCode:        "NotImplemented",
				ErrorDescription: "no",
				ErrorDetails:     json.RawMessage(`{"hint":1}`),
			},
		},
		{
			name: "call error without details",
			raw:  `[4,"abc","GenericError",""]`,
			want: &Message{
				Type:      protocol.MessageTypeCallError,
				UniqueID:  "abc",
				ErrorCode: "GenericError",
			},
		},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parser.Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestParseRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `hello`},
		{name: "object", raw: `{"messageTypeId":2}`},
		{name: "too short", raw: `[2,"1"]`},
		{name: "empty", raw: `[]`},
		{name: "call without payload", raw: `[2,"1","Heartbeat"]`},
		{name: "unknown type", raw: `[7,"1","Heartbeat",{}]`},
		{name: "type not a number", raw: `["2","1","Heartbeat",{}]`},
		{name: "id not a string", raw: `[2,1,"Heartbeat",{}]`},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parser.Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, errorx.IsOfType(err, ErrMalformedFrame))
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	call, err := NewCall("m-1", protocol.ActionReset, map[string]string{"type": "Soft"})
	require.NoError(t, err)
	result, err := NewCallResult("m-2", map[string]string{"status": "Accepted"})
	require.NoError(t, err)

	frames := []*Message{
		call,
		result,
		NewCallError("m-3", protocol.ErrorNotSupported, "Action Foo is not supported"),
	}

	parser := NewParser()
	for _, frame := range frames {
		raw, err := Encode(frame)
		require.NoError(t, err)

		decoded, err := parser.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, frame, decoded)
	}
}

func TestBuildCallErrorShape(t *testing.T) {
	raw, err := BuildCallError("42", protocol.ErrorInternalError, "boom")
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"42","InternalError","boom",{}]`, string(raw))

	raw, err = BuildCallResult("42", protocol.EmptyResponse{})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"42",{}]`, string(raw))
}

func TestEncodeUnknownType(t *testing.T) {
	_, err := Encode(&Message{Type: 9})
	assert.Error(t, err)
}
