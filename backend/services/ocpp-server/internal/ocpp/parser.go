package ocpp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joomcode/errorx"

	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

var (
	// Errors is the namespace of OCPP frame and payload errors.
	Errors = errorx.NewNamespace("ocpp")

	// ErrMalformedFrame marks input that is not a valid OCPP-J frame.
	ErrMalformedFrame = Errors.NewType("malformed_frame")
	// ErrFormationViolation marks a well-formed frame whose payload does not fit the action.
	ErrFormationViolation = Errors.NewType("formation_violation")
	// ErrProtocolViolation marks a CALL payload that is not a JSON object.
	ErrProtocolViolation = Errors.NewType("protocol_violation")
	// ErrNotSupported marks an action without a registered handler.
	ErrNotSupported = Errors.NewType("not_supported")
)

var emptyObject = json.RawMessage(`{}`)

// Message represents a parsed OCPP frame. Which fields are set depends on Type.
type Message struct {
	Type             int
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// IsCall reports whether the frame is a request.
func (m *Message) IsCall() bool {
	return m.Type == protocol.MessageTypeCall
}

// Parser decodes raw JSON OCPP frames.
type Parser struct{}

// NewParser returns parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes []byte into a Call, CallResult or CallError.
func (p *Parser) Parse(data []byte) (*Message, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, ErrMalformedFrame.Wrap(err, "frame is not a JSON array")
	}

	if len(array) < 3 {
		return nil, ErrMalformedFrame.New("frame has %d elements, expected at least 3", len(array))
	}

	var msgType int
	if err := json.Unmarshal(array[0], &msgType); err != nil {
		return nil, ErrMalformedFrame.Wrap(err, "read message type")
	}

	msg := &Message{Type: msgType}
	if err := json.Unmarshal(array[1], &msg.UniqueID); err != nil {
		return nil, ErrMalformedFrame.Wrap(err, "read unique id")
	}

	switch msgType {
	case protocol.MessageTypeCall:
		if len(array) < 4 {
			return nil, ErrMalformedFrame.New("incomplete CALL frame")
		}
		if err := json.Unmarshal(array[2], &msg.Action); err != nil {
			return nil, ErrMalformedFrame.Wrap(err, "read action")
		}
		msg.Payload = array[3]
	case protocol.MessageTypeCallResult:
		msg.Payload = array[2]
	case protocol.MessageTypeCallError:
		if len(array) < 4 {
			return nil, ErrMalformedFrame.New("incomplete CALLERROR frame")
		}
		if err := json.Unmarshal(array[2], &msg.ErrorCode); err != nil {
			return nil, ErrMalformedFrame.Wrap(err, "read error code")
		}
		if err := json.Unmarshal(array[3], &msg.ErrorDescription); err != nil {
			return nil, ErrMalformedFrame.Wrap(err, "read error description")
		}
		if len(array) > 4 {
			msg.ErrorDetails = array[4]
		}
	default:
		return nil, ErrMalformedFrame.New("unsupported message type %d", msgType)
	}

	return msg, nil
}

// Encode serializes a frame back to its wire form.
func Encode(msg *Message) ([]byte, error) {
	var frame []interface{}
	switch msg.Type {
	case protocol.MessageTypeCall:
		frame = []interface{}{protocol.MessageTypeCall, msg.UniqueID, msg.Action, rawOrEmpty(msg.Payload)}
	case protocol.MessageTypeCallResult:
		frame = []interface{}{protocol.MessageTypeCallResult, msg.UniqueID, rawOrEmpty(msg.Payload)}
	case protocol.MessageTypeCallError:
		frame = []interface{}{protocol.MessageTypeCallError, msg.UniqueID, msg.ErrorCode, msg.ErrorDescription, rawOrEmpty(msg.ErrorDetails)}
	default:
		return nil, fmt.Errorf("ocpp: cannot encode message type %d", msg.Type)
	}
	return json.Marshal(frame)
}

// NewCall builds a CALL frame with the given payload.
func NewCall(uniqueID, action string, payload interface{}) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp: encode %s payload: %w", action, err)
	}
	return &Message{Type: protocol.MessageTypeCall, UniqueID: uniqueID, Action: action, Payload: body}, nil
}

// NewCallResult builds a CALLRESULT frame with the given payload.
func NewCallResult(uniqueID string, payload interface{}) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp: encode result payload: %w", err)
	}
	return &Message{Type: protocol.MessageTypeCallResult, UniqueID: uniqueID, Payload: body}, nil
}

// NewCallError builds a CALLERROR frame with empty details.
func NewCallError(uniqueID, code, description string) *Message {
	return &Message{
		Type:             protocol.MessageTypeCallError,
		UniqueID:         uniqueID,
		ErrorCode:        code,
		ErrorDescription: description,
		ErrorDetails:     emptyObject,
	}
}

// BuildCallResult builds standard CALLRESULT bytes.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	msg, err := NewCallResult(uniqueID, payload)
	if err != nil {
		return nil, err
	}
	return Encode(msg)
}

// BuildCallError builds CALLERROR bytes.
func BuildCallError(uniqueID, code, description string) ([]byte, error) {
	return Encode(NewCallError(uniqueID, code, description))
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return emptyObject
	}
	return raw
}
