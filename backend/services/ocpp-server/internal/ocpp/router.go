package ocpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joomcode/errorx"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

// HandlerFunc processes a Call payload and returns the CallResult body.
// A handler may return a payload together with an error: the payload is still sent and the
// error is only logged.
type HandlerFunc func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error)

// Router dispatches OCPP actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// Lookup returns the handler registered for action.
func (r *Router) Lookup(action string) (HandlerFunc, bool) {
	h, ok := r.handlers[action]
	return h, ok
}

// Route executes handler for message. Handler panics are turned into errors.
func (r *Router) Route(ctx context.Context, chargePointID string, msg *Message) (resp interface{}, err error) {
	handler, ok := r.Lookup(msg.Action)
	if !ok {
		return nil, ErrNotSupported.New("Action %s is not supported", msg.Action)
	}

	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("ocpp: %s handler panic: %v", msg.Action, rec)
		}
	}()

	return handler(ctx, chargePointID, msg.Payload)
}

// ProcessorStore is the part of the state store the processor touches directly.
type ProcessorStore interface {
	EnsureStation(ctx context.Context, chargePointID string) (*models.Station, error)
	LogMessage(ctx context.Context, msg *models.ProtocolMessage) error
}

// Processor ties together parsing, routing, reply correlation and response encoding.
type Processor struct {
	parser  *Parser
	router  *Router
	store   ProcessorStore
	pending *PendingRequests
	sink    events.Sink
	logger  *zap.Logger
	now     func() time.Time
}

// NewProcessor builds Processor.
func NewProcessor(parser *Parser, router *Router, store ProcessorStore, pending *PendingRequests, sink events.Sink, logger *zap.Logger) *Processor {
	if sink == nil {
		sink = events.Noop{}
	}
	return &Processor{
		parser:  parser,
		router:  router,
		store:   store,
		pending: pending,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Process handles one raw frame and returns the reply frame, if any. Malformed input yields an
// error and no reply.
func (p *Processor) Process(ctx context.Context, chargePointID string, raw []byte) ([]byte, error) {
	msg, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case protocol.MessageTypeCall:
		return p.handleCall(ctx, chargePointID, msg), nil
	default:
		p.handleReply(chargePointID, msg)
		return nil, nil
	}
}

func (p *Processor) handleCall(ctx context.Context, chargePointID string, msg *Message) []byte {
	logger := p.logger.With(
		zap.String("charge_point_id", chargePointID),
		zap.String("action", msg.Action),
		zap.String("message_id", msg.UniqueID),
	)

	if _, ok := p.router.Lookup(msg.Action); !ok {
		logger.Warn("unsupported ocpp action")
		return p.callError(logger, msg.UniqueID, protocol.ErrorNotSupported, fmt.Sprintf("Action %s is not supported", msg.Action))
	}

	if _, err := p.store.EnsureStation(ctx, chargePointID); err != nil {
		logger.Warn("failed to provision station", zap.Error(err))
	}

	respPayload, err := p.router.Route(ctx, chargePointID, msg)

	var out []byte
	switch {
	case err != nil && respPayload == nil:
		code := protocol.ErrorInternalError
		description := fmt.Sprintf("Internal error while processing %s", msg.Action)
		switch {
		case errorx.IsOfType(err, ErrProtocolViolation):
			code = protocol.ErrorProtocolError
			description = err.Error()
		case errorx.IsOfType(err, ErrFormationViolation):
			code = protocol.ErrorFormationViolation
			description = err.Error()
		}
		logger.Warn("ocpp handler failed", zap.String("error_code", code), zap.Error(err))
		out = p.callError(logger, msg.UniqueID, code, description)
	default:
		if err != nil {
			logger.Warn("ocpp handler degraded", zap.Error(err))
		}
		result, encErr := BuildCallResult(msg.UniqueID, respPayload)
		if encErr != nil {
			logger.Error("encode ocpp response failed", zap.Error(encErr))
			out = p.callError(logger, msg.UniqueID, protocol.ErrorInternalError, fmt.Sprintf("Internal error while processing %s", msg.Action))
			break
		}
		out = result
	}

	p.logMessage(ctx, logger, chargePointID, msg, out)
	return out
}

func (p *Processor) callError(logger *zap.Logger, uniqueID, code, description string) []byte {
	out, err := BuildCallError(uniqueID, code, description)
	if err != nil {
		logger.Error("encode ocpp call error failed", zap.Error(err))
		return nil
	}
	return out
}

// logMessage is best effort: a failing message log never affects the exchange.
func (p *Processor) logMessage(ctx context.Context, logger *zap.Logger, chargePointID string, msg *Message, response []byte) {
	entry := &models.ProtocolMessage{
		ChargePointID: chargePointID,
		MessageID:     msg.UniqueID,
		Action:        msg.Action,
		Request:       msg.Payload,
		Response:      response,
		CreatedAt:     p.now().UTC(),
	}
	if err := p.store.LogMessage(ctx, entry); err != nil {
		logger.Warn("failed to log ocpp message", zap.Error(err))
	}
}

func (p *Processor) handleReply(chargePointID string, msg *Message) {
	logger := p.logger.With(zap.String("charge_point_id", chargePointID), zap.String("message_id", msg.UniqueID))

	req, ok := p.pending.Take(chargePointID, msg.UniqueID)
	if !ok {
		logger.Debug("reply without pending request", zap.Int("message_type", msg.Type))
		return
	}

	result := events.CommandResultPayload{
		ChargePointID: chargePointID,
		MessageID:     msg.UniqueID,
		Action:        req.Action,
		Timestamp:     p.now().UTC(),
	}

	if msg.Type == protocol.MessageTypeCallError {
		result.ErrorCode = msg.ErrorCode
		result.ErrorDescription = msg.ErrorDescription
		logger.Warn("command failed on charge point",
			zap.String("action", req.Action),
			zap.String("error_code", msg.ErrorCode),
			zap.String("error_description", msg.ErrorDescription),
		)
	} else {
		result.Status = replyStatus(msg.Payload)
		logger.Info("command answered by charge point",
			zap.String("action", req.Action),
			zap.String("status", result.Status),
			zap.Duration("latency", p.now().Sub(req.SentAt)),
		)
	}

	p.sink.Emit(events.CommandResult, result)
}

func replyStatus(payload json.RawMessage) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Status
}

// Decode convenience helper for handlers. A payload that is not an object is a ProtocolError,
// one that does not fit T is a FormationViolation.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || trimmed[0] != '{' {
		return target, ErrProtocolViolation.New("payload must be a JSON object")
	}
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, ErrFormationViolation.Wrap(err, "payload does not match the action schema")
	}
	return target, nil
}
