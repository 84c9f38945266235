package ocpp

import (
	"fmt"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/reservation"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	nanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

const (
	defaultDiagnosticsRetries       = 3
	defaultDiagnosticsRetryInterval = 60
)

var idGenerator = generateID

// SessionWriter delivers frames to live charge point sessions.
type SessionWriter interface {
	// SendTo returns false without error when the charge point is not connected.
	SendTo(chargePointID string, msg *Message) (bool, error)
}

// DiagnosticsRequest describes a GetDiagnostics command. Zero retries and interval fall back
// to 3 attempts 60 seconds apart.
type DiagnosticsRequest struct {
	Location      string
	Retries       int
	RetryInterval int
	StartTime     *time.Time
	StopTime      *time.Time
}

// CommandSender builds central-system initiated Calls and hands them to the session registry.
// Delivery is fire and forget: true means the frame was queued on the socket, not that the
// charge point accepted it. Replies are correlated through the pending table.
type CommandSender struct {
	sessions SessionWriter
	pending  *PendingRequests
	logger   *zap.Logger
}

// NewCommandSender returns sender.
func NewCommandSender(sessions SessionWriter, pending *PendingRequests, logger *zap.Logger) *CommandSender {
	return &CommandSender{sessions: sessions, pending: pending, logger: logger}
}

// RemoteStartTransaction asks the charge point to start charging for idTag.
func (s *CommandSender) RemoteStartTransaction(chargePointID string, connectorID *int, idTag string) (bool, error) {
	return s.send(chargePointID, protocol.ActionRemoteStartTransaction, core.RemoteStartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
	})
}

// RemoteStopTransaction asks the charge point to stop a running transaction.
func (s *CommandSender) RemoteStopTransaction(chargePointID string, transactionID int) (bool, error) {
	return s.send(chargePointID, protocol.ActionRemoteStopTransaction, core.RemoteStopTransactionRequest{
		TransactionId: transactionID,
	})
}

// UnlockConnector releases the cable lock of a connector.
func (s *CommandSender) UnlockConnector(chargePointID string, connectorID int) (bool, error) {
	return s.send(chargePointID, protocol.ActionUnlockConnector, core.UnlockConnectorRequest{
		ConnectorId: connectorID,
	})
}

// Reset reboots the charge point.
func (s *CommandSender) Reset(chargePointID string, resetType core.ResetType) (bool, error) {
	return s.send(chargePointID, protocol.ActionReset, core.ResetRequest{Type: resetType})
}

// ReserveNow reserves a connector for idTag until expiry.
func (s *CommandSender) ReserveNow(chargePointID string, connectorID int, expiry time.Time, idTag string, reservationID int) (bool, error) {
	return s.send(chargePointID, protocol.ActionReserveNow, reservation.ReserveNowRequest{
		ConnectorId:   connectorID,
		ExpiryDate:    types.NewDateTime(expiry),
		IdTag:         idTag,
		ReservationId: reservationID,
	})
}

// CancelReservation drops a reservation on the charge point.
func (s *CommandSender) CancelReservation(chargePointID string, reservationID int) (bool, error) {
	return s.send(chargePointID, protocol.ActionCancelReservation, reservation.CancelReservationRequest{
		ReservationId: reservationID,
	})
}

// GetDiagnostics asks the charge point to upload its diagnostics file to location.
func (s *CommandSender) GetDiagnostics(chargePointID string, req DiagnosticsRequest) (bool, error) {
	retries := req.Retries
	if retries <= 0 {
		retries = defaultDiagnosticsRetries
	}
	interval := req.RetryInterval
	if interval <= 0 {
		interval = defaultDiagnosticsRetryInterval
	}

	payload := firmware.GetDiagnosticsRequest{
		Location:      req.Location,
		Retries:       &retries,
		RetryInterval: &interval,
	}
	if req.StartTime != nil {
		payload.StartTime = types.NewDateTime(*req.StartTime)
	}
	if req.StopTime != nil {
		payload.StopTime = types.NewDateTime(*req.StopTime)
	}
	return s.send(chargePointID, protocol.ActionGetDiagnostics, payload)
}

func (s *CommandSender) send(chargePointID, action string, payload interface{}) (bool, error) {
	messageID := idGenerator()
	msg, err := NewCall(messageID, action, payload)
	if err != nil {
		return false, err
	}

	// Registered before writing so that a fast reply always finds its request.
	s.pending.Add(chargePointID, messageID, action)

	ok, err := s.sessions.SendTo(chargePointID, msg)
	if err != nil || !ok {
		s.pending.Take(chargePointID, messageID)
	}
	if err != nil {
		return false, fmt.Errorf("ocpp: send %s to %s: %w", action, chargePointID, err)
	}

	logger := s.logger.With(
		zap.String("charge_point_id", chargePointID),
		zap.String("action", action),
		zap.String("message_id", messageID),
	)
	if !ok {
		logger.Info("command not sent, charge point offline")
		return false, nil
	}
	logger.Info("command sent")
	return true, nil
}

func generateID() string {
	id, err := nanoid.Nanoid()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id
}
