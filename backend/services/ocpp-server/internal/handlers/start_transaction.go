package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
	"csms/backend/services/ocpp-server/internal/service"
)

// transactionIDAttempts bounds the retries after a random id collides with a stored one.
const transactionIDAttempts = 5

// NewStartTransactionHandler gates the tag against the reservations of the connector, claims the
// connector and opens the transaction. Rejections answer with transaction id 0.
func NewStartTransactionHandler(store repository.Store, sink events.Sink, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
		if err != nil {
			return nil, err
		}

		rejected := protocol.StartTransactionResponse{IdTagInfo: protocol.IdTagInfo{Status: protocol.StatusRejected}}
		logger := logger.With(
			zap.String("charge_point_id", stationID),
			zap.Int("connector_id", req.ConnectorId),
			zap.String("id_tag", req.IdTag),
		)

		gate, err := loadReservationGate(ctx, store, stationID, time.Now())
		if err != nil {
			return rejected, err
		}
		gate = gate.onConnector(req.ConnectorId)
		var reservation *models.Reservation
		if gate.restricted() {
			reservation = gate.reservationFor(req.IdTag, req.ConnectorId)
			if reservation == nil {
				logger.Info("start rejected: no reservation for tag on connector")
				return rejected, nil
			}
		}

		before, err := store.GetConnector(ctx, stationID, req.ConnectorId)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info("start rejected: unknown connector")
			return rejected, nil
		}
		if err != nil {
			return rejected, fmt.Errorf("get connector: %w", err)
		}

		claimed, err := store.ClaimConnector(ctx, stationID, req.ConnectorId, protocol.StartableConnectorStatuses, protocol.StatusOccupied)
		if err != nil {
			return rejected, fmt.Errorf("claim connector: %w", err)
		}
		if !claimed {
			logger.Info("start rejected: connector not startable", zap.String("connector_status", before.Status))
			return rejected, nil
		}

		startTime := time.Now().UTC()
		if req.Timestamp != nil && !req.Timestamp.IsZero() {
			startTime = req.Timestamp.UTC()
		}
		tx := &models.Transaction{
			StationID:   stationID,
			ConnectorID: req.ConnectorId,
			IDTag:       req.IdTag,
			MeterStart:  req.MeterStart,
			StartTime:   startTime,
			Status:      models.TransactionActive,
		}
		if reservation != nil {
			id := reservation.ID
			tx.ReservationID = &id
		}

		if err := createTransaction(ctx, store, tx); err != nil {
			release := &models.Connector{StationID: stationID, ConnectorID: req.ConnectorId, Status: before.Status, ErrorCode: before.ErrorCode}
			if relErr := store.UpsertConnector(ctx, release); relErr != nil {
				logger.Error("failed to release connector", zap.Error(relErr))
			}
			return rejected, fmt.Errorf("create transaction: %w", err)
		}

		if reservation != nil {
			if err := store.MarkReservationUsed(ctx, reservation.ID); err != nil {
				logger.Warn("failed to mark reservation used", zap.Int("reservation_id", reservation.ID), zap.Error(err))
			}
		}
		service.RefreshStationStatus(ctx, store, stationID, logger)

		sink.Emit(events.TransactionStarted, events.TransactionStartedPayload{
			ChargePointID: stationID,
			TransactionID: tx.ID,
			ConnectorID:   tx.ConnectorID,
			IDTag:         tx.IDTag,
			MeterStart:    tx.MeterStart,
			Timestamp:     time.Now().UTC(),
		})

		logger.Info("transaction started", zap.Int("transaction_id", tx.ID))
		return protocol.StartTransactionResponse{
			TransactionID: tx.ID,
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.StatusAccepted},
		}, nil
	}
}

func createTransaction(ctx context.Context, store repository.Store, tx *models.Transaction) error {
	var err error
	for attempt := 0; attempt < transactionIDAttempts; attempt++ {
		tx.ID = service.NewTransactionID()
		err = store.CreateTransaction(ctx, tx)
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}
	return err
}
