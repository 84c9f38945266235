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

// NewStopTransactionHandler closes the transaction and releases its connector. The charge point
// always gets Accepted; it cannot do anything useful with a rejection of a stop.
func NewStopTransactionHandler(store repository.Store, sink events.Sink, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
		if err != nil {
			return nil, err
		}

		accepted := protocol.StopTransactionResponse{IdTagInfo: protocol.IdTagInfo{Status: protocol.StatusAccepted}}
		logger := logger.With(zap.String("charge_point_id", stationID), zap.Int("transaction_id", req.TransactionId))

		tx, err := store.GetTransaction(ctx, req.TransactionId)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("stop for unknown transaction")
			return accepted, nil
		}
		if err != nil {
			return accepted, fmt.Errorf("get transaction: %w", err)
		}
		if tx.StationID != stationID {
			logger.Warn("stop for transaction of another station", zap.String("owner", tx.StationID))
			return accepted, nil
		}
		if !service.NewTransactionLifecycle(tx.Status).Active() {
			logger.Info("transaction already finished", zap.String("status", tx.Status))
			return accepted, nil
		}

		stopTime := time.Now().UTC()
		if req.Timestamp != nil && !req.Timestamp.IsZero() {
			stopTime = req.Timestamp.UTC()
		}

		service.ApplyReading(tx, service.ExtractReading(req.TransactionData))
		if err := service.CompleteTransaction(ctx, tx, req.MeterStop, stopTime, string(req.Reason)); err != nil {
			return accepted, err
		}
		if err := store.UpdateTransaction(ctx, tx); err != nil {
			return accepted, fmt.Errorf("update transaction: %w", err)
		}

		releaseConnector(ctx, store, tx.StationID, tx.ConnectorID, logger)
		service.RefreshStationStatus(ctx, store, tx.StationID, logger)

		sink.Emit(events.TransactionStopped, events.TransactionStoppedPayload{
			ChargePointID:  stationID,
			TransactionID:  tx.ID,
			ConnectorID:    tx.ConnectorID,
			MeterStop:      req.MeterStop,
			EnergyConsumed: tx.EnergyConsumed,
			Reason:         string(req.Reason),
			Timestamp:      time.Now().UTC(),
		})

		logger.Info("transaction stopped", zap.Float64("energy_kwh", tx.EnergyConsumed))
		return accepted, nil
	}
}

func releaseConnector(ctx context.Context, store repository.Store, stationID string, connectorID int, logger *zap.Logger) {
	errorCode := protocol.NoError
	if current, err := store.GetConnector(ctx, stationID, connectorID); err == nil {
		errorCode = current.ErrorCode
	}
	connector := &models.Connector{
		StationID:   stationID,
		ConnectorID: connectorID,
		Status:      protocol.StatusAvailable,
		ErrorCode:   errorCode,
	}
	if err := store.UpsertConnector(ctx, connector); err != nil {
		logger.Warn("failed to release connector", zap.Int("connector_id", connectorID), zap.Error(err))
	}
}
