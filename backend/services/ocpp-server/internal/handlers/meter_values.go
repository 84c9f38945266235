package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
	"csms/backend/services/ocpp-server/internal/service"
)

// NewMeterValuesHandler folds samples into the running transaction.
func NewMeterValuesHandler(store repository.Store, sink events.Sink, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, err
		}

		rejected := protocol.MeterValuesResponse{Status: protocol.StatusRejected}
		if req.TransactionId == nil {
			logger.Debug("meter values without transaction", zap.String("charge_point_id", stationID))
			return rejected, nil
		}
		logger := logger.With(zap.String("charge_point_id", stationID), zap.Int("transaction_id", *req.TransactionId))

		tx, err := store.GetTransaction(ctx, *req.TransactionId)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info("meter values for unknown transaction")
			return rejected, nil
		}
		if err != nil {
			return rejected, fmt.Errorf("get transaction: %w", err)
		}
		if tx.StationID != stationID {
			logger.Warn("meter values for transaction of another station", zap.String("owner", tx.StationID))
			return rejected, nil
		}
		if !service.NewTransactionLifecycle(tx.Status).Active() {
			logger.Info("meter values for inactive transaction", zap.String("status", tx.Status))
			return rejected, nil
		}

		reading := service.ExtractReading(req.MeterValue)
		if !reading.Empty() {
			service.ApplyReading(tx, reading)
			if err := store.UpdateTransaction(ctx, tx); err != nil {
				return protocol.MeterValuesResponse{}, fmt.Errorf("update transaction: %w", err)
			}
		}

		sink.Emit(events.MeterValues, events.MeterValuesPayload{
			ChargePointID:  stationID,
			TransactionID:  tx.ID,
			ConnectorID:    req.ConnectorId,
			EnergyConsumed: tx.EnergyConsumed,
			MaxPower:       tx.MaxPower,
			StateOfCharge:  tx.StateOfCharge,
			Timestamp:      time.Now().UTC(),
		})
		return protocol.MeterValuesResponse{}, nil
	}
}
