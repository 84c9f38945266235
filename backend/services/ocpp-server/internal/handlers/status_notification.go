package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
	"csms/backend/services/ocpp-server/internal/service"
)

// NewStatusNotificationHandler stores the connector status and recomputes the station status.
// Connector 0 addresses the whole charge point: no connector is written, the reported status
// takes part in the aggregation instead.
func NewStatusNotificationHandler(store repository.Store, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		status := string(req.Status)
		errorCode := string(req.ErrorCode)
		logger := logger.With(
			zap.String("charge_point_id", stationID),
			zap.Int("connector_id", req.ConnectorId),
			zap.String("status", status),
		)

		if req.ConnectorId > 0 {
			if status == protocol.StatusAvailable && hasReservationOn(ctx, store, stationID, req.ConnectorId, logger) {
				logger.Info("connector kept reserved")
				status = protocol.StatusReserved
			}
			connector := &models.Connector{
				StationID:   stationID,
				ConnectorID: req.ConnectorId,
				Status:      status,
				ErrorCode:   errorCode,
			}
			if err := store.UpsertConnector(ctx, connector); err != nil {
				return protocol.StatusNotificationResponse{}, fmt.Errorf("upsert connector: %w", err)
			}
		}

		connectors, err := store.ListConnectors(ctx, stationID)
		if err != nil {
			return protocol.StatusNotificationResponse{}, fmt.Errorf("list connectors: %w", err)
		}
		statuses := make([]string, 0, len(connectors)+1)
		for _, c := range connectors {
			statuses = append(statuses, c.Status)
		}
		if req.ConnectorId == 0 {
			statuses = append(statuses, status)
		}

		stationStatus := service.AggregateStationStatus(statuses, errorCode)
		if err := store.UpdateStationStatus(ctx, stationID, stationStatus); err != nil {
			return protocol.StatusNotificationResponse{}, fmt.Errorf("update station status: %w", err)
		}

		logger.Debug("status notification applied", zap.String("station_status", stationStatus))
		return protocol.StatusNotificationResponse{}, nil
	}
}

func hasReservationOn(ctx context.Context, store repository.Store, stationID string, connectorID int, logger *zap.Logger) bool {
	reservations, err := store.ActiveReservations(ctx, stationID, time.Now())
	if err != nil {
		logger.Warn("failed to load reservations", zap.Error(err))
		return false
	}
	for _, r := range reservations {
		if r.ConnectorID == connectorID {
			return true
		}
	}
	return false
}
