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
)

// NewBootNotificationHandler registers the charge point and hands out the heartbeat interval.
func NewBootNotificationHandler(store repository.Store, heartbeatInterval time.Duration, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		resp := protocol.BootNotificationResponse{
			CurrentTime: now,
			Interval:    int(heartbeatInterval / time.Second),
			Status:      protocol.StatusAccepted,
		}

		station := &models.Station{
			ID:              stationID,
			Vendor:          req.ChargePointVendor,
			Model:           req.ChargePointModel,
			SerialNumber:    req.ChargePointSerialNumber,
			FirmwareVersion: req.FirmwareVersion,
			Status:          protocol.StatusAvailable,
			LastHeartbeat:   &now,
		}
		if err := store.UpsertStation(ctx, station); err != nil {
			return resp, fmt.Errorf("upsert station: %w", err)
		}

		logger.Info("charge point booted",
			zap.String("charge_point_id", stationID),
			zap.String("vendor", req.ChargePointVendor),
			zap.String("model", req.ChargePointModel),
		)
		return resp, nil
	}
}
