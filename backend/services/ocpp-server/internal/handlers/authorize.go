package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
)

// NewAuthorizeHandler accepts a tag when it holds a reservation on a reserved station, or when
// an unreserved station has an Available connector.
func NewAuthorizeHandler(store repository.Store, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}

		rejected := protocol.AuthorizeResponse{IdTagInfo: protocol.IdTagInfo{Status: protocol.StatusRejected}}
		accepted := protocol.AuthorizeResponse{IdTagInfo: protocol.IdTagInfo{Status: protocol.StatusAccepted}}
		logger := logger.With(zap.String("charge_point_id", stationID), zap.String("id_tag", req.IdTag))

		gate, err := loadReservationGate(ctx, store, stationID, time.Now())
		if err != nil {
			return rejected, err
		}
		if gate.restricted() {
			if gate.admitsStation(req.IdTag) {
				return accepted, nil
			}
			logger.Info("authorize rejected: station reserved for other tags")
			return rejected, nil
		}

		connectors, err := store.ListConnectors(ctx, stationID)
		if err != nil {
			return rejected, fmt.Errorf("list connectors: %w", err)
		}
		for _, c := range connectors {
			if c.Status == protocol.StatusAvailable {
				return accepted, nil
			}
		}

		logger.Info("authorize rejected: no available connector")
		return rejected, nil
	}
}
