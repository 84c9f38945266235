package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
)

// NewHeartbeatHandler refreshes the station heartbeat and returns the server time.
func NewHeartbeatHandler(store repository.Store) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, _ json.RawMessage) (interface{}, error) {
		now := time.Now().UTC()
		resp := protocol.HeartbeatResponse{CurrentTime: now}
		if err := store.TouchHeartbeat(ctx, stationID, now); err != nil {
			return resp, fmt.Errorf("touch heartbeat: %w", err)
		}
		return resp, nil
	}
}
