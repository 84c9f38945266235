package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

func TestAggregateStationStatus(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []string
		errorCode string
		want      string
	}{
		{"no connectors", nil, "", protocol.StatusAvailable},
		{"no connectors ignores error code", nil, "GroundFailure", protocol.StatusAvailable},
		{"all available", []string{"Available", "Available"}, "NoError", protocol.StatusAvailable},
		{"error code forces faulted", []string{"Available"}, "GroundFailure", protocol.StatusFaulted},
		{"faulted connector", []string{"Charging", "Faulted"}, "NoError", protocol.StatusFaulted},
		{"charging counts as occupied", []string{"Available", "Charging"}, "", protocol.StatusOccupied},
		{"occupied beats preparing", []string{"Preparing", "Occupied"}, "", protocol.StatusOccupied},
		{"preparing", []string{"Available", "Preparing"}, "", protocol.StatusPreparing},
		{"reserved is unavailable", []string{"Available", "Reserved"}, "", protocol.StatusUnavailable},
		{"suspended is unavailable", []string{"SuspendedEV"}, "", protocol.StatusUnavailable},
		{"unavailable", []string{"Unavailable"}, "", protocol.StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateStationStatus(tt.statuses, tt.errorCode)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, AggregateStationStatus(tt.statuses, tt.errorCode))
		})
	}
}

func TestStationStatusFromConnectorsUsesLatestErrorCode(t *testing.T) {
	now := time.Now()
	connectors := []models.Connector{
		{ConnectorID: 1, Status: "Available", ErrorCode: "GroundFailure", UpdatedAt: now.Add(-time.Minute)},
		{ConnectorID: 2, Status: "Available", ErrorCode: "NoError", UpdatedAt: now},
	}
	assert.Equal(t, protocol.StatusAvailable, StationStatusFromConnectors(connectors))

	connectors[0].UpdatedAt = now.Add(time.Minute)
	assert.Equal(t, protocol.StatusFaulted, StationStatusFromConnectors(connectors))

	assert.Equal(t, protocol.StatusAvailable, StationStatusFromConnectors(nil))
}
