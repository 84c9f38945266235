package service

import (
	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

// AggregateStationStatus derives the station status from its connector statuses and the most
// recent connector error code. The result depends only on its inputs.
func AggregateStationStatus(connectorStatuses []string, lastErrorCode string) string {
	if len(connectorStatuses) == 0 {
		return protocol.StatusAvailable
	}

	if lastErrorCode != "" && lastErrorCode != protocol.NoError {
		return protocol.StatusFaulted
	}

	var occupied, preparing bool
	allAvailable := true
	for _, status := range connectorStatuses {
		switch status {
		case protocol.StatusFaulted:
			return protocol.StatusFaulted
		case protocol.StatusOccupied, protocol.StatusCharging:
			occupied = true
		case protocol.StatusPreparing:
			preparing = true
		}
		if status != protocol.StatusAvailable {
			allAvailable = false
		}
	}

	switch {
	case occupied:
		return protocol.StatusOccupied
	case preparing:
		return protocol.StatusPreparing
	case allAvailable:
		return protocol.StatusAvailable
	default:
		return protocol.StatusUnavailable
	}
}

// StationStatusFromConnectors aggregates stored connectors. The error code of the most recently
// updated connector is the one that counts.
func StationStatusFromConnectors(connectors []models.Connector) string {
	statuses := make([]string, 0, len(connectors))
	var lastErrorCode string
	var latest *models.Connector
	for i := range connectors {
		c := &connectors[i]
		statuses = append(statuses, c.Status)
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	if latest != nil {
		lastErrorCode = latest.ErrorCode
	}
	return AggregateStationStatus(statuses, lastErrorCode)
}
