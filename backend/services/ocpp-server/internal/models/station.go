package models

import "time"

// Station represents a charge point known to the central system.
type Station struct {
	ID              string     `db:"id" json:"id"`
	Vendor          string     `db:"vendor" json:"vendor"`
	Model           string     `db:"model" json:"model"`
	SerialNumber    string     `db:"serial_number" json:"serialNumber"`
	FirmwareVersion string     `db:"firmware_version" json:"firmwareVersion"`
	Status          string     `db:"status" json:"status"`
	LastHeartbeat   *time.Time `db:"last_heartbeat" json:"lastHeartbeat,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// Connector is a single charging socket of a station.
type Connector struct {
	StationID   string    `db:"station_id" json:"stationId"`
	ConnectorID int       `db:"connector_id" json:"connectorId"`
	Status      string    `db:"status" json:"status"`
	ErrorCode   string    `db:"error_code" json:"errorCode"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
