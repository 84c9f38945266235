package models

import "time"

// Transaction statuses.
const (
	TransactionActive    = "active"
	TransactionCompleted = "completed"
	TransactionStopped   = "stopped"
)

// Reservation statuses.
const (
	ReservationActive    = "Active"
	ReservationUsed      = "Used"
	ReservationCancelled = "Cancelled"
	ReservationExpired   = "Expired"
)

// Transaction is one charging session on a connector.
type Transaction struct {
	ID             int        `db:"id" json:"id"`
	StationID      string     `db:"station_id" json:"stationId"`
	ConnectorID    int        `db:"connector_id" json:"connectorId"`
	IDTag          string     `db:"id_tag" json:"idTag"`
	ReservationID  *int       `db:"reservation_id" json:"reservationId,omitempty"`
	MeterStart     int        `db:"meter_start" json:"meterStart"`
	MeterStop      *int       `db:"meter_stop" json:"meterStop,omitempty"`
	StartTime      time.Time  `db:"start_time" json:"startTime"`
	StopTime       *time.Time `db:"stop_time" json:"stopTime,omitempty"`
	StopReason     string     `db:"stop_reason" json:"stopReason,omitempty"`
	Status         string     `db:"status" json:"status"`
	EnergyConsumed float64    `db:"energy_consumed" json:"energyConsumed"`
	MaxPower       float64    `db:"max_power" json:"maxPower"`
	StateOfCharge  *float64   `db:"state_of_charge" json:"stateOfCharge,omitempty"`
}

// Reservation is an exclusive claim on a connector for one id tag.
type Reservation struct {
	ID          int       `db:"id" json:"id"`
	StationID   string    `db:"station_id" json:"stationId"`
	ConnectorID int       `db:"connector_id" json:"connectorId"`
	IDTag       string    `db:"id_tag" json:"idTag"`
	ExpiryDate  time.Time `db:"expiry_date" json:"expiryDate"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// ActiveAt reports whether the reservation still holds its connector at t.
func (r Reservation) ActiveAt(t time.Time) bool {
	return r.Status == ReservationActive && r.ExpiryDate.After(t)
}

// ProtocolMessage is an entry of the inbound message log.
type ProtocolMessage struct {
	ID            int64     `db:"id" json:"id"`
	ChargePointID string    `db:"charge_point_id" json:"chargePointId"`
	MessageID     string    `db:"message_id" json:"messageId"`
	Action        string    `db:"action" json:"action"`
	Request       []byte    `db:"request" json:"request"`
	Response      []byte    `db:"response" json:"response,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
