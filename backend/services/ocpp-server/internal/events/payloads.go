package events

import "time"

// ConnectionPayload accompanies station_connected and station_disconnected.
type ConnectionPayload struct {
	ChargePointID string    `json:"chargePointId"`
	Timestamp     time.Time `json:"timestamp"`
}

// TransactionStartedPayload accompanies transaction_started.
type TransactionStartedPayload struct {
	ChargePointID string    `json:"chargePointId"`
	TransactionID int       `json:"transactionId"`
	ConnectorID   int       `json:"connectorId"`
	IDTag         string    `json:"idTag"`
	MeterStart    int       `json:"meterStart"`
	Timestamp     time.Time `json:"timestamp"`
}

// TransactionStoppedPayload accompanies transaction_stopped.
type TransactionStoppedPayload struct {
	ChargePointID  string    `json:"chargePointId"`
	TransactionID  int       `json:"transactionId"`
	ConnectorID    int       `json:"connectorId"`
	MeterStop      int       `json:"meterStop"`
	EnergyConsumed float64   `json:"energyConsumed"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// MeterValuesPayload accompanies meter_values.
type MeterValuesPayload struct {
	ChargePointID  string    `json:"chargePointId"`
	TransactionID  int       `json:"transactionId"`
	ConnectorID    int       `json:"connectorId"`
	EnergyConsumed float64   `json:"energyConsumed"`
	MaxPower       float64   `json:"maxPower"`
	StateOfCharge  *float64  `json:"stateOfCharge,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CommandResultPayload accompanies command_result.
type CommandResultPayload struct {
	ChargePointID    string    `json:"chargePointId"`
	MessageID        string    `json:"messageId"`
	Action           string    `json:"action"`
	Status           string    `json:"status,omitempty"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	ErrorDescription string    `json:"errorDescription,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
