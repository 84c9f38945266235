package protocol

import (
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// Inbound request payloads share the OCPP 1.6 definitions.
type (
	BootNotificationRequest   = core.BootNotificationRequest
	StatusNotificationRequest = core.StatusNotificationRequest
	AuthorizeRequest          = core.AuthorizeRequest
	StartTransactionRequest   = core.StartTransactionRequest
	StopTransactionRequest    = core.StopTransactionRequest
	MeterValuesRequest        = core.MeterValuesRequest
	DataTransferRequest       = core.DataTransferRequest
	MeterValue                = types.MeterValue
	SampledValue              = types.SampledValue
)

// IdTagInfo carries the authorization outcome for an id tag.
type IdTagInfo struct {
	Status string `json:"status"`
}

// BootNotificationResponse registers the charge point.
type BootNotificationResponse struct {
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
	Status      string    `json:"status"`
}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// StatusNotificationResponse is empty (ack).
type StatusNotificationResponse struct{}

// AuthorizeResponse answers Authorize.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionResponse carries the assigned transaction id, 0 when rejected.
type StartTransactionResponse struct {
	TransactionID int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionResponse acknowledges the stop.
type StopTransactionResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// MeterValuesResponse is empty unless the transaction is not active.
type MeterValuesResponse struct {
	Status string `json:"status,omitempty"`
}

// StatusResponse is the generic {status} confirmation.
type StatusResponse struct {
	Status string `json:"status"`
}

// EmptyResponse is the {} confirmation.
type EmptyResponse struct{}

// CompositeScheduleResponse answers GetCompositeSchedule.
type CompositeScheduleResponse struct {
	Status      string `json:"status"`
	ConnectorID int    `json:"connectorId"`
}

// DataTransferResponse echoes the vendor data.
type DataTransferResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// GetConfigurationResponse lists configuration keys.
type GetConfigurationResponse struct {
	ConfigurationKey []core.ConfigurationKey `json:"configurationKey"`
	UnknownKey       []string                `json:"unknownKey,omitempty"`
}

// GetCompositeScheduleRequest is the part of the request the static answer needs.
type GetCompositeScheduleRequest struct {
	ConnectorID int `json:"connectorId"`
}
