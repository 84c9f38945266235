package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"

	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

// NewStaticHandler answers with a fixed payload and touches no state.
func NewStaticHandler(resp interface{}) ocpp.HandlerFunc {
	return func(context.Context, string, json.RawMessage) (interface{}, error) {
		return resp, nil
	}
}

// NewGetCompositeScheduleHandler echoes the requested connector.
func NewGetCompositeScheduleHandler() ocpp.HandlerFunc {
	return func(_ context.Context, _ string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.GetCompositeScheduleRequest](payload)
		if err != nil {
			return nil, err
		}
		return protocol.CompositeScheduleResponse{Status: protocol.StatusAccepted, ConnectorID: req.ConnectorID}, nil
	}
}

// NewDataTransferHandler accepts vendor data and echoes it back.
func NewDataTransferHandler() ocpp.HandlerFunc {
	return func(_ context.Context, _ string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.DataTransferRequest](payload)
		if err != nil {
			return nil, err
		}
		var data interface{} = ""
		if req.Data != nil {
			data = req.Data
		}
		return protocol.DataTransferResponse{Status: protocol.StatusAccepted, Data: data}, nil
	}
}

// NewGetConfigurationHandler returns the fixed configuration set.
func NewGetConfigurationHandler(heartbeatInterval time.Duration) ocpp.HandlerFunc {
	entries := []struct {
		key   string
		value int
	}{
		{"HeartbeatInterval", int(heartbeatInterval / time.Second)},
		{"MeterValueSampleInterval", 60},
		{"ClockAlignedDataInterval", 900},
		{"ConnectionTimeOut", 60},
	}
	keys := make([]core.ConfigurationKey, 0, len(entries))
	for _, e := range entries {
		value := strconv.Itoa(e.value)
		keys = append(keys, core.ConfigurationKey{Key: e.key, Readonly: false, Value: &value})
	}
	return NewStaticHandler(protocol.GetConfigurationResponse{ConfigurationKey: keys})
}

// StaticHandlers maps the actions that only keep the conversation alive to their handlers.
func StaticHandlers(heartbeatInterval time.Duration) map[string]ocpp.HandlerFunc {
	accepted := NewStaticHandler(protocol.StatusResponse{Status: protocol.StatusAccepted})
	empty := NewStaticHandler(protocol.EmptyResponse{})

	return map[string]ocpp.HandlerFunc{
		protocol.ActionFirmwareStatusNotification:    empty,
		protocol.ActionDiagnosticsStatusNotification: empty,
		protocol.ActionSendLocalList:                 accepted,
		protocol.ActionTriggerMessage:                accepted,
		protocol.ActionRemoteStartTransaction:        accepted,
		protocol.ActionRemoteStopTransaction:         accepted,
		protocol.ActionReset:                         accepted,
		protocol.ActionSetChargingProfile:            accepted,
		protocol.ActionClearChargingProfile:          accepted,
		protocol.ActionReserveNow:                    accepted,
		protocol.ActionCancelReservation:             accepted,
		protocol.ActionChangeConfiguration:           accepted,
		protocol.ActionUnlockConnector:               NewStaticHandler(protocol.StatusResponse{Status: protocol.StatusUnlocked}),
		protocol.ActionGetCompositeSchedule:          NewGetCompositeScheduleHandler(),
		protocol.ActionGetConfiguration:              NewGetConfigurationHandler(heartbeatInterval),
		protocol.ActionDataTransfer:                  NewDataTransferHandler(),
	}
}
