package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/repository"
)

// Commands is the outbound command surface used by the operator API.
type Commands interface {
	RemoteStartTransaction(chargePointID string, connectorID *int, idTag string) (bool, error)
	RemoteStopTransaction(chargePointID string, transactionID int) (bool, error)
	UnlockConnector(chargePointID string, connectorID int) (bool, error)
	Reset(chargePointID string, resetType core.ResetType) (bool, error)
	ReserveNow(chargePointID string, connectorID int, expiry time.Time, idTag string, reservationID int) (bool, error)
	CancelReservation(chargePointID string, reservationID int) (bool, error)
	GetDiagnostics(chargePointID string, req ocpp.DiagnosticsRequest) (bool, error)
}

// Reservations books connectors for the operator API.
type Reservations interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	Cancel(ctx context.Context, stationID string, id int) (*models.Reservation, error)
}

// Stations reads stored station state.
type Stations interface {
	GetStation(ctx context.Context, id string) (*models.Station, error)
	ListConnectors(ctx context.Context, stationID string) ([]models.Connector, error)
}

// ConnectedLister reports live charge point sessions.
type ConnectedLister interface {
	ConnectedIDs() []string
}

// Presence reports charge points connected to any server instance.
type Presence interface {
	IsOnline(ctx context.Context, chargePointID string) (bool, error)
}

// ChargerHandlers serves /api/chargers.
type ChargerHandlers struct {
	commands     Commands
	reservations Reservations
	stations     Stations
	sessions     ConnectedLister
	presence     Presence
	validate     *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewChargerHandlers constructs handlers.
func NewChargerHandlers(commands Commands, reservations Reservations, stations Stations, sessions ConnectedLister, logger *zap.Logger) *ChargerHandlers {
	return &ChargerHandlers{
		commands:     commands,
		reservations: reservations,
		stations:     stations,
		sessions:     sessions,
		validate:     NewValidator(),
		logger:       logger,
		now:          time.Now,
	}
}

// WithPresence makes Station consult the shared presence mirror for charge points without a
// local session.
func (h *ChargerHandlers) WithPresence(presence Presence) *ChargerHandlers {
	h.presence = presence
	return h
}

type remoteStartRequest struct {
	ConnectorID *int   `json:"connectorId" validate:"omitempty,gt=0"`
	IDTag       string `json:"idTag" validate:"required,max=20"`
}

type remoteStopRequest struct {
	TransactionID int `json:"transactionId" validate:"gt=0"`
}

type unlockRequest struct {
	ConnectorID int `json:"connectorId" validate:"gt=0"`
}

type resetRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=Soft Hard"`
}

type reserveRequest struct {
	ConnectorID   int        `json:"connectorId" validate:"gte=0"`
	ExpiryDate    *time.Time `json:"expiryDate" validate:"required"`
	IDTag         string     `json:"idTag" validate:"required,max=20"`
	ReservationID int        `json:"reservationId" validate:"gt=0"`
}

type cancelReservationRequest struct {
	ReservationID int `json:"reservationId" validate:"gt=0"`
}

type diagnosticsRequest struct {
	Location      string     `json:"location" validate:"required,url"`
	Retries       int        `json:"retries" validate:"gte=0"`
	RetryInterval int        `json:"retryInterval" validate:"gte=0"`
	StartTime     *time.Time `json:"startTime"`
	StopTime      *time.Time `json:"stopTime"`
}

// Connected lists charge points with a live session.
func (h *ChargerHandlers) Connected(w http.ResponseWriter, r *http.Request) {
	ids := h.sessions.ConnectedIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"connectedStations": ids})
}

type stationResponse struct {
	*models.Station
	Connected  bool               `json:"connected"`
	Connectors []models.Connector `json:"connectors"`
}

// Station handles GET /api/chargers/{id}.
func (h *ChargerHandlers) Station(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	station, err := h.stations.GetStation(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Charging station %s not found", id))
		return
	}
	if err != nil {
		h.logger.Error("failed to load station", zap.String("charge_point_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	connectors, err := h.stations.ListConnectors(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list connectors", zap.String("charge_point_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if connectors == nil {
		connectors = []models.Connector{}
	}
	writeJSON(w, http.StatusOK, stationResponse{
		Station:    station,
		Connected:  h.connected(r.Context(), id),
		Connectors: connectors,
	})
}

func (h *ChargerHandlers) connected(ctx context.Context, id string) bool {
	for _, connected := range h.sessions.ConnectedIDs() {
		if connected == id {
			return true
		}
	}
	if h.presence == nil {
		return false
	}
	online, err := h.presence.IsOnline(ctx, id)
	if err != nil {
		h.logger.Warn("failed to check presence", zap.String("charge_point_id", id), zap.Error(err))
		return false
	}
	return online
}

// RemoteStart handles POST /api/chargers/{id}/remote-start.
func (h *ChargerHandlers) RemoteStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req remoteStartRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := h.commands.RemoteStartTransaction(id, req.ConnectorID, req.IDTag)
	h.respond(w, id, ok, err, fmt.Sprintf("Remote start command sent to %s", id))
}

// RemoteStop handles POST /api/chargers/{id}/remote-stop.
func (h *ChargerHandlers) RemoteStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req remoteStopRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := h.commands.RemoteStopTransaction(id, req.TransactionID)
	h.respond(w, id, ok, err, fmt.Sprintf("Remote stop command sent to %s", id))
}

// Unlock handles POST /api/chargers/{id}/unlock.
func (h *ChargerHandlers) Unlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req unlockRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := h.commands.UnlockConnector(id, req.ConnectorID)
	h.respond(w, id, ok, err, fmt.Sprintf("Unlock command sent to %s connector %d", id, req.ConnectorID))
}

// Reset handles POST /api/chargers/{id}/reset. The type defaults to Soft.
func (h *ChargerHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req resetRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resetType := core.ResetTypeSoft
	if req.Type != "" {
		resetType = core.ResetType(req.Type)
	}
	ok, err := h.commands.Reset(id, resetType)
	h.respond(w, id, ok, err, fmt.Sprintf("%s reset command sent to %s", resetType, id))
}

// Reserve books the connector and sends ReserveNow. The booking is cancelled again when the
// command cannot be delivered.
func (h *ChargerHandlers) Reserve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reserveRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.ExpiryDate.After(h.now()) {
		writeError(w, http.StatusBadRequest, "expiryDate must be in the future")
		return
	}

	reservation := &models.Reservation{
		ID:          req.ReservationID,
		StationID:   id,
		ConnectorID: req.ConnectorID,
		IDTag:       req.IDTag,
		ExpiryDate:  req.ExpiryDate.UTC(),
		Status:      models.ReservationActive,
	}
	if err := h.reservations.Create(r.Context(), reservation); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			writeError(w, http.StatusConflict, fmt.Sprintf("Connector %d of %s is already reserved", req.ConnectorID, id))
		case errors.Is(err, repository.ErrDuplicate):
			writeError(w, http.StatusConflict, fmt.Sprintf("Reservation %d already exists", req.ReservationID))
		default:
			h.logger.Error("failed to store reservation", zap.String("charge_point_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	ok, err := h.commands.ReserveNow(id, req.ConnectorID, *req.ExpiryDate, req.IDTag, req.ReservationID)
	if err != nil || !ok {
		if _, cerr := h.reservations.Cancel(r.Context(), id, req.ReservationID); cerr != nil {
			h.logger.Warn("failed to roll back reservation",
				zap.String("charge_point_id", id),
				zap.Int("reservation_id", req.ReservationID),
				zap.Error(cerr),
			)
		}
	}
	h.respond(w, id, ok, err, fmt.Sprintf("Reservation %d sent to %s", req.ReservationID, id))
}

// CancelReservation sends CancelReservation and releases the booking of the station.
func (h *ChargerHandlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cancelReservationRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := h.commands.CancelReservation(id, req.ReservationID)
	if err == nil && ok {
		if _, cerr := h.reservations.Cancel(r.Context(), id, req.ReservationID); cerr != nil && !errors.Is(cerr, repository.ErrNotFound) {
			h.logger.Warn("failed to cancel stored reservation",
				zap.String("charge_point_id", id),
				zap.Int("reservation_id", req.ReservationID),
				zap.Error(cerr),
			)
		}
	}
	h.respond(w, id, ok, err, fmt.Sprintf("Cancel reservation %d sent to %s", req.ReservationID, id))
}

// Diagnostics handles POST /api/chargers/{id}/diagnostics.
func (h *ChargerHandlers) Diagnostics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req diagnosticsRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.StartTime != nil && req.StopTime != nil && req.StopTime.Before(*req.StartTime) {
		writeError(w, http.StatusBadRequest, "stopTime must not be before startTime")
		return
	}
	ok, err := h.commands.GetDiagnostics(id, ocpp.DiagnosticsRequest{
		Location:      req.Location,
		Retries:       req.Retries,
		RetryInterval: req.RetryInterval,
		StartTime:     req.StartTime,
		StopTime:      req.StopTime,
	})
	h.respond(w, id, ok, err, "Diagnostics request sent successfully")
}

func (h *ChargerHandlers) respond(w http.ResponseWriter, chargePointID string, ok bool, err error, message string) {
	if err != nil {
		h.logger.Error("failed to send command", zap.String("charge_point_id", chargePointID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to deliver command")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Charging station %s not connected", chargePointID))
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: message})
}
