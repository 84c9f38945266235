package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
)

// Reservations books and releases connectors on behalf of the operator API.
type Reservations struct {
	store  repository.Store
	logger *zap.Logger
}

// NewReservations returns the reservation service.
func NewReservations(store repository.Store, logger *zap.Logger) *Reservations {
	return &Reservations{store: store, logger: logger}
}

// Create stores the reservation and marks an Available connector Reserved. Connector 0 reserves
// the station as a whole and leaves connectors alone.
func (s *Reservations) Create(ctx context.Context, reservation *models.Reservation) error {
	if err := s.store.CreateReservation(ctx, reservation); err != nil {
		return err
	}
	if reservation.ConnectorID == 0 {
		return nil
	}
	claimed, err := s.store.ClaimConnector(ctx, reservation.StationID, reservation.ConnectorID,
		[]string{protocol.StatusAvailable}, protocol.StatusReserved)
	if err != nil {
		return fmt.Errorf("reserve connector: %w", err)
	}
	if claimed {
		RefreshStationStatus(ctx, s.store, reservation.StationID, s.logger)
	}
	return nil
}

// Cancel cancels an Active reservation of the station and hands a Reserved connector back.
func (s *Reservations) Cancel(ctx context.Context, stationID string, id int) (*models.Reservation, error) {
	reservation, err := s.store.CancelReservation(ctx, stationID, id)
	if err != nil {
		return nil, err
	}
	if reservation.ConnectorID == 0 {
		return reservation, nil
	}
	released, err := s.store.ClaimConnector(ctx, stationID, reservation.ConnectorID,
		[]string{protocol.StatusReserved}, protocol.StatusAvailable)
	if err != nil {
		return reservation, fmt.Errorf("release connector: %w", err)
	}
	if released {
		RefreshStationStatus(ctx, s.store, stationID, s.logger)
	}
	return reservation, nil
}

// RefreshStationStatus recomputes the station status from the stored connectors.
func RefreshStationStatus(ctx context.Context, store repository.Store, stationID string, logger *zap.Logger) {
	connectors, err := store.ListConnectors(ctx, stationID)
	if err != nil {
		logger.Warn("failed to list connectors", zap.Error(err))
		return
	}
	if err := store.UpdateStationStatus(ctx, stationID, StationStatusFromConnectors(connectors)); err != nil {
		logger.Warn("failed to update station status", zap.Error(err))
	}
}
