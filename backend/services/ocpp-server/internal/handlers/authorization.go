package handlers

import (
	"context"
	"fmt"
	"time"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/repository"
)

// reservationGate holds the active reservations of one station. A station with at least one
// of them only admits the reserved id tags.
type reservationGate struct {
	reservations []models.Reservation
}

func loadReservationGate(ctx context.Context, store repository.Store, stationID string, at time.Time) (*reservationGate, error) {
	reservations, err := store.ActiveReservations(ctx, stationID, at)
	if err != nil {
		return nil, fmt.Errorf("load active reservations: %w", err)
	}
	return &reservationGate{reservations: reservations}, nil
}

func (g *reservationGate) restricted() bool {
	return len(g.reservations) > 0
}

// admitsStation matches the tag against every reservation of the station.
func (g *reservationGate) admitsStation(idTag string) bool {
	for _, r := range g.reservations {
		if r.IDTag == idTag {
			return true
		}
	}
	return false
}

// onConnector narrows the gate to the reservations held on one connector.
func (g *reservationGate) onConnector(connectorID int) *reservationGate {
	narrowed := &reservationGate{}
	for _, r := range g.reservations {
		if r.ConnectorID == connectorID {
			narrowed.reservations = append(narrowed.reservations, r)
		}
	}
	return narrowed
}

// reservationFor returns the reservation of the tag on the connector, if any.
func (g *reservationGate) reservationFor(idTag string, connectorID int) *models.Reservation {
	for i := range g.reservations {
		r := &g.reservations[i]
		if r.IDTag == idTag && r.ConnectorID == connectorID {
			return r
		}
	}
	return nil
}
