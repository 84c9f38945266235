package repository

import (
	"context"
	"errors"
	"time"

	"csms/backend/services/ocpp-server/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrConflict is returned when a record would violate a business constraint.
	ErrConflict = errors.New("repository: conflict")
)

// Store is the persistent state consumed by the session manager.
// Implementations must make ClaimConnector an atomic check-and-set.
type Store interface {
	// EnsureStation returns the station, creating it with status Available when absent.
	EnsureStation(ctx context.Context, id string) (*models.Station, error)
	GetStation(ctx context.Context, id string) (*models.Station, error)
	UpsertStation(ctx context.Context, station *models.Station) error
	UpdateStationStatus(ctx context.Context, id, status string) error
	TouchHeartbeat(ctx context.Context, id string, at time.Time) error

	// UpsertConnector creates the connector on first reference or overwrites its status.
	UpsertConnector(ctx context.Context, connector *models.Connector) error
	GetConnector(ctx context.Context, stationID string, connectorID int) (*models.Connector, error)
	ListConnectors(ctx context.Context, stationID string) ([]models.Connector, error)
	// ClaimConnector moves the connector to status `to` only if its current status is one of
	// `from`. It reports whether the transition happened.
	ClaimConnector(ctx context.Context, stationID string, connectorID int, from []string, to string) (bool, error)

	// ActiveReservations lists Active reservations of the station that have not expired at `at`.
	ActiveReservations(ctx context.Context, stationID string, at time.Time) ([]models.Reservation, error)
	// CreateReservation keeps a caller chosen id. ErrDuplicate is returned when the id is
	// taken and ErrConflict when the connector already holds an Active reservation.
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	// CancelReservation cancels an Active reservation of the station.
	CancelReservation(ctx context.Context, stationID string, id int) (*models.Reservation, error)
	MarkReservationUsed(ctx context.Context, id int) error

	// CreateTransaction inserts a transaction with a caller chosen id. ErrDuplicate is returned
	// when the id is taken.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id int) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error

	LogMessage(ctx context.Context, msg *models.ProtocolMessage) error
}
