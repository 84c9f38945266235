package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

func TestMemoryEnsureStationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first, err := store.EnsureStation(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusAvailable, first.Status)

	require.NoError(t, store.UpdateStationStatus(ctx, "CP1", protocol.StatusFaulted))

	second, err := store.EnsureStation(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFaulted, second.Status)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestMemoryMissingRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.GetStation(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateStationStatus(ctx, "nope", protocol.StatusAvailable), ErrNotFound)
	assert.ErrorIs(t, store.TouchHeartbeat(ctx, "nope", time.Now()), ErrNotFound)
	_, err = store.GetConnector(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetTransaction(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateTransaction(ctx, &models.Transaction{ID: 5}), ErrNotFound)
	assert.ErrorIs(t, store.MarkReservationUsed(ctx, 5), ErrNotFound)
	_, err = store.CancelReservation(ctx, "nope", 5)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.ClaimConnector(ctx, "nope", 1, protocol.StartableConnectorStatuses, protocol.StatusOccupied)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryClaimConnectorIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.UpsertConnector(ctx, &models.Connector{StationID: "CP1", ConnectorID: 1, Status: protocol.StatusAvailable}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimConnector(ctx, "CP1", 1, protocol.StartableConnectorStatuses, protocol.StatusOccupied)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	c, err := store.GetConnector(ctx, "CP1", 1)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOccupied, c.Status)
}

func TestMemoryReservations(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	res := &models.Reservation{StationID: "CP1", ConnectorID: 1, IDTag: "T1", ExpiryDate: now.Add(time.Hour)}
	require.NoError(t, store.CreateReservation(ctx, res))
	assert.Equal(t, 1, res.ID)
	assert.Equal(t, models.ReservationActive, res.Status)

	err := store.CreateReservation(ctx, &models.Reservation{StationID: "CP1", ConnectorID: 1, IDTag: "T2", ExpiryDate: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrConflict)

	expired := &models.Reservation{StationID: "CP1", ConnectorID: 2, IDTag: "T3", ExpiryDate: now.Add(-time.Minute)}
	require.NoError(t, store.CreateReservation(ctx, expired))

	active, err := store.ActiveReservations(ctx, "CP1", now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "T1", active[0].IDTag)

	require.NoError(t, store.MarkReservationUsed(ctx, res.ID))
	active, err = store.ActiveReservations(ctx, "CP1", now)
	require.NoError(t, err)
	assert.Empty(t, active)

	other := &models.Reservation{StationID: "CP2", ConnectorID: 1, IDTag: "T4", ExpiryDate: now.Add(time.Hour)}
	require.NoError(t, store.CreateReservation(ctx, other))
	_, err = store.CancelReservation(ctx, "CP1", other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	cancelled, err := store.CancelReservation(ctx, "CP2", other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, cancelled.Status)
	_, err = store.CancelReservation(ctx, "CP2", other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTransactions(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	tx := &models.Transaction{ID: 42, StationID: "CP1", ConnectorID: 1, IDTag: "T1", MeterStart: 1000, Status: models.TransactionActive}
	require.NoError(t, store.CreateTransaction(ctx, tx))
	assert.ErrorIs(t, store.CreateTransaction(ctx, tx), ErrDuplicate)

	tx.EnergyConsumed = 1.5
	require.NoError(t, store.UpdateTransaction(ctx, tx))

	got, err := store.GetTransaction(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.EnergyConsumed)
}

func TestMemoryLogMessage(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.LogMessage(context.Background(), &models.ProtocolMessage{ChargePointID: "CP1", Action: "Heartbeat"}))
	require.NoError(t, store.LogMessage(context.Background(), &models.ProtocolMessage{ChargePointID: "CP1", Action: "Authorize"}))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2), msgs[1].ID)
	assert.Equal(t, "Authorize", msgs[1].Action)
}
