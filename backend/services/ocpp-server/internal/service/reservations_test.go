package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/repository"
)

func TestReservationsMoveConnector(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	_, err := store.EnsureStation(ctx, "CP1")
	require.NoError(t, err)
	for id, status := range map[int]string{1: protocol.StatusAvailable, 2: protocol.StatusCharging} {
		require.NoError(t, store.UpsertConnector(ctx, &models.Connector{StationID: "CP1", ConnectorID: id, Status: status, ErrorCode: protocol.NoError}))
	}
	svc := NewReservations(store, zap.NewNop())
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, svc.Create(ctx, &models.Reservation{ID: 1, StationID: "CP1", ConnectorID: 1, IDTag: "T1", ExpiryDate: expiry}))
	require.NoError(t, svc.Create(ctx, &models.Reservation{ID: 2, StationID: "CP1", ConnectorID: 2, IDTag: "T2", ExpiryDate: expiry}))
	require.NoError(t, svc.Create(ctx, &models.Reservation{ID: 3, StationID: "CP1", ConnectorID: 0, IDTag: "T3", ExpiryDate: expiry}))

	status := func(id int) string {
		c, err := store.GetConnector(ctx, "CP1", id)
		require.NoError(t, err)
		return c.Status
	}
	assert.Equal(t, protocol.StatusReserved, status(1))
	assert.Equal(t, protocol.StatusCharging, status(2))
	st, err := store.GetStation(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOccupied, st.Status)

	_, err = svc.Cancel(ctx, "CP1", 2)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusCharging, status(2))

	_, err = svc.Cancel(ctx, "CP1", 1)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusAvailable, status(1))

	_, err = svc.Cancel(ctx, "CP1", 3)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "CP1", 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, svc.Create(ctx, &models.Reservation{ID: 1, StationID: "CP1", ConnectorID: 1, IDTag: "T1", ExpiryDate: expiry}), repository.ErrDuplicate)
}
