package repository

import (
	"context"
	"fmt"
)

// Migrate creates the schema used by Postgres. Statements are idempotent.
func (r *Postgres) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateStations,
		migrationCreateConnectors,
		migrationCreateReservations,
		migrationCreateReservationsActiveIndex,
		migrationCreateTransactions,
		migrationCreateProtocolMessages,
	}

	for _, m := range migrations {
		if _, err := r.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

const migrationCreateStations = `
CREATE TABLE IF NOT EXISTS stations (
    id TEXT PRIMARY KEY,
    vendor TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    serial_number TEXT NOT NULL DEFAULT '',
    firmware_version TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'Available',
    last_heartbeat TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migrationCreateConnectors = `
CREATE TABLE IF NOT EXISTS connectors (
    station_id TEXT NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
    connector_id INTEGER NOT NULL,
    status TEXT NOT NULL,
    error_code TEXT NOT NULL DEFAULT 'NoError',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (station_id, connector_id)
);
`

const migrationCreateReservations = `
CREATE TABLE IF NOT EXISTS reservations (
    id SERIAL PRIMARY KEY,
    station_id TEXT NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
    connector_id INTEGER NOT NULL,
    id_tag TEXT NOT NULL,
    expiry_date TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'Active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migrationCreateReservationsActiveIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_connector_idx
    ON reservations (station_id, connector_id)
    WHERE status = 'Active';
`

const migrationCreateTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY,
    station_id TEXT NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
    connector_id INTEGER NOT NULL,
    id_tag TEXT NOT NULL,
    reservation_id INTEGER REFERENCES reservations(id),
    meter_start INTEGER NOT NULL,
    meter_stop INTEGER,
    start_time TIMESTAMPTZ NOT NULL,
    stop_time TIMESTAMPTZ,
    stop_reason TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    energy_consumed DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_power DOUBLE PRECISION NOT NULL DEFAULT 0,
    state_of_charge DOUBLE PRECISION
);
`

const migrationCreateProtocolMessages = `
CREATE TABLE IF NOT EXISTS protocol_messages (
    id BIGSERIAL PRIMARY KEY,
    charge_point_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    action TEXT NOT NULL,
    request JSONB,
    response JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
