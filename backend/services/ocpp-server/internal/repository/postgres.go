package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

const uniqueViolation = "23505"

// Constraint names created by Migrate.
const (
	reservationsPrimaryKey           = "reservations_pkey"
	reservationsActiveConnectorIndex = "reservations_active_connector_idx"
)

// Postgres implements Store on top of a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns repository.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

const stationColumns = `id, vendor, model, serial_number, firmware_version, status, last_heartbeat, created_at, updated_at`

func scanStation(row pgx.Row) (*models.Station, error) {
	st := &models.Station{}
	err := row.Scan(
		&st.ID,
		&st.Vendor,
		&st.Model,
		&st.SerialNumber,
		&st.FirmwareVersion,
		&st.Status,
		&st.LastHeartbeat,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

// EnsureStation inserts the station if needed and returns the stored row in one round trip.
func (r *Postgres) EnsureStation(ctx context.Context, id string) (*models.Station, error) {
	query := `
		INSERT INTO stations (id, status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING ` + stationColumns
	st, err := scanStation(r.pool.QueryRow(ctx, query, id, protocol.StatusAvailable))
	if err != nil {
		return nil, fmt.Errorf("ensure station: %w", err)
	}
	return st, nil
}

func (r *Postgres) GetStation(ctx context.Context, id string) (*models.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE id = $1`
	st, err := scanStation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	return st, nil
}

func (r *Postgres) UpsertStation(ctx context.Context, station *models.Station) error {
	const query = `
		INSERT INTO stations (id, vendor, model, serial_number, firmware_version, status, last_heartbeat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			firmware_version = EXCLUDED.firmware_version,
			status = EXCLUDED.status,
			last_heartbeat = COALESCE(EXCLUDED.last_heartbeat, stations.last_heartbeat),
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		station.ID,
		station.Vendor,
		station.Model,
		station.SerialNumber,
		station.FirmwareVersion,
		station.Status,
		station.LastHeartbeat,
	)
	if err != nil {
		return fmt.Errorf("upsert station: %w", err)
	}
	return nil
}

func (r *Postgres) UpdateStationStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE stations SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update station status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) TouchHeartbeat(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE stations SET last_heartbeat = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) UpsertConnector(ctx context.Context, connector *models.Connector) error {
	const query = `
		INSERT INTO connectors (station_id, connector_id, status, error_code, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		ON CONFLICT (station_id, connector_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			updated_at = EXCLUDED.updated_at
	`
	var updatedAt *time.Time
	if !connector.UpdatedAt.IsZero() {
		updatedAt = &connector.UpdatedAt
	}
	_, err := r.pool.Exec(ctx, query,
		connector.StationID,
		connector.ConnectorID,
		connector.Status,
		connector.ErrorCode,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert connector: %w", err)
	}
	return nil
}

func (r *Postgres) GetConnector(ctx context.Context, stationID string, connectorID int) (*models.Connector, error) {
	const query = `
		SELECT station_id, connector_id, status, error_code, updated_at
		FROM connectors WHERE station_id = $1 AND connector_id = $2
	`
	c := &models.Connector{}
	err := r.pool.QueryRow(ctx, query, stationID, connectorID).Scan(&c.StationID, &c.ConnectorID, &c.Status, &c.ErrorCode, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connector: %w", err)
	}
	return c, nil
}

func (r *Postgres) ListConnectors(ctx context.Context, stationID string) ([]models.Connector, error) {
	const query = `
		SELECT station_id, connector_id, status, error_code, updated_at
		FROM connectors WHERE station_id = $1 ORDER BY connector_id
	`
	rows, err := r.pool.Query(ctx, query, stationID)
	if err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	defer rows.Close()

	var connectors []models.Connector
	for rows.Next() {
		var c models.Connector
		if err := rows.Scan(&c.StationID, &c.ConnectorID, &c.Status, &c.ErrorCode, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan connector: %w", err)
		}
		connectors = append(connectors, c)
	}
	return connectors, rows.Err()
}

// ClaimConnector relies on the row lock taken by UPDATE: of two concurrent claims only one can
// observe an acceptable status.
func (r *Postgres) ClaimConnector(ctx context.Context, stationID string, connectorID int, from []string, to string) (bool, error) {
	const query = `
		UPDATE connectors SET status = $4, updated_at = NOW()
		WHERE station_id = $1 AND connector_id = $2 AND status = ANY($3)
	`
	tag, err := r.pool.Exec(ctx, query, stationID, connectorID, from, to)
	if err != nil {
		return false, fmt.Errorf("claim connector: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Postgres) ActiveReservations(ctx context.Context, stationID string, at time.Time) ([]models.Reservation, error) {
	const query = `
		SELECT id, station_id, connector_id, id_tag, expiry_date, status, created_at
		FROM reservations
		WHERE station_id = $1 AND status = $2 AND expiry_date > $3
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, stationID, models.ReservationActive, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(&res.ID, &res.StationID, &res.ConnectorID, &res.IDTag, &res.ExpiryDate, &res.Status, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// CreateReservation expires stale rows of the connector first so that the partial unique index
// only guards reservations that still hold it. A caller chosen id is stored as is and the id
// sequence is moved past it.
func (r *Postgres) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback(ctx)

	const station = `
		INSERT INTO stations (id, status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, station, reservation.StationID, protocol.StatusAvailable); err != nil {
		return fmt.Errorf("ensure reservation station: %w", err)
	}

	const expire = `
		UPDATE reservations SET status = $3
		WHERE station_id = $1 AND connector_id = $2 AND status = $4 AND expiry_date <= NOW()
	`
	if _, err := tx.Exec(ctx, expire, reservation.StationID, reservation.ConnectorID, models.ReservationExpired, models.ReservationActive); err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}

	if reservation.Status == "" {
		reservation.Status = models.ReservationActive
	}
	const insert = `
		INSERT INTO reservations (id, station_id, connector_id, id_tag, expiry_date, status, created_at)
		VALUES (COALESCE($1, nextval(pg_get_serial_sequence('reservations', 'id'))), $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	var id *int
	if reservation.ID > 0 {
		id = &reservation.ID
	}
	err = tx.QueryRow(ctx, insert,
		id,
		reservation.StationID,
		reservation.ConnectorID,
		reservation.IDTag,
		reservation.ExpiryDate.UTC(),
		reservation.Status,
	).Scan(&reservation.ID, &reservation.CreatedAt)
	if err != nil {
		return reservationInsertError(err)
	}

	if id != nil {
		const bump = `SELECT setval(pg_get_serial_sequence('reservations', 'id'), (SELECT MAX(id) FROM reservations))`
		if _, err := tx.Exec(ctx, bump); err != nil {
			return fmt.Errorf("advance reservation id: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

// reservationInsertError tells a taken id apart from a connector that is already reserved.
func reservationInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("insert reservation: %w", err)
	}
	switch pgErr.ConstraintName {
	case reservationsPrimaryKey:
		return ErrDuplicate
	case reservationsActiveConnectorIndex:
		return ErrConflict
	default:
		return fmt.Errorf("insert reservation: %w", err)
	}
}

// CancelReservation cancels an Active reservation of the station. Reservations of other
// stations are reported as not found.
func (r *Postgres) CancelReservation(ctx context.Context, stationID string, id int) (*models.Reservation, error) {
	const query = `
		UPDATE reservations SET status = $3
		WHERE id = $1 AND station_id = $2 AND status = $4
		RETURNING id, station_id, connector_id, id_tag, expiry_date, status, created_at
	`
	res := &models.Reservation{}
	err := r.pool.QueryRow(ctx, query, id, stationID, models.ReservationCancelled, models.ReservationActive).
		Scan(&res.ID, &res.StationID, &res.ConnectorID, &res.IDTag, &res.ExpiryDate, &res.Status, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}
	return res, nil
}

func (r *Postgres) MarkReservationUsed(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, models.ReservationUsed)
	if err != nil {
		return fmt.Errorf("mark reservation used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	const query = `
		INSERT INTO transactions (id, station_id, connector_id, id_tag, reservation_id, meter_start, start_time, status, energy_consumed, max_power)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		t.ID,
		t.StationID,
		t.ConnectorID,
		t.IDTag,
		t.ReservationID,
		t.MeterStart,
		t.StartTime.UTC(),
		t.Status,
		t.EnergyConsumed,
		t.MaxPower,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *Postgres) GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	const query = `
		SELECT id, station_id, connector_id, id_tag, reservation_id, meter_start, meter_stop, start_time, stop_time,
			stop_reason, status, energy_consumed, max_power, state_of_charge
		FROM transactions WHERE id = $1
	`
	t := &models.Transaction{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.StationID,
		&t.ConnectorID,
		&t.IDTag,
		&t.ReservationID,
		&t.MeterStart,
		&t.MeterStop,
		&t.StartTime,
		&t.StopTime,
		&t.StopReason,
		&t.Status,
		&t.EnergyConsumed,
		&t.MaxPower,
		&t.StateOfCharge,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *Postgres) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	const query = `
		UPDATE transactions SET
			meter_stop = $2,
			stop_time = $3,
			stop_reason = $4,
			status = $5,
			energy_consumed = $6,
			max_power = $7,
			state_of_charge = $8
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		t.ID,
		t.MeterStop,
		t.StopTime,
		t.StopReason,
		t.Status,
		t.EnergyConsumed,
		t.MaxPower,
		t.StateOfCharge,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) LogMessage(ctx context.Context, msg *models.ProtocolMessage) error {
	const query = `
		INSERT INTO protocol_messages (charge_point_id, message_id, action, request, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		msg.ChargePointID,
		msg.MessageID,
		msg.Action,
		jsonOrNull(msg.Request),
		jsonOrNull(msg.Response),
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert protocol message: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func jsonOrNull(raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}
