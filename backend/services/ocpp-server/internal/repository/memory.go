package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

type connectorKey struct {
	stationID   string
	connectorID int
}

// Memory is an in-process Store. All operations are serialized by one lock, which also makes
// ClaimConnector atomic.
type Memory struct {
	mu           sync.Mutex
	stations     map[string]*models.Station
	connectors   map[connectorKey]*models.Connector
	reservations map[int]*models.Reservation
	transactions map[int]*models.Transaction
	messages     []models.ProtocolMessage
	nextResID    int
	now          func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		stations:     make(map[string]*models.Station),
		connectors:   make(map[connectorKey]*models.Connector),
		reservations: make(map[int]*models.Reservation),
		transactions: make(map[int]*models.Transaction),
		nextResID:    1,
		now:          time.Now,
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) EnsureStation(_ context.Context, id string) (*models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		now := m.now().UTC()
		st = &models.Station{ID: id, Status: protocol.StatusAvailable, CreatedAt: now, UpdatedAt: now}
		m.stations[id] = st
	}
	out := *st
	return &out, nil
}

func (m *Memory) GetStation(_ context.Context, id string) (*models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *st
	return &out, nil
}

func (m *Memory) UpsertStation(_ context.Context, station *models.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	stored := *station
	if existing, ok := m.stations[station.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.stations[station.ID] = &stored
	return nil
}

func (m *Memory) UpdateStationStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return ErrNotFound
	}
	st.Status = status
	st.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) TouchHeartbeat(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	st.LastHeartbeat = &at
	st.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) UpsertConnector(_ context.Context, connector *models.Connector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *connector
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = m.now().UTC()
	}
	m.connectors[connectorKey{connector.StationID, connector.ConnectorID}] = &stored
	return nil
}

func (m *Memory) GetConnector(_ context.Context, stationID string, connectorID int) (*models.Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connectors[connectorKey{stationID, connectorID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListConnectors(_ context.Context, stationID string) ([]models.Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Connector
	for key, c := range m.connectors {
		if key.stationID == stationID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out, nil
}

func (m *Memory) ClaimConnector(_ context.Context, stationID string, connectorID int, from []string, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connectors[connectorKey{stationID, connectorID}]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if c.Status == status {
			c.Status = to
			c.UpdatedAt = m.now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ActiveReservations(_ context.Context, stationID string, at time.Time) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reservation
	for _, r := range m.reservations {
		if r.StationID == stationID && r.ActiveAt(at) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateReservation(_ context.Context, reservation *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reservations[reservation.ID]; exists {
		return ErrDuplicate
	}
	now := m.now()
	for _, r := range m.reservations {
		if r.StationID == reservation.StationID && r.ConnectorID == reservation.ConnectorID && r.ActiveAt(now) {
			return ErrConflict
		}
	}
	if reservation.ID == 0 {
		reservation.ID = m.nextResID
	}
	if reservation.ID >= m.nextResID {
		m.nextResID = reservation.ID + 1
	}
	if reservation.Status == "" {
		reservation.Status = models.ReservationActive
	}
	reservation.CreatedAt = now.UTC()
	stored := *reservation
	m.reservations[reservation.ID] = &stored
	return nil
}

func (m *Memory) CancelReservation(_ context.Context, stationID string, id int) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.StationID != stationID || r.Status != models.ReservationActive {
		return nil, ErrNotFound
	}
	r.Status = models.ReservationCancelled
	out := *r
	return &out, nil
}

func (m *Memory) MarkReservationUsed(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = models.ReservationUsed
	return nil
}

// Reservation returns a stored reservation.
func (m *Memory) Reservation(id int) (models.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return models.Reservation{}, false
	}
	return *r, true
}

func (m *Memory) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[tx.ID]; exists {
		return ErrDuplicate
	}
	stored := *tx
	m.transactions[tx.ID] = &stored
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id int) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *tx
	return &out, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.ID]; !ok {
		return ErrNotFound
	}
	stored := *tx
	m.transactions[tx.ID] = &stored
	return nil
}

func (m *Memory) LogMessage(_ context.Context, msg *models.ProtocolMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *msg
	stored.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, stored)
	return nil
}

// Messages returns the message log.
func (m *Memory) Messages() []models.ProtocolMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ProtocolMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
