package ws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
	"csms/backend/services/ocpp-server/internal/ocpp"
)

const defaultPingInterval = 30 * time.Second

// Handle is one live charge point session as seen by the manager.
type Handle interface {
	ChargePointID() string
	Send(msg []byte) error
	Ping() error
	Close() error
}

// Manager is the session registry: at most one live handle per charge point id.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]Handle
	onDisconnect []func(chargePointID string)

	pingInterval time.Duration
	sink         events.Sink
	logger       *zap.Logger
	now          func() time.Time
}

// NewManager builds the registry. Connection changes are reported to sink.
func NewManager(pingInterval time.Duration, sink events.Sink, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if sink == nil {
		sink = events.Noop{}
	}
	return &Manager{
		sessions:     make(map[string]Handle),
		pingInterval: pingInterval,
		sink:         sink,
		logger:       logger,
		now:          time.Now,
	}
}

// OnDisconnect adds a hook run whenever a session ends, before the disconnect event. Hooks run
// with the registry locked and must not call back into the Manager. A replacing session
// becomes visible only after they return. Hooks must be added before sessions are registered.
func (m *Manager) OnDisconnect(fn func(chargePointID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = append(m.onDisconnect, fn)
}

// Register records the handle. A previous session of the same charge point is closed and
// reported as disconnected before the new one is reported as connected.
func (m *Manager) Register(h Handle) {
	id := h.ChargePointID()

	m.mu.Lock()
	previous, superseded := m.sessions[id]
	superseded = superseded && previous != h
	if superseded {
		m.runHooks(id)
	}
	m.sessions[id] = h
	m.mu.Unlock()

	if superseded {
		m.logger.Info("superseding existing session", zap.String("charge_point_id", id))
		if err := previous.Close(); err != nil {
			m.logger.Debug("closing superseded session failed", zap.String("charge_point_id", id), zap.Error(err))
		}
		m.emitDisconnected(id)
	}

	m.logger.Info("charge point connected", zap.String("charge_point_id", id))
	m.sink.Emit(events.StationConnected, events.ConnectionPayload{ChargePointID: id, Timestamp: m.now().UTC()})
}

// Unregister removes the session only if h is still the registered handle for the id.
func (m *Manager) Unregister(chargePointID string, h Handle) bool {
	m.mu.Lock()
	current, ok := m.sessions[chargePointID]
	removed := ok && current == h
	if removed {
		delete(m.sessions, chargePointID)
		m.runHooks(chargePointID)
	}
	m.mu.Unlock()

	if removed {
		m.logger.Info("charge point disconnected", zap.String("charge_point_id", chargePointID))
		m.emitDisconnected(chargePointID)
	}
	return removed
}

// runHooks must be called with mu held.
func (m *Manager) runHooks(chargePointID string) {
	for _, fn := range m.onDisconnect {
		fn(chargePointID)
	}
}

func (m *Manager) emitDisconnected(chargePointID string) {
	m.sink.Emit(events.StationDisconnected, events.ConnectionPayload{ChargePointID: chargePointID, Timestamp: m.now().UTC()})
}

// Lookup returns the live handle of the charge point.
func (m *Manager) Lookup(chargePointID string) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.sessions[chargePointID]
	return h, ok
}

// SendTo encodes and writes a frame. It returns false without error when the charge point
// has no session.
func (m *Manager) SendTo(chargePointID string, msg *ocpp.Message) (bool, error) {
	h, ok := m.Lookup(chargePointID)
	if !ok {
		return false, nil
	}
	data, err := ocpp.Encode(msg)
	if err != nil {
		return false, fmt.Errorf("encode frame: %w", err)
	}
	if err := h.Send(data); err != nil {
		return false, err
	}
	return true, nil
}

// ConnectedIDs lists charge points with a live session, sorted.
func (m *Manager) ConnectedIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Start pings every session periodically until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, h := range m.snapshot() {
				if err := h.Ping(); err != nil {
					m.logger.Debug("ping failed", zap.String("charge_point_id", h.ChargePointID()), zap.Error(err))
				}
			}
		}
	}
}

// CloseAll closes every session. Their read loops unregister them.
func (m *Manager) CloseAll() {
	for _, h := range m.snapshot() {
		_ = h.Close()
	}
}

func (m *Manager) snapshot() []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		out = append(out, h)
	}
	return out
}
