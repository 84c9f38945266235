package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
)

const (
	keyPrefix      = "csms:presence:"
	DefaultTTL     = 90 * time.Second
	commandTimeout = 2 * time.Second
)

// Lister enumerates the charge points with a live session.
type Lister interface {
	ConnectedIDs() []string
}

// Store mirrors connected charge points into redis so other processes can tell who is online.
// Entries expire on their own if this process dies.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore returns a redis-backed presence mirror.
func NewStore(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, logger: logger}
}

func (s *Store) key(chargePointID string) string {
	return keyPrefix + chargePointID
}

// Mark records the charge point as online as of `at`.
func (s *Store) Mark(ctx context.Context, chargePointID string, at time.Time) error {
	if err := s.client.Set(ctx, s.key(chargePointID), at.UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("mark %s online: %w", chargePointID, err)
	}
	return nil
}

// Clear removes the charge point from the mirror.
func (s *Store) Clear(ctx context.Context, chargePointID string) error {
	if err := s.client.Del(ctx, s.key(chargePointID)).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", chargePointID, err)
	}
	return nil
}

// IsOnline reports whether the mirror holds an entry for the charge point.
func (s *Store) IsOnline(ctx context.Context, chargePointID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(chargePointID)).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", chargePointID, err)
	}
	return n > 0, nil
}

// Emit implements events.Sink for connection events. Everything else is ignored.
func (s *Store) Emit(name string, payload interface{}) {
	conn, ok := payload.(events.ConnectionPayload)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch name {
	case events.StationConnected:
		err = s.Mark(ctx, conn.ChargePointID, conn.Timestamp)
	case events.StationDisconnected:
		err = s.Clear(ctx, conn.ChargePointID)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("presence update failed", zap.String("event", name), zap.Error(err))
	}
}

// Run refreshes every connected charge point at a third of the TTL until ctx is done.
func (s *Store) Run(ctx context.Context, lister Lister) {
	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx, lister.ConnectedIDs())
		}
	}
}

func (s *Store) refresh(ctx context.Context, ids []string) {
	now := time.Now()
	for _, id := range ids {
		callCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err := s.Mark(callCtx, id, now)
		cancel()
		if err != nil {
			s.logger.Warn("presence refresh failed", zap.String("charge_point_id", id), zap.Error(err))
		}
	}
}
