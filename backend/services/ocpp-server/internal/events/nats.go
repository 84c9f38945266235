package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "csms.events"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes every event as JSON on <prefix>.<event name>.
type NATSSink struct {
	conn   publisher
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewNATSSink wraps an established connection.
func NewNATSSink(conn *nats.Conn, prefix string, logger *zap.Logger) *NATSSink {
	return newNATSSink(conn, prefix, logger)
}

func newNATSSink(conn publisher, prefix string, logger *zap.Logger) *NATSSink {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix, logger: logger, now: time.Now}
}

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(name string) string {
	return s.prefix + "." + name
}

// Emit implements Sink. Publish failures are logged and dropped.
func (s *NATSSink) Emit(name string, payload interface{}) {
	data, err := json.Marshal(Event{Name: name, Payload: payload, EmittedAt: s.now().UTC()})
	if err != nil {
		s.logger.Error("encode event failed", zap.String("event", name), zap.Error(err))
		return
	}
	if err := s.conn.Publish(s.Subject(name), data); err != nil {
		s.logger.Warn("publish event failed", zap.String("event", name), zap.Error(err))
	}
}
