package nats

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	defaultMaxReconnects = -1
	defaultReconnectWait = 2 * time.Second
	defaultTimeout       = 5 * time.Second
)

// NewConnection dials the given NATS servers (comma separated) and logs connection state changes.
func NewConnection(servers, name string, logger *zap.Logger) (*nats.Conn, error) {
	servers = strings.TrimSpace(servers)
	if servers == "" {
		return nil, errors.New("nats: servers are empty")
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(defaultTimeout),
		nats.MaxReconnects(defaultMaxReconnects),
		nats.ReconnectWait(defaultReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats connection lost", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats connection restored", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return nc, nil
}
