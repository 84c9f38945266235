package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Subprotocol is the only OCPP-J version served.
const Subprotocol = "ocpp1.6"

// Authenticator checks HTTP basic credentials presented by a charge point.
type Authenticator interface {
	Authenticate(chargePointID, username, password string) bool
}

// Options tunes the transport.
type Options struct {
	WriteTimeout time.Duration
	// ReadTimeout closes a session that sends nothing, not even a pong, for this long.
	ReadTimeout time.Duration
	// Auth is optional; nil admits every charge point.
	Auth Authenticator
}

// Server upgrades charge point HTTP requests to OCPP sessions.
type Server struct {
	manager   *Manager
	processor MessageProcessor
	opts      Options
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewServer builds the transport.
func NewServer(manager *Manager, processor MessageProcessor, opts Options, logger *zap.Logger) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * manager.pingInterval
	}
	return &Server{
		manager:   manager,
		processor: processor,
		opts:      opts,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ChargePointIDFromPath returns the last path segment, empty when the path ends with a slash.
func ChargePointIDFromPath(path string) string {
	idx := strings.LastIndex(path, "/")
	return strings.TrimSpace(path[idx+1:])
}

// HandleWS serves /ocpp/{chargePointId}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	chargePointID := ChargePointIDFromPath(r.URL.Path)
	if chargePointID == "" {
		http.Error(w, "charge point id is required", http.StatusBadRequest)
		return
	}
	logger := s.logger.With(zap.String("charge_point_id", chargePointID))

	if s.opts.Auth != nil {
		user, pass, ok := r.BasicAuth()
		if !ok || !s.opts.Auth.Authenticate(chargePointID, user, pass) {
			logger.Warn("charge point authentication failed", zap.String("remote_addr", r.RemoteAddr))
			w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	if conn.Subprotocol() != Subprotocol {
		logger.Warn("charge point did not negotiate subprotocol", zap.Strings("requested", websocket.Subprotocols(r)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(chargePointID, conn, s.processor, s.opts.WriteTimeout, s.opts.ReadTimeout, s.logger, func(c *Connection) {
		s.manager.Unregister(c.ChargePointID(), c)
		cancel()
	})
	s.manager.Register(connection)

	go connection.Start(ctx)
}
