package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "csms/backend/libs/db"
	libnats "csms/backend/libs/nats"
	libredis "csms/backend/libs/redis"
	"csms/backend/services/ocpp-server/internal/chargerauth"
	"csms/backend/services/ocpp-server/internal/config"
	"csms/backend/services/ocpp-server/internal/events"
	"csms/backend/services/ocpp-server/internal/handlers"
	httpserver "csms/backend/services/ocpp-server/internal/http"
	httphandlers "csms/backend/services/ocpp-server/internal/http/handlers"
	"csms/backend/services/ocpp-server/internal/http/middleware"
	"csms/backend/services/ocpp-server/internal/ocpp"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
	"csms/backend/services/ocpp-server/internal/presence"
	"csms/backend/services/ocpp-server/internal/repository"
	"csms/backend/services/ocpp-server/internal/service"
	"csms/backend/services/ocpp-server/internal/ws"
)

const serviceName = "ocpp-server"

// App wires all dependencies for the OCPP server.
type App struct {
	server   *httpserver.Server
	manager  *ws.Manager
	hub      *events.Hub
	presence *presence.Store

	pool  *pgxpool.Pool
	redis *goredis.Client
	nats  *nats.Conn

	logger *zap.Logger
}

// New builds the application graph. Redis and NATS are optional and only dialled when
// configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.hub = events.NewHub(logger)
	sinks := events.Multi{a.hub}

	if cfg.NATS.URL != "" {
		a.nats, err = libnats.NewConnection(cfg.NATS.URL, serviceName, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, events.NewNATSSink(a.nats, cfg.NATS.SubjectPrefix, logger))
	}

	if cfg.Redis.Addr != "" {
		a.redis, err = libredis.NewRedisClient(ctx, libredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err != nil {
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		a.presence = presence.NewStore(a.redis, presence.DefaultTTL, logger)
		sinks = append(sinks, a.presence)
	}

	a.manager = ws.NewManager(cfg.PingInterval(), sinks, logger)
	pending := ocpp.NewPendingRequests()
	a.manager.OnDisconnect(func(chargePointID string) {
		if n := pending.DropAll(chargePointID); n > 0 {
			logger.Debug("dropped pending requests", zap.String("charge_point_id", chargePointID), zap.Int("count", n))
		}
	})

	router := ocpp.NewRouter()
	registerHandlers(router, store, sinks, cfg, logger)
	processor := ocpp.NewProcessor(ocpp.NewParser(), router, store, pending, sinks, logger)
	commands := ocpp.NewCommandSender(a.manager, pending, logger)

	wsOpts := ws.Options{WriteTimeout: cfg.WriteTimeout()}
	if verifier := chargerauth.NewVerifier(cfg.Chargers.BasicAuth, nil); verifier != nil {
		wsOpts.Auth = verifier
	}
	wsServer := ws.NewServer(a.manager, processor, wsOpts, logger)

	var authMiddleware func(http.Handler) http.Handler
	if cfg.Auth.JWTSecret != "" {
		authMiddleware = middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("operator api is not protected, auth.jwtSecret is empty")
	}

	chargers := httphandlers.NewChargerHandlers(commands, service.NewReservations(store, logger), store, a.manager, logger)
	if a.presence != nil {
		chargers.WithPresence(a.presence)
	}

	handler := httpserver.NewRouter(httpserver.RouterDeps{
		ChargerHandlers: chargers,
		HealthHandler:   httphandlers.NewHealthHandler(),
		OCPPHandler:     wsServer.HandleWS,
		OCPPPath:        cfg.WebSocketPath(),
		EventsHandler:   a.hub.ServeWS,
	}, authMiddleware)

	a.server = httpserver.NewServer(
		cfg.HTTPAddress(),
		handler,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

func registerHandlers(router *ocpp.Router, store repository.Store, sink events.Sink, cfg *config.Config, logger *zap.Logger) {
	router.Register(protocol.ActionBootNotification, handlers.NewBootNotificationHandler(store, cfg.HeartbeatInterval(), logger))
	router.Register(protocol.ActionHeartbeat, handlers.NewHeartbeatHandler(store))
	router.Register(protocol.ActionStatusNotification, handlers.NewStatusNotificationHandler(store, logger))
	router.Register(protocol.ActionAuthorize, handlers.NewAuthorizeHandler(store, logger))
	router.Register(protocol.ActionStartTransaction, handlers.NewStartTransactionHandler(store, sink, logger))
	router.Register(protocol.ActionStopTransaction, handlers.NewStopTransactionHandler(store, sink, logger))
	router.Register(protocol.ActionMeterValues, handlers.NewMeterValuesHandler(store, sink, logger))
	for action, h := range handlers.StaticHandlers(cfg.HeartbeatInterval()) {
		router.Register(action, h)
	}
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, state is lost on restart")
		return repository.NewMemory(), nil
	}
	pool, err := libdb.NewPostgresPool(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return repository.NewPostgres(pool), nil
}

// Run starts background loops and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(a.manager.Start)
	run(a.hub.Run)
	if a.presence != nil {
		run(func(ctx context.Context) { a.presence.Run(ctx, a.manager) })
	}

	err := a.server.Run(ctx)
	cancel()
	a.manager.CloseAll()
	wg.Wait()
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.logger.Warn("failed to drain nats", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Migrate creates the PostgreSQL schema.
func Migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := libdb.NewPostgresPool(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.NewPostgres(pool).Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database schema is up to date")
	return nil
}
