package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/lynk/internal/attachments"
	"github.com/example/lynk/internal/auth"
	"github.com/example/lynk/internal/broadcast"
	"github.com/example/lynk/internal/config"
	"github.com/example/lynk/internal/observability"
	"github.com/example/lynk/internal/presence"
	"github.com/example/lynk/internal/protocol"
	"github.com/example/lynk/internal/store"
	"github.com/example/lynk/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := log.With().Str("app", cfg.AppName).Logger()
	observability.RegisterRuntimeCollectors()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := observability.Start(ctx, observability.Config{
		ServiceName:  cfg.AppName,
		MetricsAddr:  cfg.MetricsAddr,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer telemetryShutdown(context.Background())

	resources, err := config.NewResources(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize resources")
	}
	defer resources.Close()

	db := store.New(resources.Postgres)
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	attachmentStore := attachments.NewStore(resources.Object, cfg.ObjectBucket, logger)

	registry := ws.NewRegistry()
	rooms := ws.NewRooms(logger)

	relay := broadcast.NewRedisRelay(resources.Redis, rooms, logger)
	rooms.SetRelay(relay)
	relay.Start(ctx)

	emitter := protocol.RoomEmitter{Rooms: rooms}
	conversations := protocol.NewConversationHandler(db, emitter, logger)
	friendships := protocol.NewFriendshipHandler(db, emitter, logger)
	router := protocol.NewRouter(conversations, friendships, logger)

	coordinator := presence.NewCoordinator(db, emitter, logger)
	hooks := coordinator.Hooks(ws.Hooks{})

	authenticator := auth.New([]byte(cfg.AccessTokenKey), db)

	checkOrigin := func(r *http.Request) bool {
		return cfg.AllowedOrigin == "*" || r.Header.Get("Origin") == cfg.AllowedOrigin
	}
	gateway, err := ws.NewGateway(authenticator, registry, rooms, router, hooks, logger, ws.GatewayConfig{
		PongWait:    cfg.PongWait,
		CheckOrigin: checkOrigin,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build gateway")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	attachmentHandler := attachmentStore.Handler(authenticator)
	mux.Handle("/attachments", attachmentHandler)
	mux.Handle("/attachments/", attachmentHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := resources.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: mux}
	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().Msg("server dependencies initialized")

	go func() {
		ticker := time.NewTicker(cfg.HealthcheckProbe)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := resources.HealthCheck(context.Background()); err != nil {
					logger.Error().Err(err).Msg("dependency healthcheck failed")
				} else {
					logger.Debug().Msg("dependency healthcheck ok")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		resources.Close()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Error().Err(shutdownCtx.Err()).Msg("forced shutdown")
	}
}
