package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapflow/wagateway/internal/gateway_service/adapters/events"
	gatewayhttp "github.com/zapflow/wagateway/internal/gateway_service/adapters/http"
	"github.com/zapflow/wagateway/internal/gateway_service/app"
	"github.com/zapflow/wagateway/internal/gateway_service/provider"
	pgrepo "github.com/zapflow/wagateway/internal/gateway_service/repository/postgres"
	"github.com/zapflow/wagateway/internal/platform/config"
	"github.com/zapflow/wagateway/internal/platform/database"
	"github.com/zapflow/wagateway/internal/platform/logger"
	"github.com/zapflow/wagateway/internal/platform/messagebroker"
)

const serviceName = "gateway_service"

func main() {
	cfg, err := config.Load("./configs")
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Gateway service starting...", "port", cfg.GatewayServicePort)

	dbPool, err := database.NewDBPool(context.Background(), cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	// The event sink degrades to a no-op when NATS is unreachable; the core
	// must keep working with no listeners present.
	var sink app.EventSink = app.NoopSink{}
	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Warn("Failed to connect to NATS; events will not be published", "error", err)
	} else {
		defer natsClient.Close()
		sink = events.NewNatsSink(natsClient, appLogger)
		appLogger.Info("Connected to NATS")
	}

	sessionStore := pgrepo.NewPgSessionStore(dbPool, appLogger)
	conversationStore := pgrepo.NewPgConversationStore(dbPool, appLogger)

	registry := app.NewSessionRegistry(sessionStore, sink, appLogger, app.RegistryConfig{
		ReconnectFirstDelay:  cfg.ReconnectFirstDelay,
		ReconnectSecondDelay: cfg.ReconnectSecondDelay,
	})

	if persisted, err := sessionStore.ListSessions(context.Background()); err != nil {
		appLogger.Warn("Failed to list persisted sessions", "error", err)
	} else if len(persisted) > 0 {
		// Transports are not resurrected automatically; sessions must be
		// re-registered explicitly to pair again.
		appLogger.Info("Found persisted sessions from a previous run", "count", len(persisted))
	}

	engine := app.NewDispatchEngine(registry, sink, appLogger, app.DispatchConfig{
		DefaultAreaCode: cfg.DefaultAreaCode,
		MinDelay:        cfg.DispatchMinDelay,
		MaxDelay:        cfg.DispatchMaxDelay,
		LongPauseEvery:  cfg.DispatchLongPauseEvery,
		LongPauseMin:    cfg.DispatchLongPauseMin,
		LongPauseMax:    cfg.DispatchLongPauseMax,
	})

	merger := app.NewConversationMerger(conversationStore, appLogger)

	// The concrete chat-network protocol client plugs in here; the mock
	// transport stands in until one is wired.
	transportFactory := func(sessionID string) provider.ChatTransport {
		return provider.NewMockChatTransport(appLogger.With("session_id", sessionID), false, 0)
	}

	gatewayHandler := gatewayhttp.NewGatewayHandler(registry, engine, merger, transportFactory, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(gatewayhttp.PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "Gateway service is healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(gatewayhttp.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		gatewayHandler.RegisterRoutes(apiRouter)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GatewayServicePort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown error", "error", err)
	}

	registry.Shutdown(shutdownCtx)

	appLogger.Info("Gateway service stopped")
}
