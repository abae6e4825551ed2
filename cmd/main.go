package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/board-service/config"
	"github.com/cwrk-planet/board-service/internal/janitor"
	"github.com/cwrk-planet/board-service/internal/postgres"
	"github.com/cwrk-planet/board-service/internal/presence"
	"github.com/cwrk-planet/board-service/internal/registry"
	"github.com/cwrk-planet/board-service/internal/relay"
	httpx "github.com/cwrk-planet/board-service/internal/transport/http"
	"github.com/cwrk-planet/board-service/internal/transport/ws"
	"github.com/cwrk-planet/logger/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	// --- config ---
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting board-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	sqlDB := db.SQLDB()
	if err := postgres.RunMigrations(cfg.Postgres.MigrationsDir, sqlDB); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	_ = sqlDB.Close()

	// --- core wiring ---
	roomRepo := postgres.NewRoomRepository(db.Pool)
	reg := registry.New()
	rel := relay.New(reg, roomRepo)
	pm := presence.NewManager(reg, rel, roomRepo)

	// --- WS gateway ---
	wsServer := ws.NewServer(pm, rel)

	// --- HTTP ---
	handler := httpx.NewHandler(roomRepo)
	router := httpx.NewRouter(handler, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- room reaper ---
	reapCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go janitor.New(roomRepo, reg, cfg.ReapInterval(), cfg.RoomMaxAge()).Run(reapCtx)

	// --- run ---
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
