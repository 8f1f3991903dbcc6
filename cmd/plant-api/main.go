package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plantbuddy/project/internal/app/plants"
	"github.com/plantbuddy/project/internal/app/reminder"
	"github.com/plantbuddy/project/internal/platform/config"
	"github.com/plantbuddy/project/internal/platform/dbpool"
	"github.com/plantbuddy/project/internal/platform/logging"
	"github.com/plantbuddy/project/internal/platform/metrics"
	"github.com/plantbuddy/project/internal/platform/natsutil"
	"github.com/plantbuddy/project/internal/store/memory"
	"github.com/plantbuddy/project/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(runCtx, cfg, logger); err != nil {
		logger.Error("plant-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var (
		repo  plants.Repository
		tx    reminder.TxRunner
		ready []func(context.Context) error
	)
	switch cfg.Database.Driver {
	case "memory":
		store := memory.New()
		repo, tx = store, store
		logger.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := dbpool.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
		}
		store := postgres.New(pool)
		repo, tx = store, store
		ready = append(ready, store.Ping)
	}

	service := plants.NewService(repo, tx)
	loc := cfg.Care.Location
	service.Ledger.Now = func() time.Time { return time.Now().In(loc) }
	service.Defaults = plants.Defaults{
		WateringDays:    cfg.Care.DefaultWateringDays,
		FertilizingDays: cfg.Care.DefaultFertilizingDays,
	}
	service.Metrics = plants.NewMetrics(metrics.Default)
	service.Logger = logger

	if cfg.NATS.Enabled {
		client, err := natsutil.ConnectWithRetry(ctx, cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		service.Publish = natsutil.JetStreamPublisher{JS: client.JS}.Publish
		ready = append(ready, func(context.Context) error {
			if status := client.Conn.Status(); status != nats.CONNECTED {
				return errors.New("nats is not connected: " + status.String())
			}
			return nil
		})
	}

	handler := plants.NewHandler(service, cfg.Server.CORSOrigin)
	handler.Metrics = metrics.Default.Handler()
	handler.Ready = func(ctx context.Context) error {
		checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer cancel()
		for _, check := range ready {
			if err := check(checkCtx); err != nil {
				return err
			}
		}
		return nil
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("plant-api listening", "addr", cfg.Server.Addr, "store", cfg.Database.Driver, "nats", cfg.NATS.Enabled)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
