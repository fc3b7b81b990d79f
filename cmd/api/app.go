package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/campusquest/backend/internal/config"
	"github.com/campusquest/backend/internal/expiry"
	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/metrics"
	"github.com/campusquest/backend/internal/notify"
	"github.com/campusquest/backend/internal/store"
	"github.com/campusquest/backend/internal/store/memory"
	"github.com/campusquest/backend/internal/store/postgres"
)

// app holds the components every subcommand shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	pg      *postgres.Store // nil with the memory driver
	metrics *metrics.Metrics
	ledger  *ledger.Service
	sweeper *expiry.Sweeper
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		a.store = memory.New()
		logger.Warn("Using the in-memory store; data is lost on restart")
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		if err := pg.Pool().Ping(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("cannot reach PostgreSQL (is it running?): %w", err)
		}
		logger.Info("Connected to PostgreSQL database successfully!")
		a.store, a.pg = pg, pg
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	a.ledger = ledger.NewService(nil, a.metrics)
	a.sweeper = expiry.NewSweeper(a.store, a.ledger, a.metrics, logger, nil)
	return a, nil
}

func (a *app) Close() { a.store.Close() }

// migrate applies the store schema and the queue's own tables.
func (a *app) migrate(ctx context.Context) error {
	if a.pg == nil {
		return nil
	}
	applied, err := a.pg.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("store migrations: %w", err)
	}
	a.logger.Info("Store migrations applied", "applied", applied)

	migrator, err := rivermigrate.New(riverpgxv5.New(a.pg.Pool()), nil)
	if err != nil {
		return fmt.Errorf("create River migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("River migrate up: %w", err)
	}
	a.logger.Info("River migrations applied")
	return nil
}

// dispatcher combines the configured delivery channels.
func (a *app) dispatcher() notify.Dispatcher {
	var mux notify.Mux
	if a.cfg.NotifyWebhookURL != "" {
		mux = append(mux, notify.NewWebhook(a.cfg.NotifyWebhookURL))
	}
	if a.pushEnabled() {
		mux = append(mux, notify.NewOneSignal(a.cfg.OneSignalAppID, a.cfg.OneSignalRESTAPIKey))
	}
	if len(mux) == 0 {
		return notify.Nop{}
	}
	return mux
}

func (a *app) pushEnabled() bool {
	return a.cfg.EnableNotifications && a.cfg.OneSignalAppID != "" && a.cfg.OneSignalRESTAPIKey != ""
}
