package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/campusquest/backend/internal/auth"
	"github.com/campusquest/backend/internal/disputes"
	"github.com/campusquest/backend/internal/escrow"
	"github.com/campusquest/backend/internal/expiry"
	"github.com/campusquest/backend/internal/handlers"
	"github.com/campusquest/backend/internal/middleware"
	"github.com/campusquest/backend/internal/notify"
	"github.com/campusquest/backend/internal/router"
	"github.com/campusquest/backend/internal/scheduler"
	"github.com/campusquest/backend/internal/validation"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.migrate(ctx); err != nil {
		return err
	}

	// Background work: river with PostgreSQL, in-process otherwise.
	var (
		notifier notify.Notifier
		shutdown []func(context.Context)
	)
	if a.pg != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, notify.NewDispatchWorker(a.dispatcher()))
		river.AddWorker(workers, expiry.NewSweepWorker(a.sweeper))

		riverClient, err := river.NewClient(riverpgxv5.New(a.pg.Pool()), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 10},
			},
			Workers:      workers,
			PeriodicJobs: []*river.PeriodicJob{expiry.PeriodicJob(cfg.SweepInterval)},
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("create River client: %w", err)
		}
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("start River client: %w", err)
		}
		shutdown = append(shutdown, func(ctx context.Context) {
			if err := riverClient.Stop(ctx); err != nil {
				logger.Error("River client stop", "error", err)
			}
		})
		notifier = notify.NewQueue(func(ctx context.Context, args notify.DispatchArgs) error {
			_, err := riverClient.Insert(ctx, args, nil)
			return err
		}, logger)
	} else {
		async := notify.NewAsync(a.dispatcher(), logger)
		sched := scheduler.New(logger)
		sched.AddTicker("expiry-sweep", cfg.SweepInterval, true, func(ctx context.Context) {
			if _, err := a.sweeper.Sweep(ctx); err != nil {
				logger.Error("expiry sweep", "error", err)
			}
		})
		shutdown = append(shutdown, func(context.Context) {
			sched.Stop()
			async.Wait()
		})
		notifier = async
	}

	authSvc := auth.NewService(a.store, a.ledger, cfg.JWTSecret, cfg.JWTTTL, cfg.StartingBalanceCents)
	engine := escrow.NewEngine(a.store, a.ledger, escrow.Options{
		DuplicateWindow:    cfg.DuplicatePostWindow,
		BroadcastNewQuests: a.pushEnabled(),
		Notifier:           notifier,
		Metrics:            a.metrics,
		Logger:             logger,
	})
	resolver := disputes.NewResolver(a.store, a.ledger, disputes.Options{
		AdminHandles: cfg.AdminHandles,
		AdminEmail:   cfg.AdminEmail,
		Notifier:     notifier,
		Metrics:      a.metrics,
		Logger:       logger,
	})
	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("compile request schemas: %w", err)
	}
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	handler := router.New(router.Deps{
		Auth:      auth.NewHandler(authSvc, logger),
		Quests:    &handlers.QuestHandler{Engine: engine, Logger: logger},
		Disputes:  &handlers.DisputeHandler{Resolver: resolver, Logger: logger},
		Accounts:  &handlers.AccountHandler{Store: a.store, Ledger: a.ledger, Logger: logger},
		Validator: validator,
		Tokens:    authSvc,
		RateLimit: middleware.RateLimit(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, trustedProxies),
		Metrics:   a.metrics.Handler(),
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(handler)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + strconv.Itoa(cfg.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
	for _, fn := range shutdown {
		fn(stopCtx)
	}
	return nil
}
