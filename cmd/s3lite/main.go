package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/api"
	"github.com/tendant/s3lite/pkg/s3lite/config"
	"github.com/tendant/s3lite/pkg/s3lite/logging"
	"github.com/tendant/s3lite/pkg/s3lite/metrics"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
	"github.com/tendant/s3lite/pkg/s3lite/readiness"
	"github.com/tendant/s3lite/pkg/s3lite/repo/postgres"
	"github.com/tendant/s3lite/pkg/s3lite/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("s3lite exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	waiter := readiness.New(logger)
	waiter.Attempts = cfg.Database.MaxAttempts
	waiter.Interval = cfg.Database.RetryInterval

	// Metadata store
	repo, closeRepo, err := cfg.BuildRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	if err := waiter.Wait(ctx, "metadata store", repo.Ping); err != nil {
		return err
	}
	if cfg.UsesPostgres() {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}

	// Blob store
	store, closeStore, err := cfg.BuildBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to build storage backend %s: %w", cfg.Storage.Backend, err)
	}
	defer closeStore()

	if err := waiter.Wait(ctx, "blob store", store.Ping); err != nil {
		return err
	}

	m := metrics.New()
	signer := presigned.New(presigned.WithSecretKey(cfg.PresignSecret))

	svc, err := s3lite.New(
		s3lite.WithRepository(repo),
		s3lite.WithBlobStore(store),
		s3lite.WithUploader(cfg.BuildUploader()),
		s3lite.WithSigner(signer),
		s3lite.WithPublicBaseURL(cfg.PublicBaseURL),
		s3lite.WithEventSink(m),
		s3lite.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	if cfg.Sweep.Schedule != "" {
		sweeper := sweep.New(repo, store,
			sweep.WithGrace(cfg.Sweep.Grace),
			sweep.WithLogger(logger),
			sweep.WithReportHook(func(r sweep.Report) { m.ObserveSweep(r.Scanned, r.Deleted, r.Failed) }),
		)
		if err := sweeper.Start(ctx, cfg.Sweep.Schedule); err != nil {
			return err
		}
		defer sweeper.Stop()
		logger.Info("orphan sweeper scheduled", "schedule", cfg.Sweep.Schedule, "grace", cfg.Sweep.Grace)
	}

	authorizer := presigned.NewAuthorizer(signer, cfg.APIKey, presigned.WithLogger(logger))
	server := api.NewServer(svc, authorizer,
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("s3lite starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"storage", cfg.Storage.Backend,
			"postgres", cfg.UsesPostgres(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}
