package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appchat "github.com/nomadictuba2005/claude-code-api/application/chat"
	"github.com/nomadictuba2005/claude-code-api/infrastructure/claudecli"
	infrapersistence "github.com/nomadictuba2005/claude-code-api/infrastructure/persistence"
	httpiface "github.com/nomadictuba2005/claude-code-api/interfaces/http"
	"github.com/nomadictuba2005/claude-code-api/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *Options) error {
	cfg, err := config.LoadYAML(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configureLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("address", app.server.Addr).Info("Server starting")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}
	return nil
}

func configureLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetReportCaller(cfg.ReportCaller)
}

// app holds the wired server and whatever must be released on shutdown
type app struct {
	server    *http.Server
	breaker   *claudecli.CircuitBreakerProvider
	dbManager *infrapersistence.DatabaseManager
	processor *infrapersistence.EventProcessor
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	invoker := claudecli.NewInvoker(cfg.InvokerConfig())
	breaker := claudecli.NewCircuitBreakerProvider(invoker, cfg.CircuitBreaker)
	normalizer := claudecli.NewNormalizer()
	probe := claudecli.NewHealthProbe(invoker, cfg.CLI.ProbeTTL)

	logrus.WithFields(logrus.Fields{
		"port":               cfg.Server.Port,
		"host":               cfg.Server.Host,
		"command":            cfg.CLI.Command,
		"timeout":            invoker.Timeout(),
		"default_model":      catalog.DefaultAlias(),
		"enable_persistence": cfg.Database.EnablePersistence,
		"circuit_breaker":    cfg.CircuitBreaker.Enabled,
	}).Info("Starting Claude Code API")

	a := &app{breaker: breaker}
	var router *httpiface.Router

	if cfg.Database.EnablePersistence {
		a.dbManager = infrapersistence.NewDatabaseManager()
		if err := a.dbManager.Connect(ctx, cfg.Database.Driver, cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := a.dbManager.Migrate(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}

		requestRepo, metricsRepo := a.dbManager.GetRepositories()

		a.processor = infrapersistence.NewEventProcessor(requestRepo, cfg.Database.Workers, cfg.Database.BufferSize)
		// Workers outlive the signal context; Close drains them after shutdown
		if err := a.processor.Start(context.WithoutCancel(ctx)); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to start event processor: %w", err)
		}
		tracker := infrapersistence.NewRequestTracker(a.processor)

		service := appchat.NewService(breaker, normalizer, catalog, tracker)
		router = httpiface.NewRouterWithPersistence(service, cfg.Server.CorsOrigins, probe,
			requestRepo, metricsRepo, a.dbManager, a.processor)

		logrus.WithField("driver", cfg.Database.Driver).Info("Persistence layer initialized successfully")
	} else {
		service := appchat.NewServiceWithoutTracking(breaker, normalizer, catalog)
		router = httpiface.NewRouter(service, cfg.Server.CorsOrigins, probe)

		logrus.Info("Running without persistence layer")
	}
	router.WithCircuitReporter(breaker)

	a.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A completion may take the whole CLI timeout
		WriteTimeout: invoker.Timeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// Close stops the event processor, then the database
func (a *app) Close() {
	if a.processor != nil {
		if err := a.processor.Stop(); err != nil {
			logrus.WithError(err).Error("Failed to stop event processor")
		}
		a.processor = nil
	}
	if a.dbManager != nil {
		if err := a.dbManager.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
		a.dbManager = nil
	}
}
