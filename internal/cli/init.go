// Package cli provides common CLI initialization utilities shared by the
// fintrack subcommands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/config"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/mutation"
	"fintrack/internal/query"
	"fintrack/internal/sheets"
	"fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

// SetupLogger initializes structured logging at level and sets it as the
// default logger.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Component = log.ComponentCLI
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.ErrorContext(context.Background(), "Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// App is the wired client: cache, API, mutation executor and ledger, plus
// the optional persistence and invalidation bus.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Store   *query.Store
	Ledger  *ledger.Ledger
	Cache   *storage.CacheRepository
	Bus     *amqp.Client
	manager *query.Manager
}

// NewApp builds the client from cfg. The persisted cache is hydrated when
// CacheDBPath is set; the bus is connected when AMQPURL is set. A bus that
// cannot be reached is logged and skipped.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	store := query.NewStore(query.Options{
		StaleTime:  cfg.CacheStaleTime,
		GCTime:     cfg.CacheGCTime,
		MaxEntries: cfg.CacheMaxEntries,
		Logger:     logger,
	})
	app := &App{Config: cfg, Logger: logger, Store: store}

	if cfg.CacheDBPath != "" {
		repo, err := storage.NewCacheRepository(cfg.CacheDBPath)
		if err != nil {
			return nil, fmt.Errorf("open cache database: %w", err)
		}
		storage.RegisterDefaults(repo)
		if _, err := repo.Hydrate(ctx, store); err != nil {
			logger.WarnContext(ctx, "Failed to hydrate cache", "error", err, "path", cfg.CacheDBPath)
		}
		app.Cache = repo
	}

	var settler mutation.Settler
	if cfg.AMQPURL != "" {
		bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.WarnContext(ctx, "Invalidation bus unavailable", "error", err)
		} else {
			app.Bus = bus
			settler = bus
		}
	}

	client, err := api.New(api.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	})
	if err != nil {
		if cerr := app.Close(ctx); cerr != nil {
			logger.WarnContext(ctx, "Shutdown incomplete", "error", cerr)
		}
		return nil, err
	}

	exec := mutation.NewExecutor(store, settler, logger)
	app.Ledger = ledger.New(client, exec, ledger.Options{
		EditWindow:         cfg.EditWindow,
		ClientSideReversal: cfg.ClientSideReversal,
		Logger:             logger,
	})

	app.manager = query.NewManager(logger)
	app.manager.Register(store)
	app.manager.StartCleanup(cfg.CacheGCTime)
	return app, nil
}

// ReportWriter returns the configured report export target.
func (a *App) ReportWriter(ctx context.Context) (sheets.ReportWriter, error) {
	switch a.Config.ReportBackend {
	case config.ReportBackendSheets:
		client, err := google.New(ctx, google.Config{
			SpreadsheetID: a.Config.GoogleSpreadsheetID,
			SheetName:     a.Config.ReportSheetName,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return memory.New(), nil
	}
}

// Close persists the cache and releases every connection.
func (a *App) Close(ctx context.Context) error {
	var result *multierror.Error
	if a.manager != nil {
		a.manager.Stop()
		a.manager = nil
	}
	if a.Cache != nil {
		if _, err := a.Cache.Persist(ctx, a.Store); err != nil {
			result = multierror.Append(result, fmt.Errorf("persist cache: %w", err))
		}
		if err := a.Cache.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		a.Cache = nil
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close bus: %w", err))
		}
		a.Bus = nil
	}
	return result.ErrorOrNil()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.InfoContext(ctx, "Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.InfoContext(context.Background(), "Shutdown complete")
		case <-time.After(timeout):
			logger.WarnContext(context.Background(), "Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
