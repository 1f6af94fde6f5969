// Package runtime wires configuration, stores, external clients and the
// HTTP server into a runnable application.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/chainsight-labs/chainsight/internal/app"
	"github.com/chainsight-labs/chainsight/internal/app/httpapi"
	"github.com/chainsight-labs/chainsight/internal/app/services/insights"
	"github.com/chainsight-labs/chainsight/internal/app/storage/postgres"
	"github.com/chainsight-labs/chainsight/internal/config"
	"github.com/chainsight-labs/chainsight/internal/ledger"
	"github.com/chainsight-labs/chainsight/internal/middleware"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

// Application owns the process-level dependencies and the HTTP server.
type Application struct {
	cfg    config.Config
	log    *logger.Logger
	core   *app.Application
	server *http.Server
	db     *sqlx.DB
	redis  *redis.Client
}

// NewApplication constructs the application from configuration.
func NewApplication(cfg config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	stores := app.Stores{}
	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = openDatabase(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := postgres.Migrate(db.DB); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		stores.Shipments = postgres.New(db)
	} else {
		log.Warn("DATABASE_DSN not set; running without database persistence")
	}

	ledgerClient := ledger.NewClient(ledger.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		SignerKey:       cfg.Ledger.SignerKey,
		Timeout:         cfg.Ledger.Timeout.Std(),
		ConfirmTimeout:  cfg.Ledger.ConfirmTimeout.Std(),
	}, log)
	if !ledgerClient.Enabled() {
		log.Warn("ledger not fully configured; shipments will not be recorded on chain")
	}

	opts := app.Options{
		Ledger:        ledgerClient,
		AuditSchedule: cfg.Audit.SweepSchedule,
	}

	if cfg.Insights.ProviderURL != "" {
		opts.Provider = insights.NewHTTPProvider(insights.ProviderConfig{
			URL:     cfg.Insights.ProviderURL,
			APIKey:  cfg.Insights.APIKey,
			Timeout: cfg.Insights.Timeout.Std(),
		}, log)
	} else {
		log.Warn("INSIGHTS_PROVIDER_URL not set; serving locally derived insights")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts.Cache = insights.NewRedisCache(redisClient, cfg.Insights.CacheTTL.Std(), log)
	}

	core, err := app.New(stores, opts, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build application: %w", err)
	}

	handler := httpapi.NewHandler(core)
	handler.Use(middleware.Logging(log))
	handler.Use(middleware.Metrics())

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst, log)
	cors := middleware.NewCORS(cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      cors.Handler(limiter.Handler(handler)),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	return &Application{
		cfg:    cfg,
		log:    log,
		core:   core,
		server: server,
		db:     db,
		redis:  redisClient,
	}, nil
}

// Run starts the background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.core.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the HTTP server and stops background services and
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.core.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Std() > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
