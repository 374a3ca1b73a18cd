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

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/example/carpool-match/internal/cache"
	"github.com/example/carpool-match/internal/config"
	"github.com/example/carpool-match/internal/dispatch"
	"github.com/example/carpool-match/internal/groups"
	httpapi "github.com/example/carpool-match/internal/http"
	"github.com/example/carpool-match/internal/ingest"
	"github.com/example/carpool-match/internal/logging"
	"github.com/example/carpool-match/internal/matcher"
	"github.com/example/carpool-match/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nrApp := newRelicApp(cfg.NewRelic, logger)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		store      storage.CommuterStore
		groupStore storage.GroupStore
		ready      httpapi.Pinger
	)
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(setupCtx, cfg.PGDSN, nrApp != nil)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if err := ps.Migrate(setupCtx); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("schema migrated")
		}
		store, groupStore, ready = ps, ps.Groups(), ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
		groupStore = storage.NewMemoryGroupStore()
	}

	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisClient(setupCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nrApp)
		if err != nil {
			logger.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		store = cache.NewCachedStore(store, cache.NewPoolCache(rc, cfg.PoolCacheTTL), logger)
		logger.Info("pool cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.PoolCacheTTL.String())
	}

	wsreg := dispatch.NewWSRegistry(logger)
	svc := &matcher.Service{Store: store, Feed: wsreg, Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		svc.Publisher = kp
		logger.Info("profile events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	gsvc := &groups.Service{Groups: groupStore, Commuters: store, Logger: logger}
	api := httpapi.NewServer(svc, gsvc, wsreg, logger, nrApp)
	api.Ready = ready

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("carpool-match listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server exited")
}

func newRelicApp(cfg config.NewRelicConfig, logger *slog.Logger) *newrelic.Application {
	if !cfg.Enabled {
		return nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		logger.Warn("new relic disabled", "error", err)
		return nil
	}
	logger.Info("new relic enabled", "app", cfg.AppName)
	return app
}
