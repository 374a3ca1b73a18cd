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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-match/internal/cache"
	"github.com/example/carpool-match/internal/config"
	"github.com/example/carpool-match/internal/ingest"
	"github.com/example/carpool-match/internal/logging"
	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/observability"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total profile event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	invalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pool_invalidations_total",
		Help: "Total successful pool cache invalidations",
	})
	invalidationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pool_invalidation_errors_total",
		Help: "Total pool cache invalidations that exhausted their retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, invalidations, invalidationErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rc, err := cache.NewRedisClient(setupCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
	cancel()
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	pool := cache.NewPoolCache(rc, 0)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)
	consume(ctx, r, pool, cfg.RetryAttempts, cfg.RetryDelay, logger)
	logger.Info("shutting down consumer")
}

// MessageReader is the subset of *kafka.Reader the loop uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Invalidator drops the cached candidate pool.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// consume runs until ctx is cancelled. Every valid profile event drops the
// cached pool so the next recommendation request rebuilds it.
func consume(ctx context.Context, r MessageReader, inv Invalidator, attempts int, delay time.Duration, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			if !sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		ev, err := ingest.DecodeProfile(m)
		if err != nil {
			msgsInvalid.Inc()
			observability.ProfileEventsTotal.WithLabelValues("consume", "invalid").Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}

		if err := invalidateWithRetry(ctx, inv, ev, attempts, delay); err != nil {
			invalidationErrors.Inc()
			observability.ProfileEventsTotal.WithLabelValues("consume", "error").Inc()
			logger.Error("pool invalidation failed", "commuter_id", ev.CommuterID, "error", err)
			continue
		}
		invalidations.Inc()
		observability.ProfileEventsTotal.WithLabelValues("consume", "ok").Inc()
		logger.Debug("pool invalidated", "commuter_id", ev.CommuterID, "status", ev.Status)
	}
}

// invalidateWithRetry retries with doubling delay until attempts run out.
func invalidateWithRetry(ctx context.Context, inv Invalidator, ev models.ProfileEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = inv.Invalidate(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("invalidate pool for %s after %d attempts: %w", ev.CommuterID, attempts, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
