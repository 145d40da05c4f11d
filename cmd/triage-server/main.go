package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loan-triage/internal/common/config"
	"loan-triage/internal/common/database"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/creditinfo"
	"loan-triage/internal/gravity"
	"loan-triage/internal/models"
	"loan-triage/internal/search"
	"loan-triage/internal/store"
	syncpkg "loan-triage/internal/sync"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting triage server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry (report cache, optional) ---
	var redisClient *database.RedisClient
	if cfg.Database.Redis.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Init Elasticsearch with retry (search mirror, optional) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 10, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Bootstrap storage ---
	st := store.New(pg.DB, log)
	if err := st.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema bootstrap failed", zap.Error(err))
	}
	if err := st.EnsureSettings(ctx); err != nil {
		zapLog.Fatal("settings bootstrap failed", zap.Error(err))
	}
	if err := st.EnsureAdminUser(ctx); err != nil {
		zapLog.Fatal("admin bootstrap failed", zap.Error(err))
	}

	// --- Sync reconciler ---
	var entrySource syncpkg.EntrySource
	if cfg.Gravity.Configured() {
		entrySource = gravity.NewClient(cfg.Gravity)
		zapLog.Info("Gravity Forms source configured", zap.String("formId", cfg.Gravity.FormID))
	} else {
		zapLog.Warn("Gravity Forms source not configured, batch sync disabled")
	}

	var verifier syncpkg.Verifier
	if cfg.WordPress.Configured() {
		verifier = creditinfo.NewClient(cfg.WordPress)
	}

	reconciler := syncpkg.NewReconciler(entrySource, verifier, st, log)
	if esClient != nil {
		reconciler.SetIndexer(search.NewMirror(esClient.Client, log))
	}
	scheduler := syncpkg.NewScheduler(func(runCtx context.Context) {
		if _, err := reconciler.RunOnce(runCtx); err != nil {
			log.Error("scheduled sync failed", map[string]interface{}{"error": err.Error()})
		}
	}, log)
	defer scheduler.Stop()

	if reconciler.Configured() {
		interval := models.DefaultSyncInterval
		if stored, err := st.GetSettings(ctx); err == nil && stored != nil {
			interval = models.ClampSyncInterval(stored.SyncInterval)
		}
		scheduler.Start(interval)

		// One pass right away so a fresh deployment is not empty until the
		// first tick.
		go func() {
			if _, err := reconciler.RunOnce(ctx); err != nil {
				log.Error("initial sync failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	// --- Metrics endpoint ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		zapLog.Info("metrics endpoint listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := http.ListenAndServe(cfg.App.MetricsAddr, mux); err != nil {
			zapLog.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	zapLog.Info("Triage server is up")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zapLog.Info("Shutting down...", zap.String("signal", sig.String()))
}
