// Command ingestiond runs the wallpaper ingestion core: the HTTP upload
// surface, the reconciler scheduler, and the monitoring/health endpoints
// (spec §1, §4). Multiple instances of this binary run concurrently behind
// a load balancer; every stateful decision is pushed down into Postgres row
// locks and the Redis-backed rate limiter so instances never coordinate
// directly with each other.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"wallpaperdb/internal/config"
	"wallpaperdb/internal/dbutil"
	"wallpaperdb/internal/eventbus"
	"wallpaperdb/internal/httpapi"
	"wallpaperdb/internal/ingest"
	"wallpaperdb/internal/kv"
	"wallpaperdb/internal/logging"
	"wallpaperdb/internal/monitoring"
	"wallpaperdb/internal/objectstore"
	"wallpaperdb/internal/ratelimit"
	"wallpaperdb/internal/reconcile"
	"wallpaperdb/internal/store"
	"wallpaperdb/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.NewStructuredLogger(logging.LoggerConfig{
		Level:       logging.ParseLogLevel(cfg.Monitoring.LogLevel),
		Service:     "wallpaperdb-ingestion",
		Environment: cfg.Monitoring.NodeEnv,
	})
	logger.Info(context.Background(), "starting wallpaper ingestion core", nil)

	db, err := dbutil.Connect(cfg.Database.URL, 25, 5, 5*time.Minute)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		logger.Info(context.Background(), "running database migrations", nil)
		if err := dbutil.RunMigrations(db, cfg.Database.MigrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	// kvStore is always constructed (the go-redis client dials lazily) so the
	// rate limiter always has a non-nil Store to call; if Redis is disabled
	// or unreachable, every call degrades through the limiter's fail-open
	// path rather than panicking on a nil interface.
	kvStore := kv.New(kv.Config{Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)})
	defer kvStore.Close()
	if cfg.Redis.Enabled {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := kvStore.Ping(pingCtx); err != nil {
			logger.Warn(context.Background(), "redis unreachable at startup, rate limiter will fail open", map[string]interface{}{"error": err.Error()})
		}
		cancel()
	}

	objStore, err := objectstore.New(context.Background(), objectstore.Config{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		AccessKeyID:    cfg.S3.AccessKeyID,
		SecretKey:      cfg.S3.SecretAccessKey,
		Bucket:         cfg.S3.Bucket,
		ForcePathStyle: cfg.S3.UsePathStyle,
	})
	if err != nil {
		log.Fatalf("failed to initialize object store: %v", err)
	}

	bus, err := eventbus.New(eventbus.Config{
		URL:            cfg.NATS.URL,
		Stream:         cfg.NATS.Stream,
		UploadSubject:  eventbus.EventWallpaperUploaded,
		VariantSubject: eventbus.EventWallpaperVariantReady,
		DurableName:    "wallpaperdb-ingestiond",
	}, logger)
	if err != nil {
		log.Fatalf("failed to initialize event bus: %v", err)
	}
	defer bus.Close()

	monitorCfg := monitoring.MonitoringConfig{
		Sentry: monitoring.SentryConfig{
			DSN:              cfg.Monitoring.SentryDSN,
			Environment:      cfg.Monitoring.NodeEnv,
			Release:          "1.0.0",
			Debug:            cfg.Monitoring.NodeEnv == "development",
			SampleRate:       1.0,
			TracesSampleRate: 0.1,
			AttachStacktrace: true,
			MaxBreadcrumbs:   50,
		},
		Logging: logging.LoggerConfig{
			Level:       logging.ParseLogLevel(cfg.Monitoring.LogLevel),
			Service:     "wallpaperdb-ingestion",
			Environment: cfg.Monitoring.NodeEnv,
		},
		Health: monitoring.HealthConfig{
			Enabled:       true,
			CheckInterval: 30 * time.Second,
			Timeout:       10 * time.Second,
		},
	}

	var healthRedisClient *redis.Client
	if cfg.Redis.Enabled {
		healthRedisClient = kvStore.Client()
	}

	monitor, err := monitoring.NewMonitoringService(monitorCfg, logger, db, healthRedisClient, bus.Conn())
	if err != nil {
		log.Fatalf("failed to initialize monitoring service: %v", err)
	}
	defer monitor.Close()

	limiter := ratelimit.New(kvStore, ratelimit.Config{
		MaxUploads: cfg.RateLimit.Max,
		Window:     time.Duration(cfg.RateLimit.WindowMs) * time.Millisecond,
	}, logger)

	validationCfg := validation.Config{
		MaxFileSizeBytes: cfg.Validation.MaxFileSizeBytes,
		MinWidth:         cfg.Validation.MinWidth,
		MinHeight:        cfg.Validation.MinHeight,
		MaxWidth:         cfg.Validation.MaxWidth,
		MaxHeight:        cfg.Validation.MaxHeight,
	}

	relStore := store.NewPostgresStore(db)

	pipeline := ingest.New(relStore, objStore, bus, limiter, validationCfg, cfg.S3.Bucket, logger, monitor.Metrics())

	scheduler := reconcile.NewScheduler(
		reconcile.Config{
			StuckUploadThreshold:    cfg.Reconcile.StuckUploadTimeout,
			MissingEventThreshold:   cfg.Reconcile.MissingEventTimeout,
			OrphanedIntentThreshold: cfg.Reconcile.OrphanedIntentTimeout,
			SweepInterval:           time.Duration(cfg.Reconcile.IntervalMs) * time.Millisecond,
			BlobSweepInterval:       time.Duration(cfg.Reconcile.MinioCleanupIntervalMs) * time.Millisecond,
			BatchSize:               cfg.Reconcile.ClaimBatchLimit,
		},
		logger,
		monitor.Metrics(),
		[]reconcile.Reconciler{
			reconcile.NewStuckUploadsReconciler(relStore, objStore, cfg.Reconcile.StuckUploadTimeout, cfg.Reconcile.ClaimBatchLimit, cfg.S3.Bucket),
			reconcile.NewMissingEventsReconciler(relStore, bus, cfg.Reconcile.MissingEventTimeout, cfg.Reconcile.ClaimBatchLimit),
			reconcile.NewOrphanedIntentsReconciler(relStore, cfg.Reconcile.OrphanedIntentTimeout, cfg.Reconcile.ClaimBatchLimit),
		},
		reconcile.NewOrphanedBlobsReconciler(relStore, objStore, cfg.Reconcile.ClaimBatchLimit),
	)

	runCtx, cancelRun := context.WithCancel(context.Background())
	scheduler.Start(runCtx)

	uploadHandler := httpapi.NewUploadHandler(pipeline, logger)
	router := httpapi.NewRouter(cfg.Server.GinMode, uploadHandler, monitoring.NewHealthHandler(monitor.Health()))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Handler(),
	}

	go func() {
		logger.Info(context.Background(), "server starting", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(context.Background(), "shutting down", nil)
	router.Drain()
	scheduler.Stop()
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	logger.Info(context.Background(), "server exited", nil)
}
