package monitoring

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wallpaperdb/internal/logging"
)

// MonitoringConfig represents the monitoring configuration
type MonitoringConfig struct {
	Sentry  SentryConfig
	Logging logging.LoggerConfig
	Health  HealthConfig
}

// HealthConfig represents health monitoring configuration
type HealthConfig struct {
	Enabled       bool
	CheckInterval time.Duration
	Timeout       time.Duration
}

// Metrics holds the Prometheus collectors exercised by the ingest pipeline
// and reconciler loops (spec §4.C, §4.F).
type Metrics struct {
	UploadsAccepted    prometheus.Counter
	UploadsRejected    *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
	ReconcilerRuns      *prometheus.CounterVec
	ReconcilerClaimed   *prometheus.CounterVec
	UploadLatency       prometheus.Histogram
}

func newMetrics() Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics builds the collector set against the given registerer. Production
// wires prometheus.DefaultRegisterer (via newMetrics); tests pass a fresh
// prometheus.NewRegistry() per test function so repeated construction in the
// same test binary never hits promauto's duplicate-registration panic.
func NewMetrics(reg prometheus.Registerer) Metrics {
	f := promauto.With(reg)
	return Metrics{
		UploadsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "wallpaperdb_uploads_accepted_total",
			Help: "Total uploads that completed validation and were persisted as stored.",
		}),
		UploadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallpaperdb_uploads_rejected_total",
			Help: "Total uploads rejected, partitioned by rejection reason.",
		}, []string{"reason"}),
		RateLimitRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "wallpaperdb_rate_limit_rejections_total",
			Help: "Total uploads rejected by the per-user rate limiter.",
		}),
		ReconcilerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallpaperdb_reconciler_runs_total",
			Help: "Total reconciler sweeps, partitioned by reconciler name.",
		}, []string{"reconciler"}),
		ReconcilerClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallpaperdb_reconciler_claimed_total",
			Help: "Total rows claimed and acted on by a reconciler sweep.",
		}, []string{"reconciler"}),
		UploadLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallpaperdb_upload_duration_seconds",
			Help:    "End-to-end duration of the upload pipeline from intent to stored.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// MonitoringService provides comprehensive monitoring capabilities
type MonitoringService struct {
	logger  *logging.StructuredLogger
	sentry  *SentryMonitor
	health  *HealthMonitor
	metrics Metrics
	config  MonitoringConfig
}

// NewMonitoringService creates a new monitoring service
func NewMonitoringService(config MonitoringConfig, logger *logging.StructuredLogger, db *sql.DB, redisClient *redis.Client, natsConn *nats.Conn) (*MonitoringService, error) {
	sentryMonitor, err := NewSentryMonitor(config.Sentry)
	if err != nil {
		logger.Error(context.Background(), "failed to initialize sentry", map[string]interface{}{
			"error": err.Error(),
		})
		sentryMonitor = &SentryMonitor{}
	}

	health := NewHealthMonitor(config.Sentry.Release, config.Sentry.Environment)
	if db != nil {
		health.AddChecker("database", &DatabaseHealthChecker{db: db})
	}
	if redisClient != nil {
		health.AddChecker("redis", &RedisHealthChecker{client: redisClient})
	}
	if natsConn != nil {
		health.AddChecker("eventbus", &EventBusHealthChecker{Conn: natsConn})
	}
	health.AddChecker("system", &SystemHealthChecker{})

	service := &MonitoringService{
		logger:  logger,
		sentry:  sentryMonitor,
		health:  health,
		metrics: newMetrics(),
		config:  config,
	}

	if config.Health.Enabled {
		go service.startHealthMonitoring()
	}

	return service, nil
}

func (m *MonitoringService) Logger() *logging.StructuredLogger { return m.logger }
func (m *MonitoringService) Sentry() *SentryMonitor             { return m.sentry }
func (m *MonitoringService) Health() *HealthMonitor             { return m.health }
func (m *MonitoringService) Metrics() Metrics                   { return m.metrics }

// CaptureError logs the error and forwards it to Sentry.
func (m *MonitoringService) CaptureError(ctx context.Context, err error, fields map[string]interface{}) {
	m.logger.Error(ctx, "error captured", map[string]interface{}{
		"error":  err.Error(),
		"fields": fields,
	})
	if m.sentry != nil {
		m.sentry.CaptureError(ctx, err, fields)
	}
}

// startHealthMonitoring periodically logs unhealthy components; unlike the
// teacher's version this never pages anyone, since the alerting channel
// (Telegram) was dropped for this domain (DESIGN.md).
func (m *MonitoringService) startHealthMonitoring() {
	ticker := time.NewTicker(m.config.Health.CheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.Health.Timeout)
		health := m.health.GetHealth(ctx)

		for _, check := range health.Checks {
			if check.Status == HealthStatusUnhealthy {
				m.logger.Warn(ctx, "health check unhealthy", map[string]interface{}{
					"component": check.Name,
					"message":   check.Message,
				})
			}
		}

		cancel()
	}
}

// Close closes the monitoring service
func (m *MonitoringService) Close() {
	if m.sentry != nil {
		m.sentry.Close()
	}
}

// GetDefaultMonitoringConfig returns default monitoring configuration
func GetDefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		Sentry: GetDefaultSentryConfig(),
		Health: HealthConfig{
			Enabled:       true,
			CheckInterval: 30 * time.Second,
			Timeout:       10 * time.Second,
		},
	}
}
