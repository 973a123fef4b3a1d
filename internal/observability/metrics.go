package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver so callers
// never need to check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	outcomes          *prometheus.CounterVec
	masteryUpdates    *prometheus.CounterVec
	masteryAfter      prometheus.Histogram
	thresholdAdjusts  *prometheus.CounterVec
	improvements      *prometheus.CounterVec
	reestimations     *prometheus.CounterVec
	reviewsScheduled  prometheus.Counter
	storeOps          *prometheus.HistogramVec
	activityDurations *prometheus.HistogramVec
	jobRuns           *prometheus.CounterVec

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		instance = NewMetrics(reg)
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mastery_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "mastery_api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_outcomes_total",
			Help: "Learning outcomes processed by result.",
		}, []string{"outcome"}),
		masteryUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_bkt_updates_total",
			Help: "BKT updates by correctness and mastered flag.",
		}, []string{"correct", "mastered"}),
		masteryAfter: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mastery_bkt_probability",
			Help:    "Mastery probability after each update.",
			Buckets: prometheus.LinearBuckets(0.05, 0.1, 10),
		}),
		thresholdAdjusts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_threshold_adjustments_total",
			Help: "Struggle threshold adjustment attempts by result.",
		}, []string{"adjusted", "reason"}),
		improvements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_pending_improvements_total",
			Help: "Improvement records queued by type.",
		}, []string{"type"}),
		reestimations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_reestimations_total",
			Help: "Parameter re-estimation runs by status.",
		}, []string{"status"}),
		reviewsScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "mastery_reviews_scheduled_total",
			Help: "Forgetting curve updates that scheduled a review.",
		}),
		storeOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mastery_store_operation_duration_seconds",
			Help:    "Persistent store latency by backend, operation and status.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"backend", "op", "status"}),
		activityDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mastery_activity_duration_seconds",
			Help:    "Workflow activity duration by name and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"activity", "status"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastery_job_runs_total",
			Help: "Scheduled maintenance job runs by job and status.",
		}, []string{"job", "status"}),
		pgStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mastery_postgres_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "mastery_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "mastery_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveMasteryUpdate(correct, mastered bool, after float64) {
	if m == nil {
		return
	}
	m.masteryUpdates.WithLabelValues(strconv.FormatBool(correct), strconv.FormatBool(mastered)).Inc()
	m.masteryAfter.Observe(after)
}

func (m *Metrics) IncThresholdAdjustment(adjusted bool, reason string) {
	if m == nil {
		return
	}
	m.thresholdAdjusts.WithLabelValues(strconv.FormatBool(adjusted), reason).Inc()
}

func (m *Metrics) IncPendingImprovement(kind string) {
	if m == nil {
		return
	}
	m.improvements.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncReestimation(status string) {
	if m == nil {
		return
	}
	m.reestimations.WithLabelValues(status).Inc()
}

func (m *Metrics) IncReviewScheduled() {
	if m == nil {
		return
	}
	m.reviewsScheduled.Inc()
}

func (m *Metrics) ObserveStoreOp(backend, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(backend, op, status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveActivity(activity, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.activityDurations.WithLabelValues(activity, status).Observe(dur.Seconds())
}

func (m *Metrics) IncJobRun(job, status string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: database stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
