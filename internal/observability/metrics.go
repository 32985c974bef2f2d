package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/platform/envutil"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// Metrics is an in-process registry rendered in the Prometheus text format.
// Every method is safe on a nil receiver so callers never branch on METRICS_ENABLED.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps       *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	externalCalls   *CounterVec
	externalLatency *HistogramVec

	webhookEvents      *CounterVec
	orderTransitions   *CounterVec
	creditsGranted     *Counter
	generationOutcomes *CounterVec

	ordersByStatus *GaugeVec
	pgStats        *GaugeVec
	redisUp        *Gauge
	redisPing      *Gauge
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

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Init returns nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

// NewMetrics builds an unregistered instance; tests use it directly.
func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("atelier_api_requests_total", "HTTP requests by method, route and status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("atelier_api_request_duration_seconds", "HTTP request latency.", []string{"method", "route", "status"}, nil),
		apiInflight: NewGauge("atelier_api_inflight_requests", "HTTP requests currently being served."),

		aggregateOps:       NewHistogramVec("atelier_aggregate_operation_duration_seconds", "Ledger write operations by outcome.", []string{"operation", "status"}, nil),
		aggregateConflicts: NewCounterVec("atelier_aggregate_conflicts_total", "Ledger writes that lost a compare-and-set or unique race.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("atelier_aggregate_retryable_total", "Ledger writes that failed with a transient error.", []string{"operation"}),

		externalCalls:   NewCounterVec("atelier_external_calls_total", "Outbound calls to the payment gateway and the generation provider.", []string{"target", "operation", "status"}),
		externalLatency: NewHistogramVec("atelier_external_call_duration_seconds", "Outbound call latency.", []string{"target", "operation"}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}),

		webhookEvents:      NewCounterVec("atelier_webhook_events_total", "Verified gateway webhook deliveries by event type and outcome.", []string{"event_type", "outcome"}),
		orderTransitions:   NewCounterVec("atelier_order_transitions_total", "Applied order status transitions.", []string{"to"}),
		creditsGranted:     NewCounter("atelier_credits_granted_total", "Credits added to user balances by confirmed orders."),
		generationOutcomes: NewCounterVec("atelier_generation_outcomes_total", "Generation status checks by resulting status and source.", []string{"status", "source"}),

		ordersByStatus: NewGaugeVec("atelier_orders", "Orders by status.", []string{"status"}),
		pgStats:        NewGaugeVec("atelier_postgres_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:        NewGauge("atelier_redis_up", "Whether the event bus redis answered the last ping."),
		redisPing:      NewGauge("atelier_redis_ping_seconds", "Latency of the last redis ping."),
	}
}

func (m *Metrics) collectors() []collector {
	return []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateConflicts, m.aggregateRetries,
		m.externalCalls, m.externalLatency,
		m.webhookEvents, m.orderTransitions, m.creditsGranted, m.generationOutcomes,
		m.ordersByStatus, m.pgStats, m.redisUp, m.redisPing,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
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

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
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

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), orDefault(op, "unknown"), orDefault(status, "unknown"))
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(orDefault(op, "unknown"))
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(orDefault(op, "unknown"))
}

// ObserveExternalCall records one outbound call; status is a short outcome
// such as "ok", "rejected" or "unreachable".
func (m *Metrics) ObserveExternalCall(target, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	target = orDefault(target, "unknown")
	op = orDefault(op, "unknown")
	m.externalCalls.Inc(target, op, orDefault(status, "unknown"))
	m.externalLatency.Observe(dur.Seconds(), target, op)
}

func (m *Metrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Inc(orDefault(eventType, "unknown"), orDefault(outcome, "unknown"))
}

func (m *Metrics) IncOrderTransition(to string) {
	if m == nil {
		return
	}
	m.orderTransitions.Inc(orDefault(to, "unknown"))
}

func (m *Metrics) AddCreditsGranted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.creditsGranted.Add(float64(n))
}

func (m *Metrics) IncGenerationOutcome(status, source string) {
	if m == nil {
		return
	}
	m.generationOutcomes.Inc(orDefault(status, "unknown"), orDefault(source, "unknown"))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: postgres stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
		m.pgStats.Set(float64(stats.InUse), "in_use")
		m.pgStats.Set(float64(stats.Idle), "idle")
		m.pgStats.Set(float64(stats.WaitCount), "wait_count")
		m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

// StartOrderCollector samples the order table by status.
func (m *Metrics) StartOrderCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		if err := m.CollectOrders(ctx, db); err != nil && log != nil {
			log.Warn("metrics: order status query failed", "error", err)
		}
	})
}

func (m *Metrics) CollectOrders(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		m.ordersByStatus.Set(float64(row.Count), orDefault(row.Status, "unknown"))
	}
	return nil
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	m.every(ctx, func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}
