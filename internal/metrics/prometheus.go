package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keygate"

// PrometheusRecorder exposes metrics through a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	keysIssued     prometheus.Counter
	keysDeleted    prometheus.Counter
	keyCollisions  prometheus.Counter
	keysUsed       prometheus.Counter
	commands       *prometheus.CounterVec
	accessDenied   prometheus.Counter
	eventPublished *prometheus.CounterVec
	eventProcessed *prometheus.CounterVec
	eventBatchSize prometheus.Histogram
	eventBatchDur  prometheus.Histogram
	eventQueue     prometheus.Gauge
	eventLag       prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewPrometheus creates a recorder backed by a fresh registry that also
// carries the Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		keysIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_issued_total",
			Help:      "Total number of license keys issued",
		}),
		keysDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_deleted_total",
			Help:      "Total number of license keys deleted",
		}),
		keyCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_collisions_total",
			Help:      "Generated tokens rejected because they already existed",
		}),
		keysUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_used_total",
			Help:      "Total number of keys moved to the used state",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by action and outcome",
		}, []string{"action", "outcome"}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_denied_total",
			Help:      "Requests rejected by the entitlement gate",
		}),
		eventPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Key events published to the stream",
		}, []string{"status"}),
		eventProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Key events consumed by the worker",
		}, []string{"status"}),
		eventBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_batch_size",
			Help:      "Number of events per worker batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		eventBatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_batch_duration_seconds",
			Help:      "Time spent persisting a worker batch",
			Buckets:   prometheus.DefBuckets,
		}),
		eventQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Entries currently held in the key event stream",
		}),
		eventLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_ingest_lag_seconds",
			Help:      "Delay between an event occurring and being persisted",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		p.keysIssued, p.keysDeleted, p.keyCollisions, p.keysUsed,
		p.commands, p.accessDenied,
		p.eventPublished, p.eventProcessed, p.eventBatchSize, p.eventBatchDur, p.eventQueue, p.eventLag,
		p.httpRequests, p.httpDuration,
	)

	return p
}

// Registry returns the registry backing this recorder.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RegisterPgxPool exposes pgx connection pool statistics as gauges.
func (p *PrometheusRecorder) RegisterPgxPool(pool *pgxpool.Pool) {
	p.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_acquired_conns",
			Help: "Number of currently acquired connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().AcquiredConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_max_conns",
			Help: "Maximum number of connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().MaxConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_total_conns",
			Help: "Total number of connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().TotalConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_idle_conns",
			Help: "Number of idle connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().IdleConns())
		}),
	)
}

func (p *PrometheusRecorder) IncKeysIssued(count int) { p.keysIssued.Add(float64(count)) }

func (p *PrometheusRecorder) IncKeysDeleted(count int64) { p.keysDeleted.Add(float64(count)) }

func (p *PrometheusRecorder) IncKeyCollision() { p.keyCollisions.Inc() }

func (p *PrometheusRecorder) IncKeyUsed() { p.keysUsed.Inc() }

func (p *PrometheusRecorder) IncCommand(action, outcome string) {
	p.commands.WithLabelValues(action, outcome).Inc()
}

func (p *PrometheusRecorder) IncAccessDenied() { p.accessDenied.Inc() }

func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.eventPublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncEventProcessed(status string) {
	p.eventProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveEventBatchSize(size int) {
	p.eventBatchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveEventBatchDuration(duration time.Duration) {
	p.eventBatchDur.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetEventQueueDepth(depth int64) {
	p.eventQueue.Set(float64(depth))
}

func (p *PrometheusRecorder) ObserveEventIngestLag(lag time.Duration) {
	p.eventLag.Observe(lag.Seconds())
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
