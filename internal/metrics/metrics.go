package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector holds all Prometheus metrics for keywatch.
type Collector struct {
	// Registry is the registry the metrics are registered with; serve it
	// from /metrics.
	Registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	storeErrors         *prometheus.CounterVec
	storeConnects       *prometheus.CounterVec
	storeHealth         prometheus.Gauge
	healthCheckDuration prometheus.Histogram
}

// New creates all metrics and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywatch_requests_total",
				Help: "Resource requests by resource, operation and status code",
			},
			[]string{"resource", "operation", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keywatch_request_duration_seconds",
				Help:    "Duration of resource requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"resource", "operation"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywatch_store_errors_total",
				Help: "Store failures surfaced as 5xx responses",
			},
			[]string{"resource", "operation"},
		),
		storeConnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywatch_store_connect_attempts_total",
				Help: "Store connection attempts by result",
			},
			[]string{"result"},
		),
		storeHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keywatch_store_health",
				Help: "Health status of the store (1=healthy, 0=unhealthy)",
			},
		),
		healthCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keywatch_health_check_duration_seconds",
				Help:    "Duration of store health checks in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.requestDuration,
		c.storeErrors,
		c.storeConnects,
		c.storeHealth,
		c.healthCheckDuration,
	)

	return c
}

// RequestCompleted records a finished resource request.
func (c *Collector) RequestCompleted(resource, operation string, status int, d time.Duration) {
	c.requestsTotal.WithLabelValues(resource, operation, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(resource, operation).Observe(d.Seconds())
}

// StoreError increments the store failure counter.
func (c *Collector) StoreError(resource, operation string) {
	c.storeErrors.WithLabelValues(resource, operation).Inc()
}

// ConnectAttempt counts a store connection attempt.
func (c *Collector) ConnectAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.storeConnects.WithLabelValues(result).Inc()
}

// SetStoreHealth sets the store health gauge.
func (c *Collector) SetStoreHealth(healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	c.storeHealth.Set(val)
}

// HealthCheckCompleted observes the duration of one health check.
func (c *Collector) HealthCheckCompleted(d time.Duration) {
	c.healthCheckDuration.Observe(d.Seconds())
}
