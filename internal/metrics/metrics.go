// Package metrics exposes Prometheus counters/gauges/histograms for
// the runtime: connection state, reconnect attempts, request latency,
// queue depth, and subscription ingest rate.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric this runtime exposes.
type Collector struct {
	connectionState  *prometheus.GaugeVec
	reconnectTotal   prometheus.Counter
	requestLatency   prometheus.Histogram
	queueDepth       prometheus.Gauge
	activeWorkers    prometheus.Gauge
	subscriptionIngest prometheus.Counter
	alarmsTotal      *prometheus.CounterVec
}

// NewCollector builds and registers a Collector against the given
// registerer. Pass prometheus.NewRegistry() for an isolated registry in
// tests; pass prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opcua_connection_state",
			Help: "Current connection state (1 = active, 0 = inactive) labeled by state name.",
		}, []string{"state"}),
		reconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_reconnect_attempts_total",
			Help: "Total number of reconnect attempts made by the supervisor.",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opcua_request_latency_seconds",
			Help:    "Pipeline request completion latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcua_pipeline_queue_depth",
			Help: "Current number of requests waiting in the pipeline queue.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcua_pipeline_active_workers",
			Help: "Number of pipeline worker goroutines currently running.",
		}),
		subscriptionIngest: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_subscription_ingest_total",
			Help: "Total number of data-change notifications ingested by the subscription engine.",
		}),
		alarmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opcua_alarm_transitions_total",
			Help: "Total number of alarm level transitions, labeled by level.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		c.connectionState,
		c.reconnectTotal,
		c.requestLatency,
		c.queueDepth,
		c.activeWorkers,
		c.subscriptionIngest,
		c.alarmsTotal,
	)
	return c
}

// SetConnectionState zeroes every known state label and sets the active
// one to 1, so a Grafana panel can graph state as a step function.
func (c *Collector) SetConnectionState(states []string, active string) {
	for _, s := range states {
		c.connectionState.WithLabelValues(s).Set(0)
	}
	c.connectionState.WithLabelValues(active).Set(1)
}

func (c *Collector) RecordReconnectAttempt() {
	c.reconnectTotal.Inc()
}

func (c *Collector) ObserveRequestLatencySeconds(seconds float64) {
	c.requestLatency.Observe(seconds)
}

func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) SetActiveWorkers(n int) {
	c.activeWorkers.Set(float64(n))
}

func (c *Collector) RecordSubscriptionIngest() {
	c.subscriptionIngest.Inc()
}

func (c *Collector) RecordAlarmTransition(level string) {
	c.alarmsTotal.WithLabelValues(level).Inc()
}

// Serve starts a /metrics HTTP server on addr (e.g. ":9090") and blocks
// until ctx is cancelled or the server fails.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
