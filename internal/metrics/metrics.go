// Package metrics exposes Prometheus counters for the streaming pipeline
// plus a /healthz endpoint.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coinstream"

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	PriceTicks        *prometheus.CounterVec // labels: symbol, source
	PriceFallbacks    *prometheus.CounterVec // labels: symbol, op
	BarsClosed        *prometheus.CounterVec // labels: timeframe
	IndicatorUpdates  *prometheus.CounterVec // labels: timeframe
	StaleBars         prometheus.Counter
	EventsPublished   *prometheus.CounterVec // labels: event
	Deliveries        prometheus.Counter
	ClientEvictions   *prometheus.CounterVec // labels: reason
	ClientDisconnects *prometheus.CounterVec // labels: reason
	AlertsTriggered   prometheus.Counter
	JobRuns           *prometheus.CounterVec // labels: job
	JobFailures       *prometheus.CounterVec // labels: job
	JobDuration       *prometheus.HistogramVec
	MirrorDropped     prometheus.Counter
	MirrorFlushed     prometheus.Counter
	StoreWriteErrors  *prometheus.CounterVec // labels: op
}

// New creates and registers every metric.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		PriceTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_ticks_total",
			Help:      "Quotes fetched, by symbol and source (live|simulated)",
		}, []string{"symbol", "source"}),
		PriceFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fallbacks_total",
			Help:      "Upstream failures answered by the simulated source",
		}, []string{"symbol", "op"}),
		BarsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_closed_total",
			Help:      "Bars closed and fed to the indicator engine",
		}, []string{"timeframe"}),
		IndicatorUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indicator_updates_total",
			Help:      "Bars accepted by the indicator engine, warm-up included",
		}, []string{"timeframe"}),
		StaleBars: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_bars_rejected_total",
			Help:      "Bars rejected as older than or equal to the last accepted bar",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the broadcaster",
		}, []string{"event"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Envelopes queued to client connections",
		}),
		ClientEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_evictions_total",
			Help:      "Client connections removed after a failed delivery, by reason",
		}, []string{"reason"}),
		ClientDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_disconnects_total",
			Help:      "Client connections that ended on their own, by reason",
		}, []string{"reason"}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alerts fired",
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions",
		}, []string{"job"}),
		JobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Scheduled job executions that returned an error or panicked",
		}, []string{"job"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job latency",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"job"}),
		MirrorDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_mirror_dropped_total",
			Help:      "Events the Redis mirror discarded",
		}),
		MirrorFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_mirror_flushed_total",
			Help:      "Buffered events replayed after the circuit breaker closed",
		}),
		StoreWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_errors_total",
			Help:      "Failed persistence writes, by operation",
		}, []string{"op"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PriceTicks,
		m.PriceFallbacks,
		m.BarsClosed,
		m.IndicatorUpdates,
		m.StaleBars,
		m.EventsPublished,
		m.Deliveries,
		m.ClientEvictions,
		m.ClientDisconnects,
		m.AlertsTriggered,
		m.JobRuns,
		m.JobFailures,
		m.JobDuration,
		m.MirrorDropped,
		m.MirrorFlushed,
		m.StoreWriteErrors,
	)
	return m
}

// GaugeFunc registers a gauge sampled from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry returns the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
		log:  log.With("component", "metrics"),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
