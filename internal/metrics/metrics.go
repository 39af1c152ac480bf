package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/biomni/pkg/invoker"
)

// Metrics holds all Prometheus metrics for the plugin
type Metrics struct {
	registry *prometheus.Registry

	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	InvocationsInFlight prometheus.Gauge

	// Validation metrics
	ValidationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biomni_invocations_total",
				Help: "Total number of agent invocations by terminal state",
			},
			[]string{"state"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "biomni_invocation_duration_seconds",
				Help: "Wall-clock duration of agent invocations in seconds",
				// 0.5s up to about 34 minutes
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 13),
			},
			[]string{"state"},
		),
		InvocationsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "biomni_invocations_in_flight",
				Help: "Number of invocations not yet in a terminal state",
			},
		),
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biomni_validations_total",
				Help: "Total number of environment validations by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.InvocationsTotal,
		m.InvocationDuration,
		m.InvocationsInFlight,
		m.ValidationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// InvocationStarted implements invoker.Observer
func (m *Metrics) InvocationStarted() {
	m.InvocationsInFlight.Inc()
}

// InvocationFinished implements invoker.Observer
func (m *Metrics) InvocationFinished(state invoker.State, elapsed time.Duration) {
	m.InvocationsInFlight.Dec()
	m.InvocationsTotal.WithLabelValues(string(state)).Inc()
	m.InvocationDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())
}

// ValidationFinished records a validation outcome
func (m *Metrics) ValidationFinished(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.ValidationsTotal.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
