// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reportengine"

// Metrics holds the engine's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	documentsProcessed *prometheus.CounterVec
	sectionsRendered   *prometheus.CounterVec
	signals            *prometheus.CounterVec
	renderSeconds      *prometheus.HistogramVec
	toolkitRuns        *prometheus.CounterVec
}

// New creates the collectors and registers them with Go and process
// collectors on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Evidence files processed by intake, by outcome and extraction method.",
		}, []string{"status", "method"}),
		sectionsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_rendered_total",
			Help:      "Section renders, by section and resulting status.",
		}, []string{"section", "status"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Gateway signals dispatched, by code.",
		}, []string{"code"}),
		renderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_render_seconds",
			Help:      "Time spent rendering a section.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"section"}),
		toolkitRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toolkit_runs_total",
			Help:      "Toolkit tool runs, by tool and outcome.",
		}, []string{"tool", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documentsProcessed,
		m.sectionsRendered,
		m.signals,
		m.renderSeconds,
		m.toolkitRuns,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DocumentProcessed counts one intake outcome.
func (m *Metrics) DocumentProcessed(status, method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	m.documentsProcessed.WithLabelValues(status, method).Inc()
}

// SectionRendered counts one render and observes its duration.
func (m *Metrics) SectionRendered(section, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sectionsRendered.WithLabelValues(section, status).Inc()
	m.renderSeconds.WithLabelValues(section).Observe(elapsed.Seconds())
}

// Signal counts one dispatched signal.
func (m *Metrics) Signal(code string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(code).Inc()
}

// ToolkitRun counts one tool run.
func (m *Metrics) ToolkitRun(tool string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.toolkitRuns.WithLabelValues(tool, status).Inc()
}

// Handler returns the /metrics handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterHTTPHandlers mounts /metrics on mux.
func (m *Metrics) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	m.RegisterHTTPHandlers(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
