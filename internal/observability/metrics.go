// Package observability provides metrics and monitoring capabilities for pulsebridge.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/pulsebridge/internal/logger"
	"github.com/tphakala/pulsebridge/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	HostAPI  *metrics.HostAPIMetrics
}

// NewMetrics creates a registry with Go runtime and process collectors and
// the host API metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	hostAPIMetrics, err := metrics.NewHostAPIMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create host API metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		HostAPI:  hostAPIMetrics,
	}, nil
}

// Registry returns the registry all collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLog{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}

// promErrorLog forwards promhttp errors to the package logger
type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	GetLogger().Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
