package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/tphakala/pulsebridge/internal/conf"
	"github.com/tphakala/pulsebridge/internal/logger"
	metricspkg "github.com/tphakala/pulsebridge/internal/observability/metrics"
)

// Endpoint serves Prometheus metrics over HTTP.
type Endpoint struct {
	server        *http.Server
	listener      net.Listener
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates a metrics endpoint for settings.Metrics.Listen. It
// returns an error when metrics are not enabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, fmt.Errorf("metrics not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		metrics:       metrics,
	}, nil
}

// Start binds the listen address and serves until quitChan is closed. Both
// the server and its shutdown run in wg.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}
	e.listener = listener
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricspkg.ShutdownTimeout,
	}

	log := GetLogger()
	wg.Go(func() {
		log.Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))
		if err := e.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() { e.gracefulShutdown(quitChan) })
	return nil
}

// Addr returns the bound address, nil before Start
func (e *Endpoint) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	log := GetLogger()
	log.Info("stopping metrics endpoint")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		log.Error("metrics endpoint shutdown error", logger.Error(err))
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
