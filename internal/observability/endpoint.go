package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
	"github.com/tphakala/birdnet-pipeline/internal/observability/metrics"
)

// Endpoint serves /metrics for a live session.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint returns an endpoint for the configured listen address. It
// fails when metrics are disabled in settings.
func NewEndpoint(settings *conf.MetricsSettings, m *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, fmt.Errorf("metrics endpoint not enabled in settings")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics endpoint requires metrics")
	}
	return &Endpoint{listenAddress: settings.Listen, metrics: m}, nil
}

// Run listens and serves until ctx is done, then shuts the server down.
func (e *Endpoint) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		getLogger().Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))
		serveErr <- e.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	getLogger().Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		getLogger().Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-serveErr
	return nil
}

// GetMetrics returns the Metrics instance served by this endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
