package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/applytrack/internal/instrumentation"
)

// DefaultMetricsAddr is where the metrics listener binds unless configured.
const DefaultMetricsAddr = ":9090"

const (
	metricsReadHeaderTimeout = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
	metricsIdleTimeout       = 60 * time.Second
)

// MetricsServerConfig configures a MetricsServer.
type MetricsServerConfig struct {
	// Addr defaults to DefaultMetricsAddr.
	Addr string

	// Enabled is kept for configuration symmetry; callers skip creating the
	// server when metrics are off.
	Enabled bool

	// InstrumentationProvider must export to Prometheus.
	InstrumentationProvider *instrumentation.Provider

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// MetricsServer serves Prometheus metrics on a dedicated port, away from
// the owner-facing API. Scrapers need no bearer token there.
type MetricsServer struct {
	httpServer *http.Server
	addr       string
	logger     *slog.Logger
}

// NewMetricsServer validates config and prepares the listener. Start binds
// it.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	provider := config.InstrumentationProvider
	switch {
	case provider == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !provider.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	case !provider.ServesPrometheus():
		return nil, errors.New("instrumentation provider does not export prometheus metrics")
	}

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", provider.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: metricsReadHeaderTimeout,
			WriteTimeout:      metricsWriteTimeout,
			IdleTimeout:       metricsIdleTimeout,
		},
		addr:   addr,
		logger: logger,
	}, nil
}

// Handler returns the metrics routes without a listener.
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving metrics until Shutdown.
func (s *MetricsServer) Start() error {
	s.logger.Info("starting metrics server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}
