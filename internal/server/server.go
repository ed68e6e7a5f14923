package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/applytrack/internal/instrumentation"
)

// Config configures the API server.
type Config struct {
	Addr string
	// PublicURL is where browsers reach the server. The OAuth callback
	// lives under it, so it must be HTTPS unless it is a loopback address.
	PublicURL      string
	RequestTimeout time.Duration
	// MCPHandler, when set, is served at /mcp behind owner authentication.
	MCPHandler http.Handler
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// Server is the applytrack HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	health     *HealthChecker
	addr       string
	logger     *slog.Logger
}

// New assembles the routes of api and health into a Server.
func New(cfg Config, api *API, health *HealthChecker) (*Server, error) {
	if err := validateHTTPSRequirement(cfg.PublicURL); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	api.Register(mux)
	health.RegisterHealthEndpoints(mux)
	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", api.auth.RequireOwner(cfg.MCPHandler))
	}

	// instrument must sit directly on the mux: it reads the route pattern
	// the mux stores on the request it was given.
	handler := securityHeaders(withTimeout(cfg.RequestTimeout, instrument(cfg.Metrics, mux)))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		handler: handler,
		health:  health,
		addr:    cfg.Addr,
		logger:  cfg.Logger,
	}, nil
}

// Handler returns the complete middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. Readiness turns on once the
// listener is bound. It returns http.ErrServerClosed after a graceful
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.logger.Info("starting api server", "addr", ln.Addr().String())
	s.health.SetReady(true)
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server as not ready and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.MarkShuttingDown()
	s.logger.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

// validateHTTPSRequirement allows plain HTTP only for loopback addresses.
func validateHTTPSRequirement(publicURL string) error {
	if publicURL == "" {
		return fmt.Errorf("public URL cannot be empty")
	}

	u, err := url.Parse(publicURL)
	if err != nil {
		return fmt.Errorf("invalid public URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("public URL must use HTTPS outside of localhost (got: %s)", publicURL)
		}
		return nil
	default:
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}
}
