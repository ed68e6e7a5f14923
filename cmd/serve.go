package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/resources"
	"github.com/teemow/applytrack/internal/server"
	"github.com/teemow/applytrack/internal/tools/application_tools"
	"github.com/teemow/applytrack/internal/tools/common"
)

const (
	transportHTTP  = "streamable-http"
	transportStdio = "stdio"
)

type serveOptions struct {
	transport string
	owner     string
	readOnly  bool
	noMCP     bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API or an MCP server",
		Long: `Start applytrack as a long-running server.

Transports:
  - streamable-http: the JSON API under /api, health endpoints and the MCP
    streamable HTTP endpoint at /mcp. Every /api and /mcp request carries an
    HS256 bearer token naming the owner (see "applytrack token").
  - stdio: an MCP server on standard input/output acting for the single
    owner given by --owner. Suitable for desktop MCP clients.

Configuration comes from --config, the .env file, APPLYTRACK_* environment
variables and flags. The HTTP transport requires GOOGLE_CLIENT_ID,
GOOGLE_CLIENT_SECRET and JWT_SECRET (at least 32 bytes).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportHTTP, "Transport type: streamable-http or stdio")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Owner the stdio MCP server acts for")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Do not offer the MCP tool that sends applications")
	cmd.Flags().BoolVar(&opts.noMCP, "no-mcp", false, "Serve only the JSON API, without the /mcp endpoint")
	cmd.Flags().String("addr", ":8080", "Address the HTTP API listens on")
	cmd.Flags().String("metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	switch opts.transport {
	case transportHTTP:
		if err := cfg.ValidateServer(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	case transportStdio:
		if opts.owner == "" {
			return errors.New("--owner is required with the stdio transport")
		}
		if err := errors.Join(cfg.Validate(), cfg.ValidateGoogle()); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", opts.transport, transportHTTP, transportStdio)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Error("shutdown incomplete", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("applytrack", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	owners := common.OwnerResolver{Default: opts.owner}
	if err := application_tools.RegisterApplicationTools(mcpSrv, application_tools.Deps{
		Workflows: a.service,
		Owners:    owners,
		Metrics:   a.provider.Metrics(),
	}, opts.readOnly); err != nil {
		return err
	}
	if err := resources.RegisterAccountResources(mcpSrv, a.service, owners); err != nil {
		return err
	}

	if opts.transport == transportStdio {
		logger.Info("starting mcp server on stdio", logging.OwnerHash(opts.owner), slog.Bool("read_only", opts.readOnly))
		return runStdioServer(mcpSrv)
	}
	return runHTTPServer(ctx, a, mcpSrv, opts)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, a *app, mcpSrv *mcpserver.MCPServer, opts serveOptions) error {
	cfg, logger := a.cfg, a.logger
	metrics := a.provider.Metrics()

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled && a.provider.Enabled() && a.provider.ServesPrometheus() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Server.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: a.provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	auth := server.NewAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.StateTTL)
	api := server.NewAPI(a.service, a.tokens, auth, server.APIOptions{
		Logger:  logger,
		Metrics: metrics,
		Audit:   a.audit,
	})
	health := server.NewHealthChecker(a.healthChecks())

	var mcpHandler http.Handler
	if !opts.noMCP {
		mcpHandler = mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithEndpointPath("/mcp"),
		)
	}

	srv, err := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		PublicURL:      cfg.Server.PublicURL,
		RequestTimeout: cfg.Server.RequestTimeout,
		MCPHandler:     mcpHandler,
		Metrics:        metrics,
		Logger:         logger,
	}, api, health)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	logger.Info("applytrack serving",
		slog.String("addr", cfg.Server.Addr),
		slog.String("public_url", cfg.Server.PublicURL),
		slog.Bool("mcp", !opts.noMCP),
		slog.Bool("read_only", opts.readOnly))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server failed", logging.Err(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
	defer cancel()

	errs := []error{serveErr, srv.Shutdown(shutdownCtx)}
	if metricsServer != nil {
		errs = append(errs, metricsServer.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
