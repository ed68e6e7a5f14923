package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/applytrack/internal/config"
	"github.com/teemow/applytrack/internal/gmail"
	"github.com/teemow/applytrack/internal/google"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/notify"
	"github.com/teemow/applytrack/internal/resume"
	"github.com/teemow/applytrack/internal/server"
	"github.com/teemow/applytrack/internal/store"
	"github.com/teemow/applytrack/internal/tracker"
)

// app holds the long-lived collaborators shared by serve and sync.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	audit    *instrumentation.AuditLogger
	store    *store.SQLStore
	redis    *redis.Client
	amqp     *notify.AMQPSink
	notifier *notify.Dispatcher
	tokens   *google.TokenManager
	service  *tracker.Service
}

func instrumentationConfig(cfg *config.Config) instrumentation.Config {
	ic := instrumentation.DefaultConfig()
	ic.ServiceVersion = version
	ic.Enabled = cfg.Instrumentation.Enabled
	ic.MetricsExporter = cfg.Instrumentation.MetricsExporter
	ic.TracingExporter = cfg.Instrumentation.TracingExporter
	ic.OTLPEndpoint = cfg.Instrumentation.OTLPEndpoint
	ic.OTLPInsecure = cfg.Instrumentation.OTLPInsecure
	ic.TraceSamplingRate = cfg.Instrumentation.TraceSamplingRate
	ic.DetailedLabels = cfg.Instrumentation.DetailedLabels
	ic.AuditLogging = instrumentation.AuditLoggingConfig{
		Enabled:    cfg.Instrumentation.AuditEnabled,
		IncludePII: cfg.Instrumentation.AuditIncludePII,
	}
	return ic
}

// newApp wires every collaborator from cfg. On error, whatever was already
// opened is closed again.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	ic := instrumentationConfig(cfg)
	if err := ic.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation config: %w", err)
	}
	a.provider, err = instrumentation.NewProvider(ctx, ic)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	metrics := a.provider.Metrics()
	a.audit = instrumentation.NewAuditLogger(logger, ic.AuditLogging)

	a.store, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var locker google.Locker = google.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		locker = google.NewRedisLocker(a.redis, cfg.Redis.LockTTL, logger)
	}

	googleHTTP := &http.Client{Timeout: cfg.Google.HTTPTimeout}
	a.tokens = google.NewTokenManager(a.store, google.Options{
		Client: google.ClientConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.RedirectURL(),
			AuthURL:      cfg.Google.AuthURL,
			TokenURL:     cfg.Google.TokenURL,
		},
		HTTPClient: googleHTTP,
		Locker:     locker,
		Logger:     logger,
		Metrics:    metrics,
	})

	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.Notify.AMQPURL != "" {
		a.amqp, err = notify.DialAMQP(cfg.Notify.AMQPURL, cfg.Notify.Exchange, cfg.Notify.RoutingKey)
		if err != nil {
			return nil, err
		}
		sink = a.amqp
	}
	a.notifier = notify.NewDispatcher(sink, notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		Logger:    logger,
		Metrics:   metrics,
	})

	documents := resume.New(resume.Options{
		RendererURL: cfg.Resume.RendererURL,
		HTTPClient:  &http.Client{Timeout: cfg.Resume.HTTPTimeout},
		MaxBytes:    cfg.Resume.MaxBytes,
		Logger:      logger,
	})
	mailboxes := tracker.GmailMailboxes(gmail.Options{
		Endpoint:   cfg.Google.GmailEndpoint,
		HTTPClient: googleHTTP,
		Logger:     logger,
		Metrics:    metrics,
	})

	a.service = tracker.NewService(a.store, a.tokens, mailboxes, documents, tracker.Options{
		Logger:         logger,
		Metrics:        metrics,
		Audit:          a.audit,
		Notifier:       a.notifier,
		Workers:        cfg.Sync.Workers,
		Query:          cfg.Sync.Query,
		AttachmentName: cfg.Resume.AttachmentName,
	})
	return a, nil
}

// healthChecks lists the dependencies readiness depends on.
func (a *app) healthChecks() map[string]server.CheckFunc {
	checks := map[string]server.CheckFunc{
		"database": a.store.Ping,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	if a.amqp != nil {
		checks["amqp"] = func(context.Context) error {
			if !a.amqp.IsConnected() {
				return errors.New("amqp connection closed")
			}
			return nil
		}
	}
	return checks
}

// close drains pending notifications before closing the connections they
// may still need.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close(ctx))
	} else if a.amqp != nil {
		errs = append(errs, a.amqp.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
