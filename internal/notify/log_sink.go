package notify

import (
	"context"
	"log/slog"

	"github.com/teemow/applytrack/internal/logging"
)

// LogSink writes events to the log. It is used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "owner notified",
		slog.String("type", ev.Type),
		logging.OwnerHash(ev.Owner),
		logging.Application(ev.ApplicationID),
		logging.MessageID(ev.MessageID),
		logging.Domain(ev.Recipient))
	return nil
}

func (s *LogSink) Close() error { return nil }
