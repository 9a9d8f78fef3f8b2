package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the structured log. It is the default sink
// when no message transport is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher wraps a slog logger as an event sink.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("domain event",
		slog.String("event", ev.Name),
		slog.String("entity", ev.Entity),
		slog.String("entity_id", ev.EntityID.String()),
		slog.String("actor", ev.Actor),
		slog.Time("at", ev.At),
		slog.Any("meta", ev.Meta),
	)
	return nil
}
