package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/graniteledger/granite/internal/events"
)

// EventDispatcher consumes enqueued domain events and writes them to the
// structured audit log. Additional sinks hang off the same handler.
type EventDispatcher struct {
	logger *slog.Logger
}

// NewEventDispatcher constructs the dispatcher.
func NewEventDispatcher(logger *slog.Logger) *EventDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventDispatcher{logger: logger}
}

// Handler adapts the dispatcher to an Asynq task.
func (d *EventDispatcher) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var ev events.Event
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			return asynq.SkipRetry
		}
		d.logger.Info("domain event",
			slog.String("event", ev.Name),
			slog.String("entity", ev.Entity),
			slog.String("entity_id", ev.EntityID.String()),
			slog.Time("at", ev.At),
			slog.Any("meta", ev.Meta))
		return nil
	}
}
