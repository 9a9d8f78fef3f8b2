package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeDispatch is the asynq task type carrying a serialised domain event.
const TaskTypeDispatch = "events:dispatch"

// QueueEvents is the queue domain events are published on.
const QueueEvents = "events"

// AsynqPublisher enqueues each event as a background task so downstream
// consumers (audit log, notifications, reporting) process it off the
// request path.
type AsynqPublisher struct {
	client *asynq.Client
}

// NewAsynqPublisher wraps an asynq client as an event sink.
func NewAsynqPublisher(client *asynq.Client) *AsynqPublisher {
	return &AsynqPublisher{client: client}
}

func (p *AsynqPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Name, err)
	}
	task := asynq.NewTask(TaskTypeDispatch, payload)
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(QueueEvents)); err != nil {
		return fmt.Errorf("events: enqueue %s: %w", ev.Name, err)
	}
	return nil
}
