package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries domain event dispatch tasks.
	QueueEvents = "events"

	// TaskRecurringGenerate generates journal entries for due templates.
	TaskRecurringGenerate = "recurring:generate"
	// TaskLedgerIntegrity verifies per-period ledger debit and credit sums.
	TaskLedgerIntegrity = "ledger:integrity"
)

// RecurringGeneratePayload pins the as-of date for a generation run.
type RecurringGeneratePayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewRecurringGenerateTask constructs the generation task.
func NewRecurringGenerateTask(payload RecurringGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringGenerate, data), nil
}

// LedgerIntegrityPayload optionally restricts the scan to one period.
type LedgerIntegrityPayload struct {
	PeriodID *uuid.UUID `json:"period_id,omitempty"`
}

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}
