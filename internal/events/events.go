package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the ledger core. Consumers subscribe by name.
const (
	JournalCreated  = "journal.created"
	JournalUpdated  = "journal.updated"
	JournalPosted   = "journal.posted"
	JournalApproved = "journal.approved"
	JournalRejected = "journal.rejected"
	JournalReversed = "journal.reversed"

	BatchCreated  = "batch.created"
	BatchApproved = "batch.approved"
	BatchRejected = "batch.rejected"
	BatchPosted   = "batch.posted"
	BatchReversed = "batch.reversed"

	LedgerEntryCreated = "ledger.entry_created"
	LedgerEntryPosted  = "ledger.entry_posted"

	TrialBalanceCreated      = "trial_balance.created"
	TrialBalanceRecalculated = "trial_balance.recalculated"
	TrialBalanceFinalized    = "trial_balance.finalized"
	TrialBalanceReopened     = "trial_balance.reopened"

	PeriodCreated  = "period.created"
	PeriodClosed   = "period.closed"
	PeriodReopened = "period.reopened"

	CloseInitiated     = "close.initiated"
	CloseTaskCompleted = "close.task_completed"
	CloseIssueFound    = "close.issue_found"
	CloseIssueResolved = "close.issue_resolved"
	CloseCompleted     = "close.completed"
	CloseReopened      = "close.reopened"

	RecurringCreated   = "recurring.created"
	RecurringGenerated = "recurring.generated"
)

// Event describes a state change in the ledger core. Meta carries
// event-specific fields and must be JSON serialisable.
type Event struct {
	Name     string         `json:"name"`
	Entity   string         `json:"entity"`
	EntityID uuid.UUID      `json:"entity_id"`
	Actor    string         `json:"actor,omitempty"`
	At       time.Time      `json:"at"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Publisher delivers events to interested consumers. Delivery is
// fire-and-forget: services record the event but never block a business
// operation on a publish failure.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event. Useful for tests and optional wiring.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
