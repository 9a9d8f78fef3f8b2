package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/events"
	"github.com/graniteledger/granite/internal/observability"
)

// PeriodGuard answers whether a period accepts postings. The close workflow
// implements it; the check runs at the orchestration layer rather than inside
// the aggregate.
type PeriodGuard interface {
	EnsurePeriodOpenForPosting(ctx context.Context, periodID uuid.UUID) error
}

// BalanceInvalidator drops cached account balances after posting changes the
// general ledger.
type BalanceInvalidator interface {
	InvalidateBalances(ctx context.Context) error
}

// Service orchestrates journal entry lifecycle operations.
type Service struct {
	repo     Repository
	publish  events.Publisher
	guard    PeriodGuard
	balances BalanceInvalidator
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, publish events.Publisher, guard PeriodGuard, metrics *observability.Metrics) *Service {
	if publish == nil {
		publish = events.Nop{}
	}
	return &Service{repo: repo, publish: publish, guard: guard, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithBalanceInvalidator attaches the cached balance invalidation hook.
func (s *Service) WithBalanceInvalidator(inv BalanceInvalidator) {
	s.balances = inv
}

// List returns all journal entries.
func (s *Service) List(ctx context.Context) ([]JournalEntry, error) {
	return s.repo.List(ctx)
}

// Get loads one journal entry with lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a draft journal entry with any initial lines.
func (s *Service) Create(ctx context.Context, in CreateInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	entry, err := NewJournalEntry(in.Date, in.ReferenceNumber, in.Description, in.Source, in.PeriodID, in.OriginalAmount)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, line := range in.Lines {
		if err := entry.AddLine(line.AccountID, line.Debit, line.Credit, line.Memo, line.Reference); err != nil {
			return JournalEntry{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		return tx.InsertLines(ctx, entry.Lines)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	_ = s.publish.Publish(ctx, events.Event{
		Name:     events.JournalCreated,
		Entity:   "journal_entry",
		EntityID: entry.ID,
		At:       s.now(),
		Meta: map[string]any{
			"reference_number": entry.ReferenceNumber,
			"source":           entry.Source,
			"date":             entry.Date,
		},
	})
	return entry, nil
}

// AddLine appends one line to an unposted entry.
func (s *Service) AddLine(ctx context.Context, entryID uuid.UUID, in LineInput) (JournalEntry, error) {
	if entryID == uuid.Nil {
		return JournalEntry{}, ErrEntryIDRequired
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if err := current.AddLine(in.AccountID, in.Debit, in.Credit, in.Memo, in.Reference); err != nil {
			return err
		}
		added := current.Lines[len(current.Lines)-1]
		if err := tx.InsertLines(ctx, []Line{added}); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.publishEvent(ctx, events.JournalUpdated, entry.ID, nil)
	return entry, nil
}

// Update applies partial metadata changes to an unposted entry.
func (s *Service) Update(ctx context.Context, entryID uuid.UUID, in UpdateInput) (JournalEntry, error) {
	if entryID == uuid.Nil {
		return JournalEntry{}, ErrEntryIDRequired
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if err := current.Update(in); err != nil {
			return err
		}
		if err := tx.SaveEntry(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.publishEvent(ctx, events.JournalUpdated, entry.ID, nil)
	return entry, nil
}

// Approve records approval on the orthogonal approval sub-state.
func (s *Service) Approve(ctx context.Context, entryID uuid.UUID, approverID string) (JournalEntry, error) {
	entry, err := s.transition(ctx, entryID, func(e *JournalEntry) error {
		return e.Approve(approverID, s.now())
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.publishEvent(ctx, events.JournalApproved, entry.ID, map[string]any{"approver": approverID})
	return entry, nil
}

// Reject records rejection on the approval sub-state.
func (s *Service) Reject(ctx context.Context, entryID uuid.UUID, rejectedBy string) (JournalEntry, error) {
	entry, err := s.transition(ctx, entryID, func(e *JournalEntry) error {
		return e.Reject(rejectedBy, s.now())
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.publishEvent(ctx, events.JournalRejected, entry.ID, map[string]any{"rejected_by": rejectedBy})
	return entry, nil
}

// Post validates balance and the referenced period, marks the entry immutable
// and derives its general ledger rows, all in one transaction.
func (s *Service) Post(ctx context.Context, entryID uuid.UUID, postedBy string) (JournalEntry, error) {
	if entryID == uuid.Nil {
		return JournalEntry{}, ErrEntryIDRequired
	}
	if postedBy == "" {
		return JournalEntry{}, shared.ErrActorRequired
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if err := s.checkPeriod(ctx, tx, current); err != nil {
			return err
		}
		if len(current.Lines) < 2 {
			return shared.ErrTooFewLines
		}
		if err := current.ValidateBalance(); err != nil {
			return err
		}
		if err := current.Post(s.now()); err != nil {
			return err
		}
		if err := tx.SaveEntry(ctx, current); err != nil {
			return err
		}
		if err := tx.InsertLedgerRows(ctx, current, postedBy, s.now()); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		s.metrics.PostingFailure("journal")
		return JournalEntry{}, err
	}
	s.metrics.JournalPosted()
	s.invalidateBalances(ctx)
	s.publishEvent(ctx, events.JournalPosted, entry.ID, map[string]any{
		"posted_by": postedBy,
		"debits":    entry.TotalDebits(),
		"credits":   entry.TotalCredits(),
	})
	return entry, nil
}

// Reverse creates and posts an offsetting entry for a posted journal. The
// original entry is never mutated.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == uuid.Nil {
		return JournalEntry{}, ErrEntryIDRequired
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if err := original.ValidateReversal(in.Reason); err != nil {
			return err
		}
		date := in.ReversalDate
		if date.IsZero() {
			date = s.now()
		}
		rev, err := NewJournalEntry(date,
			fmt.Sprintf("REV-%s", original.ReferenceNumber),
			fmt.Sprintf("Reversal of %s: %s", original.ReferenceNumber, in.Reason),
			original.Source+":REVERSAL",
			original.PeriodID, original.OriginalAmount)
		if err != nil {
			return err
		}
		rev.Lines = ReversalLines(rev.ID, original.Lines)
		if err := s.checkPeriod(ctx, tx, rev); err != nil {
			return err
		}
		if err := rev.Post(s.now()); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, rev); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, rev.Lines); err != nil {
			return err
		}
		if err := tx.InsertLedgerRows(ctx, rev, in.ActorID, s.now()); err != nil {
			return err
		}
		reversal = rev
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.metrics.JournalReversed()
	s.invalidateBalances(ctx)
	s.publishEvent(ctx, events.JournalReversed, in.EntryID, map[string]any{
		"reversal_id": reversal.ID,
		"reason":      in.Reason,
		"actor":       in.ActorID,
	})
	return reversal, nil
}

// checkPeriod enforces the cross-aggregate period gate: the close workflow
// veto, the closed flag on the locked period row, and the date range.
func (s *Service) checkPeriod(ctx context.Context, tx TxRepository, e JournalEntry) error {
	if e.PeriodID == nil {
		return nil
	}
	if s.guard != nil {
		if err := s.guard.EnsurePeriodOpenForPosting(ctx, *e.PeriodID); err != nil {
			return err
		}
	}
	period, err := tx.GetPeriodForUpdate(ctx, *e.PeriodID)
	if err != nil {
		return err
	}
	if period.IsClosed {
		return shared.ErrPeriodClosed
	}
	if !period.IsDateInPeriod(e.Date) {
		return shared.ErrDateOutOfRange
	}
	return nil
}

func (s *Service) transition(ctx context.Context, entryID uuid.UUID, fn func(*JournalEntry) error) (JournalEntry, error) {
	if entryID == uuid.Nil {
		return JournalEntry{}, ErrEntryIDRequired
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		if err := tx.SaveEntry(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *Service) invalidateBalances(ctx context.Context) {
	if s.balances != nil {
		_ = s.balances.InvalidateBalances(ctx)
	}
}

func (s *Service) publishEvent(ctx context.Context, name string, id uuid.UUID, meta map[string]any) {
	_ = s.publish.Publish(ctx, events.Event{
		Name:     name,
		Entity:   "journal_entry",
		EntityID: id,
		At:       s.now(),
		Meta:     meta,
	})
}
