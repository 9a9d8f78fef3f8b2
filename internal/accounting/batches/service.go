package batches

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/events"
	"github.com/graniteledger/granite/internal/observability"
)

// Service orchestrates posting batch lifecycle operations.
type Service struct {
	repo     Repository
	publish  events.Publisher
	guard    journals.PeriodGuard
	balances journals.BalanceInvalidator
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, publish events.Publisher, guard journals.PeriodGuard, metrics *observability.Metrics) *Service {
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
func (s *Service) WithBalanceInvalidator(inv journals.BalanceInvalidator) {
	s.balances = inv
}

// List returns all batches without member entries.
func (s *Service) List(ctx context.Context) ([]PostingBatch, error) {
	return s.repo.List(ctx)
}

// Get loads a batch with its member entries.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (PostingBatch, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a draft batch.
func (s *Service) Create(ctx context.Context, batchNumber string, batchDate time.Time, description string, periodID *uuid.UUID) (PostingBatch, error) {
	batch, err := NewPostingBatch(batchNumber, batchDate, description, periodID)
	if err != nil {
		return PostingBatch{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertBatch(ctx, batch)
	})
	if err != nil {
		return PostingBatch{}, err
	}
	s.publishEvent(ctx, events.BatchCreated, batch.ID, map[string]any{"batch_number": batch.BatchNumber})
	return batch, nil
}

// AddEntry attaches an unposted journal entry to a draft batch and refreshes
// the stored totals.
func (s *Service) AddEntry(ctx context.Context, batchID, entryID uuid.UUID) (PostingBatch, error) {
	if batchID == uuid.Nil {
		return PostingBatch{}, ErrBatchIDRequired
	}
	var batch PostingBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if err := current.AddEntry(entry); err != nil {
			return err
		}
		if err := tx.AttachEntry(ctx, batchID, entryID); err != nil {
			return err
		}
		if err := tx.SaveBatch(ctx, current); err != nil {
			return err
		}
		batch = current
		return nil
	})
	if err != nil {
		return PostingBatch{}, err
	}
	return batch, nil
}

// Approve marks the batch ready for posting.
func (s *Service) Approve(ctx context.Context, batchID uuid.UUID, approverID string) (PostingBatch, error) {
	batch, err := s.transition(ctx, batchID, func(b *PostingBatch) error {
		return b.Approve(approverID, s.now())
	})
	if err != nil {
		return PostingBatch{}, err
	}
	s.publishEvent(ctx, events.BatchApproved, batch.ID, map[string]any{"approver": approverID})
	return batch, nil
}

// Reject declines the batch.
func (s *Service) Reject(ctx context.Context, batchID uuid.UUID, rejectedBy string) (PostingBatch, error) {
	batch, err := s.transition(ctx, batchID, func(b *PostingBatch) error {
		return b.Reject(rejectedBy, s.now())
	})
	if err != nil {
		return PostingBatch{}, err
	}
	s.publishEvent(ctx, events.BatchRejected, batch.ID, map[string]any{"rejected_by": rejectedBy})
	return batch, nil
}

// Post posts the batch and every member entry in one transaction. The
// aggregate validates all entries before mutating any, and the surrounding
// transaction guarantees no partial posting is ever visible.
func (s *Service) Post(ctx context.Context, batchID uuid.UUID, postedBy string) (PostingBatch, error) {
	if batchID == uuid.Nil {
		return PostingBatch{}, ErrBatchIDRequired
	}
	var batch PostingBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if current.PeriodID != nil && s.guard != nil {
			if err := s.guard.EnsurePeriodOpenForPosting(ctx, *current.PeriodID); err != nil {
				return err
			}
		}
		if err := current.Post(postedBy, s.now()); err != nil {
			return err
		}
		for _, entry := range current.Entries {
			if err := tx.SaveEntry(ctx, entry); err != nil {
				return err
			}
			if err := tx.InsertLedgerRows(ctx, entry, postedBy, s.now()); err != nil {
				return err
			}
		}
		if err := tx.SaveBatch(ctx, current); err != nil {
			return err
		}
		batch = current
		return nil
	})
	if err != nil {
		s.metrics.PostingFailure("batch")
		return PostingBatch{}, err
	}
	s.metrics.BatchPosted()
	s.invalidateBalances(ctx)
	s.publishEvent(ctx, events.BatchPosted, batch.ID, map[string]any{
		"posted_by":    postedBy,
		"entry_count":  batch.EntryCount,
		"total_debits": batch.TotalDebits,
	})
	return batch, nil
}

// Reverse creates offsetting posted entries for every member entry and moves
// the batch to its terminal reversed state.
func (s *Service) Reverse(ctx context.Context, batchID uuid.UUID, reversedBy, reason string) (PostingBatch, error) {
	if batchID == uuid.Nil {
		return PostingBatch{}, ErrBatchIDRequired
	}
	var batch PostingBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := current.ValidateReverse(reversedBy, reason); err != nil {
			return err
		}
		now := s.now()
		for _, entry := range current.Entries {
			rev, err := journals.NewJournalEntry(now,
				fmt.Sprintf("REV-%s", entry.ReferenceNumber),
				fmt.Sprintf("Reversal of %s: %s", entry.ReferenceNumber, reason),
				entry.Source+":REVERSAL",
				entry.PeriodID, entry.OriginalAmount)
			if err != nil {
				return err
			}
			rev.Lines = journals.ReversalLines(rev.ID, entry.Lines)
			if err := rev.Post(now); err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, rev); err != nil {
				return err
			}
			if err := tx.InsertEntryLines(ctx, rev.Lines); err != nil {
				return err
			}
			if err := tx.InsertLedgerRows(ctx, rev, reversedBy, now); err != nil {
				return err
			}
		}
		current.MarkReversed(reversedBy, now)
		if err := tx.SaveBatch(ctx, current); err != nil {
			return err
		}
		batch = current
		return nil
	})
	if err != nil {
		return PostingBatch{}, err
	}
	s.invalidateBalances(ctx)
	s.publishEvent(ctx, events.BatchReversed, batch.ID, map[string]any{
		"reversed_by": reversedBy,
		"reason":      reason,
	})
	return batch, nil
}

func (s *Service) transition(ctx context.Context, batchID uuid.UUID, fn func(*PostingBatch) error) (PostingBatch, error) {
	if batchID == uuid.Nil {
		return PostingBatch{}, ErrBatchIDRequired
	}
	var batch PostingBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		if err := tx.SaveBatch(ctx, current); err != nil {
			return err
		}
		batch = current
		return nil
	})
	if err != nil {
		return PostingBatch{}, err
	}
	return batch, nil
}

func (s *Service) invalidateBalances(ctx context.Context) {
	if s.balances != nil {
		_ = s.balances.InvalidateBalances(ctx)
	}
}

func (s *Service) publishEvent(ctx context.Context, name string, id uuid.UUID, meta map[string]any) {
	_ = s.publish.Publish(ctx, events.Event{
		Name:     name,
		Entity:   "posting_batch",
		EntityID: id,
		At:       s.now(),
		Meta:     meta,
	})
}
