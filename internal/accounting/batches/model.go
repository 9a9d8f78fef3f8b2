package batches

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/accounting/shared"
)

// BatchStatus enumerates the posting batch state machine.
type BatchStatus string

const (
	BatchStatusDraft    BatchStatus = "DRAFT"
	BatchStatusApproved BatchStatus = "APPROVED"
	BatchStatusRejected BatchStatus = "REJECTED"
	BatchStatusPosted   BatchStatus = "POSTED"
	BatchStatusReversed BatchStatus = "REVERSED"
)

var (
	// ErrNumberRequired indicates a batch without a batch number.
	ErrNumberRequired = errors.New("batches: batch number required")
	// ErrNotDraft indicates entries added outside the draft state.
	ErrNotDraft = errors.New("batches: entries can only be added to a draft batch")
	// ErrNotApproved indicates a posting attempt before approval.
	ErrNotApproved = errors.New("batches: batch must be approved before posting")
	// ErrUnbalanced indicates the strict batch balance check failed. Unlike a
	// single entry there is no tolerance here: aggregated totals must match
	// to the cent.
	ErrUnbalanced = errors.New("batches: batch debits and credits must match exactly")
	// ErrBatchIDRequired indicates a missing batch identifier.
	ErrBatchIDRequired = errors.New("batches: batch id required")
)

// PostingBatch groups journal entries for bulk approval, posting and
// reversal. Member entries are shared aggregates referenced by id; the batch
// recomputes its totals from them.
type PostingBatch struct {
	ID           uuid.UUID
	BatchNumber  string
	BatchDate    time.Time
	Description  string
	PeriodID     *uuid.UUID
	Status       BatchStatus
	ApprovedBy   string
	ApprovedAt   *time.Time
	PostedBy     string
	PostedAt     *time.Time
	ReversedBy   string
	ReversedAt   *time.Time
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	EntryCount   int
	Entries      []journals.JournalEntry
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPostingBatch constructs a draft batch.
func NewPostingBatch(batchNumber string, batchDate time.Time, description string, periodID *uuid.UUID) (PostingBatch, error) {
	batchNumber = strings.TrimSpace(batchNumber)
	if batchNumber == "" {
		return PostingBatch{}, ErrNumberRequired
	}
	return PostingBatch{
		ID:           uuid.New(),
		BatchNumber:  batchNumber,
		BatchDate:    batchDate,
		Description:  strings.TrimSpace(description),
		PeriodID:     periodID,
		Status:       BatchStatusDraft,
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}, nil
}

// AddEntry includes a journal entry in a draft batch and recomputes totals.
func (b *PostingBatch) AddEntry(entry journals.JournalEntry) error {
	if b.Status != BatchStatusDraft {
		return ErrNotDraft
	}
	if entry.IsPosted {
		return shared.ErrAlreadyPosted
	}
	b.Entries = append(b.Entries, entry)
	b.RecalculateTotals()
	return nil
}

// RecalculateTotals refreshes aggregate totals from member entries.
func (b *PostingBatch) RecalculateTotals() {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, e := range b.Entries {
		debits = debits.Add(e.TotalDebits())
		credits = credits.Add(e.TotalCredits())
	}
	b.TotalDebits = debits
	b.TotalCredits = credits
	b.EntryCount = len(b.Entries)
}

// Approve marks the batch ready for posting.
func (b *PostingBatch) Approve(approverID string, now time.Time) error {
	if strings.TrimSpace(approverID) == "" {
		return shared.ErrActorRequired
	}
	switch b.Status {
	case BatchStatusApproved:
		return shared.ErrAlreadyApproved
	case BatchStatusPosted, BatchStatusReversed:
		return shared.ErrInvalidStatus
	}
	b.Status = BatchStatusApproved
	b.ApprovedBy = strings.TrimSpace(approverID)
	b.ApprovedAt = &now
	return nil
}

// Reject declines a batch that has not been posted.
func (b *PostingBatch) Reject(rejectedBy string, now time.Time) error {
	if strings.TrimSpace(rejectedBy) == "" {
		return shared.ErrActorRequired
	}
	switch b.Status {
	case BatchStatusRejected:
		return shared.ErrAlreadyRejected
	case BatchStatusPosted, BatchStatusReversed:
		return shared.ErrInvalidStatus
	}
	b.Status = BatchStatusRejected
	b.ApprovedBy = strings.TrimSpace(rejectedBy)
	b.ApprovedAt = &now
	return nil
}

// Post transitions the batch and every member entry to posted. Validation
// runs over all entries before any entry is mutated so a failure leaves the
// batch untouched.
func (b *PostingBatch) Post(postedBy string, now time.Time) error {
	if strings.TrimSpace(postedBy) == "" {
		return shared.ErrActorRequired
	}
	if b.Status == BatchStatusPosted {
		return shared.ErrAlreadyPosted
	}
	if b.Status != BatchStatusApproved {
		return ErrNotApproved
	}
	b.RecalculateTotals()
	if !b.TotalDebits.Equal(b.TotalCredits) {
		return ErrUnbalanced
	}
	for i := range b.Entries {
		if b.Entries[i].IsPosted {
			return shared.ErrAlreadyPosted
		}
		if err := b.Entries[i].ValidateBalance(); err != nil {
			return err
		}
	}
	for i := range b.Entries {
		if err := b.Entries[i].Post(now); err != nil {
			return err
		}
	}
	b.Status = BatchStatusPosted
	b.PostedBy = strings.TrimSpace(postedBy)
	b.PostedAt = &now
	return nil
}

// ValidateReverse checks every member entry before a reversal is applied.
func (b *PostingBatch) ValidateReverse(reversedBy, reason string) error {
	if strings.TrimSpace(reversedBy) == "" {
		return shared.ErrActorRequired
	}
	if b.Status != BatchStatusPosted {
		return shared.ErrNotPosted
	}
	for _, e := range b.Entries {
		if err := e.ValidateReversal(reason); err != nil {
			return err
		}
	}
	return nil
}

// MarkReversed records the terminal reversed state.
func (b *PostingBatch) MarkReversed(reversedBy string, now time.Time) {
	b.Status = BatchStatusReversed
	b.ReversedBy = strings.TrimSpace(reversedBy)
	b.ReversedAt = &now
}
