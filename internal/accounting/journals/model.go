package journals

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// ApprovalStatus enumerates the approval sub-state of a journal entry.
// Approval is independent of posting: an entry can be posted while pending.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

const maxLineTextLength = 256

// JournalEntry is a balanced double-entry transaction. Lines are owned by the
// entry and become immutable together with it once posted.
type JournalEntry struct {
	ID              uuid.UUID
	Date            time.Time
	ReferenceNumber string
	Description     string
	Source          string
	PeriodID        *uuid.UUID
	OriginalAmount  decimal.Decimal
	IsPosted        bool
	PostedAt        *time.Time
	Status          ApprovalStatus
	ApprovedBy      string
	ApprovedAt      *time.Time
	Lines           []Line
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Line is a single debit-or-credit assertion against one account. Exactly one
// of Debit and Credit is positive.
type Line struct {
	ID        uuid.UUID
	JournalID uuid.UUID
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
	Reference string
}

// capText truncates to the column limit without splitting a multi-byte rune.
func capText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLineTextLength {
		return s
	}
	cut := maxLineTextLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// NewJournalEntry constructs a draft entry in the pending approval state.
func NewJournalEntry(date time.Time, referenceNumber, description, source string, periodID *uuid.UUID, originalAmount decimal.Decimal) (JournalEntry, error) {
	referenceNumber = strings.TrimSpace(referenceNumber)
	if referenceNumber == "" {
		return JournalEntry{}, ErrReferenceRequired
	}
	return JournalEntry{
		ID:              uuid.New(),
		Date:            date,
		ReferenceNumber: referenceNumber,
		Description:     strings.TrimSpace(description),
		Source:          strings.TrimSpace(source),
		PeriodID:        periodID,
		OriginalAmount:  originalAmount,
		Status:          ApprovalPending,
	}, nil
}

// newLine validates the exactly-one-sided invariant.
func newLine(journalID, accountID uuid.UUID, debit, credit decimal.Decimal, memo, reference string) (Line, error) {
	if debit.IsNegative() || credit.IsNegative() {
		return Line{}, shared.ErrNegativeAmount
	}
	if debit.IsPositive() && credit.IsPositive() {
		return Line{}, shared.ErrBothSides
	}
	if debit.IsZero() && credit.IsZero() {
		return Line{}, shared.ErrEmptyLine
	}
	return Line{
		ID:        uuid.New(),
		JournalID: journalID,
		AccountID: accountID,
		Debit:     debit,
		Credit:    credit,
		Memo:      capText(memo),
		Reference: capText(reference),
	}, nil
}

// AddLine appends a validated line. Posted entries reject all additions.
func (e *JournalEntry) AddLine(accountID uuid.UUID, debit, credit decimal.Decimal, memo, reference string) error {
	if e.IsPosted {
		return shared.ErrPostedImmutable
	}
	line, err := newLine(e.ID, accountID, debit, credit, memo, reference)
	if err != nil {
		return err
	}
	e.Lines = append(e.Lines, line)
	return nil
}

// TotalDebits sums the debit side of all lines.
func (e JournalEntry) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredits sums the credit side of all lines.
func (e JournalEntry) TotalCredits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// Difference returns debits minus credits.
func (e JournalEntry) Difference() decimal.Decimal {
	return e.TotalDebits().Sub(e.TotalCredits())
}

// IsBalanced reports whether the difference is within the penny tolerance.
func (e JournalEntry) IsBalanced() bool {
	return shared.WithinTolerance(e.Difference())
}

// ValidateBalance returns ErrUnbalanced when debits and credits diverge.
// Callers must invoke this before Post; AddLine does not enforce balance.
func (e JournalEntry) ValidateBalance() error {
	if !e.IsBalanced() {
		return shared.ErrUnbalanced
	}
	return nil
}

// Post marks the entry immutable. The transition is one-way.
func (e *JournalEntry) Post(now time.Time) error {
	if e.IsPosted {
		return shared.ErrAlreadyPosted
	}
	e.IsPosted = true
	e.PostedAt = &now
	return nil
}

// ValidateReversal checks that a reversal may be requested. Reversal never
// mutates the entry; an offsetting entry is created by the posting workflow.
func (e JournalEntry) ValidateReversal(reason string) error {
	if !e.IsPosted {
		return shared.ErrNotPosted
	}
	if strings.TrimSpace(reason) == "" {
		return shared.ErrReasonRequired
	}
	return nil
}

// Approve records approval. Approving twice is rejected.
func (e *JournalEntry) Approve(approverID string, now time.Time) error {
	if strings.TrimSpace(approverID) == "" {
		return shared.ErrActorRequired
	}
	if e.Status == ApprovalApproved {
		return shared.ErrAlreadyApproved
	}
	e.Status = ApprovalApproved
	e.ApprovedBy = strings.TrimSpace(approverID)
	e.ApprovedAt = &now
	return nil
}

// Reject records rejection. Rejecting twice is rejected.
func (e *JournalEntry) Reject(rejectedBy string, now time.Time) error {
	if strings.TrimSpace(rejectedBy) == "" {
		return shared.ErrActorRequired
	}
	if e.Status == ApprovalRejected {
		return shared.ErrAlreadyRejected
	}
	e.Status = ApprovalRejected
	e.ApprovedBy = strings.TrimSpace(rejectedBy)
	e.ApprovedAt = &now
	return nil
}

// Update applies partial metadata changes to an unposted entry.
func (e *JournalEntry) Update(in UpdateInput) error {
	if e.IsPosted {
		return shared.ErrPostedImmutable
	}
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.ReferenceNumber != nil && strings.TrimSpace(*in.ReferenceNumber) != "" {
		e.ReferenceNumber = strings.TrimSpace(*in.ReferenceNumber)
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.Source != nil && strings.TrimSpace(*in.Source) != "" {
		e.Source = strings.TrimSpace(*in.Source)
	}
	if in.PeriodID != nil {
		e.PeriodID = in.PeriodID
	}
	if in.OriginalAmount != nil {
		e.OriginalAmount = *in.OriginalAmount
	}
	return nil
}

// ReversalLines returns the offsetting lines for a reversal entry.
func ReversalLines(journalID uuid.UUID, lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, Line{
			ID:        uuid.New(),
			JournalID: journalID,
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			Memo:      l.Memo,
			Reference: l.Reference,
		})
	}
	return out
}
