package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// Entry is one denormalized account impact in the general ledger. It is the
// system of record for account balances: once posted, nothing on the row may
// change, metadata included.
type Entry struct {
	ID              uuid.UUID
	EntryID         *uuid.UUID // source journal entry, nil for direct rows
	AccountID       uuid.UUID
	AccountCode     string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Memo            string
	UsoaClass       string
	TransactionDate time.Time
	ReferenceNumber string
	Source          string
	SourceID        *uuid.UUID
	PeriodID        *uuid.UUID
	IsPosted        bool
	PostedAt        *time.Time
	PostedBy        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateInput carries the fields accepted when recording a ledger row.
type CreateInput struct {
	EntryID         *uuid.UUID
	AccountID       uuid.UUID
	AccountCode     string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Memo            string
	UsoaClass       string
	TransactionDate time.Time
	ReferenceNumber string
	Source          string
	SourceID        *uuid.UUID
	PeriodID        *uuid.UUID
}

// UpdateInput applies partial changes to an unposted row. Nil fields are left
// untouched.
type UpdateInput struct {
	Debit           *decimal.Decimal
	Credit          *decimal.Decimal
	Memo            *string
	UsoaClass       *string
	ReferenceNumber *string
}

// NewEntry validates amounts and constructs an unposted ledger row.
func NewEntry(in CreateInput) (Entry, error) {
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return Entry{}, shared.ErrNegativeAmount
	}
	if in.Debit.IsPositive() && in.Credit.IsPositive() {
		return Entry{}, shared.ErrBothSides
	}
	code := strings.TrimSpace(in.AccountCode)
	if code == "" {
		return Entry{}, shared.ErrAccountCodeRequired
	}
	return Entry{
		ID:              uuid.New(),
		EntryID:         in.EntryID,
		AccountID:       in.AccountID,
		AccountCode:     code,
		Debit:           in.Debit,
		Credit:          in.Credit,
		Memo:            strings.TrimSpace(in.Memo),
		UsoaClass:       strings.TrimSpace(in.UsoaClass),
		TransactionDate: in.TransactionDate,
		ReferenceNumber: strings.TrimSpace(in.ReferenceNumber),
		Source:          strings.TrimSpace(in.Source),
		SourceID:        in.SourceID,
		PeriodID:        in.PeriodID,
	}, nil
}

// Post makes the row authoritative and immutable.
func (e *Entry) Post(postedBy string, now time.Time) error {
	if e.IsPosted {
		return shared.ErrAlreadyPosted
	}
	if strings.TrimSpace(postedBy) == "" {
		return shared.ErrActorRequired
	}
	e.IsPosted = true
	e.PostedAt = &now
	e.PostedBy = strings.TrimSpace(postedBy)
	return nil
}

// Update applies partial changes. Posted rows reject every mutation, metadata
// included, to keep the audit trail intact.
func (e *Entry) Update(in UpdateInput) error {
	if e.IsPosted {
		return shared.ErrPostedImmutable
	}
	debit := e.Debit
	credit := e.Credit
	if in.Debit != nil {
		debit = *in.Debit
	}
	if in.Credit != nil {
		credit = *in.Credit
	}
	if debit.IsNegative() || credit.IsNegative() {
		return shared.ErrNegativeAmount
	}
	if debit.IsPositive() && credit.IsPositive() {
		return shared.ErrBothSides
	}
	e.Debit = debit
	e.Credit = credit
	if in.Memo != nil {
		e.Memo = strings.TrimSpace(*in.Memo)
	}
	if in.UsoaClass != nil {
		e.UsoaClass = strings.TrimSpace(*in.UsoaClass)
	}
	if in.ReferenceNumber != nil {
		e.ReferenceNumber = strings.TrimSpace(*in.ReferenceNumber)
	}
	return nil
}

// Net returns the signed account impact of the row.
func (e Entry) Net() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}
