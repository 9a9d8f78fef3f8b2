package journals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrReferenceRequired indicates a missing reference number.
	ErrReferenceRequired = errors.New("journals: reference number required")
	// ErrSourceRequired indicates a missing source system identifier.
	ErrSourceRequired = errors.New("journals: source required")
	// ErrEntryIDRequired indicates a missing entry identifier.
	ErrEntryIDRequired = errors.New("journals: entry id required")
)

// LineInput describes one debit-or-credit line on a create request.
type LineInput struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
	Reference string
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	Date            time.Time
	ReferenceNumber string
	Description     string
	Source          string
	PeriodID        *uuid.UUID
	OriginalAmount  decimal.Decimal
	Lines           []LineInput
}

// Validate ensures create input meets minimum criteria. Line-level invariants
// are re-checked by the aggregate when lines are attached.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.ReferenceNumber) == "" {
		return ErrReferenceRequired
	}
	if strings.TrimSpace(in.Source) == "" {
		return ErrSourceRequired
	}
	if in.Date.IsZero() {
		return errors.New("journals: date required")
	}
	for idx, line := range in.Lines {
		if line.AccountID == uuid.Nil {
			return fmt.Errorf("journals: line %d missing account", idx)
		}
	}
	return nil
}

// UpdateInput applies partial changes to an unposted entry. Nil fields are
// left untouched.
type UpdateInput struct {
	Date            *time.Time
	ReferenceNumber *string
	Description     *string
	Source          *string
	PeriodID        *uuid.UUID
	OriginalAmount  *decimal.Decimal
}

// ReverseInput wraps parameters for requesting a reversal entry.
type ReverseInput struct {
	EntryID      uuid.UUID
	ReversalDate time.Time
	Reason       string
	ActorID      string
}
