package periods

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// PeriodType enumerates supported period granularities.
type PeriodType string

const (
	PeriodTypeMonthly   PeriodType = "MONTHLY"
	PeriodTypeQuarterly PeriodType = "QUARTERLY"
	PeriodTypeYearly    PeriodType = "YEARLY"
)

var (
	// ErrNameRequired indicates a period without a name.
	ErrNameRequired = errors.New("periods: name is required")
	// ErrInvalidDateRange indicates start date on or after end date.
	ErrInvalidDateRange = errors.New("periods: start date must precede end date")
	// ErrInvalidFiscalYear indicates a fiscal year outside 1900-2100.
	ErrInvalidFiscalYear = errors.New("periods: fiscal year out of range")
	// ErrInvalidPeriodType indicates an unsupported period type.
	ErrInvalidPeriodType = errors.New("periods: invalid period type")
)

// Period is the fiscal time boundary other aggregates reference by id.
// A closed period rejects ordinary postings until reopened.
type Period struct {
	ID           uuid.UUID
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	FiscalYear   int
	Type         PeriodType
	IsAdjustment bool
	IsClosed     bool
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func validPeriodType(t PeriodType) bool {
	switch t {
	case PeriodTypeMonthly, PeriodTypeQuarterly, PeriodTypeYearly:
		return true
	}
	return false
}

// NewPeriod validates and constructs an open accounting period.
func NewPeriod(name string, start, end time.Time, fiscalYear int, periodType PeriodType, isAdjustment bool) (Period, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Period{}, ErrNameRequired
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return Period{}, ErrInvalidDateRange
	}
	if fiscalYear < 1900 || fiscalYear > 2100 {
		return Period{}, ErrInvalidFiscalYear
	}
	if !validPeriodType(periodType) {
		return Period{}, ErrInvalidPeriodType
	}
	return Period{
		ID:           uuid.New(),
		Name:         name,
		StartDate:    start,
		EndDate:      end,
		FiscalYear:   fiscalYear,
		Type:         periodType,
		IsAdjustment: isAdjustment,
	}, nil
}

// Close marks the period closed to further postings.
func (p *Period) Close(now time.Time) error {
	if p.IsClosed {
		return shared.ErrPeriodClosed
	}
	p.IsClosed = true
	p.ClosedAt = &now
	return nil
}

// Reopen clears the closed flag on a closed period.
func (p *Period) Reopen() error {
	if !p.IsClosed {
		return shared.ErrPeriodNotClosed
	}
	p.IsClosed = false
	p.ClosedAt = nil
	return nil
}

// IsDateInPeriod reports whether the date falls inside the period, inclusive.
func (p Period) IsDateInPeriod(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Update applies new boundaries to an open period. Closed periods are frozen.
func (p *Period) Update(name string, start, end time.Time, fiscalYear int, periodType PeriodType, isAdjustment bool) error {
	if p.IsClosed {
		return shared.ErrPeriodClosed
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if !start.Before(end) {
		return ErrInvalidDateRange
	}
	if fiscalYear < 1900 || fiscalYear > 2100 {
		return ErrInvalidFiscalYear
	}
	if !validPeriodType(periodType) {
		return ErrInvalidPeriodType
	}
	p.Name = name
	p.StartDate = start
	p.EndDate = end
	p.FiscalYear = fiscalYear
	p.Type = periodType
	p.IsAdjustment = isAdjustment
	return nil
}
