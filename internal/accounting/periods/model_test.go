package periods

import (
	"errors"
	"testing"
	"time"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

func march(t *testing.T) Period {
	t.Helper()
	p, err := NewPeriod("2025-03",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		2025, PeriodTypeMonthly, false)
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}
	return p
}

func TestNewPeriodValidation(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	if _, err := NewPeriod("  ", start, end, 2025, PeriodTypeMonthly, false); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if _, err := NewPeriod("2025-03", end, start, 2025, PeriodTypeMonthly, false); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := NewPeriod("2025-03", start, start, 2025, PeriodTypeMonthly, false); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("start == end should fail, got %v", err)
	}
	if _, err := NewPeriod("1899", start, end, 1899, PeriodTypeYearly, false); !errors.Is(err, ErrInvalidFiscalYear) {
		t.Fatalf("expected ErrInvalidFiscalYear, got %v", err)
	}
	if _, err := NewPeriod("2101", start, end, 2101, PeriodTypeYearly, false); !errors.Is(err, ErrInvalidFiscalYear) {
		t.Fatalf("expected ErrInvalidFiscalYear, got %v", err)
	}
	if _, err := NewPeriod("2025-03", start, end, 2025, PeriodType("WEEKLY"), false); !errors.Is(err, ErrInvalidPeriodType) {
		t.Fatalf("expected ErrInvalidPeriodType, got %v", err)
	}
}

func TestCloseAndReopen(t *testing.T) {
	p := march(t)
	now := time.Now()

	if err := p.Reopen(); !errors.Is(err, shared.ErrPeriodNotClosed) {
		t.Fatalf("expected ErrPeriodNotClosed, got %v", err)
	}
	if err := p.Close(now); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.IsClosed || p.ClosedAt == nil {
		t.Fatalf("closed state not recorded: %+v", p)
	}
	if err := p.Close(now); !errors.Is(err, shared.ErrPeriodClosed) {
		t.Fatalf("expected ErrPeriodClosed, got %v", err)
	}
	if err := p.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if p.IsClosed || p.ClosedAt != nil {
		t.Fatalf("reopen did not clear state: %+v", p)
	}
}

func TestIsDateInPeriodInclusiveBounds(t *testing.T) {
	p := march(t)

	if !p.IsDateInPeriod(p.StartDate) {
		t.Fatal("start date must be inside the period")
	}
	if !p.IsDateInPeriod(p.EndDate) {
		t.Fatal("end date must be inside the period")
	}
	if p.IsDateInPeriod(p.StartDate.Add(-time.Second)) {
		t.Fatal("date before start must be outside")
	}
	if p.IsDateInPeriod(p.EndDate.Add(time.Second)) {
		t.Fatal("date after end must be outside")
	}
}

func TestUpdateFrozenWhenClosed(t *testing.T) {
	p := march(t)
	if err := p.Close(time.Now()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := p.Update("2025-03R",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC),
		2025, PeriodTypeMonthly, true)
	if !errors.Is(err, shared.ErrPeriodClosed) {
		t.Fatalf("expected ErrPeriodClosed, got %v", err)
	}
	if p.Name != "2025-03" {
		t.Fatalf("closed period mutated: %+v", p)
	}
}

func TestUpdateOpenPeriod(t *testing.T) {
	p := march(t)
	err := p.Update("2025-03A",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC),
		2025, PeriodTypeMonthly, true)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Name != "2025-03A" || !p.IsAdjustment {
		t.Fatalf("update not applied: %+v", p)
	}
}
