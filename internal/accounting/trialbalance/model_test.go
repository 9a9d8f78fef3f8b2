package trialbalance

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

func draftTB(t *testing.T) TrialBalance {
	t.Helper()
	tb, err := New("TB-2025-03", uuid.New(),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		false, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tb
}

func addLine(t *testing.T, tb *TrialBalance, code string, typ AccountType, debit, credit int64) {
	t.Helper()
	if err := tb.AddLineItem(code, "Account "+code, typ, decimal.NewFromInt(debit), decimal.NewFromInt(credit)); err != nil {
		t.Fatalf("AddLineItem %s: %v", code, err)
	}
}

func TestZeroBalanceLinesSkipped(t *testing.T) {
	tb := draftTB(t)
	addLine(t, &tb, "1010", AccountAsset, 0, 0)
	if tb.AccountCount != 0 || len(tb.LineItems) != 0 {
		t.Fatalf("zero balance line was not skipped: %d items", len(tb.LineItems))
	}

	tb.IncludeZeroBalances = true
	addLine(t, &tb, "1010", AccountAsset, 0, 0)
	if tb.AccountCount != 1 {
		t.Fatalf("zero balance line should be kept when included: %d items", tb.AccountCount)
	}
}

func TestAddLineItemValidation(t *testing.T) {
	tb := draftTB(t)
	err := tb.AddLineItem("", "x", AccountAsset, decimal.NewFromInt(1), decimal.Zero)
	if !errors.Is(err, shared.ErrAccountCodeRequired) {
		t.Fatalf("expected ErrAccountCodeRequired, got %v", err)
	}
	err = tb.AddLineItem("1010", "x", AccountAsset, decimal.NewFromInt(-1), decimal.Zero)
	if !errors.Is(err, shared.ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	err = tb.AddLineItem("1010", "x", AccountType("OTHER"), decimal.NewFromInt(1), decimal.Zero)
	if !errors.Is(err, ErrUnknownAccountType) {
		t.Fatalf("expected ErrUnknownAccountType, got %v", err)
	}
}

func TestRollupsAndNetIncome(t *testing.T) {
	tb := draftTB(t)
	addLine(t, &tb, "1010", AccountAsset, 1500, 0)
	addLine(t, &tb, "2010", AccountLiability, 0, 400)
	addLine(t, &tb, "3010", AccountEquity, 0, 800)
	addLine(t, &tb, "4010", AccountRevenue, 0, 600)
	addLine(t, &tb, "5010", AccountExpense, 300, 0)

	if !tb.TotalAssets.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("assets = %s", tb.TotalAssets)
	}
	if !tb.TotalLiabilities.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("liabilities = %s", tb.TotalLiabilities)
	}
	if !tb.TotalEquity.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("equity = %s", tb.TotalEquity)
	}
	if !tb.NetIncome().Equal(decimal.NewFromInt(300)) {
		t.Fatalf("net income = %s", tb.NetIncome())
	}
	if !tb.Balanced {
		t.Fatalf("expected balanced, out by %s", tb.OutOfBalanceAmount)
	}
}

func TestFinalizeRejectsOutOfBalance(t *testing.T) {
	tb := draftTB(t)
	addLine(t, &tb, "1010", AccountAsset, 1000, 0)
	addLine(t, &tb, "2010", AccountLiability, 0, 900)

	if tb.Balanced {
		t.Fatal("expected out of balance")
	}
	if !tb.OutOfBalanceAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("out of balance = %s, want 100", tb.OutOfBalanceAmount)
	}
	if err := tb.Finalize("user-1", time.Now()); !errors.Is(err, ErrOutOfBalance) {
		t.Fatalf("expected ErrOutOfBalance, got %v", err)
	}
	if tb.Status != StatusDraft {
		t.Fatalf("status changed on failed finalize: %s", tb.Status)
	}
}

func TestFinalizeRejectsEquationViolation(t *testing.T) {
	tb := draftTB(t)
	// Debits equal credits but assets do not equal liabilities plus equity.
	addLine(t, &tb, "1010", AccountAsset, 1000, 0)
	addLine(t, &tb, "4010", AccountRevenue, 0, 1000)

	if !tb.Balanced {
		t.Fatal("expected balanced totals")
	}
	if err := tb.Finalize("user-1", time.Now()); !errors.Is(err, ErrEquationViolation) {
		t.Fatalf("expected ErrEquationViolation, got %v", err)
	}
}

func TestFinalizeAndReopen(t *testing.T) {
	tb := draftTB(t)
	addLine(t, &tb, "1010", AccountAsset, 500, 0)
	addLine(t, &tb, "2010", AccountLiability, 0, 200)
	addLine(t, &tb, "3010", AccountEquity, 0, 300)

	if err := tb.Finalize("", time.Now()); !errors.Is(err, shared.ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
	if err := tb.Finalize("user-1", time.Now()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if tb.Status != StatusFinalized || tb.FinalizedAt == nil || tb.FinalizedBy != "user-1" {
		t.Fatalf("finalize state not recorded: %+v", tb)
	}
	if err := tb.Finalize("user-2", time.Now()); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if err := tb.AddLineItem("1020", "Cash", AccountAsset, decimal.NewFromInt(1), decimal.Zero); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}

	if err := tb.Reopen(""); !errors.Is(err, shared.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if err := tb.Reopen("late adjustment"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if tb.Status != StatusDraft || tb.FinalizedAt != nil {
		t.Fatalf("reopen state not reset: %+v", tb)
	}
	if tb.Notes == "" {
		t.Fatal("reopen reason not appended to notes")
	}
	if err := tb.Reopen("again"); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized, got %v", err)
	}
}
