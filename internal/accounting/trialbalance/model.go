package trialbalance

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// Status enumerates the lifecycle of a trial balance.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusFinalized Status = "FINALIZED"
)

// AccountType classifies a line item for the per-type rollups.
type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountEquity    AccountType = "EQUITY"
	AccountRevenue   AccountType = "REVENUE"
	AccountExpense   AccountType = "EXPENSE"
)

var (
	ErrNumberRequired     = errors.New("accounting: trial balance number is required")
	ErrFinalized          = errors.New("accounting: trial balance is finalized")
	ErrAlreadyFinalized   = errors.New("accounting: trial balance is already finalized")
	ErrNotFinalized       = errors.New("accounting: trial balance is not finalized")
	ErrOutOfBalance       = errors.New("accounting: trial balance debits and credits diverge")
	ErrEquationViolation  = errors.New("accounting: assets do not equal liabilities plus equity")
	ErrTrialBalanceIDReq  = errors.New("accounting: trial balance id is required")
	ErrUnknownAccountType = errors.New("accounting: unknown account type")
)

// LineItem is one account's closing balances for the period.
type LineItem struct {
	AccountCode   string
	AccountName   string
	AccountType   AccountType
	DebitBalance  decimal.Decimal
	CreditBalance decimal.Decimal
}

// NetBalance returns debit minus credit for the line.
func (l LineItem) NetBalance() decimal.Decimal {
	return l.DebitBalance.Sub(l.CreditBalance)
}

// TrialBalance verifies that posted ledger activity balances for a period and
// feeds the financial close. Totals are derived, never set directly.
type TrialBalance struct {
	ID                  uuid.UUID
	Number              string
	PeriodID            uuid.UUID
	GeneratedAt         time.Time
	PeriodStartDate     time.Time
	PeriodEndDate       time.Time
	TotalDebits         decimal.Decimal
	TotalCredits        decimal.Decimal
	TotalAssets         decimal.Decimal
	TotalLiabilities    decimal.Decimal
	TotalEquity         decimal.Decimal
	TotalRevenue        decimal.Decimal
	TotalExpenses       decimal.Decimal
	OutOfBalanceAmount  decimal.Decimal
	Balanced            bool
	Status              Status
	IncludeZeroBalances bool
	AccountCount        int
	FinalizedAt         *time.Time
	FinalizedBy         string
	Notes               string
	LineItems           []LineItem
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// New constructs a draft trial balance for a period window.
func New(number string, periodID uuid.UUID, start, end time.Time, includeZeroBalances bool, now time.Time) (TrialBalance, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return TrialBalance{}, ErrNumberRequired
	}
	if periodID == uuid.Nil {
		return TrialBalance{}, shared.ErrInvalidPeriod
	}
	return TrialBalance{
		ID:                  uuid.New(),
		Number:              number,
		PeriodID:            periodID,
		GeneratedAt:         now,
		PeriodStartDate:     start,
		PeriodEndDate:       end,
		Balanced:            true,
		Status:              StatusDraft,
		IncludeZeroBalances: includeZeroBalances,
	}, nil
}

func validAccountType(t AccountType) bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}

// AddLineItem appends one account's balances and refreshes the totals. Zero
// balance lines are silently skipped unless the report includes them.
func (tb *TrialBalance) AddLineItem(accountCode, accountName string, accountType AccountType, debitBalance, creditBalance decimal.Decimal) error {
	if tb.Status == StatusFinalized {
		return ErrFinalized
	}
	accountCode = strings.TrimSpace(accountCode)
	if accountCode == "" {
		return shared.ErrAccountCodeRequired
	}
	if debitBalance.IsNegative() || creditBalance.IsNegative() {
		return shared.ErrNegativeAmount
	}
	if !validAccountType(accountType) {
		return ErrUnknownAccountType
	}
	if !tb.IncludeZeroBalances && debitBalance.IsZero() && creditBalance.IsZero() {
		return nil
	}
	tb.LineItems = append(tb.LineItems, LineItem{
		AccountCode:   accountCode,
		AccountName:   strings.TrimSpace(accountName),
		AccountType:   accountType,
		DebitBalance:  debitBalance,
		CreditBalance: creditBalance,
	})
	tb.recalculateTotals()
	return nil
}

// recalculateTotals rebuilds grand totals and the per-type rollups. Assets
// roll up as debit minus credit, liabilities and equity as credit minus
// debit, revenue by credit balance and expenses by debit balance.
func (tb *TrialBalance) recalculateTotals() {
	debits, credits := decimal.Zero, decimal.Zero
	assets, liabilities, equity := decimal.Zero, decimal.Zero, decimal.Zero
	revenue, expenses := decimal.Zero, decimal.Zero
	for _, l := range tb.LineItems {
		debits = debits.Add(l.DebitBalance)
		credits = credits.Add(l.CreditBalance)
		switch l.AccountType {
		case AccountAsset:
			assets = assets.Add(l.DebitBalance.Sub(l.CreditBalance))
		case AccountLiability:
			liabilities = liabilities.Add(l.CreditBalance.Sub(l.DebitBalance))
		case AccountEquity:
			equity = equity.Add(l.CreditBalance.Sub(l.DebitBalance))
		case AccountRevenue:
			revenue = revenue.Add(l.CreditBalance)
		case AccountExpense:
			expenses = expenses.Add(l.DebitBalance)
		}
	}
	tb.TotalDebits = debits
	tb.TotalCredits = credits
	tb.TotalAssets = assets
	tb.TotalLiabilities = liabilities
	tb.TotalEquity = equity
	tb.TotalRevenue = revenue
	tb.TotalExpenses = expenses
	tb.OutOfBalanceAmount = debits.Sub(credits).Abs()
	tb.Balanced = shared.WithinTolerance(tb.OutOfBalanceAmount)
	tb.AccountCount = len(tb.LineItems)
}

// NetIncome returns revenue minus expenses for the period.
func (tb TrialBalance) NetIncome() decimal.Decimal {
	return tb.TotalRevenue.Sub(tb.TotalExpenses)
}

// AccountingEquationBalances reports whether assets equal liabilities plus
// equity within the penny tolerance.
func (tb TrialBalance) AccountingEquationBalances() bool {
	diff := tb.TotalAssets.Sub(tb.TotalLiabilities.Add(tb.TotalEquity))
	return shared.WithinTolerance(diff)
}

// Finalize locks the trial balance. Both gates must hold: debits equal
// credits, and the accounting equation balances.
func (tb *TrialBalance) Finalize(finalizedBy string, now time.Time) error {
	if strings.TrimSpace(finalizedBy) == "" {
		return shared.ErrActorRequired
	}
	if tb.Status == StatusFinalized {
		return ErrAlreadyFinalized
	}
	if !tb.Balanced {
		return ErrOutOfBalance
	}
	if !tb.AccountingEquationBalances() {
		return ErrEquationViolation
	}
	tb.Status = StatusFinalized
	tb.FinalizedAt = &now
	tb.FinalizedBy = strings.TrimSpace(finalizedBy)
	return nil
}

// Reopen returns a finalized trial balance to draft, appending the reason to
// its notes.
func (tb *TrialBalance) Reopen(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return shared.ErrReasonRequired
	}
	if tb.Status != StatusFinalized {
		return ErrNotFinalized
	}
	tb.Status = StatusDraft
	tb.FinalizedAt = nil
	tb.FinalizedBy = ""
	note := "Reopened: " + strings.TrimSpace(reason)
	if tb.Notes == "" {
		tb.Notes = note
	} else {
		tb.Notes = tb.Notes + "\n\n" + note
	}
	return nil
}
