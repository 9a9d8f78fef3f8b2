package close

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// CloseType enumerates the supported close cadences.
type CloseType string

const (
	MonthEnd   CloseType = "MONTH_END"
	QuarterEnd CloseType = "QUARTER_END"
	YearEnd    CloseType = "YEAR_END"
)

// Status enumerates the close workflow lifecycle.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusReopened   Status = "REOPENED"
)

// Severity classifies validation issues. Only critical issues block completion.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// TaskCode is the stable identifier of a checklist task. Display names can
// change; codes cannot.
type TaskCode string

const (
	TaskGenerateTrialBalance TaskCode = "GENERATE_TRIAL_BALANCE"
	TaskVerifyTrialBalance   TaskCode = "VERIFY_TRIAL_BALANCE"
	TaskPostAllJournals      TaskCode = "POST_ALL_JOURNALS"
	TaskBankReconciliation   TaskCode = "BANK_RECONCILIATION"
	TaskAPReconciliation     TaskCode = "AP_RECONCILIATION"
	TaskARReconciliation     TaskCode = "AR_RECONCILIATION"
	TaskPostDepreciation     TaskCode = "POST_DEPRECIATION"
	TaskAmortizePrepaids     TaskCode = "AMORTIZE_PREPAIDS"
	TaskPostAccruals         TaskCode = "POST_ACCRUALS"
	TaskIntercompanyRecon    TaskCode = "INTERCOMPANY_RECONCILIATION"
	TaskInventoryRecon       TaskCode = "INVENTORY_RECONCILIATION"
	TaskNetIncomeTransfer    TaskCode = "NET_INCOME_TRANSFER"
	TaskPostClosingEntries   TaskCode = "POST_CLOSING_ENTRIES"
)

var (
	ErrNumberRequired       = errors.New("accounting: close number is required")
	ErrInvalidCloseType     = errors.New("accounting: close type must be month, quarter or year end")
	ErrCloseCompleted       = errors.New("accounting: close is completed and frozen")
	ErrAlreadyCompleted     = errors.New("accounting: close is already completed")
	ErrNotCompleted         = errors.New("accounting: only completed closes can be reopened")
	ErrTaskNotFound         = errors.New("accounting: close task not found")
	ErrTasksRemaining       = errors.New("accounting: required close tasks remain")
	ErrTrialBalanceRequired = errors.New("accounting: trial balance is not balanced")
	ErrCriticalIssuesOpen   = errors.New("accounting: unresolved critical issues remain")
	ErrNetIncomeNotMoved    = errors.New("accounting: net income has not been transferred")
	ErrIssueNotFound        = errors.New("accounting: unresolved issue not found")
	ErrResolutionRequired   = errors.New("accounting: resolution is required")
	ErrYearEndOnly          = errors.New("accounting: operation applies to year end closes only")
	ErrCloseIDRequired      = errors.New("accounting: close id is required")
	ErrDescriptionRequired  = errors.New("accounting: issue description is required")
)

// Task is one checklist item. Required tasks gate completion; optional tasks
// only feed the progress percentage.
type Task struct {
	Code        TaskCode
	Name        string
	Required    bool
	Done        bool
	CompletedAt *time.Time
}

// ValidationIssue is a problem surfaced during close validation.
type ValidationIssue struct {
	Description string
	Severity    Severity
	Resolved    bool
	Resolution  string
	ResolvedAt  *time.Time
}

// FiscalPeriodClose drives the period-end checklist and the final lock on a
// period. Completion requires every required task done, a balanced trial
// balance, no open critical issues and, at year end, the net income transfer.
type FiscalPeriodClose struct {
	ID                    uuid.UUID
	CloseNumber           string
	PeriodID              uuid.UUID
	CloseType             CloseType
	PeriodStartDate       time.Time
	PeriodEndDate         time.Time
	InitiatedAt           time.Time
	InitiatedBy           string
	Status                Status
	CompletedAt           *time.Time
	CompletedBy           string
	TrialBalanceID        *uuid.UUID
	TrialBalanceGenerated bool
	TrialBalanceBalanced  bool
	NetIncomeTransferred  bool
	FinalNetIncome        *decimal.Decimal
	ReopenReason          string
	ReopenedAt            *time.Time
	ReopenedBy            string
	Notes                 string
	Tasks                 []Task
	Issues                []ValidationIssue
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func validCloseType(t CloseType) bool {
	switch t {
	case MonthEnd, QuarterEnd, YearEnd:
		return true
	}
	return false
}

// standardTasks builds the checklist for a close cadence. Depreciation is
// required at month and year end, inventory reconciliation at year end, and
// intercompany reconciliation is never required. Year end adds the net income
// transfer and closing entry tasks.
func standardTasks(t CloseType) []Task {
	tasks := []Task{
		{Code: TaskGenerateTrialBalance, Name: "Generate Trial Balance", Required: true},
		{Code: TaskVerifyTrialBalance, Name: "Verify Trial Balance Balanced", Required: true},
		{Code: TaskPostAllJournals, Name: "Post All Journal Entries", Required: true},
		{Code: TaskBankReconciliation, Name: "Complete Bank Reconciliations", Required: true},
		{Code: TaskAPReconciliation, Name: "Reconcile AP Subsidiary Ledger", Required: true},
		{Code: TaskARReconciliation, Name: "Reconcile AR Subsidiary Ledger", Required: true},
		{Code: TaskPostDepreciation, Name: "Post Fixed Asset Depreciation", Required: t == MonthEnd || t == YearEnd},
		{Code: TaskAmortizePrepaids, Name: "Amortize Prepaid Expenses", Required: true},
		{Code: TaskPostAccruals, Name: "Post Accruals", Required: true},
		{Code: TaskIntercompanyRecon, Name: "Reconcile Inter-company Transactions", Required: false},
		{Code: TaskInventoryRecon, Name: "Reconcile Inventory", Required: t == YearEnd},
	}
	if t == YearEnd {
		tasks = append(tasks,
			Task{Code: TaskNetIncomeTransfer, Name: "Transfer Net Income to Retained Earnings", Required: true},
			Task{Code: TaskPostClosingEntries, Name: "Post Closing Entries", Required: true},
		)
	}
	return tasks
}

// NewFiscalPeriodClose starts a close with its standard checklist.
func NewFiscalPeriodClose(closeNumber string, periodID uuid.UUID, closeType CloseType, start, end time.Time, initiatedBy string, now time.Time) (FiscalPeriodClose, error) {
	closeNumber = strings.TrimSpace(closeNumber)
	if closeNumber == "" {
		return FiscalPeriodClose{}, ErrNumberRequired
	}
	if periodID == uuid.Nil {
		return FiscalPeriodClose{}, shared.ErrInvalidPeriod
	}
	if !validCloseType(closeType) {
		return FiscalPeriodClose{}, ErrInvalidCloseType
	}
	if strings.TrimSpace(initiatedBy) == "" {
		return FiscalPeriodClose{}, shared.ErrActorRequired
	}
	return FiscalPeriodClose{
		ID:              uuid.New(),
		CloseNumber:     closeNumber,
		PeriodID:        periodID,
		CloseType:       closeType,
		PeriodStartDate: start,
		PeriodEndDate:   end,
		InitiatedAt:     now,
		InitiatedBy:     strings.TrimSpace(initiatedBy),
		Status:          StatusInProgress,
		Tasks:           standardTasks(closeType),
	}, nil
}

// CompleteTask marks one checklist task done by its stable code.
func (c *FiscalPeriodClose) CompleteTask(code TaskCode, now time.Time) error {
	if c.Status == StatusCompleted {
		return ErrCloseCompleted
	}
	for i := range c.Tasks {
		if c.Tasks[i].Code == code {
			c.Tasks[i].Done = true
			c.Tasks[i].CompletedAt = &now
			return nil
		}
	}
	return ErrTaskNotFound
}

// AddIssue records a validation finding. Issues created with a resolution are
// immediately resolved.
func (c *FiscalPeriodClose) AddIssue(description string, severity Severity, resolution string, now time.Time) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return ErrDescriptionRequired
	}
	issue := ValidationIssue{Description: description, Severity: severity}
	if strings.TrimSpace(resolution) != "" {
		issue.Resolved = true
		issue.Resolution = strings.TrimSpace(resolution)
		issue.ResolvedAt = &now
	}
	c.Issues = append(c.Issues, issue)
	return nil
}

// ResolveIssue resolves the first unresolved issue with the description.
func (c *FiscalPeriodClose) ResolveIssue(description, resolution string, now time.Time) error {
	if strings.TrimSpace(resolution) == "" {
		return ErrResolutionRequired
	}
	description = strings.TrimSpace(description)
	for i := range c.Issues {
		if c.Issues[i].Description == description && !c.Issues[i].Resolved {
			c.Issues[i].Resolved = true
			c.Issues[i].Resolution = strings.TrimSpace(resolution)
			c.Issues[i].ResolvedAt = &now
			return nil
		}
	}
	return ErrIssueNotFound
}

// SetTrialBalance links the generated trial balance and auto-completes its
// checklist tasks. The verification task completes only when balanced.
func (c *FiscalPeriodClose) SetTrialBalance(trialBalanceID uuid.UUID, balanced bool, now time.Time) error {
	if c.Status == StatusCompleted {
		return ErrCloseCompleted
	}
	c.TrialBalanceID = &trialBalanceID
	c.TrialBalanceGenerated = true
	c.TrialBalanceBalanced = balanced
	if err := c.CompleteTask(TaskGenerateTrialBalance, now); err != nil {
		return err
	}
	if balanced {
		return c.CompleteTask(TaskVerifyTrialBalance, now)
	}
	return nil
}

// SetNetIncome records the period's final net income figure.
func (c *FiscalPeriodClose) SetNetIncome(netIncome decimal.Decimal) {
	c.FinalNetIncome = &netIncome
}

// MarkNetIncomeTransferred records the retained earnings transfer. Only year
// end closes carry this task.
func (c *FiscalPeriodClose) MarkNetIncomeTransferred(now time.Time) error {
	if c.CloseType != YearEnd {
		return ErrYearEndOnly
	}
	c.NetIncomeTransferred = true
	return c.CompleteTask(TaskNetIncomeTransfer, now)
}

// RequiredTasksRemaining counts required tasks not yet done.
func (c FiscalPeriodClose) RequiredTasksRemaining() int {
	remaining := 0
	for _, t := range c.Tasks {
		if t.Required && !t.Done {
			remaining++
		}
	}
	return remaining
}

// TasksCompleted counts all done tasks, required or not.
func (c FiscalPeriodClose) TasksCompleted() int {
	done := 0
	for _, t := range c.Tasks {
		if t.Done {
			done++
		}
	}
	return done
}

// CompletionPercent reports checklist progress across all tasks.
func (c FiscalPeriodClose) CompletionPercent() float64 {
	if len(c.Tasks) == 0 {
		return 0
	}
	return float64(c.TasksCompleted()) / float64(len(c.Tasks)) * 100
}

// HasUnresolvedCriticalIssues reports whether completion is blocked by issues.
func (c FiscalPeriodClose) HasUnresolvedCriticalIssues() bool {
	for _, i := range c.Issues {
		if !i.Resolved && i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Complete finalizes the close. Each precondition fails with its own error so
// callers can report exactly what blocks the close.
func (c *FiscalPeriodClose) Complete(completedBy string, now time.Time) error {
	if strings.TrimSpace(completedBy) == "" {
		return shared.ErrActorRequired
	}
	if c.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	if c.RequiredTasksRemaining() > 0 {
		return ErrTasksRemaining
	}
	if !c.TrialBalanceBalanced {
		return ErrTrialBalanceRequired
	}
	if c.HasUnresolvedCriticalIssues() {
		return ErrCriticalIssuesOpen
	}
	if c.CloseType == YearEnd && !c.NetIncomeTransferred {
		return ErrNetIncomeNotMoved
	}
	c.Status = StatusCompleted
	c.CompletedAt = &now
	c.CompletedBy = strings.TrimSpace(completedBy)
	return nil
}

// Reopen unlocks a completed close for corrections, appending the reason to
// its notes.
func (c *FiscalPeriodClose) Reopen(reopenedBy, reason string, now time.Time) error {
	if strings.TrimSpace(reopenedBy) == "" {
		return shared.ErrActorRequired
	}
	if strings.TrimSpace(reason) == "" {
		return shared.ErrReasonRequired
	}
	if c.Status != StatusCompleted {
		return ErrNotCompleted
	}
	c.Status = StatusReopened
	c.ReopenReason = strings.TrimSpace(reason)
	c.ReopenedAt = &now
	c.ReopenedBy = strings.TrimSpace(reopenedBy)
	c.CompletedAt = nil
	c.CompletedBy = ""
	note := "Reopened: " + strings.TrimSpace(reason)
	if c.Notes == "" {
		c.Notes = note
	} else {
		c.Notes = c.Notes + "\n\n" + note
	}
	return nil
}
