package recurring

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// Frequency enumerates recurrence cadences.
type Frequency string

const (
	Weekly    Frequency = "WEEKLY"
	Monthly   Frequency = "MONTHLY"
	Quarterly Frequency = "QUARTERLY"
	Annually  Frequency = "ANNUALLY"
	Custom    Frequency = "CUSTOM"
)

// TemplateStatus enumerates the template lifecycle.
type TemplateStatus string

const (
	TemplateDraft     TemplateStatus = "DRAFT"
	TemplateApproved  TemplateStatus = "APPROVED"
	TemplateSuspended TemplateStatus = "SUSPENDED"
	TemplateExpired   TemplateStatus = "EXPIRED"
)

var (
	ErrCodeRequired        = errors.New("accounting: template code is required")
	ErrDescriptionRequired = errors.New("accounting: template description is required")
	ErrAmountNotPositive   = errors.New("accounting: template amount must be positive")
	ErrInvalidFrequency    = errors.New("accounting: unknown recurrence frequency")
	ErrIntervalRequired    = errors.New("accounting: custom frequency needs a positive interval")
	ErrEndBeforeStart      = errors.New("accounting: end date cannot precede start date")
	ErrTemplateExpired     = errors.New("accounting: template is expired")
	ErrTemplateInactive    = errors.New("accounting: template is inactive")
	ErrNotApproved         = errors.New("accounting: template is not approved")
	ErrNotSuspended        = errors.New("accounting: only suspended templates can be reactivated")
	ErrTemplateIDRequired  = errors.New("accounting: template id is required")
)

// Template describes a journal entry generated on a schedule: a fixed amount
// moved between a debit and a credit account.
type Template struct {
	ID                 uuid.UUID
	Code               string
	Description        string
	Frequency          Frequency
	CustomIntervalDays int
	Amount             decimal.Decimal
	DebitAccountID     uuid.UUID
	CreditAccountID    uuid.UUID
	StartDate          time.Time
	EndDate            *time.Time
	NextRunDate        time.Time
	LastGeneratedAt    *time.Time
	GeneratedCount     int
	IsActive           bool
	Status             TemplateStatus
	ApprovedBy         string
	ApprovedAt         *time.Time
	Memo               string
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateInput carries the fields accepted when registering a template.
type CreateInput struct {
	Code               string
	Description        string
	Frequency          Frequency
	CustomIntervalDays int
	Amount             decimal.Decimal
	DebitAccountID     uuid.UUID
	CreditAccountID    uuid.UUID
	StartDate          time.Time
	EndDate            *time.Time
	Memo               string
}

func validFrequency(f Frequency) bool {
	switch f {
	case Weekly, Monthly, Quarterly, Annually, Custom:
		return true
	}
	return false
}

// NewTemplate validates and constructs an active draft template. The first
// run is scheduled on the start date.
func NewTemplate(in CreateInput) (Template, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return Template{}, ErrCodeRequired
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return Template{}, ErrDescriptionRequired
	}
	if !in.Amount.IsPositive() {
		return Template{}, ErrAmountNotPositive
	}
	if !validFrequency(in.Frequency) {
		return Template{}, ErrInvalidFrequency
	}
	if in.Frequency == Custom && in.CustomIntervalDays <= 0 {
		return Template{}, ErrIntervalRequired
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return Template{}, ErrEndBeforeStart
	}
	return Template{
		ID:                 uuid.New(),
		Code:               code,
		Description:        description,
		Frequency:          in.Frequency,
		CustomIntervalDays: in.CustomIntervalDays,
		Amount:             in.Amount,
		DebitAccountID:     in.DebitAccountID,
		CreditAccountID:    in.CreditAccountID,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		NextRunDate:        in.StartDate,
		IsActive:           true,
		Status:             TemplateDraft,
		Memo:               strings.TrimSpace(in.Memo),
	}, nil
}

// Approve allows the template to generate entries.
func (t *Template) Approve(approvedBy string, now time.Time) error {
	if strings.TrimSpace(approvedBy) == "" {
		return shared.ErrActorRequired
	}
	if t.Status == TemplateExpired {
		return ErrTemplateExpired
	}
	if t.Status == TemplateApproved {
		return shared.ErrAlreadyApproved
	}
	t.Status = TemplateApproved
	t.ApprovedBy = strings.TrimSpace(approvedBy)
	t.ApprovedAt = &now
	return nil
}

// Suspend pauses generation without deleting the template.
func (t *Template) Suspend(reason string) error {
	if t.Status == TemplateExpired {
		return ErrTemplateExpired
	}
	t.Status = TemplateSuspended
	t.IsActive = false
	if strings.TrimSpace(reason) != "" {
		note := "Suspended: " + strings.TrimSpace(reason)
		if t.Notes == "" {
			t.Notes = note
		} else {
			t.Notes = t.Notes + "\n" + note
		}
	}
	return nil
}

// Reactivate resumes a suspended template.
func (t *Template) Reactivate() error {
	if t.Status != TemplateSuspended {
		return ErrNotSuspended
	}
	t.Status = TemplateApproved
	t.IsActive = true
	return nil
}

// Due reports whether the template should generate on the given date.
func (t Template) Due(now time.Time) bool {
	if t.Status != TemplateApproved || !t.IsActive {
		return false
	}
	if now.Before(t.NextRunDate) {
		return false
	}
	if t.EndDate != nil && now.After(*t.EndDate) {
		return false
	}
	return true
}

// RecordGeneration advances the schedule after an entry was generated.
// Templates past their end date expire automatically.
func (t *Template) RecordGeneration(generatedAt time.Time) error {
	if t.Status != TemplateApproved {
		return ErrNotApproved
	}
	if !t.IsActive {
		return ErrTemplateInactive
	}
	t.LastGeneratedAt = &generatedAt
	t.GeneratedCount++
	t.NextRunDate = t.nextRunDate(generatedAt)
	if t.EndDate != nil && t.NextRunDate.After(*t.EndDate) {
		t.Status = TemplateExpired
		t.IsActive = false
	}
	return nil
}

func (t Template) nextRunDate(from time.Time) time.Time {
	switch t.Frequency {
	case Weekly:
		return from.AddDate(0, 0, 7)
	case Monthly:
		return from.AddDate(0, 1, 0)
	case Quarterly:
		return from.AddDate(0, 3, 0)
	case Annually:
		return from.AddDate(1, 0, 0)
	case Custom:
		return from.AddDate(0, 0, t.CustomIntervalDays)
	}
	return from
}
