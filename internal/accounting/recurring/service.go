package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/events"
)

// Journals is the slice of the journal service the generator needs.
type Journals interface {
	Create(ctx context.Context, in journals.CreateInput) (journals.JournalEntry, error)
}

// Service manages recurring entry templates and generates their journal
// entries when due.
type Service struct {
	repo     Repository
	journals Journals
	publish  events.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, journalSvc Journals, publish events.Publisher, logger *slog.Logger) *Service {
	if publish == nil {
		publish = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journals: journalSvc, publish: publish, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get loads one template.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Template, error) {
	return s.repo.Get(ctx, id)
}

// List returns all templates ordered by code.
func (s *Service) List(ctx context.Context) ([]Template, error) {
	return s.repo.List(ctx)
}

// Create registers a draft template.
func (s *Service) Create(ctx context.Context, in CreateInput) (Template, error) {
	tpl, err := NewTemplate(in)
	if err != nil {
		return Template{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, tpl)
	})
	if err != nil {
		return Template{}, err
	}
	s.publishEvent(ctx, events.RecurringCreated, tpl.ID, map[string]any{
		"code":      tpl.Code,
		"frequency": tpl.Frequency,
		"amount":    tpl.Amount,
	})
	return tpl, nil
}

// Approve allows the template to generate entries.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (Template, error) {
	return s.transition(ctx, id, func(t *Template) error {
		return t.Approve(approvedBy, s.now())
	})
}

// Suspend pauses generation.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, reason string) (Template, error) {
	return s.transition(ctx, id, func(t *Template) error {
		return t.Suspend(reason)
	})
}

// Reactivate resumes a suspended template.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (Template, error) {
	return s.transition(ctx, id, func(t *Template) error {
		return t.Reactivate()
	})
}

// GenerateDue creates one draft journal entry for every template due as of
// now. A failing template is logged and skipped so one bad template cannot
// stall the schedule. Returns the number of entries generated.
func (s *Service) GenerateDue(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	generated := 0
	for _, tpl := range due {
		if !tpl.Due(asOf) {
			continue
		}
		if err := s.generateOne(ctx, tpl.ID, asOf); err != nil {
			s.logger.Error("recurring generation failed",
				slog.String("template", tpl.Code),
				slog.String("error", err.Error()))
			continue
		}
		generated++
	}
	return generated, nil
}

func (s *Service) generateOne(ctx context.Context, templateID uuid.UUID, asOf time.Time) error {
	var tpl Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, templateID)
		if err != nil {
			return err
		}
		if !current.Due(asOf) {
			return nil
		}
		if err := current.RecordGeneration(asOf); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		tpl = current
		return nil
	})
	if err != nil || tpl.ID == uuid.Nil {
		return err
	}

	entry, err := s.journals.Create(ctx, journals.CreateInput{
		Date:            asOf,
		ReferenceNumber: fmt.Sprintf("%s-%s", tpl.Code, asOf.Format("2006-01-02")),
		Description:     tpl.Description,
		Source:          "RECURRING",
		OriginalAmount:  tpl.Amount,
		Lines: []journals.LineInput{
			{AccountID: tpl.DebitAccountID, Debit: tpl.Amount, Memo: tpl.Memo},
			{AccountID: tpl.CreditAccountID, Credit: tpl.Amount, Memo: tpl.Memo},
		},
	})
	if err != nil {
		return err
	}
	s.publishEvent(ctx, events.RecurringGenerated, tpl.ID, map[string]any{
		"journal_id":   entry.ID,
		"generated_at": asOf,
		"next_run":     tpl.NextRunDate,
	})
	return nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(*Template) error) (Template, error) {
	if id == uuid.Nil {
		return Template{}, ErrTemplateIDRequired
	}
	var tpl Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		tpl = current
		return nil
	})
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (s *Service) publishEvent(ctx context.Context, name string, id uuid.UUID, meta map[string]any) {
	_ = s.publish.Publish(ctx, events.Event{
		Name:     name,
		Entity:   "recurring_template",
		EntityID: id,
		At:       s.now(),
		Meta:     meta,
	})
}
