package close

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/accounting/trialbalance"
	"github.com/graniteledger/granite/internal/events"
	"github.com/graniteledger/granite/internal/observability"
)

// TrialBalances is the slice of the trial balance store the close workflow
// needs.
type TrialBalances interface {
	Get(ctx context.Context, id uuid.UUID) (trialbalance.TrialBalance, error)
}

// Service runs the fiscal period close workflow. It also answers the posting
// gate: journals and batches ask it whether a period still accepts postings.
type Service struct {
	repo    Repository
	tbs     TrialBalances
	publish events.Publisher
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, tbs TrialBalances, publish events.Publisher, metrics *observability.Metrics) *Service {
	if publish == nil {
		publish = events.Nop{}
	}
	return &Service{repo: repo, tbs: tbs, publish: publish, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnsurePeriodOpenForPosting vetoes postings into periods with a completed
// close. Reopened closes lift the veto.
func (s *Service) EnsurePeriodOpenForPosting(ctx context.Context, periodID uuid.UUID) error {
	closed, err := s.repo.HasCompletedClose(ctx, periodID)
	if err != nil {
		return err
	}
	if closed {
		return shared.ErrPeriodClosed
	}
	return nil
}

// Get loads one close with its checklist and issues.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (FiscalPeriodClose, error) {
	return s.repo.Get(ctx, id)
}

// List returns all closes without checklists, newest first.
func (s *Service) List(ctx context.Context) ([]FiscalPeriodClose, error) {
	return s.repo.List(ctx)
}

// Initiate starts a close for a period that is still open.
func (s *Service) Initiate(ctx context.Context, periodID uuid.UUID, closeType CloseType, initiatedBy string) (FiscalPeriodClose, error) {
	var c FiscalPeriodClose
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.IsClosed {
			return shared.ErrPeriodClosed
		}
		number := fmt.Sprintf("CLOSE-%s", period.Name)
		created, err := NewFiscalPeriodClose(number, period.ID, closeType, period.StartDate, period.EndDate, initiatedBy, s.now())
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, created); err != nil {
			return err
		}
		c = created
		return nil
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	s.publishEvent(ctx, events.CloseInitiated, c.ID, map[string]any{
		"close_number": c.CloseNumber,
		"period_id":    c.PeriodID,
		"close_type":   c.CloseType,
		"initiated_by": c.InitiatedBy,
	})
	return c, nil
}

// CompleteTask checks off one checklist task by code.
func (s *Service) CompleteTask(ctx context.Context, closeID uuid.UUID, code TaskCode) (FiscalPeriodClose, error) {
	c, err := s.transition(ctx, closeID, func(c *FiscalPeriodClose) error {
		return c.CompleteTask(code, s.now())
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	s.publishEvent(ctx, events.CloseTaskCompleted, c.ID, map[string]any{"task": code})
	return c, nil
}

// AddIssue records a validation finding against the close.
func (s *Service) AddIssue(ctx context.Context, closeID uuid.UUID, description string, severity Severity, resolution string) (FiscalPeriodClose, error) {
	c, err := s.transition(ctx, closeID, func(c *FiscalPeriodClose) error {
		return c.AddIssue(description, severity, resolution, s.now())
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	s.publishEvent(ctx, events.CloseIssueFound, c.ID, map[string]any{
		"description": description,
		"severity":    severity,
	})
	return c, nil
}

// ResolveIssue resolves an open validation finding.
func (s *Service) ResolveIssue(ctx context.Context, closeID uuid.UUID, description, resolution string) (FiscalPeriodClose, error) {
	c, err := s.transition(ctx, closeID, func(c *FiscalPeriodClose) error {
		return c.ResolveIssue(description, resolution, s.now())
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	s.publishEvent(ctx, events.CloseIssueResolved, c.ID, map[string]any{"description": description})
	return c, nil
}

// AttachTrialBalance links a generated trial balance to the close and records
// its balance verdict and net income.
func (s *Service) AttachTrialBalance(ctx context.Context, closeID, trialBalanceID uuid.UUID) (FiscalPeriodClose, error) {
	tb, err := s.tbs.Get(ctx, trialBalanceID)
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	return s.transition(ctx, closeID, func(c *FiscalPeriodClose) error {
		if err := c.SetTrialBalance(tb.ID, tb.Balanced, s.now()); err != nil {
			return err
		}
		c.SetNetIncome(tb.NetIncome())
		return nil
	})
}

// MarkNetIncomeTransferred records the year-end retained earnings transfer.
func (s *Service) MarkNetIncomeTransferred(ctx context.Context, closeID uuid.UUID) (FiscalPeriodClose, error) {
	return s.transition(ctx, closeID, func(c *FiscalPeriodClose) error {
		return c.MarkNetIncomeTransferred(s.now())
	})
}

// Complete finalizes the close and locks the period in one transaction.
func (s *Service) Complete(ctx context.Context, closeID uuid.UUID, completedBy string) (FiscalPeriodClose, error) {
	if closeID == uuid.Nil {
		return FiscalPeriodClose{}, ErrCloseIDRequired
	}
	var c FiscalPeriodClose
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, closeID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		if err := current.Complete(completedBy, s.now()); err != nil {
			return err
		}
		if !period.IsClosed {
			if err := period.Close(s.now()); err != nil {
				return err
			}
			if err := tx.SavePeriod(ctx, period); err != nil {
				return err
			}
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		c = current
		return nil
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	s.metrics.CloseCompleted(string(c.CloseType))
	s.publishEvent(ctx, events.CloseCompleted, c.ID, map[string]any{
		"close_number": c.CloseNumber,
		"period_id":    c.PeriodID,
		"close_type":   c.CloseType,
		"completed_by": completedBy,
	})
	return c, nil
}

// Reopen unlocks a completed close and its period for corrections.
func (s *Service) Reopen(ctx context.Context, closeID uuid.UUID, reopenedBy, reason string) (FiscalPeriodClose, error) {
	if closeID == uuid.Nil {
		return FiscalPeriodClose{}, ErrCloseIDRequired
	}
	var c FiscalPeriodClose
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, closeID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		if err := current.Reopen(reopenedBy, reason, s.now()); err != nil {
			return err
		}
		if period.IsClosed {
			if err := period.Reopen(); err != nil {
				return err
			}
			if err := tx.SavePeriod(ctx, period); err != nil {
				return err
			}
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		c = current
		return nil
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	s.publishEvent(ctx, events.CloseReopened, c.ID, map[string]any{
		"reopened_by": reopenedBy,
		"reason":      reason,
	})
	return c, nil
}

func (s *Service) transition(ctx context.Context, closeID uuid.UUID, fn func(*FiscalPeriodClose) error) (FiscalPeriodClose, error) {
	if closeID == uuid.Nil {
		return FiscalPeriodClose{}, ErrCloseIDRequired
	}
	var c FiscalPeriodClose
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, closeID)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		c = current
		return nil
	})
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	return c, nil
}

func (s *Service) publishEvent(ctx context.Context, name string, id uuid.UUID, meta map[string]any) {
	_ = s.publish.Publish(ctx, events.Event{
		Name:     name,
		Entity:   "fiscal_period_close",
		EntityID: id,
		At:       s.now(),
		Meta:     meta,
	})
}
