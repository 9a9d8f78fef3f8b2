package trialbalance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/accounting/periods"
	"github.com/graniteledger/granite/internal/events"
	"github.com/graniteledger/granite/internal/observability"
)

// Service builds trial balances from posted ledger activity and runs their
// finalize and reopen lifecycle.
type Service struct {
	repo    Repository
	periods periods.Repository
	publish events.Publisher
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, periodRepo periods.Repository, publish events.Publisher, metrics *observability.Metrics) *Service {
	if publish == nil {
		publish = events.Nop{}
	}
	return &Service{repo: repo, periods: periodRepo, publish: publish, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get loads one trial balance with line items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (TrialBalance, error) {
	return s.repo.Get(ctx, id)
}

// List returns all trial balances without line items, newest first.
func (s *Service) List(ctx context.Context) ([]TrialBalance, error) {
	return s.repo.List(ctx)
}

// Generate builds a draft trial balance from the period's posted ledger rows.
func (s *Service) Generate(ctx context.Context, periodID uuid.UUID, includeZeroBalances bool) (TrialBalance, error) {
	period, err := s.periods.Get(ctx, periodID)
	if err != nil {
		return TrialBalance{}, err
	}
	number := fmt.Sprintf("TB-%s", period.Name)
	tb, err := New(number, period.ID, period.StartDate, period.EndDate, includeZeroBalances, s.now())
	if err != nil {
		return TrialBalance{}, err
	}
	balances, err := s.repo.AccountBalances(ctx, periodID)
	if err != nil {
		return TrialBalance{}, err
	}
	for _, b := range balances {
		if err := tb.AddLineItem(b.AccountCode, b.AccountName, b.AccountType, b.Debits, b.Credits); err != nil {
			return TrialBalance{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, tb)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	s.publishEvent(ctx, events.TrialBalanceCreated, tb.ID, map[string]any{
		"number":        tb.Number,
		"period_id":     tb.PeriodID,
		"account_count": tb.AccountCount,
		"balanced":      tb.Balanced,
	})
	return tb, nil
}

// Regenerate replaces the line items of a draft trial balance with fresh
// ledger sums.
func (s *Service) Regenerate(ctx context.Context, id uuid.UUID) (TrialBalance, error) {
	var tb TrialBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusFinalized {
			return ErrFinalized
		}
		balances, err := s.repo.AccountBalances(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		current.LineItems = nil
		for _, b := range balances {
			if err := current.AddLineItem(b.AccountCode, b.AccountName, b.AccountType, b.Debits, b.Credits); err != nil {
				return err
			}
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		tb = current
		return nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	s.publishEvent(ctx, events.TrialBalanceRecalculated, tb.ID, map[string]any{
		"total_debits":  tb.TotalDebits,
		"total_credits": tb.TotalCredits,
		"balanced":      tb.Balanced,
	})
	return tb, nil
}

// Finalize locks a balanced trial balance.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, finalizedBy string) (TrialBalance, error) {
	var tb TrialBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Finalize(finalizedBy, s.now()); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		tb = current
		return nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	s.metrics.TrialBalanceFinalized()
	s.publishEvent(ctx, events.TrialBalanceFinalized, tb.ID, map[string]any{
		"finalized_by":  finalizedBy,
		"total_debits":  tb.TotalDebits,
		"total_credits": tb.TotalCredits,
	})
	return tb, nil
}

// Reopen returns a finalized trial balance to draft.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID, reason string) (TrialBalance, error) {
	var tb TrialBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Reopen(reason); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		tb = current
		return nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	s.publishEvent(ctx, events.TrialBalanceReopened, tb.ID, map[string]any{"reason": reason})
	return tb, nil
}

func (s *Service) publishEvent(ctx context.Context, name string, id uuid.UUID, meta map[string]any) {
	_ = s.publish.Publish(ctx, events.Event{
		Name:     name,
		Entity:   "trial_balance",
		EntityID: id,
		At:       s.now(),
		Meta:     meta,
	})
}
