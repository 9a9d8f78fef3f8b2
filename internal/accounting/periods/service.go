package periods

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/graniteledger/granite/internal/events"
)

// Service orchestrates period lifecycle operations.
type Service struct {
	repo    Repository
	publish events.Publisher
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, publish events.Publisher) *Service {
	if publish == nil {
		publish = events.Nop{}
	}
	return &Service{repo: repo, publish: publish, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and stores a new open period.
func (s *Service) Create(ctx context.Context, name string, start, end time.Time, fiscalYear int, periodType PeriodType, isAdjustment bool) (Period, error) {
	p, err := NewPeriod(name, start, end, fiscalYear, periodType, isAdjustment)
	if err != nil {
		return Period{}, err
	}
	inserted, err := s.repo.Insert(ctx, p)
	if err != nil {
		return Period{}, err
	}
	_ = s.publish.Publish(ctx, events.Event{
		Name:     events.PeriodCreated,
		Entity:   "accounting_period",
		EntityID: inserted.ID,
		At:       s.now(),
		Meta:     map[string]any{"name": inserted.Name, "fiscal_year": inserted.FiscalYear},
	})
	return inserted, nil
}

// Get loads one period.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Period, error) {
	return s.repo.Get(ctx, id)
}

// FindByDate resolves the period covering a date.
func (s *Service) FindByDate(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, date)
}

// List returns all periods ordered by start date.
func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// Close locks a period against further postings.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (Period, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if err := p.Close(s.now()); err != nil {
		return Period{}, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return Period{}, err
	}
	_ = s.publish.Publish(ctx, events.Event{
		Name:     events.PeriodClosed,
		Entity:   "accounting_period",
		EntityID: p.ID,
		At:       s.now(),
		Meta:     map[string]any{"name": p.Name, "end_date": p.EndDate},
	})
	return p, nil
}

// Reopen unlocks a closed period.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID) (Period, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if err := p.Reopen(); err != nil {
		return Period{}, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return Period{}, err
	}
	_ = s.publish.Publish(ctx, events.Event{
		Name:     events.PeriodReopened,
		Entity:   "accounting_period",
		EntityID: p.ID,
		At:       s.now(),
		Meta:     map[string]any{"name": p.Name},
	})
	return p, nil
}
