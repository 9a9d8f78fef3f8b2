package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/events"
	"github.com/graniteledger/granite/internal/observability"
)

// Service exposes direct general ledger operations. Most ledger rows arrive
// through journal or batch posting; Record covers conversions and corrections
// entered straight against the ledger.
type Service struct {
	repo    Repository
	cache   *BalanceCache
	publish events.Publisher
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, cache *BalanceCache, publish events.Publisher, metrics *observability.Metrics) *Service {
	if publish == nil {
		publish = events.Nop{}
	}
	return &Service{repo: repo, cache: cache, publish: publish, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get loads one ledger row.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// ListByAccount returns every row touching the account, oldest first.
func (s *Service) ListByAccount(ctx context.Context, accountCode string) ([]Entry, error) {
	return s.repo.ListByAccount(ctx, accountCode)
}

// ListByPeriod returns every row in the period, oldest first.
func (s *Service) ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]Entry, error) {
	return s.repo.ListByPeriod(ctx, periodID)
}

// Record stores an unposted ledger row.
func (s *Service) Record(ctx context.Context, in CreateInput) (Entry, error) {
	entry, err := NewEntry(in)
	if err != nil {
		return Entry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	s.publishEvent(ctx, events.LedgerEntryCreated, entry.ID, map[string]any{
		"account_code": entry.AccountCode,
		"source":       entry.Source,
	})
	return entry, nil
}

// Post makes a row authoritative and invalidates cached balances.
func (s *Service) Post(ctx context.Context, id uuid.UUID, postedBy string) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Post(postedBy, s.now()); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.metrics.LedgerRowPosted()
	_ = s.cache.Bump(ctx)
	s.publishEvent(ctx, events.LedgerEntryPosted, entry.ID, map[string]any{
		"account_code": entry.AccountCode,
		"posted_by":    postedBy,
	})
	return entry, nil
}

// Update applies partial changes to an unposted row.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Update(in); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// AccountBalance returns the net posted balance for an account, optionally
// scoped to one period, served through the versioned cache.
func (s *Service) AccountBalance(ctx context.Context, accountCode string, periodID *uuid.UUID) (decimal.Decimal, error) {
	periodToken := "all"
	if periodID != nil {
		periodToken = periodID.String()
	}
	key, err := s.cache.BuildKey(ctx, accountCode, periodToken)
	if err != nil {
		return decimal.Zero, err
	}
	return s.cache.FetchBalance(ctx, key, func(ctx context.Context) (decimal.Decimal, error) {
		return s.repo.AccountBalance(ctx, accountCode, periodID)
	})
}

// InvalidateBalances bumps the cache version after out-of-band postings.
func (s *Service) InvalidateBalances(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) publishEvent(ctx context.Context, name string, id uuid.UUID, meta map[string]any) {
	_ = s.publish.Publish(ctx, events.Event{
		Name:     name,
		Entity:   "general_ledger",
		EntityID: id,
		At:       s.now(),
		Meta:     meta,
	})
}
