package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/observability"
)

// LedgerIntegrityScanner verifies that posted ledger debits and credits net
// to zero per period. A divergence means a posting transaction was bypassed.
type LedgerIntegrityScanner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLedgerIntegrityScanner constructs the scanner.
func NewLedgerIntegrityScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *LedgerIntegrityScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerIntegrityScanner{pool: pool, logger: logger, metrics: metrics}
}

type periodSums struct {
	PeriodID string
	Debits   decimal.Decimal
	Credits  decimal.Decimal
}

// Scan sums posted rows grouped by period and reports every divergence beyond
// the penny tolerance. Returns the number of periods out of balance.
func (s *LedgerIntegrityScanner) Scan(ctx context.Context, payload LedgerIntegrityPayload) (int, error) {
	query := `SELECT period_id::text, COALESCE(SUM(debit),0), COALESCE(SUM(credit),0)
FROM general_ledger WHERE is_posted AND period_id IS NOT NULL`
	args := []any{}
	if payload.PeriodID != nil {
		query += ` AND period_id=$1`
		args = append(args, *payload.PeriodID)
	}
	query += ` GROUP BY period_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	divergent := 0
	for rows.Next() {
		var p periodSums
		if err := rows.Scan(&p.PeriodID, &p.Debits, &p.Credits); err != nil {
			return divergent, err
		}
		diff := p.Debits.Sub(p.Credits)
		if shared.WithinTolerance(diff) {
			continue
		}
		divergent++
		s.metrics.PostingFailure("integrity")
		s.logger.Error("ledger out of balance",
			slog.String("period_id", p.PeriodID),
			slog.String("debits", p.Debits.String()),
			slog.String("credits", p.Credits.String()),
			slog.String("difference", diff.String()))
	}
	return divergent, rows.Err()
}

// Handler adapts the scanner to an Asynq task.
func (s *LedgerIntegrityScanner) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerIntegrityPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		divergent, err := s.Scan(ctx, payload)
		if err != nil {
			return err
		}
		if divergent == 0 {
			s.logger.Info("ledger integrity scan clean")
		}
		return nil
	}
}
