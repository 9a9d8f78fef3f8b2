package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/graniteledger/granite/internal/accounting/recurring"
)

// RecurringGenerator runs scheduled generation of recurring journal entries.
type RecurringGenerator struct {
	svc    *recurring.Service
	logger *slog.Logger
}

// NewRecurringGenerator constructs the generator.
func NewRecurringGenerator(svc *recurring.Service, logger *slog.Logger) *RecurringGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecurringGenerator{svc: svc, logger: logger}
}

// Handler adapts the generator to an Asynq task. An empty payload generates
// as of now.
func (g *RecurringGenerator) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RecurringGeneratePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		asOf := payload.AsOf
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}
		generated, err := g.svc.GenerateDue(ctx, asOf)
		if err != nil {
			return err
		}
		g.logger.Info("recurring generation run",
			slog.Time("as_of", asOf),
			slog.Int("generated", generated))
		return nil
	}
}
