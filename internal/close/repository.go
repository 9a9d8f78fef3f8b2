package close

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graniteledger/granite/internal/accounting/periods"
	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/platform/db"
)

// Repository persists fiscal period closes with their tasks and issues.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (FiscalPeriodClose, error)
	List(ctx context.Context) ([]FiscalPeriodClose, error)
	HasCompletedClose(ctx context.Context, periodID uuid.UUID) (bool, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes the mutations that run inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, c FiscalPeriodClose) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (FiscalPeriodClose, error)
	Save(ctx context.Context, c FiscalPeriodClose) error
	GetPeriodForUpdate(ctx context.Context, periodID uuid.UUID) (periods.Period, error)
	SavePeriod(ctx context.Context, p periods.Period) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const closeColumns = `id, close_number, period_id, close_type, period_start_date, period_end_date,
initiated_at, initiated_by, status, completed_at, completed_by, trial_balance_id,
trial_balance_generated, trial_balance_balanced, net_income_transferred, final_net_income,
reopen_reason, reopened_at, reopened_by, notes, created_at, updated_at`

func scanClose(row pgx.Row) (FiscalPeriodClose, error) {
	var c FiscalPeriodClose
	var completedBy, reopenReason, reopenedBy, notes *string
	err := row.Scan(&c.ID, &c.CloseNumber, &c.PeriodID, &c.CloseType, &c.PeriodStartDate,
		&c.PeriodEndDate, &c.InitiatedAt, &c.InitiatedBy, &c.Status, &c.CompletedAt, &completedBy,
		&c.TrialBalanceID, &c.TrialBalanceGenerated, &c.TrialBalanceBalanced, &c.NetIncomeTransferred,
		&c.FinalNetIncome, &reopenReason, &c.ReopenedAt, &reopenedBy, &notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriodClose{}, shared.ErrNotFound
		}
		return FiscalPeriodClose{}, err
	}
	if completedBy != nil {
		c.CompletedBy = *completedBy
	}
	if reopenReason != nil {
		c.ReopenReason = *reopenReason
	}
	if reopenedBy != nil {
		c.ReopenedBy = *reopenedBy
	}
	if notes != nil {
		c.Notes = *notes
	}
	return c, nil
}

func loadChecklist(ctx context.Context, q querier, c *FiscalPeriodClose) error {
	rows, err := q.Query(ctx, `SELECT code, name, is_required, is_done, completed_at
FROM close_tasks WHERE close_id=$1 ORDER BY position`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	c.Tasks = nil
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.Code, &t.Name, &t.Required, &t.Done, &t.CompletedAt); err != nil {
			return err
		}
		c.Tasks = append(c.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	issueRows, err := q.Query(ctx, `SELECT description, severity, is_resolved, resolution, resolved_at
FROM close_issues WHERE close_id=$1 ORDER BY created_at`, c.ID)
	if err != nil {
		return err
	}
	defer issueRows.Close()
	c.Issues = nil
	for issueRows.Next() {
		var i ValidationIssue
		var resolution *string
		if err := issueRows.Scan(&i.Description, &i.Severity, &i.Resolved, &resolution, &i.ResolvedAt); err != nil {
			return err
		}
		if resolution != nil {
			i.Resolution = *resolution
		}
		c.Issues = append(c.Issues, i)
	}
	return issueRows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (FiscalPeriodClose, error) {
	c, err := scanClose(r.pool.QueryRow(ctx, `SELECT `+closeColumns+` FROM fiscal_period_closes WHERE id=$1`, id))
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	if err := loadChecklist(ctx, r.pool, &c); err != nil {
		return FiscalPeriodClose{}, err
	}
	return c, nil
}

func (r *repository) List(ctx context.Context) ([]FiscalPeriodClose, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+closeColumns+` FROM fiscal_period_closes ORDER BY initiated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriodClose
	for rows.Next() {
		c, err := scanClose(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasCompletedClose reports whether the period has a completed, not reopened,
// close on record.
func (r *repository) HasCompletedClose(ctx context.Context, periodID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM fiscal_period_closes WHERE period_id=$1 AND status=$2)`, periodID, StatusCompleted).Scan(&exists)
	return exists, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, c FiscalPeriodClose) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO fiscal_period_closes (id, close_number, period_id, close_type, period_start_date, period_end_date, initiated_at, initiated_by, status, completed_at, completed_by, trial_balance_id, trial_balance_generated, trial_balance_balanced, net_income_transferred, final_net_income, reopen_reason, reopened_at, reopened_by, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		c.ID, c.CloseNumber, c.PeriodID, c.CloseType, c.PeriodStartDate, c.PeriodEndDate,
		c.InitiatedAt, c.InitiatedBy, c.Status, c.CompletedAt, nullString(c.CompletedBy),
		c.TrialBalanceID, c.TrialBalanceGenerated, c.TrialBalanceBalanced, c.NetIncomeTransferred,
		c.FinalNetIncome, nullString(c.ReopenReason), c.ReopenedAt, nullString(c.ReopenedBy),
		nullString(c.Notes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_fiscal_period_closes_number" {
			return shared.ErrDuplicateNumber
		}
		return err
	}
	return r.replaceChecklist(ctx, c)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (FiscalPeriodClose, error) {
	c, err := scanClose(r.tx.QueryRow(ctx, `SELECT `+closeColumns+` FROM fiscal_period_closes WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return FiscalPeriodClose{}, err
	}
	if err := loadChecklist(ctx, r.tx, &c); err != nil {
		return FiscalPeriodClose{}, err
	}
	return c, nil
}

func (r *txRepository) Save(ctx context.Context, c FiscalPeriodClose) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_period_closes
SET status=$2, completed_at=$3, completed_by=$4, trial_balance_id=$5, trial_balance_generated=$6,
    trial_balance_balanced=$7, net_income_transferred=$8, final_net_income=$9, reopen_reason=$10,
    reopened_at=$11, reopened_by=$12, notes=$13, updated_at=NOW()
WHERE id=$1`,
		c.ID, c.Status, c.CompletedAt, nullString(c.CompletedBy), c.TrialBalanceID,
		c.TrialBalanceGenerated, c.TrialBalanceBalanced, c.NetIncomeTransferred, c.FinalNetIncome,
		nullString(c.ReopenReason), c.ReopenedAt, nullString(c.ReopenedBy), nullString(c.Notes))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return r.replaceChecklist(ctx, c)
}

func (r *txRepository) replaceChecklist(ctx context.Context, c FiscalPeriodClose) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM close_tasks WHERE close_id=$1`, c.ID); err != nil {
		return err
	}
	for i, t := range c.Tasks {
		if _, err := r.tx.Exec(ctx, `INSERT INTO close_tasks (id, close_id, position, code, name, is_required, is_done, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			uuid.New(), c.ID, i, t.Code, t.Name, t.Required, t.Done, t.CompletedAt); err != nil {
			return err
		}
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM close_issues WHERE close_id=$1`, c.ID); err != nil {
		return err
	}
	for _, i := range c.Issues {
		if _, err := r.tx.Exec(ctx, `INSERT INTO close_issues (id, close_id, description, severity, is_resolved, resolution, resolved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.New(), c.ID, i.Description, i.Severity, i.Resolved, nullString(i.Resolution), i.ResolvedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetPeriodForUpdate locks the period row so close completion and posting
// cannot interleave. Duplicated from the periods repo because the lock must
// run on this transaction.
func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID uuid.UUID) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, name, start_date, end_date, fiscal_year, period_type, is_adjustment, is_closed, closed_at, created_at, updated_at
FROM accounting_periods WHERE id=$1 FOR UPDATE`, periodID).
		Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.FiscalYear, &p.Type, &p.IsAdjustment,
			&p.IsClosed, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) SavePeriod(ctx context.Context, p periods.Period) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods
SET name=$2, start_date=$3, end_date=$4, fiscal_year=$5, period_type=$6, is_adjustment=$7,
    is_closed=$8, closed_at=$9, updated_at=NOW()
WHERE id=$1`,
		p.ID, p.Name, p.StartDate, p.EndDate, p.FiscalYear, p.Type, p.IsAdjustment, p.IsClosed, p.ClosedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
