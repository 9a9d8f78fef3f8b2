package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/platform/db"
)

// Repository persists recurring entry templates.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Template, error)
	List(ctx context.Context) ([]Template, error)
	ListDue(ctx context.Context, asOf time.Time) ([]Template, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes the mutations that run inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, t Template) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Template, error)
	Save(ctx context.Context, t Template) error
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

const templateColumns = `id, code, description, frequency, custom_interval_days, amount,
debit_account_id, credit_account_id, start_date, end_date, next_run_date, last_generated_at,
generated_count, is_active, status, approved_by, approved_at, memo, notes, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	var approvedBy, memo, notes *string
	err := row.Scan(&t.ID, &t.Code, &t.Description, &t.Frequency, &t.CustomIntervalDays, &t.Amount,
		&t.DebitAccountID, &t.CreditAccountID, &t.StartDate, &t.EndDate, &t.NextRunDate,
		&t.LastGeneratedAt, &t.GeneratedCount, &t.IsActive, &t.Status, &approvedBy, &t.ApprovedAt,
		&memo, &notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, shared.ErrNotFound
		}
		return Template{}, err
	}
	if approvedBy != nil {
		t.ApprovedBy = *approvedBy
	}
	if memo != nil {
		t.Memo = *memo
	}
	if notes != nil {
		t.Notes = *notes
	}
	return t, nil
}

func collectTemplates(rows pgx.Rows) ([]Template, error) {
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM recurring_templates ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTemplates(rows)
}

// ListDue returns approved active templates whose next run is on or before
// the given date and whose window has not ended.
func (r *repository) ListDue(ctx context.Context, asOf time.Time) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM recurring_templates
WHERE status=$1 AND is_active AND next_run_date <= $2 AND (end_date IS NULL OR end_date >= $2)
ORDER BY next_run_date`, TemplateApproved, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTemplates(rows)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, t Template) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO recurring_templates (id, code, description, frequency, custom_interval_days, amount, debit_account_id, credit_account_id, start_date, end_date, next_run_date, last_generated_at, generated_count, is_active, status, approved_by, approved_at, memo, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		t.ID, t.Code, t.Description, t.Frequency, t.CustomIntervalDays, t.Amount,
		t.DebitAccountID, t.CreditAccountID, t.StartDate, t.EndDate, t.NextRunDate,
		t.LastGeneratedAt, t.GeneratedCount, t.IsActive, t.Status, nullString(t.ApprovedBy),
		t.ApprovedAt, nullString(t.Memo), nullString(t.Notes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_recurring_templates_code" {
			return shared.ErrDuplicateNumber
		}
	}
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Template, error) {
	return scanTemplate(r.tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) Save(ctx context.Context, t Template) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_templates
SET description=$2, frequency=$3, custom_interval_days=$4, amount=$5, end_date=$6,
    next_run_date=$7, last_generated_at=$8, generated_count=$9, is_active=$10, status=$11,
    approved_by=$12, approved_at=$13, memo=$14, notes=$15, updated_at=NOW()
WHERE id=$1`,
		t.ID, t.Description, t.Frequency, t.CustomIntervalDays, t.Amount, t.EndDate,
		t.NextRunDate, t.LastGeneratedAt, t.GeneratedCount, t.IsActive, t.Status,
		nullString(t.ApprovedBy), t.ApprovedAt, nullString(t.Memo), nullString(t.Notes))
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
