package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// Repository encapsulates DB operations for accounting periods.
type Repository interface {
	Insert(ctx context.Context, p Period) (Period, error)
	Get(ctx context.Context, id uuid.UUID) (Period, error)
	FindByDate(ctx context.Context, date time.Time) (Period, error)
	Save(ctx context.Context, p Period) error
	List(ctx context.Context) ([]Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, name, start_date, end_date, fiscal_year, period_type, is_adjustment, is_closed, closed_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.FiscalYear, &p.Type,
		&p.IsAdjustment, &p.IsClosed, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) Insert(ctx context.Context, p Period) (Period, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounting_periods (id, name, start_date, end_date, fiscal_year, period_type, is_adjustment, is_closed)
VALUES ($1,$2,$3,$4,$5,$6,$7,false) RETURNING `+periodColumns,
		p.ID, p.Name, p.StartDate, p.EndDate, p.FiscalYear, p.Type, p.IsAdjustment)
	return scanPeriod(row)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1`, id)
	return scanPeriod(row)
}

func (r *repository) FindByDate(ctx context.Context, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM accounting_periods WHERE start_date <= $1 AND end_date >= $1 AND is_adjustment = false
ORDER BY start_date ASC LIMIT 1`, date)
	return scanPeriod(row)
}

func (r *repository) Save(ctx context.Context, p Period) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_periods
SET name=$2, start_date=$3, end_date=$4, fiscal_year=$5, period_type=$6, is_adjustment=$7, is_closed=$8, closed_at=$9, updated_at=NOW()
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

func (r *repository) List(ctx context.Context) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods ORDER BY start_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.FiscalYear, &p.Type,
			&p.IsAdjustment, &p.IsClosed, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
