package trialbalance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/platform/db"
)

// AccountBalanceRow is the per-account posted activity used to build a trial
// balance.
type AccountBalanceRow struct {
	AccountCode string
	AccountName string
	AccountType AccountType
	Debits      decimal.Decimal
	Credits     decimal.Decimal
}

// Repository persists trial balances and answers the ledger sums they are
// built from.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (TrialBalance, error)
	List(ctx context.Context) ([]TrialBalance, error)
	AccountBalances(ctx context.Context, periodID uuid.UUID) ([]AccountBalanceRow, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes the mutations that run inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, tb TrialBalance) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (TrialBalance, error)
	Save(ctx context.Context, tb TrialBalance) error
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

const tbColumns = `id, number, period_id, generated_at, period_start_date, period_end_date,
total_debits, total_credits, total_assets, total_liabilities, total_equity, total_revenue,
total_expenses, out_of_balance, is_balanced, status, include_zero_balances, account_count,
finalized_at, finalized_by, notes, created_at, updated_at`

func scanTrialBalance(row pgx.Row) (TrialBalance, error) {
	var tb TrialBalance
	var finalizedBy, notes *string
	err := row.Scan(&tb.ID, &tb.Number, &tb.PeriodID, &tb.GeneratedAt, &tb.PeriodStartDate,
		&tb.PeriodEndDate, &tb.TotalDebits, &tb.TotalCredits, &tb.TotalAssets, &tb.TotalLiabilities,
		&tb.TotalEquity, &tb.TotalRevenue, &tb.TotalExpenses, &tb.OutOfBalanceAmount, &tb.Balanced,
		&tb.Status, &tb.IncludeZeroBalances, &tb.AccountCount, &tb.FinalizedAt, &finalizedBy,
		&notes, &tb.CreatedAt, &tb.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TrialBalance{}, shared.ErrNotFound
		}
		return TrialBalance{}, err
	}
	if finalizedBy != nil {
		tb.FinalizedBy = *finalizedBy
	}
	if notes != nil {
		tb.Notes = *notes
	}
	return tb, nil
}

func loadLineItems(ctx context.Context, q querier, tbID uuid.UUID) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT account_code, account_name, account_type, debit_balance, credit_balance
FROM trial_balance_lines WHERE trial_balance_id=$1 ORDER BY account_code`, tbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.AccountCode, &l.AccountName, &l.AccountType, &l.DebitBalance, &l.CreditBalance); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (TrialBalance, error) {
	tb, err := scanTrialBalance(r.pool.QueryRow(ctx, `SELECT `+tbColumns+` FROM trial_balances WHERE id=$1`, id))
	if err != nil {
		return TrialBalance{}, err
	}
	tb.LineItems, err = loadLineItems(ctx, r.pool, tb.ID)
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

func (r *repository) List(ctx context.Context) ([]TrialBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tbColumns+` FROM trial_balances ORDER BY generated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalance
	for rows.Next() {
		tb, err := scanTrialBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tb)
	}
	return out, rows.Err()
}

// AccountBalances sums posted ledger rows per account for the period, joined
// against the chart of accounts for name and classification.
func (r *repository) AccountBalances(ctx context.Context, periodID uuid.UUID) ([]AccountBalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT gl.account_code, a.name, a.account_type,
COALESCE(SUM(gl.debit),0), COALESCE(SUM(gl.credit),0)
FROM general_ledger gl
JOIN chart_of_accounts a ON a.code = gl.account_code
WHERE gl.period_id=$1 AND gl.is_posted
GROUP BY gl.account_code, a.name, a.account_type
ORDER BY gl.account_code`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalanceRow
	for rows.Next() {
		var b AccountBalanceRow
		if err := rows.Scan(&b.AccountCode, &b.AccountName, &b.AccountType, &b.Debits, &b.Credits); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, tb TrialBalance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO trial_balances (id, number, period_id, generated_at, period_start_date, period_end_date, total_debits, total_credits, total_assets, total_liabilities, total_equity, total_revenue, total_expenses, out_of_balance, is_balanced, status, include_zero_balances, account_count, finalized_at, finalized_by, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		tb.ID, tb.Number, tb.PeriodID, tb.GeneratedAt, tb.PeriodStartDate, tb.PeriodEndDate,
		tb.TotalDebits, tb.TotalCredits, tb.TotalAssets, tb.TotalLiabilities, tb.TotalEquity,
		tb.TotalRevenue, tb.TotalExpenses, tb.OutOfBalanceAmount, tb.Balanced, tb.Status,
		tb.IncludeZeroBalances, tb.AccountCount, tb.FinalizedAt, nullString(tb.FinalizedBy),
		nullString(tb.Notes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_trial_balances_number" {
			return shared.ErrDuplicateNumber
		}
		return err
	}
	return r.replaceLineItems(ctx, tb)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (TrialBalance, error) {
	tb, err := scanTrialBalance(r.tx.QueryRow(ctx, `SELECT `+tbColumns+` FROM trial_balances WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return TrialBalance{}, err
	}
	tb.LineItems, err = loadLineItems(ctx, r.tx, tb.ID)
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

func (r *txRepository) Save(ctx context.Context, tb TrialBalance) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE trial_balances
SET total_debits=$2, total_credits=$3, total_assets=$4, total_liabilities=$5, total_equity=$6,
    total_revenue=$7, total_expenses=$8, out_of_balance=$9, is_balanced=$10, status=$11,
    account_count=$12, finalized_at=$13, finalized_by=$14, notes=$15, updated_at=NOW()
WHERE id=$1`,
		tb.ID, tb.TotalDebits, tb.TotalCredits, tb.TotalAssets, tb.TotalLiabilities, tb.TotalEquity,
		tb.TotalRevenue, tb.TotalExpenses, tb.OutOfBalanceAmount, tb.Balanced, tb.Status,
		tb.AccountCount, tb.FinalizedAt, nullString(tb.FinalizedBy), nullString(tb.Notes))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return r.replaceLineItems(ctx, tb)
}

func (r *txRepository) replaceLineItems(ctx context.Context, tb TrialBalance) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM trial_balance_lines WHERE trial_balance_id=$1`, tb.ID); err != nil {
		return err
	}
	for _, l := range tb.LineItems {
		if _, err := r.tx.Exec(ctx, `INSERT INTO trial_balance_lines (id, trial_balance_id, account_code, account_name, account_type, debit_balance, credit_balance)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.New(), tb.ID, l.AccountCode, l.AccountName, l.AccountType, l.DebitBalance, l.CreditBalance); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
