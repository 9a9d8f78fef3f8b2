package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
	"github.com/graniteledger/granite/internal/platform/db"
)

// Repository persists general ledger rows and answers balance queries.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	ListByAccount(ctx context.Context, accountCode string) ([]Entry, error)
	ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]Entry, error)
	AccountBalance(ctx context.Context, accountCode string, periodID *uuid.UUID) (decimal.Decimal, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes the mutations that run inside a posting transaction.
type TxRepository interface {
	Insert(ctx context.Context, e Entry) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Entry, error)
	Save(ctx context.Context, e Entry) error
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

const entryColumns = `id, entry_id, account_id, account_code, debit, credit, memo, usoa_class,
transaction_date, reference_number, source, source_id, period_id, is_posted, posted_at, posted_by,
created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var postedBy *string
	err := row.Scan(&e.ID, &e.EntryID, &e.AccountID, &e.AccountCode, &e.Debit, &e.Credit, &e.Memo,
		&e.UsoaClass, &e.TransactionDate, &e.ReferenceNumber, &e.Source, &e.SourceID, &e.PeriodID,
		&e.IsPosted, &e.PostedAt, &postedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, err
	}
	if postedBy != nil {
		e.PostedBy = *postedBy
	}
	return e, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM general_ledger WHERE id=$1`, id)
	return scanEntry(row)
}

func (r *repository) ListByAccount(ctx context.Context, accountCode string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM general_ledger
WHERE account_code=$1 ORDER BY transaction_date, created_at`, accountCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *repository) ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM general_ledger
WHERE period_id=$1 ORDER BY transaction_date, created_at`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// AccountBalance sums posted rows only. Unposted rows never move a balance.
func (r *repository) AccountBalance(ctx context.Context, accountCode string, periodID *uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM general_ledger
WHERE account_code=$1 AND is_posted`
	args := []any{accountCode}
	if periodID != nil {
		query += ` AND period_id=$2`
		args = append(args, *periodID)
	}
	var debits, credits decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&debits, &credits); err != nil {
		return decimal.Zero, err
	}
	return debits.Sub(credits), nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, e Entry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO general_ledger (id, entry_id, account_id, account_code, debit, credit, memo, usoa_class, transaction_date, reference_number, source, source_id, period_id, is_posted, posted_at, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.EntryID, e.AccountID, e.AccountCode, e.Debit, e.Credit, e.Memo, e.UsoaClass,
		e.TransactionDate, e.ReferenceNumber, e.Source, e.SourceID, e.PeriodID,
		e.IsPosted, e.PostedAt, nullString(e.PostedBy))
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM general_ledger WHERE id=$1 FOR UPDATE`, id)
	return scanEntry(row)
}

func (r *txRepository) Save(ctx context.Context, e Entry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE general_ledger
SET debit=$2, credit=$3, memo=$4, usoa_class=$5, reference_number=$6,
    is_posted=$7, posted_at=$8, posted_by=$9, updated_at=NOW()
WHERE id=$1`,
		e.ID, e.Debit, e.Credit, e.Memo, e.UsoaClass, e.ReferenceNumber,
		e.IsPosted, e.PostedAt, nullString(e.PostedBy))
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
