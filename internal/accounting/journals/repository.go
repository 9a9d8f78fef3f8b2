package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graniteledger/granite/internal/accounting/periods"
	"github.com/graniteledger/granite/internal/accounting/shared"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context) ([]JournalEntry, error)
	Get(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, e JournalEntry) error
	InsertLines(ctx context.Context, lines []Line) error
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	SaveEntry(ctx context.Context, e JournalEntry) error
	InsertLedgerRows(ctx context.Context, e JournalEntry, postedBy string, postedAt time.Time) error

	// Period lock needed inside journal transactions; mirrors the periods
	// repository but runs on this transaction's connection.
	GetPeriodForUpdate(ctx context.Context, periodID uuid.UUID) (periods.Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed journal repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, date, reference_number, description, source, period_id, original_amount, is_posted, posted_at, status, approved_by, approved_at, created_at, updated_at`

// scanEntry reads one journal entry row. approved_by is NULL until the entry
// is approved, so it scans through a pointer.
func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var approvedBy *string
	err := row.Scan(&e.ID, &e.Date, &e.ReferenceNumber, &e.Description, &e.Source, &e.PeriodID,
		&e.OriginalAmount, &e.IsPosted, &e.PostedAt, &e.Status, &approvedBy, &e.ApprovedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrNotFound
		}
		return JournalEntry{}, err
	}
	if approvedBy != nil {
		e.ApprovedBy = *approvedBy
	}
	return e, nil
}

func (r *repository) List(ctx context.Context) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return loadEntry(ctx, r.db, id, false)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadEntry(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(q.QueryRow(ctx, query, id))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, journal_id, account_id, debit, credit, memo, reference
FROM journal_lines WHERE journal_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Debit, &l.Credit, &l.Memo, &l.Reference); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, date, reference_number, description, source, period_id, original_amount, is_posted, posted_at, status, approved_by, approved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.Date, e.ReferenceNumber, e.Description, e.Source, e.PeriodID, e.OriginalAmount,
		e.IsPosted, e.PostedAt, e.Status, nullString(e.ApprovedBy), e.ApprovedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_journal_entries_reference" {
			return shared.ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertLines(ctx context.Context, lines []Line) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (id, journal_id, account_id, debit, credit, memo, reference)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			line.ID, line.JournalID, line.AccountID, line.Debit, line.Credit, line.Memo, line.Reference); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return loadEntry(ctx, r.tx, id, true)
}

func (r *txRepository) SaveEntry(ctx context.Context, e JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET date=$2, reference_number=$3, description=$4, source=$5, period_id=$6, original_amount=$7,
    is_posted=$8, posted_at=$9, status=$10, approved_by=$11, approved_at=$12, updated_at=NOW()
WHERE id=$1`,
		e.ID, e.Date, e.ReferenceNumber, e.Description, e.Source, e.PeriodID, e.OriginalAmount,
		e.IsPosted, e.PostedAt, e.Status, nullString(e.ApprovedBy), e.ApprovedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertLedgerRows derives one general ledger row per line of a posted entry.
// The ledger table is owned by the ledger package; writing it here keeps the
// derivation inside the posting transaction.
func (r *txRepository) InsertLedgerRows(ctx context.Context, e JournalEntry, postedBy string, postedAt time.Time) error {
	for _, line := range e.Lines {
		cmd, err := r.tx.Exec(ctx, `INSERT INTO general_ledger (id, entry_id, account_id, account_code, debit, credit, memo, transaction_date, reference_number, source, period_id, is_posted, posted_at, posted_by)
SELECT $1, $2, $3, a.code, $4, $5, $6, $7, $8, $9, $10, true, $11, $12
FROM chart_of_accounts a WHERE a.id = $3`,
			uuid.New(), e.ID, line.AccountID, line.Debit, line.Credit, line.Memo,
			e.Date, e.ReferenceNumber, e.Source, e.PeriodID, postedAt, postedBy)
		if err != nil {
			return err
		}
		// Zero rows means the account id matched nothing; posting must not
		// succeed with a missing ledger row.
		if cmd.RowsAffected() == 0 {
			return shared.ErrUnknownAccount
		}
	}
	return nil
}

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

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
