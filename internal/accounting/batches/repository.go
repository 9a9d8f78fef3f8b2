package batches

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/accounting/shared"
)

// Repository encapsulates DB operations for posting batches.
type Repository interface {
	List(ctx context.Context) ([]PostingBatch, error)
	Get(ctx context.Context, id uuid.UUID) (PostingBatch, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a batch transaction. Entry
// persistence mirrors the journals repository but runs on this transaction's
// connection so batch posting stays atomic.
type TxRepository interface {
	InsertBatch(ctx context.Context, b PostingBatch) error
	GetBatchForUpdate(ctx context.Context, id uuid.UUID) (PostingBatch, error)
	SaveBatch(ctx context.Context, b PostingBatch) error
	AttachEntry(ctx context.Context, batchID, entryID uuid.UUID) error
	GetEntryForUpdate(ctx context.Context, entryID uuid.UUID) (journals.JournalEntry, error)
	SaveEntry(ctx context.Context, e journals.JournalEntry) error
	InsertEntry(ctx context.Context, e journals.JournalEntry) error
	InsertEntryLines(ctx context.Context, lines []journals.Line) error
	InsertLedgerRows(ctx context.Context, e journals.JournalEntry, postedBy string, postedAt time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed batch repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const batchColumns = `id, batch_number, batch_date, description, period_id, status, approved_by, approved_at, posted_by, posted_at, reversed_by, reversed_at, total_debits, total_credits, entry_count, created_at, updated_at`

func scanBatch(row pgx.Row) (PostingBatch, error) {
	var b PostingBatch
	var approvedBy, postedBy, reversedBy *string
	err := row.Scan(&b.ID, &b.BatchNumber, &b.BatchDate, &b.Description, &b.PeriodID, &b.Status,
		&approvedBy, &b.ApprovedAt, &postedBy, &b.PostedAt, &reversedBy, &b.ReversedAt,
		&b.TotalDebits, &b.TotalCredits, &b.EntryCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingBatch{}, shared.ErrNotFound
		}
		return PostingBatch{}, err
	}
	if approvedBy != nil {
		b.ApprovedBy = *approvedBy
	}
	if postedBy != nil {
		b.PostedBy = *postedBy
	}
	if reversedBy != nil {
		b.ReversedBy = *reversedBy
	}
	return b, nil
}

func (r *repository) List(ctx context.Context) ([]PostingBatch, error) {
	rows, err := r.db.Query(ctx, `SELECT `+batchColumns+` FROM posting_batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostingBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (PostingBatch, error) {
	b, err := scanBatch(r.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM posting_batches WHERE id=$1`, id))
	if err != nil {
		return PostingBatch{}, err
	}
	entries, err := loadMemberEntries(ctx, r.db, id, false)
	if err != nil {
		return PostingBatch{}, err
	}
	b.Entries = entries
	return b, nil
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

const memberEntryColumns = `e.id, e.date, e.reference_number, e.description, e.source, e.period_id, e.original_amount, e.is_posted, e.posted_at, e.status, e.approved_by, e.approved_at, e.created_at, e.updated_at`

func loadMemberEntries(ctx context.Context, q querier, batchID uuid.UUID, forUpdate bool) ([]journals.JournalEntry, error) {
	query := `SELECT ` + memberEntryColumns + `
FROM journal_entries e JOIN posting_batch_entries be ON be.entry_id = e.id
WHERE be.batch_id = $1 ORDER BY e.created_at ASC`
	if forUpdate {
		query += ` FOR UPDATE OF e`
	}
	rows, err := q.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []journals.JournalEntry
	for rows.Next() {
		var e journals.JournalEntry
		var approvedBy *string
		if err := rows.Scan(&e.ID, &e.Date, &e.ReferenceNumber, &e.Description, &e.Source, &e.PeriodID,
			&e.OriginalAmount, &e.IsPosted, &e.PostedAt, &e.Status, &approvedBy, &e.ApprovedAt,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if approvedBy != nil {
			e.ApprovedBy = *approvedBy
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lineRows, err := q.Query(ctx, `SELECT id, journal_id, account_id, debit, credit, memo, reference
FROM journal_lines WHERE journal_id=$1 ORDER BY id ASC`, entries[i].ID)
		if err != nil {
			return nil, err
		}
		for lineRows.Next() {
			var l journals.Line
			if err := lineRows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Debit, &l.Credit, &l.Memo, &l.Reference); err != nil {
				lineRows.Close()
				return nil, err
			}
			entries[i].Lines = append(entries[i].Lines, l)
		}
		lineRows.Close()
		if err := lineRows.Err(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertBatch(ctx context.Context, b PostingBatch) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO posting_batches (id, batch_number, batch_date, description, period_id, status, total_debits, total_credits, entry_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.BatchNumber, b.BatchDate, b.Description, b.PeriodID, b.Status, b.TotalDebits, b.TotalCredits, b.EntryCount)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_posting_batches_number" {
			return shared.ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (PostingBatch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM posting_batches WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PostingBatch{}, err
	}
	entries, err := loadMemberEntries(ctx, r.tx, id, true)
	if err != nil {
		return PostingBatch{}, err
	}
	b.Entries = entries
	return b, nil
}

func (r *txRepository) SaveBatch(ctx context.Context, b PostingBatch) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE posting_batches
SET status=$2, approved_by=$3, approved_at=$4, posted_by=$5, posted_at=$6, reversed_by=$7, reversed_at=$8,
    total_debits=$9, total_credits=$10, entry_count=$11, updated_at=NOW()
WHERE id=$1`,
		b.ID, b.Status, nullString(b.ApprovedBy), b.ApprovedAt, nullString(b.PostedBy), b.PostedAt,
		nullString(b.ReversedBy), b.ReversedAt, b.TotalDebits, b.TotalCredits, b.EntryCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) AttachEntry(ctx context.Context, batchID, entryID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO posting_batch_entries (batch_id, entry_id) VALUES ($1,$2)`, batchID, entryID)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_posting_batch_entries" {
			return shared.ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, entryID uuid.UUID) (journals.JournalEntry, error) {
	var e journals.JournalEntry
	var approvedBy *string
	err := r.tx.QueryRow(ctx, `SELECT id, date, reference_number, description, source, period_id, original_amount, is_posted, posted_at, status, approved_by, approved_at, created_at, updated_at
FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID).
		Scan(&e.ID, &e.Date, &e.ReferenceNumber, &e.Description, &e.Source, &e.PeriodID,
			&e.OriginalAmount, &e.IsPosted, &e.PostedAt, &e.Status, &approvedBy, &e.ApprovedAt,
			&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journals.JournalEntry{}, shared.ErrNotFound
		}
		return journals.JournalEntry{}, err
	}
	if approvedBy != nil {
		e.ApprovedBy = *approvedBy
	}
	rows, err := r.tx.Query(ctx, `SELECT id, journal_id, account_id, debit, credit, memo, reference
FROM journal_lines WHERE journal_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l journals.Line
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Debit, &l.Credit, &l.Memo, &l.Reference); err != nil {
			return journals.JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (r *txRepository) SaveEntry(ctx context.Context, e journals.JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET is_posted=$2, posted_at=$3, status=$4, approved_by=$5, approved_at=$6, updated_at=NOW()
WHERE id=$1`,
		e.ID, e.IsPosted, e.PostedAt, e.Status, nullString(e.ApprovedBy), e.ApprovedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertEntry(ctx context.Context, e journals.JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, date, reference_number, description, source, period_id, original_amount, is_posted, posted_at, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.Date, e.ReferenceNumber, e.Description, e.Source, e.PeriodID, e.OriginalAmount,
		e.IsPosted, e.PostedAt, e.Status)
	return err
}

func (r *txRepository) InsertEntryLines(ctx context.Context, lines []journals.Line) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (id, journal_id, account_id, debit, credit, memo, reference)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			line.ID, line.JournalID, line.AccountID, line.Debit, line.Credit, line.Memo, line.Reference); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertLedgerRows(ctx context.Context, e journals.JournalEntry, postedBy string, postedAt time.Time) error {
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

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
