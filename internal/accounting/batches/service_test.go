package batches

import (
	"context"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/accounting/shared"
)

type mockRepository struct {
	batches map[uuid.UUID]PostingBatch
	entries map[uuid.UUID]journals.JournalEntry
	lines   map[uuid.UUID][]journals.Line
	members map[uuid.UUID][]uuid.UUID

	ledgerRows int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		batches: make(map[uuid.UUID]PostingBatch),
		entries: make(map[uuid.UUID]journals.JournalEntry),
		lines:   make(map[uuid.UUID][]journals.Line),
		members: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *mockRepository) List(ctx context.Context) ([]PostingBatch, error) {
	out := make([]PostingBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (PostingBatch, error) {
	b, ok := m.batches[id]
	if !ok {
		return PostingBatch{}, shared.ErrNotFound
	}
	b.Entries = m.memberEntries(id)
	return b, nil
}

// WithTx rolls the in-memory state back when fn fails, mirroring the real
// transaction semantics.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	batches := maps.Clone(m.batches)
	entries := maps.Clone(m.entries)
	lines := maps.Clone(m.lines)
	members := maps.Clone(m.members)
	ledgerRows := m.ledgerRows
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.batches = batches
		m.entries = entries
		m.lines = lines
		m.members = members
		m.ledgerRows = ledgerRows
		return err
	}
	return nil
}

func (m *mockRepository) memberEntries(batchID uuid.UUID) []journals.JournalEntry {
	var entries []journals.JournalEntry
	for _, entryID := range m.members[batchID] {
		e := m.entries[entryID]
		e.Lines = m.lines[entryID]
		entries = append(entries, e)
	}
	return entries
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertBatch(ctx context.Context, b PostingBatch) error {
	for _, existing := range t.mock.batches {
		if existing.BatchNumber == b.BatchNumber {
			return shared.ErrDuplicateNumber
		}
	}
	t.mock.batches[b.ID] = b
	return nil
}

func (t *mockTxRepo) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (PostingBatch, error) {
	b, ok := t.mock.batches[id]
	if !ok {
		return PostingBatch{}, shared.ErrNotFound
	}
	b.Entries = t.mock.memberEntries(id)
	return b, nil
}

func (t *mockTxRepo) SaveBatch(ctx context.Context, b PostingBatch) error {
	if _, ok := t.mock.batches[b.ID]; !ok {
		return shared.ErrNotFound
	}
	b.Entries = nil
	t.mock.batches[b.ID] = b
	return nil
}

func (t *mockTxRepo) AttachEntry(ctx context.Context, batchID, entryID uuid.UUID) error {
	t.mock.members[batchID] = append(t.mock.members[batchID], entryID)
	return nil
}

func (t *mockTxRepo) GetEntryForUpdate(ctx context.Context, entryID uuid.UUID) (journals.JournalEntry, error) {
	e, ok := t.mock.entries[entryID]
	if !ok {
		return journals.JournalEntry{}, shared.ErrNotFound
	}
	e.Lines = t.mock.lines[entryID]
	return e, nil
}

func (t *mockTxRepo) SaveEntry(ctx context.Context, e journals.JournalEntry) error {
	if _, ok := t.mock.entries[e.ID]; !ok {
		return shared.ErrNotFound
	}
	e.Lines = nil
	t.mock.entries[e.ID] = e
	return nil
}

func (t *mockTxRepo) InsertEntry(ctx context.Context, e journals.JournalEntry) error {
	e.Lines = nil
	t.mock.entries[e.ID] = e
	return nil
}

func (t *mockTxRepo) InsertEntryLines(ctx context.Context, lines []journals.Line) error {
	for _, l := range lines {
		t.mock.lines[l.JournalID] = append(t.mock.lines[l.JournalID], l)
	}
	return nil
}

func (t *mockTxRepo) InsertLedgerRows(ctx context.Context, e journals.JournalEntry, postedBy string, postedAt time.Time) error {
	t.mock.ledgerRows += len(e.Lines)
	return nil
}

type stubGuard struct {
	err error
}

func (g stubGuard) EnsurePeriodOpenForPosting(ctx context.Context, periodID uuid.UUID) error {
	return g.err
}

func seedEntry(t *testing.T, repo *mockRepository, ref string, debit, credit decimal.Decimal) uuid.UUID {
	t.Helper()
	e := memberEntry(t, ref, debit, credit)
	lines := e.Lines
	e.Lines = nil
	repo.entries[e.ID] = e
	repo.lines[e.ID] = lines
	return e.ID
}

func seedBatch(t *testing.T, svc *Service, repo *mockRepository, entryIDs ...uuid.UUID) PostingBatch {
	t.Helper()
	batch, err := svc.Create(context.Background(), "BATCH-100",
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "month end batch", nil)
	require.NoError(t, err)
	for _, id := range entryIDs {
		batch, err = svc.AddEntry(context.Background(), batch.ID, id)
		require.NoError(t, err)
	}
	return batch
}

func TestBatchPostHappyPath(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	a := seedEntry(t, repo, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))
	b := seedEntry(t, repo, "JE-2", decimal.NewFromInt(40), decimal.NewFromInt(40))
	batch := seedBatch(t, svc, repo, a, b)
	assert.Equal(t, 2, batch.EntryCount)

	_, err := svc.Approve(context.Background(), batch.ID, "user-1")
	require.NoError(t, err)

	posted, err := svc.Post(context.Background(), batch.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, BatchStatusPosted, posted.Status)
	assert.Equal(t, 4, repo.ledgerRows)
	for _, id := range []uuid.UUID{a, b} {
		assert.True(t, repo.entries[id].IsPosted)
	}
}

func TestBatchPostBlockedByGuard(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{err: shared.ErrPeriodClosed}, nil)

	a := seedEntry(t, repo, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))
	periodID := uuid.New()
	batch, err := svc.Create(context.Background(), "BATCH-100",
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "month end batch", &periodID)
	require.NoError(t, err)
	_, err = svc.AddEntry(context.Background(), batch.ID, a)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), batch.ID, "user-1")
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), batch.ID, "user-2")
	assert.ErrorIs(t, err, shared.ErrPeriodClosed)
	assert.False(t, repo.entries[a].IsPosted)
}

func TestBatchPostAllOrNothing(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	// Members offset each other so the batch totals match exactly, but the
	// first entry is itself out of balance. No member may post.
	bad := seedEntry(t, repo, "JE-1", decimal.NewFromFloat(100.00), decimal.NewFromFloat(99.98))
	good := seedEntry(t, repo, "JE-2", decimal.NewFromFloat(99.98), decimal.NewFromFloat(100.00))
	batch := seedBatch(t, svc, repo, bad, good)

	_, err := svc.Approve(context.Background(), batch.ID, "user-1")
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), batch.ID, "user-2")
	assert.ErrorIs(t, err, shared.ErrUnbalanced)
	assert.Equal(t, 0, repo.ledgerRows)
	for _, id := range []uuid.UUID{bad, good} {
		assert.False(t, repo.entries[id].IsPosted)
	}
	assert.Equal(t, BatchStatusApproved, repo.batches[batch.ID].Status)
}

func TestBatchReverse(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	a := seedEntry(t, repo, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))
	batch := seedBatch(t, svc, repo, a)
	_, err := svc.Approve(context.Background(), batch.ID, "user-1")
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), batch.ID, "user-1")
	require.NoError(t, err)
	postedRows := repo.ledgerRows

	reversed, err := svc.Reverse(context.Background(), batch.ID, "user-2", "posted to wrong period")
	require.NoError(t, err)
	assert.Equal(t, BatchStatusReversed, reversed.Status)
	assert.Equal(t, "user-2", reversed.ReversedBy)
	assert.Equal(t, postedRows*2, repo.ledgerRows)

	var rev *journals.JournalEntry
	for id, e := range repo.entries {
		if strings.HasPrefix(e.ReferenceNumber, "REV-") {
			entry := e
			entry.Lines = repo.lines[id]
			rev = &entry
		}
	}
	require.NotNil(t, rev, "reversal entry not stored")
	assert.True(t, rev.IsPosted)
	assert.Equal(t, "GL:REVERSAL", rev.Source)
	require.Len(t, rev.Lines, 2)
	assert.True(t, rev.Lines[0].Credit.Equal(decimal.NewFromInt(100)))
	assert.True(t, rev.Lines[1].Debit.Equal(decimal.NewFromInt(100)))
}

func TestBatchReverseRequiresPosted(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	a := seedEntry(t, repo, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))
	batch := seedBatch(t, svc, repo, a)

	_, err := svc.Reverse(context.Background(), batch.ID, "user-2", "nope")
	assert.ErrorIs(t, err, shared.ErrNotPosted)
}
