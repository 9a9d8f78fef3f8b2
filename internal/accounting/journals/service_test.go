package journals

import (
	"context"
	"maps"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graniteledger/granite/internal/accounting/periods"
	"github.com/graniteledger/granite/internal/accounting/shared"
)

type mockRepository struct {
	entries map[uuid.UUID]JournalEntry
	lines   map[uuid.UUID][]Line
	periods map[uuid.UUID]periods.Period

	ledgerRows int
	ledgerErr  error
	txError    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		entries: make(map[uuid.UUID]JournalEntry),
		lines:   make(map[uuid.UUID][]Line),
		periods: make(map[uuid.UUID]periods.Period),
	}
}

func (m *mockRepository) List(ctx context.Context) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrNotFound
	}
	e.Lines = m.lines[id]
	return e, nil
}

// WithTx rolls the in-memory state back when fn fails, mirroring the real
// transaction semantics.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	entries := maps.Clone(m.entries)
	lines := maps.Clone(m.lines)
	ledgerRows := m.ledgerRows
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.entries = entries
		m.lines = lines
		m.ledgerRows = ledgerRows
		return err
	}
	return nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertEntry(ctx context.Context, e JournalEntry) error {
	for _, existing := range t.mock.entries {
		if existing.ReferenceNumber == e.ReferenceNumber {
			return shared.ErrDuplicateNumber
		}
	}
	t.mock.entries[e.ID] = e
	return nil
}

func (t *mockTxRepo) InsertLines(ctx context.Context, lines []Line) error {
	for _, l := range lines {
		t.mock.lines[l.JournalID] = append(t.mock.lines[l.JournalID], l)
	}
	return nil
}

func (t *mockTxRepo) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return t.mock.Get(ctx, id)
}

func (t *mockTxRepo) SaveEntry(ctx context.Context, e JournalEntry) error {
	if _, ok := t.mock.entries[e.ID]; !ok {
		return shared.ErrNotFound
	}
	t.mock.entries[e.ID] = e
	return nil
}

func (t *mockTxRepo) InsertLedgerRows(ctx context.Context, e JournalEntry, postedBy string, postedAt time.Time) error {
	if t.mock.ledgerErr != nil {
		return t.mock.ledgerErr
	}
	t.mock.ledgerRows += len(e.Lines)
	return nil
}

func (t *mockTxRepo) GetPeriodForUpdate(ctx context.Context, periodID uuid.UUID) (periods.Period, error) {
	p, ok := t.mock.periods[periodID]
	if !ok {
		return periods.Period{}, shared.ErrInvalidPeriod
	}
	return p, nil
}

type stubInvalidator struct {
	calls int
}

func (s *stubInvalidator) InvalidateBalances(ctx context.Context) error {
	s.calls++
	return nil
}

type stubGuard struct {
	err error
}

func (g stubGuard) EnsurePeriodOpenForPosting(ctx context.Context, periodID uuid.UUID) error {
	return g.err
}

func openPeriod(t *testing.T, repo *mockRepository) uuid.UUID {
	t.Helper()
	p, err := periods.NewPeriod("2025-03",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		2025, periods.PeriodTypeMonthly, false)
	require.NoError(t, err)
	repo.periods[p.ID] = p
	return p.ID
}

func balancedInput(periodID *uuid.UUID) CreateInput {
	return CreateInput{
		Date:            time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ReferenceNumber: "JE-100",
		Description:     "Office rent",
		Source:          "GL",
		PeriodID:        periodID,
		OriginalAmount:  decimal.NewFromInt(2500),
		Lines: []LineInput{
			{AccountID: uuid.New(), Debit: decimal.NewFromInt(2500)},
			{AccountID: uuid.New(), Credit: decimal.NewFromInt(2500)},
		},
	}
}

func TestCreateAndPost(t *testing.T) {
	repo := newMockRepository()
	periodID := openPeriod(t, repo)
	svc := NewService(repo, nil, stubGuard{}, nil)
	inv := &stubInvalidator{}
	svc.WithBalanceInvalidator(inv)

	entry, err := svc.Create(context.Background(), balancedInput(&periodID))
	require.NoError(t, err)
	assert.False(t, entry.IsPosted)
	assert.Len(t, repo.lines[entry.ID], 2)
	assert.Equal(t, 0, inv.calls)

	posted, err := svc.Post(context.Background(), entry.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, posted.IsPosted)
	assert.NotNil(t, posted.PostedAt)
	assert.Equal(t, 2, repo.ledgerRows)
	assert.Equal(t, 1, inv.calls)
}

func TestPostRequiresActor(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)
	_, err := svc.Post(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, shared.ErrActorRequired)
}

func TestPostRejectsUnbalanced(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	in := balancedInput(nil)
	in.Lines[1].Credit = decimal.NewFromInt(2400)
	entry, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	assert.ErrorIs(t, err, shared.ErrUnbalanced)
	assert.Equal(t, 0, repo.ledgerRows)

	stored, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPosted)
}

func TestPostRejectsTooFewLines(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	in := balancedInput(nil)
	in.Lines = in.Lines[:1]
	entry, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	assert.ErrorIs(t, err, shared.ErrTooFewLines)
}

func TestPostBlockedByCloseGuard(t *testing.T) {
	repo := newMockRepository()
	periodID := openPeriod(t, repo)
	svc := NewService(repo, nil, stubGuard{err: shared.ErrPeriodClosed}, nil)

	entry, err := svc.Create(context.Background(), balancedInput(&periodID))
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	assert.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestPostBlockedByClosedPeriodFlag(t *testing.T) {
	repo := newMockRepository()
	periodID := openPeriod(t, repo)
	p := repo.periods[periodID]
	require.NoError(t, p.Close(time.Now()))
	repo.periods[periodID] = p

	svc := NewService(repo, nil, stubGuard{}, nil)
	entry, err := svc.Create(context.Background(), balancedInput(&periodID))
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	assert.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestPostRejectsDateOutsidePeriod(t *testing.T) {
	repo := newMockRepository()
	periodID := openPeriod(t, repo)
	svc := NewService(repo, nil, stubGuard{}, nil)

	in := balancedInput(&periodID)
	in.Date = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	entry, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	assert.ErrorIs(t, err, shared.ErrDateOutOfRange)
}

func TestPostFailsWhenAccountUnknown(t *testing.T) {
	repo := newMockRepository()
	repo.ledgerErr = shared.ErrUnknownAccount
	svc := NewService(repo, nil, stubGuard{}, nil)

	entry, err := svc.Create(context.Background(), balancedInput(nil))
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	assert.ErrorIs(t, err, shared.ErrUnknownAccount)

	// The transaction failed, so the entry must not end up posted.
	stored, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPosted)
	assert.Equal(t, 0, repo.ledgerRows)
}

func TestDuplicateReferenceRejected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	_, err := svc.Create(context.Background(), balancedInput(nil))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), balancedInput(nil))
	assert.ErrorIs(t, err, shared.ErrDuplicateNumber)
}

func TestReverseCreatesOffsettingEntry(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	entry, err := svc.Create(context.Background(), balancedInput(nil))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), entry.ID, "user-1")
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{
		EntryID: entry.ID,
		Reason:  "booked to wrong account",
		ActorID: "user-2",
	})
	require.NoError(t, err)
	assert.True(t, reversal.IsPosted)
	assert.Equal(t, "REV-JE-100", reversal.ReferenceNumber)
	assert.Equal(t, "GL:REVERSAL", reversal.Source)

	original, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, original.IsPosted)

	// Original lines debit 2500; reversal must credit 2500 on that account.
	revLines := repo.lines[reversal.ID]
	require.Len(t, revLines, 2)
	assert.True(t, revLines[0].Credit.Equal(decimal.NewFromInt(2500)))
	assert.True(t, revLines[1].Debit.Equal(decimal.NewFromInt(2500)))
}

func TestReverseRequiresPostedEntry(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, stubGuard{}, nil)

	entry, err := svc.Create(context.Background(), balancedInput(nil))
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ReverseInput{
		EntryID: entry.ID,
		Reason:  "oops",
		ActorID: "user-2",
	})
	assert.ErrorIs(t, err, shared.ErrNotPosted)
}
