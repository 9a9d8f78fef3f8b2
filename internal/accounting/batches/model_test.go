package batches

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/accounting/shared"
)

func draftBatch(t *testing.T) PostingBatch {
	t.Helper()
	b, err := NewPostingBatch("BATCH-001",
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "March close batch", nil)
	if err != nil {
		t.Fatalf("NewPostingBatch: %v", err)
	}
	return b
}

func memberEntry(t *testing.T, ref string, debit, credit decimal.Decimal) journals.JournalEntry {
	t.Helper()
	e, err := journals.NewJournalEntry(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		ref, "batch member", "GL", nil, debit)
	if err != nil {
		t.Fatalf("NewJournalEntry: %v", err)
	}
	if err := e.AddLine(uuid.New(), debit, decimal.Zero, "", ""); err != nil {
		t.Fatalf("AddLine debit: %v", err)
	}
	if err := e.AddLine(uuid.New(), decimal.Zero, credit, "", ""); err != nil {
		t.Fatalf("AddLine credit: %v", err)
	}
	return e
}

func TestNewPostingBatchRequiresNumber(t *testing.T) {
	_, err := NewPostingBatch("  ", time.Now(), "x", nil)
	if !errors.Is(err, ErrNumberRequired) {
		t.Fatalf("expected ErrNumberRequired, got %v", err)
	}
}

func TestAddEntryRecalculatesTotals(t *testing.T) {
	b := draftBatch(t)

	if err := b.AddEntry(memberEntry(t, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.AddEntry(memberEntry(t, "JE-2", decimal.NewFromInt(250), decimal.NewFromInt(250))); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if b.EntryCount != 2 {
		t.Fatalf("entry count = %d, want 2", b.EntryCount)
	}
	if !b.TotalDebits.Equal(decimal.NewFromInt(350)) || !b.TotalCredits.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("totals = %s / %s, want 350 / 350", b.TotalDebits, b.TotalCredits)
	}
}

func TestAddEntryRejectsPostedEntry(t *testing.T) {
	b := draftBatch(t)
	e := memberEntry(t, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))
	if err := e.Post(time.Now()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := b.AddEntry(e); !errors.Is(err, shared.ErrAlreadyPosted) {
		t.Fatalf("expected ErrAlreadyPosted, got %v", err)
	}
}

func TestAddEntryDraftOnly(t *testing.T) {
	b := draftBatch(t)
	if err := b.Approve("user-1", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	err := b.AddEntry(memberEntry(t, "JE-1", decimal.NewFromInt(10), decimal.NewFromInt(10)))
	if !errors.Is(err, ErrNotDraft) {
		t.Fatalf("expected ErrNotDraft, got %v", err)
	}
}

func TestApproveGuards(t *testing.T) {
	b := draftBatch(t)
	now := time.Now()

	if err := b.Approve("", now); !errors.Is(err, shared.ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
	if err := b.Approve("user-1", now); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if b.ApprovedBy != "user-1" || b.ApprovedAt == nil {
		t.Fatalf("approval state: %+v", b)
	}
	if err := b.Approve("user-2", now); !errors.Is(err, shared.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}

	r := draftBatch(t)
	if err := r.Reject("user-1", now); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := r.Reject("user-1", now); !errors.Is(err, shared.ErrAlreadyRejected) {
		t.Fatalf("expected ErrAlreadyRejected, got %v", err)
	}
}

func TestPostRequiresApproval(t *testing.T) {
	b := draftBatch(t)
	if err := b.AddEntry(memberEntry(t, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.Post("user-1", time.Now()); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestPostHappyPath(t *testing.T) {
	b := draftBatch(t)
	now := time.Now()
	if err := b.AddEntry(memberEntry(t, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.AddEntry(memberEntry(t, "JE-2", decimal.NewFromInt(40), decimal.NewFromInt(40))); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.Approve("user-1", now); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := b.Post("user-2", now); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if b.Status != BatchStatusPosted || b.PostedBy != "user-2" || b.PostedAt == nil {
		t.Fatalf("posted state: %+v", b)
	}
	for _, e := range b.Entries {
		if !e.IsPosted {
			t.Fatalf("member %s not posted", e.ReferenceNumber)
		}
	}
	if err := b.Post("user-2", now); !errors.Is(err, shared.ErrAlreadyPosted) {
		t.Fatalf("expected ErrAlreadyPosted, got %v", err)
	}
}

func TestPostStrictBalance(t *testing.T) {
	b := draftBatch(t)
	now := time.Now()

	// A half-cent drift passes the per-entry tolerance but the batch
	// total comparison is exact.
	e := memberEntry(t, "JE-1", decimal.NewFromFloat(100.00), decimal.NewFromFloat(99.995))
	if !e.IsBalanced() {
		t.Fatalf("member entry should be within tolerance: %s", e.Difference())
	}
	if err := b.AddEntry(e); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.Approve("user-1", now); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := b.Post("user-1", now); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}
	if b.Status != BatchStatusApproved {
		t.Fatalf("failed post must not change status: %s", b.Status)
	}
}

func TestPostAllOrNothing(t *testing.T) {
	b := draftBatch(t)
	now := time.Now()

	// Members offset each other so batch totals match exactly, but the
	// first entry fails its own balance validation. Nothing may post.
	bad := memberEntry(t, "JE-1", decimal.NewFromFloat(100.00), decimal.NewFromFloat(99.98))
	good := memberEntry(t, "JE-2", decimal.NewFromFloat(99.98), decimal.NewFromFloat(100.00))
	if err := b.AddEntry(bad); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.AddEntry(good); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if !b.TotalDebits.Equal(b.TotalCredits) {
		t.Fatalf("test setup: totals must match, got %s / %s", b.TotalDebits, b.TotalCredits)
	}
	if err := b.Approve("user-1", now); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := b.Post("user-1", now); !errors.Is(err, shared.ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}
	for _, e := range b.Entries {
		if e.IsPosted {
			t.Fatalf("member %s posted despite failed batch", e.ReferenceNumber)
		}
	}
	if b.Status != BatchStatusApproved {
		t.Fatalf("failed post must not change status: %s", b.Status)
	}
}

func TestReverseLifecycle(t *testing.T) {
	b := draftBatch(t)
	now := time.Now()

	if err := b.ValidateReverse("user-1", "duplicate batch"); !errors.Is(err, shared.ErrNotPosted) {
		t.Fatalf("expected ErrNotPosted, got %v", err)
	}

	if err := b.AddEntry(memberEntry(t, "JE-1", decimal.NewFromInt(100), decimal.NewFromInt(100))); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.Approve("user-1", now); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := b.Post("user-1", now); err != nil {
		t.Fatalf("Post: %v", err)
	}

	if err := b.ValidateReverse("", "duplicate batch"); !errors.Is(err, shared.ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
	if err := b.ValidateReverse("user-2", "  "); !errors.Is(err, shared.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if err := b.ValidateReverse("user-2", "duplicate batch"); err != nil {
		t.Fatalf("ValidateReverse: %v", err)
	}

	b.MarkReversed("user-2", now)
	if b.Status != BatchStatusReversed || b.ReversedBy != "user-2" || b.ReversedAt == nil {
		t.Fatalf("reversed state: %+v", b)
	}
}
