package journals

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/graniteledger/granite/internal/accounting/shared"
)

// stubRow mimics pgx scanning: NULL assigns nil to pointer destinations and
// fails on anything else.
type stubRow struct {
	err  error
	vals []any
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.vals[i] == nil {
			if target.Kind() != reflect.Pointer {
				return fmt.Errorf("cannot scan NULL into %T", d)
			}
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		src := reflect.ValueOf(r.vals[i])
		if !src.Type().AssignableTo(target.Type()) {
			if !src.Type().ConvertibleTo(target.Type()) {
				return fmt.Errorf("cannot scan %T into %T", r.vals[i], d)
			}
			src = src.Convert(target.Type())
		}
		target.Set(src)
	}
	return nil
}

func TestScanEntryHandlesNullApproval(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	row := stubRow{vals: []any{
		uuid.New(), created, "JE-100", "Office rent", "GL", nil,
		decimal.NewFromInt(2500), false, nil, "PENDING", nil, nil,
		created, created,
	}}

	e, err := scanEntry(row)
	if err != nil {
		t.Fatalf("scanEntry: %v", err)
	}
	if e.ApprovedBy != "" || e.ApprovedAt != nil {
		t.Fatalf("unapproved entry must scan empty approval fields: %+v", e)
	}
	if e.Status != ApprovalPending || e.ReferenceNumber != "JE-100" {
		t.Fatalf("entry fields not scanned: %+v", e)
	}
}

func TestScanEntryMapsNoRows(t *testing.T) {
	_, err := scanEntry(stubRow{err: pgx.ErrNoRows})
	if err != shared.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
