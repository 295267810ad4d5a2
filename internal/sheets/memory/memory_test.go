package memory

import (
	"context"
	"testing"
	"time"

	"tally/internal/core"
)

func TestStoreAppend(t *testing.T) {
	store := New()
	ctx := context.Background()

	first := core.ProcessedTransaction{
		PaymentID:   "payment-1",
		Period:      "2025-03",
		Name:        "Rent",
		Amount:      core.Money{Cents: 120000},
		ProcessedAt: time.Now(),
	}
	ref, err := store.Append(ctx, first)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("row ref = %q, want mem:1", ref)
	}

	ref, err = store.Append(ctx, core.ProcessedTransaction{PaymentID: "payment-2", Period: "2025-03"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ref != "mem:2" {
		t.Errorf("row ref = %q, want mem:2", ref)
	}

	rows := store.Rows()
	if len(rows) != 2 {
		t.Fatalf("Rows() = %d entries, want 2", len(rows))
	}
	if rows[0].PaymentID != "payment-1" || rows[0].Amount.Cents != 120000 {
		t.Errorf("rows[0] = %+v", rows[0])
	}

	// The accessor hands out a copy.
	rows[0].PaymentID = "mutated"
	if store.Rows()[0].PaymentID != "payment-1" {
		t.Error("Rows() should return a copy, not the backing slice")
	}
}

func TestStoreAppendReset(t *testing.T) {
	store := New()
	ctx := context.Background()

	ref, err := store.AppendReset(ctx, "2025-04-01T00:00:00Z")
	if err != nil {
		t.Fatalf("AppendReset() error = %v", err)
	}
	if ref != "mem:reset:1" {
		t.Errorf("reset ref = %q, want mem:reset:1", ref)
	}

	resets := store.Resets()
	if len(resets) != 1 || resets[0] != "2025-04-01T00:00:00Z" {
		t.Errorf("Resets() = %v", resets)
	}
}
