package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"DiceVault/internal/ident"
	"DiceVault/internal/journal"
)

// newTestJournal opens a journal in a temporary directory.
func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	t.Cleanup(func() { j.Close() })

	return j
}

func receipt(pool ident.Hash, amount uint64) journal.Receipt {
	return journal.Receipt{
		ID:           uuid.New(),
		Pool:         pool,
		Player:       ident.Hash{0xA1},
		Source:       ident.Hash{0xA2},
		Amount:       amount,
		Side:         3,
		Timestamp:    -9,
		Outcome:      "paid",
		Payout:       amount * 2,
		VaultBalance: math.MaxUint64,
	}
}

// TestRecordAndList verifies newest-first order and full-range amounts.
func TestRecordAndList(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	pool := ident.Hash{0x50}

	first := receipt(pool, 10)
	second := receipt(pool, 20)

	for _, r := range []journal.Receipt{first, second} {
		if err := j.Record(ctx, r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := j.List(ctx, pool, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("List returned %d receipts, want 2", len(got))
	}

	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = %s, %s; want newest first", got[0].ID, got[1].ID)
	}

	r := got[1]
	if r.Amount != 10 || r.Payout != 20 || r.VaultBalance != math.MaxUint64 {
		t.Errorf("amounts = %d/%d/%d", r.Amount, r.Payout, r.VaultBalance)
	}

	if r.Side != 3 || r.Timestamp != -9 || r.Outcome != "paid" || r.Player != first.Player {
		t.Errorf("fields not preserved: %+v", r)
	}

	if r.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestListFiltersByPool(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	_ = j.Record(ctx, receipt(ident.Hash{1}, 1))
	_ = j.Record(ctx, receipt(ident.Hash{2}, 2))
	_ = j.Record(ctx, receipt(ident.Hash{1}, 3))

	one, err := j.List(ctx, ident.Hash{1}, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(one) != 2 {
		t.Errorf("pool 1 receipts = %d, want 2", len(one))
	}

	all, _ := j.List(ctx, ident.Hash{}, 0)
	if len(all) != 3 {
		t.Errorf("all receipts = %d, want 3", len(all))
	}

	limited, _ := j.List(ctx, ident.Hash{}, 1)
	if len(limited) != 1 || limited[0].Amount != 3 {
		t.Errorf("limited = %+v, want the newest receipt", limited)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	r := receipt(ident.Hash{1}, 1)
	if err := j.Record(ctx, r); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if err := j.Record(ctx, r); err == nil {
		t.Error("duplicate receipt id accepted")
	}
}

// TestReopenKeepsReceipts verifies receipts survive a restart.
func TestReopenKeepsReceipts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = j.Record(ctx, receipt(ident.Hash{1}, 5))
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j.Close()

	got, _ := j.List(ctx, ident.Hash{}, 0)
	if len(got) != 1 {
		t.Errorf("receipts after reopen = %d, want 1", len(got))
	}
}
