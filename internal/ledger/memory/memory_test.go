package memory

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"speza/internal/core"
)

func tx(cat string, amount float64) core.Transaction {
	return core.Transaction{Date: "2025-01-01", Kind: core.KindExpense, Category: cat, Amount: amount}
}

func TestMemoryStoreAppendAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Append(ctx, tx("A", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, tx("B", 2)); err != nil {
		t.Fatal(err)
	}
	txs, _ := s.Load(ctx)
	if len(txs) != 2 {
		t.Fatalf("got %d rows", len(txs))
	}
	if txs[0].ID == "" || txs[0].ID == txs[1].ID {
		t.Fatalf("expected distinct ids, got %q and %q", txs[0].ID, txs[1].ID)
	}
	if txs[0].Category != "A" || txs[1].Category != "B" {
		t.Fatalf("order not kept: %+v", txs)
	}
}

func TestMemoryStoreAppendKeepsProvidedID(t *testing.T) {
	ctx := context.Background()
	s := New()
	in := tx("A", 1)
	in.ID = "fixed-id"
	if err := s.Append(ctx, in); err != nil {
		t.Fatal(err)
	}
	txs, _ := s.Load(ctx)
	if txs[0].ID != "fixed-id" {
		t.Fatalf("id = %q, want fixed-id", txs[0].ID)
	}
}

func TestMemoryStoreRejectsInvalidAmount(t *testing.T) {
	s := New()
	if err := s.Append(context.Background(), tx("A", math.NaN())); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMemoryStorePositionalOps(t *testing.T) {
	ctx := context.Background()
	s := New(tx("A", 1), tx("B", 2), tx("C", 3))

	if ok, _ := s.DeleteAt(ctx, 5); ok {
		t.Fatal("out-of-range delete reported as applied")
	}
	if ok, _ := s.DeleteAt(ctx, 0); !ok {
		t.Fatal("delete not applied")
	}
	txs, _ := s.Load(ctx)
	if len(txs) != 2 || txs[0].Category != "B" {
		t.Fatalf("unexpected rows %+v", txs)
	}

	id := txs[1].ID
	if ok, _ := s.EditAt(ctx, 1, tx("Z", 9)); !ok {
		t.Fatal("edit not applied")
	}
	txs, _ = s.Load(ctx)
	if txs[1].Category != "Z" || txs[1].ID != id {
		t.Fatalf("edit should keep the id: %+v", txs[1])
	}
}

func TestMemoryStoreByID(t *testing.T) {
	ctx := context.Background()
	s := New(tx("A", 1), tx("B", 2))
	txs, _ := s.Load(ctx)

	if err := s.EditByID(ctx, txs[1].ID, tx("BB", 20)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteByID(ctx, txs[0].ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Load(ctx)
	if len(got) != 1 || got[0].Category != "BB" || got[0].ID != txs[1].ID {
		t.Fatalf("unexpected rows %+v", got)
	}
	if err := s.DeleteByID(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(tx("A", 1))
	txs, _ := s.Load(ctx)
	txs[0].Category = "mutated"
	again, _ := s.Load(ctx)
	if again[0].Category != "A" {
		t.Fatal("Load leaked internal slice")
	}
}

func TestMemoryStoreClearAll(t *testing.T) {
	ctx := context.Background()
	s := New(tx("A", 1))
	_ = s.ClearAll(ctx)
	txs, err := s.Load(ctx)
	if err != nil || txs == nil || len(txs) != 0 {
		t.Fatalf("got %v err=%v", txs, err)
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromFile(filepath.Join(dir, "missing.csv"))
	if err != nil {
		t.Fatalf("missing seed should not fail: %v", err)
	}
	if txs, _ := s.Load(context.Background()); len(txs) != 0 {
		t.Fatalf("expected empty store, got %v", txs)
	}

	path := filepath.Join(dir, "seed.csv")
	content := "Date,Type,Category,Amount,Note\n2025-01-01,Income,Salary,5000,\n2025-01-02,Expense,Food,200,pizza\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	txs, _ := s.Load(context.Background())
	if len(txs) != 2 || txs[1].Note != "pizza" || txs[0].ID == "" {
		t.Fatalf("unexpected seed rows %+v", txs)
	}
}
