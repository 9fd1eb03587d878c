package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"speza/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	r, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "speza.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func row(cat string, amount float64) core.Transaction {
	return core.Transaction{Date: "2025-01-15", Kind: core.KindExpense, Category: cat, Amount: amount, Note: "n"}
}

func categories(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Category
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRepositoryEmptyLoad(t *testing.T) {
	r := newRepo(t)
	txs, err := r.Load(context.Background())
	if err != nil || txs == nil || len(txs) != 0 {
		t.Fatalf("got %v err=%v", txs, err)
	}
}

func TestRepositoryMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speza.db")
	r1, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := r1.Append(context.Background(), row("A", 1)); err != nil {
		t.Fatal(err)
	}
	r1.Close()

	r2, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()
	n, err := r2.Count(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestRepositoryAppendAndPositionalOps(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	for _, c := range []string{"A", "B", "C", "D"} {
		if err := r.Append(ctx, row(c, 1)); err != nil {
			t.Fatal(err)
		}
	}

	if ok, err := r.DeleteAt(ctx, 1); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	txs, _ := r.Load(ctx)
	if got := categories(txs); !equal(got, []string{"A", "C", "D"}) {
		t.Fatalf("after delete: %v", got)
	}

	if ok, err := r.EditAt(ctx, 2, row("Z", 42)); err != nil || !ok {
		t.Fatalf("edit: ok=%v err=%v", ok, err)
	}
	txs, _ = r.Load(ctx)
	if got := categories(txs); !equal(got, []string{"A", "C", "Z"}) {
		t.Fatalf("after edit: %v", got)
	}
	if txs[2].Amount != 42 {
		t.Fatalf("amount = %v", txs[2].Amount)
	}
}

func TestRepositoryOutOfRange(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_ = r.Append(ctx, row("A", 1))
	for _, idx := range []int{-1, 1, 10} {
		if ok, err := r.DeleteAt(ctx, idx); ok || err != nil {
			t.Fatalf("DeleteAt(%d): ok=%v err=%v", idx, ok, err)
		}
		if ok, err := r.EditAt(ctx, idx, row("X", 1)); ok || err != nil {
			t.Fatalf("EditAt(%d): ok=%v err=%v", idx, ok, err)
		}
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestRepositoryRejectsInvalidAmount(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_ = r.Append(ctx, row("A", 1))
	if err := r.Append(ctx, row("B", math.NaN())); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.EditAt(ctx, 0, row("B", math.Inf(1))); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("edit: %v", err)
	}
	txs, _ := r.Load(ctx)
	if len(txs) != 1 || txs[0].Category != "A" {
		t.Fatalf("unexpected rows %+v", txs)
	}
}

func TestRepositoryByID(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_ = r.Append(ctx, row("A", 1))
	_ = r.Append(ctx, row("B", 2))
	txs, _ := r.Load(ctx)
	if txs[0].ID == "" || txs[0].ID == txs[1].ID {
		t.Fatalf("ids not assigned: %+v", txs)
	}

	if err := r.EditByID(ctx, txs[0].ID, row("AA", 10)); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteByID(ctx, txs[1].ID); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Load(ctx)
	if len(got) != 1 || got[0].Category != "AA" || got[0].ID != txs[0].ID {
		t.Fatalf("unexpected rows %+v", got)
	}

	if err := r.DeleteByID(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
	if err := r.EditByID(ctx, "nope", row("X", 1)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("edit missing: %v", err)
	}
}

func TestRepositoryKeepsProvidedID(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	in := row("A", 1)
	in.ID = "0190a8b4-0000-7000-8000-000000000001"
	if err := r.Append(ctx, in); err != nil {
		t.Fatal(err)
	}
	txs, _ := r.Load(ctx)
	if txs[0].ID != in.ID {
		t.Fatalf("id = %q, want %q", txs[0].ID, in.ID)
	}
}

func TestRepositoryClearAll(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_ = r.Append(ctx, row("A", 1))
	if err := r.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := r.Count(ctx); n != 0 {
		t.Fatalf("count = %d", n)
	}
	if err := r.Append(ctx, row("B", 1)); err != nil {
		t.Fatalf("append after clear: %v", err)
	}
}

func TestRunMigrationsReportsVersion(t *testing.T) {
	dsn := dsnFor(filepath.Join(t.TempDir(), "schema.db"))
	for i := 0; i < 2; i++ {
		v, err := RunMigrations(dsn)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if v != 1 {
			t.Fatalf("run %d: version = %d, want 1", i, v)
		}
	}
}
