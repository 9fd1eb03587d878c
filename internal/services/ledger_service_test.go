package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"speza/internal/amqp"
	"speza/internal/charts"
	"speza/internal/core"
	"speza/internal/ledger"
	"speza/internal/ledger/csvfile"
	"speza/internal/ledger/memory"
	"speza/internal/log"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.TransactionEvent
	err    error
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, evt *amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func (p *fakePublisher) ops() []amqp.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.Op
	for _, e := range p.events {
		out = append(out, e.Op)
	}
	return out
}

// countingStore counts loads so cache hits can be observed.
type countingStore struct {
	ledger.Store
	loads atomic.Int32
}

func (c *countingStore) Load(ctx context.Context) ([]core.Transaction, error) {
	c.loads.Add(1)
	return c.Store.Load(ctx)
}

func (c *countingStore) Version(ctx context.Context) (string, error) {
	return c.Store.(ledger.Versioned).Version(ctx)
}

// unversionedStore hides Version, so nothing derived from it is cached.
type unversionedStore struct {
	ledger.Store
	loads atomic.Int32
}

func (u *unversionedStore) Load(ctx context.Context) ([]core.Transaction, error) {
	u.loads.Add(1)
	return u.Store.Load(ctx)
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newService(t *testing.T, store ledger.Store, pub Publisher) *LedgerService {
	t.Helper()
	opts := Options{Logger: quietLogger()}
	if pub != nil {
		opts.Publisher = pub
	}
	s := NewLedgerService(store, opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func in(date, kind, cat, amount string) Input {
	return Input{Date: date, Kind: kind, Category: cat, Amount: amount}
}

func TestAddValidatesAmount(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	s := newService(t, memory.New(), pub)

	if _, err := s.Add(ctx, in("2024-01-01", "Expense", "Food", "abc")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("Add() error = %v, want ErrInvalidAmount", err)
	}
	txs, _ := s.List(ctx)
	if len(txs) != 0 {
		t.Fatalf("invalid add stored %d rows", len(txs))
	}
	if len(pub.ops()) != 0 {
		t.Fatalf("invalid add published %v", pub.ops())
	}

	got, err := s.Add(ctx, in("2024-01-01", "Expense", "Food", " 12.50 "))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got.Amount != 12.5 || got.ID == "" {
		t.Fatalf("Add() = %+v", got)
	}
	txs, _ = s.List(ctx)
	if len(txs) != 1 || txs[0].ID != got.ID {
		t.Fatalf("stored %+v, want id %s", txs, got.ID)
	}
}

func TestPositionalMutations(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	s := newService(t, memory.New(), pub)

	for _, c := range []string{"A", "B", "C"} {
		if _, err := s.Add(ctx, in("2024-01-01", "Expense", c, "1")); err != nil {
			t.Fatal(err)
		}
	}

	applied, err := s.DeleteAt(ctx, 1)
	if err != nil || !applied {
		t.Fatalf("DeleteAt(1) = %v, %v", applied, err)
	}
	applied, err = s.DeleteAt(ctx, 7)
	if err != nil || applied {
		t.Fatalf("DeleteAt(7) = %v, %v; want no-op", applied, err)
	}

	applied, err = s.EditAt(ctx, 1, in("2024-02-01", "Income", "Z", "9"))
	if err != nil || !applied {
		t.Fatalf("EditAt(1) = %v, %v", applied, err)
	}
	if _, err := s.EditAt(ctx, 0, in("x", "y", "z", "NaN")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("EditAt with NaN error = %v", err)
	}

	txs, _ := s.List(ctx)
	if len(txs) != 2 || txs[0].Category != "A" || txs[1].Category != "Z" || txs[1].Amount != 9 {
		t.Fatalf("unexpected rows %+v", txs)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	txs, _ = s.List(ctx)
	if len(txs) != 0 {
		t.Fatalf("ClearAll left %d rows", len(txs))
	}

	want := []amqp.Op{amqp.OpAdded, amqp.OpAdded, amqp.OpAdded, amqp.OpDeleted, amqp.OpEdited, amqp.OpCleared}
	got := pub.ops()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published %v, want %v", got, want)
		}
	}
	if pub.events[3].Index != 1 {
		t.Errorf("delete event index = %d, want 1", pub.events[3].Index)
	}
}

func TestIDMutations(t *testing.T) {
	ctx := context.Background()
	s := newService(t, memory.New(), nil)

	a, _ := s.Add(ctx, in("2024-01-01", "Expense", "A", "1"))
	b, _ := s.Add(ctx, in("2024-01-01", "Expense", "B", "2"))

	edited, err := s.EditByID(ctx, b.ID, in("2024-01-02", "Expense", "BB", "3"))
	if err != nil || edited.ID != b.ID {
		t.Fatalf("EditByID() = %+v, %v", edited, err)
	}
	if err := s.DeleteByID(ctx, a.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if err := s.DeleteByID(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("DeleteByID(missing) error = %v", err)
	}

	txs, _ := s.List(ctx)
	if len(txs) != 1 || txs[0].Category != "BB" {
		t.Fatalf("unexpected rows %+v", txs)
	}
}

func TestIDMutationsUnsupported(t *testing.T) {
	ctx := context.Background()
	store, err := csvfile.Open(t.TempDir()+"/ledger.csv", csvfile.Options{})
	if err != nil {
		t.Fatal(err)
	}
	s := newService(t, store, nil)

	if s.SupportsIDs() {
		t.Fatal("csv store should not support ids")
	}
	added, err := s.Add(ctx, in("2024-01-01", "Expense", "A", "1"))
	if err != nil || added.ID != "" {
		t.Fatalf("Add() = %+v, %v", added, err)
	}
	if err := s.DeleteByID(ctx, "x"); !errors.Is(err, core.ErrIDsUnsupported) {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if _, err := s.EditByID(ctx, "x", in("d", "Expense", "c", "1")); !errors.Is(err, core.ErrIDsUnsupported) {
		t.Fatalf("EditByID() error = %v", err)
	}
}

func TestReportCachedUntilMutation(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}
	s := newService(t, store, nil)

	s.Add(ctx, in("2024-01-01", "Income", "Salary", "5000"))
	s.Add(ctx, in("2024-01-02", "Expense", "Food", "200"))

	r1, err := s.Report(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r2, _ := s.Report(ctx)
	if store.loads.Load() != 1 {
		t.Fatalf("loads = %d, want 1 (second report should be cached)", store.loads.Load())
	}
	if reports, _ := s.CacheStats(); reports.Hits != 1 || reports.Misses != 1 {
		t.Fatalf("report cache stats = %+v", reports)
	}
	if r1.Balance != 4800 || r2.Balance != 4800 {
		t.Fatalf("balance = %v / %v", r1.Balance, r2.Balance)
	}
	if r1.Mood.Status != core.MoodGood {
		t.Errorf("mood = %s, want good", r1.Mood.Status)
	}

	s.Add(ctx, in("2024-01-03", "Expense", "Rent", "3000"))
	r3, _ := s.Report(ctx)
	if store.loads.Load() != 2 {
		t.Fatalf("loads = %d, want 2 after mutation", store.loads.Load())
	}
	if r3.TotalExpense != 3200 || r3.Mood.Status != core.MoodNeutral {
		t.Fatalf("report after mutation = %+v", r3)
	}
}

func TestReportUsesThreshold(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		threshold *float64
		want      core.MoodStatus
	}{
		{"default", nil, core.MoodNeutral},
		{"lower", func() *float64 { v := 100.0; return &v }(), core.MoodGood},
		{"zero", new(float64), core.MoodGood},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewLedgerService(memory.New(), Options{MoodThreshold: tc.threshold, Logger: quietLogger()})
			defer s.Close()

			s.Add(ctx, in("2024-01-01", "Income", "Salary", "1000"))
			s.Add(ctx, in("2024-01-01", "Expense", "Food", "500"))
			r, _ := s.Report(ctx)
			if r.Mood.Status != tc.want {
				t.Fatalf("mood = %s, want %s", r.Mood.Status, tc.want)
			}
		})
	}
}

func TestReportSeesWritesFromAnotherStore(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/ledger.csv"
	store, err := csvfile.Open(path, csvfile.Options{})
	if err != nil {
		t.Fatal(err)
	}
	s := newService(t, store, nil)

	r, err := s.Report(ctx)
	if err != nil || r.Count != 0 {
		t.Fatalf("Report() = %+v, %v", r, err)
	}

	other, err := csvfile.Open(path, csvfile.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Append(ctx, core.Transaction{Date: "2024-01-01", Kind: core.KindIncome, Category: "Salary", Amount: 9000}); err != nil {
		t.Fatal(err)
	}

	r, err = s.Report(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Count != 1 || r.TotalIncome != 9000 {
		t.Fatalf("report after outside write = %+v", r)
	}
	img, err := s.Chart(ctx, ChartMonthly)
	if err != nil || len(img) == 0 {
		t.Fatalf("Chart() = %d bytes, %v", len(img), err)
	}
}

func TestReportNotCachedWithoutVersion(t *testing.T) {
	ctx := context.Background()
	store := &unversionedStore{Store: memory.New()}
	s := newService(t, store, nil)
	s.Add(ctx, in("2024-01-01", "Expense", "Food", "1"))

	for i := 0; i < 2; i++ {
		if _, err := s.Report(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if n := store.loads.Load(); n != 2 {
		t.Fatalf("loads = %d, want 2", n)
	}
	if reports, _ := s.CacheStats(); reports.Hits != 0 {
		t.Fatalf("report cache stats = %+v", reports)
	}
}

func TestReportConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}
	s := newService(t, store, nil)
	s.Add(ctx, in("2024-01-01", "Expense", "Food", "1"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Report(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := store.loads.Load(); n < 1 || n > 16 {
		t.Fatalf("loads = %d", n)
	}
}

func TestChart(t *testing.T) {
	ctx := context.Background()
	s := newService(t, memory.New(), nil)

	if _, err := s.Chart(ctx, ChartExpenses); !errors.Is(err, charts.ErrNoData) {
		t.Fatalf("Chart(empty) error = %v, want ErrNoData", err)
	}
	if _, err := s.Chart(ctx, "radar"); !errors.Is(err, ErrUnknownChart) {
		t.Fatalf("Chart(radar) error = %v", err)
	}

	s.Add(ctx, in("2024-01-01", "Expense", "Food", "10"))
	s.Add(ctx, in("2024-02-01", "Expense", "Rent", "20"))
	for _, c := range []Chart{ChartExpenses, ChartMonthly} {
		img, err := s.Chart(ctx, c)
		if err != nil {
			t.Fatalf("Chart(%s) error = %v", c, err)
		}
		if !bytes.HasPrefix(img, []byte("\x89PNG")) {
			t.Fatalf("Chart(%s) is not a PNG", c)
		}
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s := newService(t, memory.New(), nil)
	s.Add(ctx, in("2024-01-01", "Expense", "Food", "10"))

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf, FormatCSV); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Date,Type,Category,Amount,Note\n2024-01-01,Expense,Food,10,") {
		t.Fatalf("csv export = %q", buf.String())
	}

	buf.Reset()
	if err := s.Export(ctx, &buf, FormatXLSX); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatal("xlsx export is not a zip archive")
	}

	if err := s.Export(ctx, &buf, "pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("Export(pdf) error = %v", err)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("broker down")}
	s := newService(t, memory.New(), pub)

	if _, err := s.Add(ctx, in("2024-01-01", "Expense", "Food", "1")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(pub.ops()) != 1 {
		t.Fatalf("publish attempts = %d", len(pub.ops()))
	}
}

func TestCloseReleasesResources(t *testing.T) {
	pub := &fakePublisher{}
	cleaned := false
	s := NewLedgerService(memory.New(), Options{
		Publisher: pub,
		Cleanup: func() error {
			cleaned = true
			return errors.New("disk gone")
		},
		Logger: quietLogger(),
	})

	err := s.Close()
	if !cleaned || !pub.closed {
		t.Fatalf("cleanup=%v publisher closed=%v", cleaned, pub.closed)
	}
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("Close() error = %v", err)
	}
}
