package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"speza/internal/core"
	"speza/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a ledger.Store on SQLite. Rows keep insertion order
// through the autoincrement seq column and carry a uuid v7 id.
type SQLiteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ ledger.Store     = (*SQLiteRepository)(nil)
	_ ledger.IDStore   = (*SQLiteRepository)(nil)
	_ ledger.Versioned = (*SQLiteRepository)(nil)
)

func dsnFor(dbPath string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dsnFor(dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Load(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, kind, category, amount, note FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Kind, &t.Category, &t.Amount, &t.Note); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Version combines PRAGMA data_version, which moves when another
// connection commits, with total_changes() of the pooled connection, which
// moves on our own writes. The pool holds a single connection.
func (r *SQLiteRepository) Version(ctx context.Context) (string, error) {
	var dataVersion, changes int64
	if err := r.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&dataVersion); err != nil {
		return "", fmt.Errorf("data version: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT total_changes()`).Scan(&changes); err != nil {
		return "", fmt.Errorf("total changes: %w", err)
	}
	return fmt.Sprintf("%d-%d", dataVersion, changes), nil
}

// Count returns the number of stored transactions.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Append(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, date, kind, category, amount, note) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		t.ID, t.Date, t.Kind, t.Category, t.Amount, t.Note)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.DebugContext(ctx, "Transaction already stored, append skipped", "id", t.ID)
		return nil
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Kind,
		"category", t.Category,
		"amount", t.Amount)
	return nil
}

// seqAt resolves the storage key of the row at index. ok is false when the
// index is out of range.
func seqAt(ctx context.Context, tx *sql.Tx, index int) (seq int64, ok bool, err error) {
	if index < 0 {
		return 0, false, nil
	}
	err = tx.QueryRowContext(ctx,
		`SELECT seq FROM transactions ORDER BY seq LIMIT 1 OFFSET ?`, index).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("locate row %d: %w", index, err)
	}
	return seq, true, nil
}

func (r *SQLiteRepository) DeleteAt(ctx context.Context, index int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	seq, ok, err := seqAt(ctx, tx, index)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE seq = ?`, seq); err != nil {
		return false, fmt.Errorf("delete row %d: %w", index, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "index", index)
	return true, nil
}

func (r *SQLiteRepository) EditAt(ctx context.Context, index int, t core.Transaction) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	seq, ok, err := seqAt(ctx, tx, index)
	if err != nil || !ok {
		return false, err
	}
	if err := updateWhere(ctx, tx, "seq = ?", seq, t); err != nil {
		return false, fmt.Errorf("edit row %d: %w", index, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Transaction edited in SQLite", "index", index)
	return true, nil
}

func updateWhere(ctx context.Context, tx *sql.Tx, where string, arg any, t core.Transaction) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET date = ?, kind = ?, category = ?, amount = ?, note = ?,
		 updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE `+where,
		t.Date, t.Kind, t.Category, t.Amount, t.Note, arg)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	slog.InfoContext(ctx, "SQLite ledger cleared")
	return nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) EditByID(ctx context.Context, id string, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := updateWhere(ctx, tx, "id = ?", id, t); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		return fmt.Errorf("edit %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Transaction edited in SQLite", "id", id)
	return nil
}
