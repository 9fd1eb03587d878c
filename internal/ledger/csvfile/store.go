// Package csvfile stores the ledger as a single flat CSV file with header
// Date,Type,Category,Amount,Note, optionally encrypted with an age
// passphrase.
package csvfile

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"speza/internal/core"
	"speza/internal/ledger"
)

// Options configures a Store.
type Options struct {
	// Passphrase enables age scrypt encryption of the file at rest.
	Passphrase string
	// WorkFactor overrides the scrypt cost (log2 N). Zero keeps age's default.
	WorkFactor int
}

// Store is a ledger.Store backed by one CSV file. Every operation reads the
// whole file and mutations rewrite it in full; mu is held for the whole
// cycle so concurrent writers in this process cannot lose updates.
type Store struct {
	path   string
	cipher *cipher
	mu     sync.Mutex
}

var (
	_ ledger.Store     = (*Store)(nil)
	_ ledger.Versioned = (*Store)(nil)
)

// Open returns a store for path, creating the directory and a header-only
// file when the file is missing or empty.
func Open(path string, opts Options) (*Store, error) {
	s := &Store{path: path}
	if opts.Passphrase != "" {
		c, err := newCipher(opts.Passphrase, opts.WorkFactor)
		if err != nil {
			return nil, err
		}
		s.cipher = c
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.Size() > 0:
		return s, nil
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := s.write([]core.Transaction{}); err != nil {
		return nil, fmt.Errorf("initialise %s: %w", path, err)
	}
	slog.Info("Created ledger file", "path", path, "encrypted", s.cipher != nil)
	return s, nil
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Encrypted reports whether writes are age-encrypted.
func (s *Store) Encrypted() bool { return s.cipher != nil }

// Version identifies the file contents by modification time and size, so
// edits made outside this process are noticed too.
func (s *Store) Version(_ context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return "missing", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", s.path, err)
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10) + "-" + strconv.FormatInt(info.Size(), 10), nil
}

func (s *Store) Load(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) Append(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.read()
	if err != nil {
		return err
	}
	t.ID = ""
	txs = append(txs, t)
	if err := s.write(txs); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction appended to CSV", "index", len(txs)-1, "type", t.Kind, "category", t.Category)
	return nil
}

func (s *Store) DeleteAt(ctx context.Context, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.read()
	if err != nil {
		return false, err
	}
	if !ledger.InRange(index, len(txs)) {
		return false, nil
	}
	txs = append(txs[:index], txs[index+1:]...)
	if err := s.write(txs); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Transaction deleted from CSV", "index", index, "remaining", len(txs))
	return true, nil
}

func (s *Store) EditAt(ctx context.Context, index int, t core.Transaction) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.read()
	if err != nil {
		return false, err
	}
	if !ledger.InRange(index, len(txs)) {
		return false, nil
	}
	t.ID = ""
	txs[index] = t
	if err := s.write(txs); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Transaction edited in CSV", "index", index)
	return true, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write([]core.Transaction{}); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Ledger cleared", "path", s.path)
	return nil
}

// read must be called with mu held.
func (s *Store) read() ([]core.Transaction, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []core.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if isAgeEncrypted(data) {
		if s.cipher == nil {
			return nil, fmt.Errorf("read %s: file is encrypted but no passphrase is configured", s.path)
		}
		if data, err = s.cipher.decrypt(data); err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", s.path, err)
		}
	}
	txs, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return txs, nil
}

// write must be called with mu held.
func (s *Store) write(txs []core.Transaction) error {
	data, err := encodeBytes(txs)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if s.cipher != nil {
		if data, err = s.cipher.encrypt(data); err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
	}
	return atomicWrite(s.path, data, 0o644)
}

func atomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
