package memory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"speza/internal/core"
	"speza/internal/ledger"
	"speza/internal/ledger/csvfile"
)

// Store keeps the ledger in process memory. Rows get a uuid v7 on append.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	// rev counts mutations.
	rev uint64
}

var (
	_ ledger.Store     = (*Store)(nil)
	_ ledger.IDStore   = (*Store)(nil)
	_ ledger.Versioned = (*Store)(nil)
)

func New(seed ...core.Transaction) *Store {
	s := &Store{}
	for _, t := range seed {
		t.ID = newID()
		s.items = append(s.items, t)
	}
	return s
}

// NewFromFile seeds the store from a ledger CSV. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	txs, err := csvfile.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return New(txs...), nil
}

func (s *Store) Version(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.FormatUint(s.rev, 10), nil
}

func (s *Store) Load(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *Store) Append(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	} else if s.indexOf(t.ID) >= 0 {
		return nil
	}
	s.items = append(s.items, t)
	s.rev++
	return nil
}

func (s *Store) DeleteAt(_ context.Context, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ledger.InRange(index, len(s.items)) {
		return false, nil
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	s.rev++
	return true, nil
}

func (s *Store) EditAt(_ context.Context, index int, t core.Transaction) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ledger.InRange(index, len(s.items)) {
		return false, nil
	}
	t.ID = s.items[index].ID
	s.items[index] = t
	s.rev++
	return true, nil
}

func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.rev++
	return nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.rev++
	return nil
}

func (s *Store) EditByID(_ context.Context, id string, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	t.ID = id
	s.items[i] = t
	s.rev++
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
