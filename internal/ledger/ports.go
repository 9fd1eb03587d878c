package ledger

import (
	"context"

	"speza/internal/core"
)

// Ports for ledger storage adapters.
type (
	// Store is the flat, positionally addressed transaction table. Every
	// implementation serialises its read-modify-write cycles.
	Store interface {
		// Load returns all transactions in storage order. Missing or empty
		// storage yields an empty slice and no error.
		Load(ctx context.Context) ([]core.Transaction, error)
		Append(ctx context.Context, t core.Transaction) error
		// DeleteAt removes the row at index. An out-of-range index is a
		// no-op reported as false.
		DeleteAt(ctx context.Context, index int) (bool, error)
		// EditAt replaces the five fields of the row at index. An
		// out-of-range index is a no-op reported as false.
		EditAt(ctx context.Context, index int, t core.Transaction) (bool, error)
		// ClearAll leaves an empty table with its header.
		ClearAll(ctx context.Context) error
	}

	// Versioned is implemented by stores that can cheaply report a token
	// that changes whenever their contents do, including writes made by
	// other processes. Derived views are only cached for such stores.
	Versioned interface {
		Version(ctx context.Context) (string, error)
	}

	// IDStore is implemented by backends that assign durable ids. On these
	// backends Append of a transaction whose id is already stored is a
	// no-op, which keeps event replay idempotent.
	IDStore interface {
		DeleteByID(ctx context.Context, id string) error
		EditByID(ctx context.Context, id string, t core.Transaction) error
	}
)

// InRange reports whether index addresses an existing row of a table with
// n rows.
func InRange(index, n int) bool {
	return index >= 0 && index < n
}
