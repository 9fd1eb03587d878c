package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"speza/internal/core"
)

// Op names a ledger mutation carried by a TransactionEvent.
type Op string

const (
	OpAdded   Op = "added"
	OpEdited  Op = "edited"
	OpDeleted Op = "deleted"
	OpCleared Op = "cleared"
)

// Valid reports whether op is one of the known mutations.
func (op Op) Valid() bool {
	switch op {
	case OpAdded, OpEdited, OpDeleted, OpCleared:
		return true
	}
	return false
}

// TransactionEvent describes one applied ledger mutation. Index is the
// row position for positional ops and -1 when the mutation was addressed
// by ID. Transaction is nil for deletes and clears.
type TransactionEvent struct {
	Op          Op                `json:"op"`
	Index       int               `json:"index"`
	ID          string            `json:"id,omitempty"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NewTransactionEvent stamps an event with the current time.
func NewTransactionEvent(op Op, index int, id string, t *core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Op:          op,
		Index:       index,
		ID:          id,
		Transaction: t,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes an event and rejects unknown ops.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var evt TransactionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if !evt.Op.Valid() {
		return nil, fmt.Errorf("unknown event op %q", evt.Op)
	}
	return &evt, nil
}
