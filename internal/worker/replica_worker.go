package worker

import (
	"context"
	"errors"
	"fmt"

	"speza/internal/amqp"
	"speza/internal/core"
	"speza/internal/ledger"
	"speza/internal/log"
)

// ReplicaWorker replays ledger events onto a mirror store so that the
// mirror converges on the primary ledger.
type ReplicaWorker struct {
	mirror ledger.Store
	logger *log.Logger
}

func NewReplicaWorker(mirror ledger.Store, logger *log.Logger) *ReplicaWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReplicaWorker{
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Handle applies one event. Errors wrapping amqp.ErrPermanent mean the
// event can never be applied and should not be redelivered.
func (w *ReplicaWorker) Handle(ctx context.Context, evt *amqp.TransactionEvent) error {
	var err error
	switch evt.Op {
	case amqp.OpAdded:
		err = w.added(ctx, evt)
	case amqp.OpEdited:
		err = w.edited(ctx, evt)
	case amqp.OpDeleted:
		err = w.deleted(ctx, evt)
	case amqp.OpCleared:
		err = w.mirror.ClearAll(ctx)
	default:
		return fmt.Errorf("%w: unknown op %q", amqp.ErrPermanent, evt.Op)
	}
	if err != nil {
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrNotFound) {
			err = fmt.Errorf("%w: %w", amqp.ErrPermanent, err)
		}
		return fmt.Errorf("replay %s: %w", evt.Op, err)
	}

	w.logger.DebugContext(ctx, "Replayed event",
		log.FieldOperation, evt.Op,
		log.FieldIndex, evt.Index,
		log.FieldTransactionID, evt.ID)
	return nil
}

func (w *ReplicaWorker) added(ctx context.Context, evt *amqp.TransactionEvent) error {
	if evt.Transaction == nil {
		return fmt.Errorf("%w: added event without transaction", amqp.ErrPermanent)
	}
	t := *evt.Transaction
	if t.ID == "" {
		t.ID = evt.ID
	}
	// Redeliveries of an id-carrying event are absorbed by IDStore.Append.
	return w.mirror.Append(ctx, t)
}

func (w *ReplicaWorker) edited(ctx context.Context, evt *amqp.TransactionEvent) error {
	if evt.Transaction == nil {
		return fmt.Errorf("%w: edited event without transaction", amqp.ErrPermanent)
	}
	if ids, ok := w.byID(evt); ok {
		return ids.EditByID(ctx, evt.ID, *evt.Transaction)
	}
	applied, err := w.mirror.EditAt(ctx, evt.Index, *evt.Transaction)
	if err != nil {
		return err
	}
	w.checkApplied(ctx, evt, applied)
	return nil
}

func (w *ReplicaWorker) deleted(ctx context.Context, evt *amqp.TransactionEvent) error {
	if ids, ok := w.byID(evt); ok {
		return ids.DeleteByID(ctx, evt.ID)
	}
	applied, err := w.mirror.DeleteAt(ctx, evt.Index)
	if err != nil {
		return err
	}
	w.checkApplied(ctx, evt, applied)
	return nil
}

// byID picks id addressing when the event was addressed by id and the
// mirror can honour it.
func (w *ReplicaWorker) byID(evt *amqp.TransactionEvent) (ledger.IDStore, bool) {
	if evt.ID == "" || evt.Index >= 0 {
		return nil, false
	}
	ids, ok := w.mirror.(ledger.IDStore)
	return ids, ok
}

func (w *ReplicaWorker) checkApplied(ctx context.Context, evt *amqp.TransactionEvent, applied bool) {
	if !applied {
		w.logger.WarnContext(ctx, "Mirror row out of range, event skipped",
			log.FieldOperation, evt.Op,
			log.FieldIndex, evt.Index)
	}
}
