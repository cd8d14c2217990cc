package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/engine/internal/audit"
	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/inventory"
	"github.com/kiwari-pos/engine/internal/notify"
	"github.com/kiwari-pos/engine/internal/txn"
	"go.uber.org/zap"
)

// engine holds what OrderService and AddonService share.
type engine struct {
	runner   *txn.Runner
	newStore NewStore
	pub      notify.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func newEngine(runner *txn.Runner, newStore NewStore, pub notify.Publisher, logger *zap.Logger) engine {
	if pub == nil {
		pub = notify.Nop{}
	}
	return engine{
		runner:   runner,
		newStore: newStore,
		pub:      pub,
		logger:   logger,
		now:      time.Now,
	}
}

// mutation identifies an engine operation for failure reports.
type mutation struct {
	op      string
	orderID uuid.UUID
	actor   uuid.UUID
}

// mutate runs fn in one retried transaction with a fresh unit per attempt.
// When fn fails after touching persistent state, the rollback is reported to
// the audit trail from a separate transaction.
func (e *engine) mutate(ctx context.Context, m mutation, fn func(u *unit) error) (*unit, error) {
	var last *unit
	err := e.runner.Do(ctx, func(tx pgx.Tx) error {
		last = newUnit(tx, e.newStore, e.logger, m.actor)
		last.orderID = m.orderID
		return fn(last)
	})
	if err == nil {
		return last, nil
	}

	if shouldReportFailure(err) {
		entry := audit.FailureEntry{
			OrderID:   m.orderID,
			Actor:     m.actor,
			Operation: m.op,
			Err:       err,
		}
		if last != nil {
			entry.OrderID = last.orderID
			entry.Progress = last.progress()
		}
		e.reportFailure(ctx, entry)
	}
	return nil, classify(err)
}

// read runs fn in a retried transaction that is expected not to write.
func (e *engine) read(ctx context.Context, fn func(store Store) error) error {
	err := e.runner.Do(ctx, func(tx pgx.Tx) error {
		return fn(e.newStore(tx))
	})
	return classify(err)
}

func (e *engine) reportFailure(ctx context.Context, entry audit.FailureEntry) {
	ctx = context.WithoutCancel(ctx)
	err := e.runner.Once(ctx, func(tx pgx.Tx) error {
		return audit.NewTrail(e.newStore(tx), e.logger).Failure(ctx, entry)
	})
	if err != nil {
		e.logger.Error("write failure audit entry",
			zap.String("operation", entry.Operation),
			zap.String("order_id", entry.OrderID.String()),
			zap.NamedError("cause", entry.Err),
			zap.Error(err),
		)
	}
}

// shouldReportFailure is true for persistence failures and for ingredients
// vanishing mid-mutation. Rejected requests leave nothing to reconcile, and
// order number races are retried by CreateOrder.
func shouldReportFailure(err error) bool {
	if isUniqueViolation(err, orderNumberConstraint) {
		return false
	}
	return errors.Is(err, ErrIngredientNotFound) || KindOf(err) == ErrTransactionFailed
}

// publish announces a committed change. Failures are logged only.
func (e *engine) publish(ctx context.Context, eventType, room string, orderID uuid.UUID, payload any) {
	err := e.pub.Publish(ctx, notify.Event{
		Type:       eventType,
		Room:       room,
		OrderID:    orderID,
		OccurredAt: e.now(),
		Payload:    payload,
	})
	if err != nil {
		e.logger.Warn("publish event",
			zap.String("type", eventType),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

func (e *engine) publishWarnings(ctx context.Context, orderID uuid.UUID, warnings []inventory.Warning) {
	if len(warnings) == 0 {
		return
	}
	e.publish(ctx, enum.EventStockWarning, enum.RoomInventory, orderID, warnings)
}
