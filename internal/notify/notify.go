package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a committed engine change announced to readers outside the
// transaction (kitchen displays, printers, reporting).
type Event struct {
	Type       string    `json:"type"`
	Room       string    `json:"-"`
	OrderID    uuid.UUID `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// Publisher delivers events. Implementations must not block for long; they
// run after the owning transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout delivers every event to each publisher, continuing past failures.
type Fanout struct {
	pubs   []Publisher
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, pubs ...Publisher) *Fanout {
	return &Fanout{pubs: pubs, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.Publish(ctx, e); err != nil {
			f.logger.Warn("publish event failed",
				zap.String("type", e.Type),
				zap.String("order_id", e.OrderID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
