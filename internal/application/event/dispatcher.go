package event

import (
	"context"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Dispatcher hands domain events to the outbox inside the transaction and to
// the in-process bus once the transaction has committed
type Dispatcher struct {
	outbox shared.OutboxEventSaver
	bus    shared.EventPublisher
}

// NewDispatcher creates a Dispatcher. bus may be nil when events only go
// through the outbox relay.
func NewDispatcher(outbox shared.OutboxEventSaver, bus shared.EventPublisher) *Dispatcher {
	return &Dispatcher{outbox: outbox, bus: bus}
}

// Record writes events to the outbox. ctx must carry the transaction that
// holds the state change.
func (d *Dispatcher) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	return d.outbox.SaveEvents(ctx, events...)
}

// PublishCommitted delivers events to in-process subscribers. Failures are
// logged only: the outbox entry is already committed and the relay will
// deliver it again.
func (d *Dispatcher) PublishCommitted(ctx context.Context, events ...shared.DomainEvent) {
	if d.bus == nil || len(events) == 0 {
		return
	}
	if err := d.bus.Publish(ctx, events...); err != nil {
		logger.L(ctx).Warn("In-process event delivery failed, relay will retry",
			zap.Int("events", len(events)),
			zap.String("first_event_type", events[0].EventType()),
			zap.Error(err),
		)
	}
}
