package event

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"gorm.io/gorm"
)

// OutboxPublisher writes domain events to the outbox table in the caller's
// transaction, so they commit or roll back with the ledger rows
type OutboxPublisher struct {
	repo       *GormOutboxRepository
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates an OutboxPublisher. maxRetries <= 0 keeps the
// entry default.
func NewOutboxPublisher(db *gorm.DB, serializer *EventSerializer, maxRetries int) *OutboxPublisher {
	return &OutboxPublisher{
		repo:       NewGormOutboxRepository(db),
		serializer: serializer,
		maxRetries: maxRetries,
	}
}

// SaveEvents implements shared.OutboxEventSaver. It refuses to run outside a
// transaction: an outbox row written on its own could outlive a rolled back change.
func (p *OutboxPublisher) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if !persistence.InTransaction(ctx) {
		return fmt.Errorf("outbox: %w", persistence.ErrNoTransaction)
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		if !p.serializer.IsRegistered(event.EventType()) {
			return fmt.Errorf("outbox: event type %s is not registered", event.EventType())
		}
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return err
		}
		entry := shared.NewOutboxEntry(event, payload)
		if p.maxRetries > 0 {
			entry.MaxRetries = p.maxRetries
		}
		entries = append(entries, entry)
	}
	return p.repo.Save(ctx, entries...)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
