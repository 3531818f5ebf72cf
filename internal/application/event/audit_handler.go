package event

import (
	"context"

	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured log entry per ledger event. It is
// meant to be wrapped in an idempotent handler, since events arrive once
// after commit and again from the outbox relay.
type AuditLogHandler struct {
	logger *zap.Logger
	types  []string
}

// NewAuditLogHandler creates a handler for the given event types. No types
// subscribes to every event.
func NewAuditLogHandler(logger *zap.Logger, eventTypes ...string) *AuditLogHandler {
	return &AuditLogHandler{logger: logger, types: eventTypes}
}

// EventTypes implements shared.EventHandler
func (h *AuditLogHandler) EventTypes() []string {
	return h.types
}

// Handle implements shared.EventHandler
func (h *AuditLogHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.logger.Info("Ledger event",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
