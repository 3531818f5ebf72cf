package ledger

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeDocumentPosted    = "DocumentPosted"
	EventTypeDocumentCancelled = "DocumentCancelled"
	EventTypeDocumentPaid      = "DocumentPaid"

	AggregateTypeDocument = "Document"
)

// DocumentPostedEvent is raised when a fiscal document joins its hash chain
type DocumentPostedEvent struct {
	shared.BaseDomainEvent
	DocumentID     uuid.UUID    `json:"document_id"`
	CompanyID      uuid.UUID    `json:"company_id"`
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	FiscalHash     string       `json:"fiscal_hash"`
	PreviousHash   *string      `json:"previous_hash,omitempty"`
	ChainSequence  int64        `json:"chain_sequence"`
	PostedAt       time.Time    `json:"posted_at"`
}

// EventType returns the event type name
func (e *DocumentPostedEvent) EventType() string {
	return EventTypeDocumentPosted
}

// NewDocumentPostedEvent creates a new DocumentPostedEvent
func NewDocumentPostedEvent(d *Document) *DocumentPostedEvent {
	e := &DocumentPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentPosted, AggregateTypeDocument, d.ID, d.TenantID),
		DocumentID:      d.ID,
		CompanyID:       d.CompanyID,
		DocumentType:    d.Type,
		DocumentNumber:  d.DocumentNumber,
		PreviousHash:    d.PreviousHash,
	}
	if d.FiscalHash != nil {
		e.FiscalHash = *d.FiscalHash
	}
	if d.ChainSequence != nil {
		e.ChainSequence = *d.ChainSequence
	}
	if d.PostedAt != nil {
		e.PostedAt = *d.PostedAt
	}
	return e
}

// DocumentCancelledEvent is raised when a posted fiscal document is cancelled.
// It carries the original hash, which the cancellation leaves untouched.
type DocumentCancelledEvent struct {
	shared.BaseDomainEvent
	DocumentID     uuid.UUID    `json:"document_id"`
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	FiscalHash     string       `json:"fiscal_hash"`
	CancelledAt    time.Time    `json:"cancelled_at"`
}

// EventType returns the event type name
func (e *DocumentCancelledEvent) EventType() string {
	return EventTypeDocumentCancelled
}

// NewDocumentCancelledEvent creates a new DocumentCancelledEvent
func NewDocumentCancelledEvent(d *Document) *DocumentCancelledEvent {
	e := &DocumentCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentCancelled, AggregateTypeDocument, d.ID, d.TenantID),
		DocumentID:      d.ID,
		DocumentType:    d.Type,
		DocumentNumber:  d.DocumentNumber,
		CancelledAt:     time.Now(),
	}
	if d.FiscalHash != nil {
		e.FiscalHash = *d.FiscalHash
	}
	if d.CancelledAt != nil {
		e.CancelledAt = *d.CancelledAt
	}
	return e
}

// DocumentPaidEvent is raised when an invoice's balance reaches zero
type DocumentPaidEvent struct {
	shared.BaseDomainEvent
	DocumentID     uuid.UUID       `json:"document_id"`
	DocumentNumber string          `json:"document_number"`
	PartnerID      uuid.UUID       `json:"partner_id"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// EventType returns the event type name
func (e *DocumentPaidEvent) EventType() string {
	return EventTypeDocumentPaid
}

// NewDocumentPaidEvent creates a new DocumentPaidEvent
func NewDocumentPaidEvent(d *Document) *DocumentPaidEvent {
	return &DocumentPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentPaid, AggregateTypeDocument, d.ID, d.TenantID),
		DocumentID:      d.ID,
		DocumentNumber:  d.DocumentNumber,
		PartnerID:       d.PartnerID,
		Total:           d.Total,
		Currency:        d.Currency,
	}
}
