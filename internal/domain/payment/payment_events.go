package payment

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypePaymentRecorded  = "PaymentRecorded"
	EventTypePaymentAllocated = "PaymentAllocated"
	EventTypePaymentVoided    = "PaymentVoided"

	AggregateTypePayment = "Payment"
)

// PaymentRecordedEvent is raised when a payment is received
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID   uuid.UUID       `json:"payment_id"`
	CompanyID   uuid.UUID       `json:"company_id"`
	PartnerID   uuid.UUID       `json:"partner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaymentDate time.Time       `json:"payment_date"`
}

// EventType returns the event type name
func (e *PaymentRecordedEvent) EventType() string {
	return EventTypePaymentRecorded
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypePayment, p.ID, p.TenantID),
		PaymentID:       p.ID,
		CompanyID:       p.CompanyID,
		PartnerID:       p.PartnerID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		PaymentDate:     p.PaymentDate,
	}
}

// AllocationSummary is one allocation carried by PaymentAllocatedEvent
type AllocationSummary struct {
	DocumentID        uuid.UUID       `json:"document_id"`
	Amount            decimal.Decimal `json:"amount"`
	ToleranceWriteoff decimal.Decimal `json:"tolerance_writeoff"`
	WriteoffKind      WriteoffKind    `json:"writeoff_kind"`
}

// PaymentAllocatedEvent is raised when a payment has been distributed
type PaymentAllocatedEvent struct {
	shared.BaseDomainEvent
	PaymentID      uuid.UUID           `json:"payment_id"`
	PartnerID      uuid.UUID           `json:"partner_id"`
	PaymentType    PaymentType         `json:"payment_type"`
	Allocations    []AllocationSummary `json:"allocations"`
	ExcessAmount   decimal.Decimal     `json:"excess_amount"`
	ExcessHandling ExcessHandling      `json:"excess_handling"`
}

// EventType returns the event type name
func (e *PaymentAllocatedEvent) EventType() string {
	return EventTypePaymentAllocated
}

// NewPaymentAllocatedEvent creates a new PaymentAllocatedEvent
func NewPaymentAllocatedEvent(p *Payment, allocations []*PaymentAllocation, plan *AllocationPlan) *PaymentAllocatedEvent {
	summaries := make([]AllocationSummary, 0, len(allocations))
	for _, a := range allocations {
		summaries = append(summaries, AllocationSummary{
			DocumentID:        a.DocumentID,
			Amount:            a.Amount,
			ToleranceWriteoff: a.ToleranceWriteoff,
			WriteoffKind:      a.WriteoffKind,
		})
	}
	return &PaymentAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentAllocated, AggregateTypePayment, p.ID, p.TenantID),
		PaymentID:       p.ID,
		PartnerID:       p.PartnerID,
		PaymentType:     p.PaymentType,
		Allocations:     summaries,
		ExcessAmount:    plan.ExcessAmount,
		ExcessHandling:  plan.ExcessHandling,
	}
}

// PaymentVoidedEvent is raised when an unallocated payment is voided
type PaymentVoidedEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// EventType returns the event type name
func (e *PaymentVoidedEvent) EventType() string {
	return EventTypePaymentVoided
}

// NewPaymentVoidedEvent creates a new PaymentVoidedEvent
func NewPaymentVoidedEvent(p *Payment) *PaymentVoidedEvent {
	return &PaymentVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentVoided, AggregateTypePayment, p.ID, p.TenantID),
		PaymentID:       p.ID,
		Amount:          p.Amount,
		Currency:        p.Currency,
	}
}
