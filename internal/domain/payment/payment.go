package payment

import (
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a received payment
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusVoided    PaymentStatus = "voided"
)

// IsValid checks if the status is valid
func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusVoided
}

// PaymentType distinguishes invoice settlements from customer advances
type PaymentType string

const (
	PaymentTypeDocumentPayment PaymentType = "document_payment"
	PaymentTypeAdvance         PaymentType = "advance"
)

// IsValid checks if the type is valid
func (t PaymentType) IsValid() bool {
	return t == PaymentTypeDocumentPayment || t == PaymentTypeAdvance
}

// Payment is money received from a partner
type Payment struct {
	shared.CompanyAggregateRoot
	PartnerID       uuid.UUID       `json:"partner_id"`
	PaymentMethodID uuid.UUID       `json:"payment_method_id"`
	RepositoryID    uuid.UUID       `json:"repository_id"` // Cash box or bank account
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentDate     time.Time       `json:"payment_date"`
	Status          PaymentStatus   `json:"status"`
	PaymentType     PaymentType     `json:"payment_type"`
	Reference       string          `json:"reference"`
	AllocatedAt     *time.Time      `json:"allocated_at,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
}

// NewPayment records a completed document payment
func NewPayment(
	tenantID, companyID, partnerID, paymentMethodID, repositoryID uuid.UUID,
	amount valueobject.Money,
	paymentDate time.Time,
	reference string,
) (*Payment, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty", "tenant_id")
	}
	if companyID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_COMPANY", "Company ID cannot be empty", "company_id")
	}
	if partnerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PARTNER", "Partner ID cannot be empty", "partner_id")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive", "amount")
	}
	if !amount.Amount().Equal(amount.RoundCents().Amount()) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount cannot have more than two decimals", "amount")
	}
	if paymentDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date is required", "payment_date")
	}
	if len(reference) > 100 {
		return nil, shared.NewValidationError("INVALID_REFERENCE", "Reference cannot exceed 100 characters", "reference")
	}

	p := &Payment{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(tenantID, companyID),
		PartnerID:            partnerID,
		PaymentMethodID:      paymentMethodID,
		RepositoryID:         repositoryID,
		Amount:               amount.Amount(),
		Currency:             string(amount.Currency()),
		PaymentDate:          paymentDate,
		Status:               PaymentStatusCompleted,
		PaymentType:          PaymentTypeDocumentPayment,
		Reference:            reference,
	}
	p.AddDomainEvent(NewPaymentRecordedEvent(p))
	return p, nil
}

// AmountMoney returns the amount as Money
func (p *Payment) AmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(p.Amount, valueobject.Currency(p.Currency))
	return m
}

// IsApplied reports whether the allocation engine already ran for this payment
func (p *Payment) IsApplied() bool {
	return p.AllocatedAt != nil
}

// MarkApplied records that the payment has been distributed. A payment is
// applied at most once.
func (p *Payment) MarkApplied(at time.Time) error {
	if p.Status != PaymentStatusCompleted {
		return shared.NewInvalidStateError("PAYMENT_NOT_COMPLETED",
			fmt.Sprintf("Cannot allocate a %s payment", p.Status))
	}
	if p.IsApplied() {
		return shared.NewInvalidStateError("PAYMENT_ALREADY_APPLIED",
			fmt.Sprintf("Payment %s was already allocated at %s", p.ID, p.AllocatedAt.Format(time.RFC3339)))
	}
	p.AllocatedAt = &at
	p.Touch()
	return nil
}

// ConvertToAdvance turns a payment that settled no invoice into an advance
func (p *Payment) ConvertToAdvance() {
	p.PaymentType = PaymentTypeAdvance
	p.Touch()
}

// Void cancels a payment that has no allocations
func (p *Payment) Void(allocationCount int) error {
	if p.Status != PaymentStatusCompleted {
		return shared.NewInvalidStateError("PAYMENT_NOT_COMPLETED",
			fmt.Sprintf("Cannot void a %s payment", p.Status))
	}
	if allocationCount > 0 {
		return shared.NewInvalidStateError("PAYMENT_HAS_ALLOCATIONS",
			"Payments with allocations cannot be voided")
	}
	now := time.Now()
	p.Status = PaymentStatusVoided
	p.VoidedAt = &now
	p.Touch()
	p.AddDomainEvent(NewPaymentVoidedEvent(p))
	return nil
}
