package payment

import (
	"time"

	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualAllocationRequest targets one document with an exact amount
type ManualAllocationRequest struct {
	DocumentID uuid.UUID       `json:"document_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
}

// PreviewRequest asks for an allocation plan without writing anything
type PreviewRequest struct {
	TenantID    uuid.UUID                 `json:"tenant_id" validate:"required"`
	CompanyID   uuid.UUID                 `json:"company_id" validate:"required"`
	PartnerID   uuid.UUID                 `json:"partner_id" validate:"required"`
	Amount      decimal.Decimal           `json:"amount" validate:"gt=0"`
	Currency    string                    `json:"currency" validate:"required,len=3,uppercase"`
	PaymentDate time.Time                 `json:"payment_date"`
	Method      strategy.AllocationMethod `json:"method" validate:"omitempty,oneof=fifo due_date manual"`
	Manual      []ManualAllocationRequest `json:"manual,omitempty" validate:"required_if=Method manual,dive"`
}

// ApplyRequest distributes a recorded payment over the partner's open invoices
type ApplyRequest struct {
	TenantID  uuid.UUID                 `json:"tenant_id" validate:"required"`
	PaymentID uuid.UUID                 `json:"payment_id" validate:"required"`
	Method    strategy.AllocationMethod `json:"method" validate:"omitempty,oneof=fifo due_date manual"`
	Manual    []ManualAllocationRequest `json:"manual,omitempty" validate:"required_if=Method manual,dive"`
}

// ApplyResult is the outcome of applying a payment
type ApplyResult struct {
	PaymentID     uuid.UUID                    `json:"payment_id"`
	PaymentType   payment.PaymentType          `json:"payment_type"`
	Plan          *payment.AllocationPlan      `json:"plan"`
	Allocations   []*payment.PaymentAllocation `json:"allocations"`
	PaidDocuments []uuid.UUID                  `json:"paid_documents,omitempty"`
}

// RecordPaymentRequest records money received from a partner
type RecordPaymentRequest struct {
	TenantID        uuid.UUID       `json:"tenant_id" validate:"required"`
	CompanyID       uuid.UUID       `json:"company_id" validate:"required"`
	PartnerID       uuid.UUID       `json:"partner_id" validate:"required"`
	PaymentMethodID uuid.UUID       `json:"payment_method_id"`
	RepositoryID    uuid.UUID       `json:"repository_id"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency        string          `json:"currency" validate:"required,len=3,uppercase"`
	PaymentDate     time.Time       `json:"payment_date" validate:"required"`
	Reference       string          `json:"reference" validate:"max=100"`
}

func manualAllocations(reqs []ManualAllocationRequest) []strategy.ManualAllocation {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]strategy.ManualAllocation, len(reqs))
	for i, r := range reqs {
		out[i] = strategy.ManualAllocation{DocumentID: r.DocumentID, Amount: r.Amount}
	}
	return out
}
