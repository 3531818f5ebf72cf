package payment

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WriteoffKind records which side of the balance a tolerance write-off covers
type WriteoffKind string

const (
	WriteoffNone WriteoffKind = "none"
	// WriteoffUnderpayment closes a small residual balance the payment did not cover
	WriteoffUnderpayment WriteoffKind = "underpayment"
	// WriteoffOverpayment absorbs a small amount paid above the balance
	WriteoffOverpayment WriteoffKind = "overpayment"
)

// PaymentAllocation is the part of a payment applied to one document
type PaymentAllocation struct {
	ID                uuid.UUID       `json:"id"`
	TenantID          uuid.UUID       `json:"tenant_id"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	DocumentID        uuid.UUID       `json:"document_id"`
	Amount            decimal.Decimal `json:"amount"`
	ToleranceWriteoff decimal.Decimal `json:"tolerance_writeoff"`
	WriteoffKind      WriteoffKind    `json:"writeoff_kind"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewPaymentAllocation creates a new allocation row
func NewPaymentAllocation(p *Payment, documentID uuid.UUID, amount, writeoff decimal.Decimal, kind WriteoffKind) (*PaymentAllocation, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive", "amount")
	}
	if writeoff.IsNegative() {
		return nil, shared.NewValidationError("INVALID_WRITEOFF", "Tolerance write-off cannot be negative", "tolerance_writeoff")
	}
	if writeoff.IsZero() {
		kind = WriteoffNone
	} else if kind == WriteoffNone {
		return nil, shared.NewValidationError("INVALID_WRITEOFF", "Write-off requires a kind", "writeoff_kind")
	}
	return &PaymentAllocation{
		ID:                uuid.New(),
		TenantID:          p.TenantID,
		PaymentID:         p.ID,
		DocumentID:        documentID,
		Amount:            amount,
		ToleranceWriteoff: writeoff,
		WriteoffKind:      kind,
		CreatedAt:         time.Now(),
	}, nil
}

// SettledAmount is how much of the document balance the allocation closes.
// Overpayment write-offs never reduce the balance below what was paid.
func (a *PaymentAllocation) SettledAmount() decimal.Decimal {
	if a.WriteoffKind == WriteoffUnderpayment {
		return a.Amount.Add(a.ToleranceWriteoff)
	}
	return a.Amount
}
