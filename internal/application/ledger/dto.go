package ledger

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateDraftRequest opens a new draft document
type CreateDraftRequest struct {
	TenantID       uuid.UUID           `json:"tenant_id" validate:"required"`
	CompanyID      uuid.UUID           `json:"company_id" validate:"required"`
	PartnerID      uuid.UUID           `json:"partner_id" validate:"required"`
	Type           ledger.DocumentType `json:"type" validate:"required,oneof=quote order invoice credit_note delivery_note purchase_order"`
	DocumentNumber string              `json:"document_number" validate:"required,max=50"`
	DocumentDate   time.Time           `json:"document_date" validate:"required"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	Currency       string              `json:"currency" validate:"required,len=3,uppercase"`
	Lines          []LineRequest       `json:"lines" validate:"dive"`
}

// LineRequest carries one line's editable fields
type LineRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	TaxRate     decimal.Decimal `json:"tax_rate" validate:"gte=0,lte=100"`
}

func (r LineRequest) input() ledger.LineInput {
	return ledger.LineInput{
		Description: r.Description,
		ProductID:   r.ProductID,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		TaxRate:     r.TaxRate,
	}
}

// AdditionalCostRequest attaches a landed cost
type AdditionalCostRequest struct {
	CostType    ledger.CostType `json:"cost_type" validate:"required,oneof=shipping customs transport handling insurance other"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"max=500"`
}

// IssueCreditNoteRequest issues a partial credit note against a posted invoice
type IssueCreditNoteRequest struct {
	TenantID       uuid.UUID       `json:"tenant_id" validate:"required"`
	InvoiceID      uuid.UUID       `json:"invoice_id" validate:"required"`
	DocumentNumber string          `json:"document_number" validate:"required,max=50"`
	DocumentDate   time.Time       `json:"document_date" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	Reason         string          `json:"reason" validate:"required,max=500"`
}

// PostResult is the outcome of posting a document
type PostResult struct {
	DocumentID    uuid.UUID             `json:"document_id"`
	Status        ledger.DocumentStatus `json:"status"`
	FiscalHash    *string               `json:"fiscal_hash,omitempty"`
	PreviousHash  *string               `json:"previous_hash,omitempty"`
	ChainSequence *int64                `json:"chain_sequence,omitempty"`
	PostedAt      time.Time             `json:"posted_at"`
}

// CancelResult is the outcome of cancelling a posted document
type CancelResult struct {
	DocumentID  uuid.UUID             `json:"document_id"`
	Status      ledger.DocumentStatus `json:"status"`
	FiscalHash  *string               `json:"fiscal_hash,omitempty"`
	CancelledAt time.Time             `json:"cancelled_at"`
}

// ChainBreak describes the first inconsistency found in a chain
type ChainBreak struct {
	Sequence   int64     `json:"sequence"`
	DocumentID uuid.UUID `json:"document_id"`
	Reason     string    `json:"reason"`
}

// ChainReport is the result of verifying one hash chain
type ChainReport struct {
	Scope    ledger.ChainScope `json:"scope"`
	Length   int               `json:"length"`
	HeadHash *string           `json:"head_hash,omitempty"`
	Valid    bool              `json:"valid"`
	Breaks   []ChainBreak      `json:"breaks,omitempty"`
}
