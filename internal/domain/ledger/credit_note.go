package ledger

import (
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditNoteAmounts is the split of a credited amount into subtotal and tax
type CreditNoteAmounts struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

// CreditNoteCalculator derives proportional amounts for partial credit notes
type CreditNoteCalculator struct{}

// NewCreditNoteCalculator creates a new CreditNoteCalculator
func NewCreditNoteCalculator() CreditNoteCalculator {
	return CreditNoteCalculator{}
}

// Compute splits amount using the invoice's tax ratio. alreadyCredited is the
// sum of totals of non-cancelled credit notes already issued against invoice.
// The tax is rounded once and the subtotal is its complement, so
// Subtotal + TaxAmount == amount exactly.
func (CreditNoteCalculator) Compute(invoice *Document, alreadyCredited, amount decimal.Decimal) (CreditNoteAmounts, error) {
	if invoice.Type != DocumentTypeInvoice {
		return CreditNoteAmounts{}, shared.NewValidationError("CREDIT_SOURCE_NOT_INVOICE",
			fmt.Sprintf("Credit notes can only reference invoices, got %s", invoice.Type), "source_document_id")
	}
	if invoice.Status != DocumentStatusPosted {
		return CreditNoteAmounts{}, shared.NewValidationError("CREDIT_SOURCE_NOT_POSTED",
			fmt.Sprintf("Invoice %s is %s, only posted invoices can be credited", invoice.DocumentNumber, invoice.Status),
			"source_document_id")
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(valueobject.CentPlaces)) {
		return CreditNoteAmounts{}, shared.NewValidationError("INVALID_CREDIT_AMOUNT",
			"Credit amount must be positive with at most two decimals", "amount")
	}
	if !invoice.Total.IsPositive() {
		return CreditNoteAmounts{}, shared.NewValidationError("CREDIT_SOURCE_ZERO_TOTAL",
			fmt.Sprintf("Invoice %s has no total to credit", invoice.DocumentNumber), "source_document_id")
	}
	if amount.GreaterThan(invoice.Total) {
		return CreditNoteAmounts{}, shared.NewValidationError("CREDIT_EXCEEDS_INVOICE",
			fmt.Sprintf("Credit amount %s exceeds invoice total %s", amount.StringFixed(2), invoice.Total.StringFixed(2)),
			"amount")
	}
	if alreadyCredited.Add(amount).GreaterThan(invoice.Total) {
		return CreditNoteAmounts{}, shared.NewValidationError("CUMULATIVE_CREDIT_EXCEEDS_INVOICE",
			fmt.Sprintf("Credit notes would total %s, above invoice total %s (already credited %s)",
				alreadyCredited.Add(amount).StringFixed(2), invoice.Total.StringFixed(2), alreadyCredited.StringFixed(2)),
			"amount")
	}

	ratio, err := valueobject.Ratio(invoice.TaxAmount, invoice.Total)
	if err != nil {
		return CreditNoteAmounts{}, err
	}
	taxRaw := amount.Mul(ratio).Round(valueobject.CentPlaces)
	subtotal := amount.Sub(taxRaw)

	return CreditNoteAmounts{
		Subtotal:  subtotal,
		TaxAmount: amount.Sub(subtotal),
		Total:     amount,
	}, nil
}

// NewCreditNote creates a draft credit note against invoice carrying a single
// line with the computed amounts
func NewCreditNote(
	invoice *Document,
	documentNumber string,
	documentDate time.Time,
	reason string,
	amounts CreditNoteAmounts,
) (*Document, error) {
	if reason == "" {
		return nil, shared.NewValidationError("INVALID_REASON", "Credit note reason is required", "reason")
	}
	cn, err := NewDocument(
		invoice.TenantID,
		invoice.CompanyID,
		invoice.PartnerID,
		DocumentTypeCreditNote,
		documentNumber,
		documentDate,
		valueobject.Currency(invoice.Currency),
	)
	if err != nil {
		return nil, err
	}

	sourceID := invoice.ID
	cn.SourceDocumentID = &sourceID
	cn.CreditNoteReason = reason

	description := fmt.Sprintf("Credit for %s: %s", invoice.DocumentNumber, reason)
	if err := cn.addExplicitLine(description, amounts.Subtotal, amounts.TaxAmount); err != nil {
		return nil, err
	}
	if err := cn.Recalculate(); err != nil {
		return nil, err
	}
	return cn, nil
}

// CreditedInvoiceID returns the source invoice of a credit note
func (d *Document) CreditedInvoiceID() (uuid.UUID, bool) {
	if d.Type != DocumentTypeCreditNote || d.SourceDocumentID == nil {
		return uuid.Nil, false
	}
	return *d.SourceDocumentID, true
}
