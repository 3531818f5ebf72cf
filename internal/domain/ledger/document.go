package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentType identifies the kind of commercial document
type DocumentType string

const (
	DocumentTypeQuote         DocumentType = "quote"
	DocumentTypeOrder         DocumentType = "order"
	DocumentTypeInvoice       DocumentType = "invoice"
	DocumentTypeCreditNote    DocumentType = "credit_note"
	DocumentTypeDeliveryNote  DocumentType = "delivery_note"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
)

// IsValid checks if the type is a known DocumentType
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeQuote, DocumentTypeOrder, DocumentTypeInvoice,
		DocumentTypeCreditNote, DocumentTypeDeliveryNote, DocumentTypePurchaseOrder:
		return true
	}
	return false
}

// IsFiscal returns true for types that are hash-chained on posting
func (t DocumentType) IsFiscal() bool {
	return t == DocumentTypeInvoice || t == DocumentTypeCreditNote
}

// String returns the string representation of DocumentType
func (t DocumentType) String() string {
	return string(t)
}

// DocumentStatus represents the lifecycle status of a document
type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "draft"     // Lines may change
	DocumentStatusConfirmed DocumentStatus = "confirmed" // Frozen, waiting to be posted
	DocumentStatusPosted    DocumentStatus = "posted"    // In the ledger
	DocumentStatusCancelled DocumentStatus = "cancelled" // Terminal
	DocumentStatusPaid      DocumentStatus = "paid"      // Terminal, fully allocated
)

// IsValid checks if the status is a valid DocumentStatus
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusConfirmed, DocumentStatusPosted,
		DocumentStatusCancelled, DocumentStatusPaid:
		return true
	}
	return false
}

// String returns the string representation of DocumentStatus
func (s DocumentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCancelled || s == DocumentStatusPaid
}

// CanEditLines returns true while the document is a draft
func (s DocumentStatus) CanEditLines() bool {
	return s == DocumentStatusDraft
}

// CanDiscard returns true for documents that never reached the ledger
func (s DocumentStatus) CanDiscard() bool {
	return s == DocumentStatusDraft || s == DocumentStatusConfirmed
}

// CostType classifies an additional cost
type CostType string

const (
	CostTypeShipping  CostType = "shipping"
	CostTypeCustoms   CostType = "customs"
	CostTypeTransport CostType = "transport"
	CostTypeHandling  CostType = "handling"
	CostTypeInsurance CostType = "insurance"
	CostTypeOther     CostType = "other"
)

// IsValid checks if the cost type is valid
func (c CostType) IsValid() bool {
	switch c {
	case CostTypeShipping, CostTypeCustoms, CostTypeTransport,
		CostTypeHandling, CostTypeInsurance, CostTypeOther:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// DocumentLine is one priced line of a document. LineTotal and TaxAmount are
// stored rounded to cents so document totals are exact sums.
type DocumentLine struct {
	ID          uuid.UUID       `json:"id"`
	DocumentID  uuid.UUID       `json:"document_id"`
	LineNumber  int             `json:"line_number"`
	Description string          `json:"description"`
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"` // percent, e.g. 19
	LineTotal   decimal.Decimal `json:"line_total"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

// LineInput carries the editable fields of a line
type LineInput struct {
	Description string
	ProductID   *uuid.UUID
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
}

func (in LineInput) validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return shared.NewValidationError("INVALID_DESCRIPTION", "Line description cannot be empty", "description")
	}
	if !in.Quantity.IsPositive() {
		return shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive", "quantity")
	}
	if in.UnitPrice.IsNegative() {
		return shared.NewValidationError("INVALID_UNIT_PRICE", "Unit price cannot be negative", "unit_price")
	}
	if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred) {
		return shared.NewValidationError("INVALID_TAX_RATE", "Tax rate must be between 0 and 100", "tax_rate")
	}
	return nil
}

func (l *DocumentLine) apply(in LineInput) {
	l.Description = in.Description
	l.ProductID = in.ProductID
	l.Quantity = in.Quantity
	l.UnitPrice = in.UnitPrice
	l.TaxRate = in.TaxRate
	l.LineTotal = in.Quantity.Mul(in.UnitPrice).Round(valueobject.CentPlaces)
	l.TaxAmount = l.LineTotal.Mul(in.TaxRate).Div(hundred).Round(valueobject.CentPlaces)
}

// AdditionalCost is a landed cost attached to a document. It never changes
// the document subtotal.
type AdditionalCost struct {
	ID          uuid.UUID       `json:"id"`
	DocumentID  uuid.UUID       `json:"document_id"`
	CostType    CostType        `json:"cost_type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// ChainLink is the position a fiscal document takes in its hash chain
type ChainLink struct {
	PreviousHash *string
	Sequence     int64
	Hash         string
}

// Document is the aggregate root for quotes, orders, invoices, credit notes,
// delivery notes and purchase orders
type Document struct {
	shared.CompanyAggregateRoot
	Type             DocumentType     `json:"type"`
	Status           DocumentStatus   `json:"status"`
	PartnerID        uuid.UUID        `json:"partner_id"`
	DocumentNumber   string           `json:"document_number"`
	DocumentDate     time.Time        `json:"document_date"`
	DueDate          *time.Time       `json:"due_date,omitempty"`
	Currency         string           `json:"currency"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	TaxAmount        decimal.Decimal  `json:"tax_amount"`
	Total            decimal.Decimal  `json:"total"`
	BalanceDue       decimal.Decimal  `json:"balance_due"`
	SourceDocumentID *uuid.UUID       `json:"source_document_id,omitempty"`
	CreditNoteReason string           `json:"credit_note_reason,omitempty"`
	FiscalHash       *string          `json:"fiscal_hash,omitempty"`
	PreviousHash     *string          `json:"previous_hash,omitempty"`
	ChainSequence    *int64           `json:"chain_sequence,omitempty"`
	PostedAt         *time.Time       `json:"posted_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	Lines            []DocumentLine   `json:"lines"`
	AdditionalCosts  []AdditionalCost `json:"additional_costs"`
}

// NewDocument creates a new draft document
func NewDocument(
	tenantID, companyID, partnerID uuid.UUID,
	docType DocumentType,
	documentNumber string,
	documentDate time.Time,
	currency valueobject.Currency,
) (*Document, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty", "tenant_id")
	}
	if companyID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_COMPANY", "Company ID cannot be empty", "company_id")
	}
	if partnerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PARTNER", "Partner ID cannot be empty", "partner_id")
	}
	if !docType.IsValid() {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_TYPE", fmt.Sprintf("Unknown document type %q", docType), "type")
	}
	documentNumber = strings.TrimSpace(documentNumber)
	if documentNumber == "" {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_NUMBER", "Document number cannot be empty", "document_number")
	}
	if len(documentNumber) > 50 {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_NUMBER", "Document number cannot exceed 50 characters", "document_number")
	}
	if documentDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_DATE", "Document date is required", "document_date")
	}
	if currency == "" {
		return nil, shared.NewValidationError("INVALID_CURRENCY", "Currency is required", "currency")
	}

	return &Document{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(tenantID, companyID),
		Type:                 docType,
		Status:               DocumentStatusDraft,
		PartnerID:            partnerID,
		DocumentNumber:       documentNumber,
		DocumentDate:         documentDate,
		Currency:             string(currency),
		Subtotal:             decimal.Zero,
		TaxAmount:            decimal.Zero,
		Total:                decimal.Zero,
		BalanceDue:           decimal.Zero,
		Lines:                make([]DocumentLine, 0),
		AdditionalCosts:      make([]AdditionalCost, 0),
	}, nil
}

func (d *Document) requireStatus(allowed bool, code, message string) error {
	if !allowed {
		return shared.NewInvalidStateError(code, message)
	}
	return nil
}

// requireFreeLines rejects line edits on credit notes. Their single line is
// derived from the credited amount and the invoice tax ratio.
func (d *Document) requireFreeLines() error {
	if d.Type == DocumentTypeCreditNote {
		return shared.NewInvalidStateError("DOCUMENT_NOT_EDITABLE",
			"Credit note lines cannot be edited; cancel the draft and issue a new credit note")
	}
	return nil
}

// SetDueDate sets the payment due date while the document is a draft
func (d *Document) SetDueDate(due *time.Time) error {
	if err := d.requireStatus(d.Status.CanEditLines(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot change due date of a %s document", d.Status)); err != nil {
		return err
	}
	if due != nil && due.Before(d.DocumentDate) {
		return shared.NewValidationError("INVALID_DUE_DATE", "Due date cannot be before the document date", "due_date")
	}
	d.DueDate = due
	d.Touch()
	return nil
}

// AddLine appends a line. Totals are not touched until Recalculate is called.
func (d *Document) AddLine(in LineInput) (*DocumentLine, error) {
	if err := d.requireStatus(d.Status.CanEditLines(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot add lines to a %s document", d.Status)); err != nil {
		return nil, err
	}
	if err := d.requireFreeLines(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	line := DocumentLine{
		ID:         uuid.New(),
		DocumentID: d.ID,
		LineNumber: len(d.Lines) + 1,
	}
	line.apply(in)
	d.Lines = append(d.Lines, line)
	d.Touch()
	return &d.Lines[len(d.Lines)-1], nil
}

// addExplicitLine appends a line whose subtotal and tax are given rather than
// derived from quantity and rate. Used for credit notes, whose tax must be the
// exact complement of the credited amount.
func (d *Document) addExplicitLine(description string, subtotal, tax decimal.Decimal) error {
	if !d.Status.CanEditLines() {
		return shared.NewInvalidStateError("DOCUMENT_NOT_EDITABLE", "Cannot add lines to a non-draft document")
	}
	rate := decimal.Zero
	if !subtotal.IsZero() {
		rate = tax.Mul(hundred).DivRound(subtotal, 4)
	}
	d.Lines = append(d.Lines, DocumentLine{
		ID:          uuid.New(),
		DocumentID:  d.ID,
		LineNumber:  len(d.Lines) + 1,
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   subtotal,
		TaxRate:     rate,
		LineTotal:   subtotal,
		TaxAmount:   tax,
	})
	d.Touch()
	return nil
}

// UpdateLine replaces the editable fields of a line
func (d *Document) UpdateLine(lineID uuid.UUID, in LineInput) (*DocumentLine, error) {
	if err := d.requireStatus(d.Status.CanEditLines(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot edit lines of a %s document", d.Status)); err != nil {
		return nil, err
	}
	if err := d.requireFreeLines(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	for i := range d.Lines {
		if d.Lines[i].ID == lineID {
			d.Lines[i].apply(in)
			d.Touch()
			return &d.Lines[i], nil
		}
	}
	return nil, shared.NewNotFoundError("DOCUMENT_LINE", lineID)
}

// RemoveLine deletes a line and renumbers the remaining ones
func (d *Document) RemoveLine(lineID uuid.UUID) error {
	if err := d.requireStatus(d.Status.CanEditLines(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot remove lines from a %s document", d.Status)); err != nil {
		return err
	}
	if err := d.requireFreeLines(); err != nil {
		return err
	}
	idx := -1
	for i := range d.Lines {
		if d.Lines[i].ID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return shared.NewNotFoundError("DOCUMENT_LINE", lineID)
	}
	d.Lines = append(d.Lines[:idx], d.Lines[idx+1:]...)
	for i := range d.Lines {
		d.Lines[i].LineNumber = i + 1
	}
	d.Touch()
	return nil
}

// Recalculate recomputes subtotal, tax and total from the lines.
// Only drafts are recalculated; afterwards totals are frozen.
func (d *Document) Recalculate() error {
	if err := d.requireStatus(d.Status.CanEditLines(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot recalculate a %s document", d.Status)); err != nil {
		return err
	}
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range d.Lines {
		subtotal = subtotal.Add(l.LineTotal)
		tax = tax.Add(l.TaxAmount)
	}
	d.Subtotal = subtotal
	d.TaxAmount = tax
	d.Total = subtotal.Add(tax)
	d.BalanceDue = d.Total
	d.Touch()
	return nil
}

func (d *Document) totalsCurrent() bool {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range d.Lines {
		subtotal = subtotal.Add(l.LineTotal)
		tax = tax.Add(l.TaxAmount)
	}
	return d.Subtotal.Equal(subtotal) && d.TaxAmount.Equal(tax) && d.Total.Equal(subtotal.Add(tax))
}

// AddAdditionalCost attaches a landed cost to a document that is not yet posted
func (d *Document) AddAdditionalCost(costType CostType, amount decimal.Decimal, description string) (*AdditionalCost, error) {
	if err := d.requireStatus(d.Status.CanDiscard(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot add costs to a %s document", d.Status)); err != nil {
		return nil, err
	}
	if !costType.IsValid() {
		return nil, shared.NewValidationError("INVALID_COST_TYPE", fmt.Sprintf("Unknown cost type %q", costType), "cost_type")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Cost amount must be positive", "amount")
	}
	d.AdditionalCosts = append(d.AdditionalCosts, AdditionalCost{
		ID:          uuid.New(),
		DocumentID:  d.ID,
		CostType:    costType,
		Amount:      amount,
		Description: description,
	})
	d.Touch()
	return &d.AdditionalCosts[len(d.AdditionalCosts)-1], nil
}

// RemoveAdditionalCost detaches a landed cost
func (d *Document) RemoveAdditionalCost(costID uuid.UUID) error {
	if err := d.requireStatus(d.Status.CanDiscard(), "DOCUMENT_NOT_EDITABLE",
		fmt.Sprintf("Cannot remove costs from a %s document", d.Status)); err != nil {
		return err
	}
	for i := range d.AdditionalCosts {
		if d.AdditionalCosts[i].ID == costID {
			d.AdditionalCosts = append(d.AdditionalCosts[:i], d.AdditionalCosts[i+1:]...)
			d.Touch()
			return nil
		}
	}
	return shared.NewNotFoundError("ADDITIONAL_COST", costID)
}

// AdditionalCostTotal sums the landed costs
func (d *Document) AdditionalCostTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range d.AdditionalCosts {
		sum = sum.Add(c.Amount)
	}
	return sum
}

// Confirm freezes the document. Lines can no longer change.
func (d *Document) Confirm() error {
	if err := d.requireStatus(d.Status == DocumentStatusDraft, "NOT_DRAFT",
		fmt.Sprintf("Cannot confirm a %s document", d.Status)); err != nil {
		return err
	}
	if len(d.Lines) == 0 {
		return shared.NewValidationError("NO_LINES", "Document must have at least one line", "lines")
	}
	if !d.totalsCurrent() {
		return shared.NewValidationError("TOTALS_OUT_OF_DATE", "Document totals must be recalculated before confirming", "total")
	}
	d.Status = DocumentStatusConfirmed
	d.Touch()
	return nil
}

// Discard cancels a draft or confirmed document that never reached the ledger
func (d *Document) Discard() error {
	if err := d.requireStatus(d.Status.CanDiscard(), "NOT_DISCARDABLE",
		fmt.Sprintf("Cannot discard a %s document", d.Status)); err != nil {
		return err
	}
	now := time.Now()
	d.Status = DocumentStatusCancelled
	d.CancelledAt = &now
	d.Touch()
	return nil
}

// MarkPosted moves a confirmed document into the ledger. Fiscal documents
// must be given their chain link; other types must not.
func (d *Document) MarkPosted(postedAt time.Time, link *ChainLink) error {
	if err := d.requireStatus(d.Status == DocumentStatusConfirmed, "NOT_CONFIRMED",
		"Only confirmed documents can be posted"); err != nil {
		return err
	}
	if d.FiscalHash != nil || d.ChainSequence != nil {
		return shared.NewInvalidStateError("ALREADY_CHAINED", "Document already carries a fiscal hash")
	}
	if d.Type.IsFiscal() {
		if link == nil || link.Hash == "" || link.Sequence < 1 {
			return shared.NewInvalidStateError("CHAIN_LINK_REQUIRED", "Fiscal documents must be posted with a chain link")
		}
		hash := link.Hash
		seq := link.Sequence
		d.FiscalHash = &hash
		d.ChainSequence = &seq
		if link.PreviousHash != nil {
			prev := *link.PreviousHash
			d.PreviousHash = &prev
		}
	} else if link != nil {
		return shared.NewInvalidStateError("NOT_FISCAL", fmt.Sprintf("%s documents are not hash-chained", d.Type))
	}

	d.Status = DocumentStatusPosted
	d.PostedAt = &postedAt
	d.BalanceDue = d.Total
	d.Touch()

	if d.Type.IsFiscal() {
		d.AddDomainEvent(NewDocumentPostedEvent(d))
	}
	return nil
}

// Cancel cancels a posted document. Chain fields are left untouched.
func (d *Document) Cancel() error {
	if err := d.requireStatus(d.Status == DocumentStatusPosted, "NOT_POSTED",
		"Only posted documents can be cancelled"); err != nil {
		return err
	}
	now := time.Now()
	d.Status = DocumentStatusCancelled
	d.CancelledAt = &now
	d.Touch()

	if d.Type.IsFiscal() {
		d.AddDomainEvent(NewDocumentCancelledEvent(d))
	}
	return nil
}

// IsOpen reports whether the document can receive payment allocations
func (d *Document) IsOpen() bool {
	return d.Type == DocumentTypeInvoice && d.Status == DocumentStatusPosted && d.BalanceDue.IsPositive()
}

// ApplyPayment settles amount + writeoff of the balance. The document
// becomes paid when the balance reaches zero.
func (d *Document) ApplyPayment(amount, writeoff decimal.Decimal) error {
	if !d.IsOpen() {
		return shared.NewInvalidStateError("DOCUMENT_NOT_OPEN",
			fmt.Sprintf("Document %s is not an open posted invoice", d.DocumentNumber))
	}
	if !amount.IsPositive() || writeoff.IsNegative() {
		return shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive", "amount")
	}
	settled := amount.Add(writeoff)
	if settled.GreaterThan(d.BalanceDue) {
		return shared.NewValidationError("OVERPAYMENT",
			fmt.Sprintf("Allocation %s exceeds balance due %s on %s",
				settled.StringFixed(2), d.BalanceDue.StringFixed(2), d.DocumentNumber),
			"amount")
	}

	d.BalanceDue = d.BalanceDue.Sub(settled)
	if d.BalanceDue.IsZero() {
		d.Status = DocumentStatusPaid
		d.AddDomainEvent(NewDocumentPaidEvent(d))
	}
	d.Touch()
	return nil
}

// TotalMoney returns the total as Money
func (d *Document) TotalMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(d.Total, valueobject.Currency(d.Currency))
	return m
}
