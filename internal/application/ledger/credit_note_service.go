package ledger

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/application/validation"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditNoteService computes and issues partial credit notes
type CreditNoteService struct {
	docs       ledger.DocumentRepository
	txm        shared.TransactionManager
	calculator ledger.CreditNoteCalculator
}

// NewCreditNoteService creates a new CreditNoteService
func NewCreditNoteService(docs ledger.DocumentRepository, txm shared.TransactionManager) *CreditNoteService {
	return &CreditNoteService{
		docs:       docs,
		txm:        txm,
		calculator: ledger.NewCreditNoteCalculator(),
	}
}

// Compute splits amount into subtotal and tax using the invoice's tax ratio.
// Nothing is written.
func (s *CreditNoteService) Compute(ctx context.Context, tenantID, invoiceID uuid.UUID, amount decimal.Decimal) (*ledger.CreditNoteAmounts, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit_note", "compute")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentID, invoiceID.String(),
		telemetry.SpanAttrAmount, amount.String(),
	)

	invoice, err := s.docs.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, shared.NewNotFoundError("DOCUMENT", invoiceID)
	}
	credited, err := s.docs.SumActiveCreditNotes(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	amounts, err := s.calculator.Compute(invoice, credited, amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &amounts, nil
}

// Issue creates a draft credit note for part of a posted invoice. The
// invoice row stays locked while the already-credited total is checked, so
// two concurrent credit notes cannot together exceed the invoice.
func (s *CreditNoteService) Issue(ctx context.Context, req IssueCreditNoteRequest) (*ledger.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit_note", "issue")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, req.TenantID.String(),
		telemetry.SpanAttrDocumentID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var note *ledger.Document
	err := s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		invoice, err := s.docs.FindByIDForUpdate(ctx, req.TenantID, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return shared.NewNotFoundError("DOCUMENT", req.InvoiceID)
		}
		credited, err := s.docs.SumActiveCreditNotes(ctx, req.TenantID, req.InvoiceID)
		if err != nil {
			return err
		}
		amounts, err := s.calculator.Compute(invoice, credited, req.Amount)
		if err != nil {
			return err
		}

		exists, err := s.docs.ExistsByDocumentNumber(ctx, req.TenantID, req.DocumentNumber)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewValidationError("DUPLICATE_DOCUMENT_NUMBER",
				fmt.Sprintf("Document number %s already exists", req.DocumentNumber), "document_number")
		}

		cn, err := ledger.NewCreditNote(invoice, req.DocumentNumber, req.DocumentDate, req.Reason, amounts)
		if err != nil {
			return err
		}
		if err := s.docs.Create(ctx, cn); err != nil {
			return err
		}
		note = cn
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(ctx).Info("Credit note issued",
		zap.String("credit_note_id", note.ID.String()),
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("subtotal", note.Subtotal.String()),
		zap.String("tax_amount", note.TaxAmount.String()),
	)
	return note, nil
}
