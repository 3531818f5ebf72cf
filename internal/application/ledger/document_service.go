package ledger

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/application/validation"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentService covers the draft and confirmed stages of a document.
// Every line change recalculates the totals before it is saved.
type DocumentService struct {
	docs ledger.DocumentRepository
	txm  shared.TransactionManager
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(docs ledger.DocumentRepository, txm shared.TransactionManager) *DocumentService {
	return &DocumentService{docs: docs, txm: txm}
}

// CreateDraft creates a draft document, optionally with its first lines
func (s *DocumentService) CreateDraft(ctx context.Context, req CreateDraftRequest) (*ledger.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "create_draft")
	defer span.End()

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.Type == ledger.DocumentTypeCreditNote {
		return nil, shared.NewValidationError("CREDIT_NOTE_REQUIRES_ISSUE",
			"Credit notes are created from a posted invoice with the credit note issue operation", "type")
	}

	doc, err := ledger.NewDocument(req.TenantID, req.CompanyID, req.PartnerID, req.Type,
		req.DocumentNumber, req.DocumentDate, valueobject.Currency(req.Currency))
	if err != nil {
		return nil, err
	}
	if err := doc.SetDueDate(req.DueDate); err != nil {
		return nil, err
	}
	for _, l := range req.Lines {
		if _, err := doc.AddLine(l.input()); err != nil {
			return nil, err
		}
	}
	if err := doc.Recalculate(); err != nil {
		return nil, err
	}

	err = s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.docs.ExistsByDocumentNumber(ctx, req.TenantID, doc.DocumentNumber)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewValidationError("DUPLICATE_DOCUMENT_NUMBER",
				fmt.Sprintf("Document number %s already exists", doc.DocumentNumber), "document_number")
		}
		return s.docs.Create(ctx, doc)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(ctx).Info("Draft document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_number", doc.DocumentNumber),
		zap.String("type", doc.Type.String()),
	)
	return doc, nil
}

// Get returns a document of the tenant
func (s *DocumentService) Get(ctx context.Context, tenantID, documentID uuid.UUID) (*ledger.Document, error) {
	doc, err := s.docs.FindByIDForTenant(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, shared.NewNotFoundError("DOCUMENT", documentID)
	}
	return doc, nil
}

// AddLine appends a line to a draft
func (s *DocumentService) AddLine(ctx context.Context, tenantID, documentID uuid.UUID, req LineRequest) (*ledger.Document, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.mutateLines(ctx, "add_line", tenantID, documentID, func(d *ledger.Document) error {
		_, err := d.AddLine(req.input())
		return err
	})
}

// UpdateLine replaces a line of a draft
func (s *DocumentService) UpdateLine(ctx context.Context, tenantID, documentID, lineID uuid.UUID, req LineRequest) (*ledger.Document, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.mutateLines(ctx, "update_line", tenantID, documentID, func(d *ledger.Document) error {
		_, err := d.UpdateLine(lineID, req.input())
		return err
	})
}

// RemoveLine deletes a line of a draft
func (s *DocumentService) RemoveLine(ctx context.Context, tenantID, documentID, lineID uuid.UUID) (*ledger.Document, error) {
	return s.mutateLines(ctx, "remove_line", tenantID, documentID, func(d *ledger.Document) error {
		return d.RemoveLine(lineID)
	})
}

// Recalculate recomputes a draft's totals from its lines
func (s *DocumentService) Recalculate(ctx context.Context, tenantID, documentID uuid.UUID) (*ledger.Document, error) {
	return s.mutateLines(ctx, "recalculate", tenantID, documentID, func(*ledger.Document) error {
		return nil
	})
}

func (s *DocumentService) mutateLines(
	ctx context.Context,
	method string,
	tenantID, documentID uuid.UUID,
	change func(d *ledger.Document) error,
) (*ledger.Document, error) {
	return s.mutate(ctx, method, tenantID, documentID, func(d *ledger.Document) error {
		if err := change(d); err != nil {
			return err
		}
		return d.Recalculate()
	})
}

// AddAdditionalCost attaches a landed cost to a draft or confirmed document
func (s *DocumentService) AddAdditionalCost(ctx context.Context, tenantID, documentID uuid.UUID, req AdditionalCostRequest) (*ledger.Document, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_additional_cost", tenantID, documentID, func(d *ledger.Document) error {
		_, err := d.AddAdditionalCost(req.CostType, req.Amount, req.Description)
		return err
	})
}

// RemoveAdditionalCost detaches a landed cost
func (s *DocumentService) RemoveAdditionalCost(ctx context.Context, tenantID, documentID, costID uuid.UUID) (*ledger.Document, error) {
	return s.mutate(ctx, "remove_additional_cost", tenantID, documentID, func(d *ledger.Document) error {
		return d.RemoveAdditionalCost(costID)
	})
}

// Confirm freezes a draft
func (s *DocumentService) Confirm(ctx context.Context, tenantID, documentID uuid.UUID) (*ledger.Document, error) {
	doc, err := s.mutate(ctx, "confirm", tenantID, documentID, func(d *ledger.Document) error {
		return d.Confirm()
	})
	if err == nil {
		logger.L(ctx).Info("Document confirmed",
			zap.String("document_id", doc.ID.String()),
			zap.String("total", doc.Total.StringFixed(valueobject.CentPlaces)),
		)
	}
	return doc, err
}

// Discard cancels a draft or confirmed document that was never posted
func (s *DocumentService) Discard(ctx context.Context, tenantID, documentID uuid.UUID) (*ledger.Document, error) {
	doc, err := s.mutate(ctx, "discard", tenantID, documentID, func(d *ledger.Document) error {
		return d.Discard()
	})
	if err == nil {
		logger.L(ctx).Info("Document discarded", zap.String("document_id", doc.ID.String()))
	}
	return doc, err
}

// mutate loads the document with a row lock, applies change and saves it
// in one transaction
func (s *DocumentService) mutate(
	ctx context.Context,
	method string,
	tenantID, documentID uuid.UUID,
	change func(d *ledger.Document) error,
) (*ledger.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", method)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrDocumentID, documentID.String(),
	)

	var doc *ledger.Document
	err := s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		d, err := s.docs.FindByIDForUpdate(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		if d == nil {
			return shared.NewNotFoundError("DOCUMENT", documentID)
		}
		if err := change(d); err != nil {
			return err
		}
		if err := s.docs.SaveWithLock(ctx, d); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return doc, nil
}
