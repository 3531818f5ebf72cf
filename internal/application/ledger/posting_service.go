package ledger

import (
	"context"
	"fmt"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PostingService moves confirmed documents into the ledger. Invoices and
// credit notes are appended to their (tenant, company, type) hash chain.
type PostingService struct {
	docs       ledger.DocumentRepository
	txm        shared.TransactionManager
	locker     shared.ScopeLocker
	dispatcher *appevent.Dispatcher
	hasher     ledger.FiscalHashService
	metrics    *telemetry.LedgerMetrics
	now        func() time.Time
}

// NewPostingService creates a new PostingService
func NewPostingService(
	docs ledger.DocumentRepository,
	txm shared.TransactionManager,
	locker shared.ScopeLocker,
	dispatcher *appevent.Dispatcher,
	metrics *telemetry.LedgerMetrics,
) *PostingService {
	return &PostingService{
		docs:       docs,
		txm:        txm,
		locker:     locker,
		dispatcher: dispatcher,
		hasher:     ledger.NewFiscalHashService(),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Post posts a confirmed document. For fiscal types the chain head is read
// under the chain scope lock, so concurrent postings on one chain get
// consecutive sequence numbers.
func (s *PostingService) Post(ctx context.Context, tenantID, documentID uuid.UUID) (*PostResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "posting", "post")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrDocumentID, documentID.String(),
	)

	var doc *ledger.Document
	var release func()
	defer func() {
		if release != nil {
			release()
		}
	}()

	err := s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		d, err := s.loadForUpdate(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		if d.Status != ledger.DocumentStatusConfirmed {
			return shared.NewInvalidStateError("NOT_CONFIRMED", "Only confirmed documents can be posted")
		}
		if d.Type == ledger.DocumentTypeCreditNote {
			if err := s.checkCreditNote(ctx, d); err != nil {
				return err
			}
		}

		postedAt := s.now()
		var link *ledger.ChainLink
		if d.Type.IsFiscal() {
			scope := ledger.ChainScope{TenantID: d.TenantID, CompanyID: d.CompanyID, Type: d.Type}
			release, err = s.locker.Acquire(logger.WithScope(ctx, scope.LockKey()), scope.LockKey())
			if err != nil {
				return err
			}
			if link, err = s.nextLink(ctx, scope, d, postedAt); err != nil {
				return err
			}
		}

		if err := d.MarkPosted(postedAt, link); err != nil {
			return err
		}
		if err := s.docs.SaveWithLock(ctx, d); err != nil {
			return err
		}
		doc = d
		return s.dispatcher.Record(ctx, d.GetDomainEvents()...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.IsKind(err, shared.KindInvalidState) || shared.IsRetryable(err) {
			logger.L(ctx).Warn("Posting rejected",
				zap.String("document_id", documentID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.dispatcher.PublishCommitted(ctx, doc.GetDomainEvents()...)
	doc.ClearDomainEvents()
	s.metrics.RecordPosted(ctx, doc.Type.String())

	fields := []zap.Field{
		zap.String("document_id", doc.ID.String()),
		zap.String("document_number", doc.DocumentNumber),
		zap.String("type", doc.Type.String()),
	}
	if doc.ChainSequence != nil {
		fields = append(fields, zap.Int64("chain_sequence", *doc.ChainSequence))
		telemetry.SetAttributes(span, telemetry.SpanAttrChainSequence, *doc.ChainSequence)
	}
	logger.L(ctx).Info("Document posted", fields...)

	return &PostResult{
		DocumentID:    doc.ID,
		Status:        doc.Status,
		FiscalHash:    doc.FiscalHash,
		PreviousHash:  doc.PreviousHash,
		ChainSequence: doc.ChainSequence,
		PostedAt:      *doc.PostedAt,
	}, nil
}

// nextLink computes the chain position d takes when posted at postedAt.
// Must run under the chain scope lock.
func (s *PostingService) nextLink(ctx context.Context, scope ledger.ChainScope, d *ledger.Document, postedAt time.Time) (*ledger.ChainLink, error) {
	head, err := s.docs.FindChainHeadForUpdate(ctx, scope)
	if err != nil {
		return nil, err
	}
	link := &ledger.ChainLink{Sequence: 1}
	if head != nil {
		prev := head.FiscalHash
		link.PreviousHash = &prev
		link.Sequence = head.Sequence + 1
	}
	telemetry.AddEvent(trace.SpanFromContext(ctx), "chain_head_locked",
		telemetry.SpanAttrLockScope, scope.LockKey(),
		telemetry.SpanAttrChainSequence, link.Sequence,
	)
	link.Hash, err = s.hasher.Hash(d, postedAt, link.PreviousHash)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", d.DocumentNumber, err)
	}
	return link, nil
}

// Cancel cancels a posted document. The fiscal hash and chain position stay
// as they are. Invoices that already received payments cannot be cancelled.
func (s *PostingService) Cancel(ctx context.Context, tenantID, documentID uuid.UUID) (*CancelResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "posting", "cancel")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrDocumentID, documentID.String(),
	)

	var doc *ledger.Document
	err := s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		d, err := s.loadForUpdate(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		if d.Status == ledger.DocumentStatusPosted && d.Type == ledger.DocumentTypeInvoice && d.BalanceDue.LessThan(d.Total) {
			return shared.NewInvalidStateError("DOCUMENT_HAS_PAYMENTS",
				fmt.Sprintf("Invoice %s has payments allocated and cannot be cancelled", d.DocumentNumber))
		}
		if err := d.Cancel(); err != nil {
			return err
		}
		if err := s.docs.SaveWithLock(ctx, d); err != nil {
			return err
		}
		doc = d
		return s.dispatcher.Record(ctx, d.GetDomainEvents()...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.dispatcher.PublishCommitted(ctx, doc.GetDomainEvents()...)
	doc.ClearDomainEvents()
	s.metrics.RecordCancelled(ctx, doc.Type.String())
	logger.L(ctx).Info("Document cancelled",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_number", doc.DocumentNumber),
	)

	return &CancelResult{
		DocumentID:  doc.ID,
		Status:      doc.Status,
		FiscalHash:  doc.FiscalHash,
		CancelledAt: *doc.CancelledAt,
	}, nil
}

// checkCreditNote re-reads the credited invoice under its row lock. Issue
// checked the cumulative credit once; the invoice may have been cancelled
// or credited further since.
func (s *PostingService) checkCreditNote(ctx context.Context, note *ledger.Document) error {
	invoiceID, ok := note.CreditedInvoiceID()
	if !ok {
		return shared.NewInvalidStateError("CREDIT_SOURCE_MISSING",
			fmt.Sprintf("Credit note %s does not reference an invoice", note.DocumentNumber))
	}
	invoice, err := s.loadForUpdate(ctx, note.TenantID, invoiceID)
	if err != nil {
		return err
	}
	if invoice.Type != ledger.DocumentTypeInvoice || invoice.Status != ledger.DocumentStatusPosted {
		return shared.NewInvalidStateError("CREDIT_SOURCE_NOT_POSTED",
			fmt.Sprintf("Invoice %s is %s, only posted invoices can be credited", invoice.DocumentNumber, invoice.Status))
	}
	// includes note itself, which is confirmed and not cancelled
	credited, err := s.docs.SumActiveCreditNotes(ctx, note.TenantID, invoiceID)
	if err != nil {
		return err
	}
	if credited.GreaterThan(invoice.Total) {
		return shared.NewInvalidStateError("CUMULATIVE_CREDIT_EXCEEDS_INVOICE",
			fmt.Sprintf("Credit notes total %s, above invoice total %s",
				credited.StringFixed(2), invoice.Total.StringFixed(2)))
	}
	return nil
}

func (s *PostingService) loadForUpdate(ctx context.Context, tenantID, documentID uuid.UUID) (*ledger.Document, error) {
	d, err := s.docs.FindByIDForUpdate(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, shared.NewNotFoundError("DOCUMENT", documentID)
	}
	return d, nil
}
