package payment

import (
	"context"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/application/validation"
	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService records and voids received payments
type PaymentService struct {
	payments   payment.PaymentRepository
	txm        shared.TransactionManager
	dispatcher *appevent.Dispatcher
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(payments payment.PaymentRepository, txm shared.TransactionManager, dispatcher *appevent.Dispatcher) *PaymentService {
	return &PaymentService{payments: payments, txm: txm, dispatcher: dispatcher}
}

// Record stores a completed document payment. Allocation is a separate step.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, req.TenantID.String(),
		telemetry.SpanAttrPartnerID, req.PartnerID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	currency, err := valueobject.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := valueobject.NewMoney(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	p, err := payment.NewPayment(req.TenantID, req.CompanyID, req.PartnerID, req.PaymentMethodID,
		req.RepositoryID, amount, req.PaymentDate, req.Reference)
	if err != nil {
		return nil, err
	}

	err = s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		return s.dispatcher.Record(ctx, p.GetDomainEvents()...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.dispatcher.PublishCommitted(ctx, p.GetDomainEvents()...)
	p.ClearDomainEvents()
	logger.L(ctx).Info("Payment recorded",
		zap.String("payment_id", p.ID.String()),
		zap.String("amount", p.Amount.String()),
		zap.String("currency", p.Currency),
	)
	return p, nil
}

// Get returns a payment of the tenant
func (s *PaymentService) Get(ctx context.Context, tenantID, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := s.payments.FindByIDForTenant(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, shared.NewNotFoundError("PAYMENT", paymentID)
	}
	return p, nil
}

// Void cancels a payment that has no allocations. A payment already turned
// into an advance is rejected too: its advance journal request is booked.
func (s *PaymentService) Void(ctx context.Context, tenantID, paymentID uuid.UUID) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "void")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrPaymentID, paymentID.String(),
	)

	var p *payment.Payment
	err := s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.payments.FindByIDForUpdate(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return shared.NewNotFoundError("PAYMENT", paymentID)
		}
		if p.IsApplied() {
			return shared.NewInvalidStateError("PAYMENT_ALREADY_APPLIED", "Applied payments cannot be voided")
		}
		allocations, err := s.payments.FindAllocationsByPayment(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if err := p.Void(len(allocations)); err != nil {
			return err
		}
		if err := s.payments.SaveWithLock(ctx, p); err != nil {
			return err
		}
		return s.dispatcher.Record(ctx, p.GetDomainEvents()...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.dispatcher.PublishCommitted(ctx, p.GetDomainEvents()...)
	p.ClearDomainEvents()
	logger.L(ctx).Info("Payment voided", zap.String("payment_id", p.ID.String()))
	return p, nil
}
