package payment

import (
	"context"
	"fmt"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/application/validation"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StrategyProvider resolves allocation strategies by method
type StrategyProvider interface {
	GetAllocationStrategy(method strategy.AllocationMethod) (strategy.PaymentAllocationStrategy, error)
	GetDefault() strategy.AllocationMethod
}

// AllocationService distributes payments over open invoices
type AllocationService struct {
	docs       ledger.DocumentRepository
	payments   payment.PaymentRepository
	settings   payment.ToleranceSettingsRepository
	strategies StrategyProvider
	txm        shared.TransactionManager
	locker     shared.ScopeLocker
	journal    shared.JournalSink
	dispatcher *appevent.Dispatcher
	defaults   strategy.TolerancePolicy
	metrics    *telemetry.LedgerMetrics
	now        func() time.Time
}

// AllocationServiceDeps groups the collaborators of AllocationService
type AllocationServiceDeps struct {
	Documents  ledger.DocumentRepository
	Payments   payment.PaymentRepository
	Settings   payment.ToleranceSettingsRepository
	Strategies StrategyProvider
	TxManager  shared.TransactionManager
	Locker     shared.ScopeLocker
	Journal    shared.JournalSink
	Dispatcher *appevent.Dispatcher
	// DefaultTolerance applies to tenants without their own settings
	DefaultTolerance strategy.TolerancePolicy
	Metrics          *telemetry.LedgerMetrics
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(deps AllocationServiceDeps) *AllocationService {
	defaults := deps.DefaultTolerance
	if defaults.Percentage.IsZero() && defaults.MaxAmount.IsZero() {
		defaults = strategy.DefaultTolerancePolicy()
	}
	return &AllocationService{
		docs:       deps.Documents,
		payments:   deps.Payments,
		settings:   deps.Settings,
		strategies: deps.Strategies,
		txm:        deps.TxManager,
		locker:     deps.Locker,
		journal:    deps.Journal,
		dispatcher: deps.Dispatcher,
		defaults:   defaults,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// Preview computes the plan for an amount the partner would pay. Nothing
// is locked or written.
func (s *AllocationService) Preview(ctx context.Context, req PreviewRequest) (*payment.AllocationPlan, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "preview")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, req.TenantID.String(),
		telemetry.SpanAttrPartnerID, req.PartnerID.String(),
		telemetry.SpanAttrMethod, string(req.Method),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !req.Amount.Equal(req.Amount.Round(valueobject.CentPlaces)) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount cannot have more than two decimals", "amount")
	}
	date := req.PaymentDate
	if date.IsZero() {
		date = s.now()
	}

	docs, err := s.docs.FindOpenInvoices(ctx, ledger.OpenInvoiceFilter{
		TenantID:  req.TenantID,
		CompanyID: req.CompanyID,
		PartnerID: req.PartnerID,
		Currency:  req.Currency,
	})
	if err != nil {
		return nil, err
	}
	policy, err := s.tolerance(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, req.Method, strategy.AllocationContext{
		TenantID:      req.TenantID,
		PartnerID:     req.PartnerID,
		PaymentAmount: req.Amount,
		PaymentDate:   date,
		Currency:      req.Currency,
		Manual:        manualAllocations(req.Manual),
	}, docs, policy)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return plan, nil
}

// Apply allocates a recorded payment. Allocations for one partner are
// serialised by a scope lock; the payment and every candidate invoice are
// row-locked until commit. A payment is applied at most once.
func (s *AllocationService) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "apply")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, req.TenantID.String(),
		telemetry.SpanAttrPaymentID, req.PaymentID.String(),
		telemetry.SpanAttrMethod, string(req.Method),
	)

	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var (
		result  *ApplyResult
		events  []shared.DomainEvent
		release func()
		p       *payment.Payment
		paid    []*ledger.Document
	)
	defer func() {
		if release != nil {
			release()
		}
	}()

	err := s.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		// partner is immutable, so an unlocked read is enough to pick the scope
		head, err := s.payments.FindByIDForTenant(ctx, req.TenantID, req.PaymentID)
		if err != nil {
			return err
		}
		if head == nil {
			return shared.NewNotFoundError("PAYMENT", req.PaymentID)
		}
		key := payment.PartnerLockKey(head.TenantID, head.PartnerID)
		if release, err = s.locker.Acquire(logger.WithScope(ctx, key), key); err != nil {
			return err
		}

		p, err = s.payments.FindByIDForUpdate(ctx, req.TenantID, req.PaymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return shared.NewNotFoundError("PAYMENT", req.PaymentID)
		}
		if err := p.MarkApplied(s.now()); err != nil {
			return err
		}

		candidates, err := s.lockCandidates(ctx, p)
		if err != nil {
			return err
		}
		policy, err := s.tolerance(ctx, p.TenantID)
		if err != nil {
			return err
		}
		plan, err := s.plan(ctx, req.Method, strategy.AllocationContext{
			TenantID:      p.TenantID,
			PartnerID:     p.PartnerID,
			PaymentAmount: p.Amount,
			PaymentDate:   p.PaymentDate,
			Currency:      p.Currency,
			Manual:        manualAllocations(req.Manual),
		}, candidates, policy)
		if err != nil {
			return err
		}

		allocations, settled, err := s.allocate(ctx, p, plan, candidates)
		if err != nil {
			return err
		}
		if plan.ExcessAmount.IsPositive() && !plan.HasAllocations() {
			p.ConvertToAdvance()
		}
		if err := s.requestJournals(ctx, p, plan, allocations); err != nil {
			return err
		}
		if err := s.payments.SaveWithLock(ctx, p); err != nil {
			return err
		}

		p.AddDomainEvent(payment.NewPaymentAllocatedEvent(p, allocations, plan))
		events = append(events, p.GetDomainEvents()...)
		for _, d := range settled {
			events = append(events, d.GetDomainEvents()...)
			if d.Status == ledger.DocumentStatusPaid {
				paid = append(paid, d)
			}
		}
		if err := s.dispatcher.Record(ctx, events...); err != nil {
			return err
		}

		result = &ApplyResult{
			PaymentID:   p.ID,
			PaymentType: p.PaymentType,
			Plan:        plan,
			Allocations: allocations,
		}
		for _, d := range paid {
			result.PaidDocuments = append(result.PaidDocuments, d.ID)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.IsRetryable(err) {
			logger.L(ctx).Warn("Payment allocation hit lock contention",
				zap.String("payment_id", req.PaymentID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.dispatcher.PublishCommitted(ctx, events...)
	p.ClearDomainEvents()
	for _, d := range paid {
		d.ClearDomainEvents()
	}

	plan := result.Plan
	s.metrics.RecordApplied(ctx, string(plan.Method), plan.Currency, string(plan.ExcessHandling), plan.TotalToInvoices)
	for _, kind := range []payment.WriteoffKind{payment.WriteoffUnderpayment, payment.WriteoffOverpayment} {
		if amount := plan.WriteoffsByKind(kind); amount.IsPositive() {
			s.metrics.RecordWriteoff(ctx, string(kind), plan.Currency, amount)
		}
	}

	logger.L(ctx).Info("Payment applied",
		zap.String("payment_id", p.ID.String()),
		zap.String("method", string(plan.Method)),
		zap.Int("allocations", len(result.Allocations)),
		zap.String("allocated", plan.TotalToInvoices.String()),
		zap.String("excess", plan.ExcessAmount.String()),
		zap.String("excess_handling", string(plan.ExcessHandling)),
	)
	return result, nil
}

// lockCandidates row-locks the partner's open invoices in the payment's
// company and currency. Openness is re-checked under the lock.
func (s *AllocationService) lockCandidates(ctx context.Context, p *payment.Payment) ([]*ledger.Document, error) {
	open, err := s.docs.FindOpenInvoices(ctx, ledger.OpenInvoiceFilter{
		TenantID:  p.TenantID,
		CompanyID: p.CompanyID,
		PartnerID: p.PartnerID,
		Currency:  p.Currency,
	})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(open))
	for i, d := range open {
		ids[i] = d.ID
	}
	locked, err := s.docs.FindByIDsForUpdate(ctx, p.TenantID, ids)
	if err != nil {
		return nil, err
	}
	candidates := locked[:0]
	for _, d := range locked {
		if d.IsOpen() && d.PartnerID == p.PartnerID && d.Currency == p.Currency {
			candidates = append(candidates, d)
		}
	}
	return candidates, nil
}

// plan runs the strategy for method over docs and applies the tolerance policy
func (s *AllocationService) plan(
	ctx context.Context,
	method strategy.AllocationMethod,
	allocCtx strategy.AllocationContext,
	docs []*ledger.Document,
	policy strategy.TolerancePolicy,
) (*payment.AllocationPlan, error) {
	if method == "" {
		method = s.strategies.GetDefault()
	}
	strat, err := s.strategies.GetAllocationStrategy(method)
	if err != nil {
		return nil, err
	}
	result, err := strat.Allocate(ctx, allocCtx, openInvoices(docs))
	if err != nil {
		return nil, err
	}
	return payment.BuildPlan(method, allocCtx.PaymentAmount, allocCtx.Currency, result, policy)
}

// allocate writes one allocation per plan line and settles the invoices
func (s *AllocationService) allocate(
	ctx context.Context,
	p *payment.Payment,
	plan *payment.AllocationPlan,
	candidates []*ledger.Document,
) ([]*payment.PaymentAllocation, []*ledger.Document, error) {
	byID := make(map[uuid.UUID]*ledger.Document, len(candidates))
	for _, d := range candidates {
		byID[d.ID] = d
	}

	allocations := make([]*payment.PaymentAllocation, 0, len(plan.Allocations))
	settled := make([]*ledger.Document, 0, len(plan.Allocations))
	for _, line := range plan.Allocations {
		d, ok := byID[line.DocumentID]
		if !ok {
			return nil, nil, fmt.Errorf("allocation plan references unlocked document %s", line.DocumentID)
		}
		a, err := payment.NewPaymentAllocation(p, d.ID, line.Amount, line.ToleranceWriteoff, line.WriteoffKind)
		if err != nil {
			return nil, nil, err
		}
		if err := d.ApplyPayment(a.Amount, a.SettledAmount().Sub(a.Amount)); err != nil {
			return nil, nil, err
		}
		if err := s.docs.SaveWithLock(ctx, d); err != nil {
			return nil, nil, err
		}
		allocations = append(allocations, a)
		settled = append(settled, d)
	}
	if err := s.payments.CreateAllocations(ctx, allocations); err != nil {
		return nil, nil, err
	}
	return allocations, settled, nil
}

// requestJournals asks accounting to book the advance and the write-offs
func (s *AllocationService) requestJournals(
	ctx context.Context,
	p *payment.Payment,
	plan *payment.AllocationPlan,
	allocations []*payment.PaymentAllocation,
) error {
	line := func(role shared.JournalRole, debit, credit decimal.Decimal, documentID *uuid.UUID) shared.JournalLine {
		return shared.JournalLine{
			Role:       role,
			Debit:      debit,
			Credit:     credit,
			Currency:   p.Currency,
			PartnerID:  p.PartnerID,
			DocumentID: documentID,
		}
	}

	if plan.ExcessAmount.IsPositive() {
		err := s.journal.Record(ctx, shared.JournalRequest{
			TenantID:   p.TenantID,
			CompanyID:  p.CompanyID,
			SourceType: shared.JournalSourceAdvance,
			SourceID:   p.ID,
			Lines: []shared.JournalLine{
				line(shared.JournalRoleCash, plan.ExcessAmount, decimal.Zero, nil),
				line(shared.JournalRoleCustomerAdvance, decimal.Zero, plan.ExcessAmount, nil),
			},
		})
		if err != nil {
			return err
		}
	}

	var lines []shared.JournalLine
	for _, a := range allocations {
		docID := a.DocumentID
		switch a.WriteoffKind {
		case payment.WriteoffUnderpayment:
			lines = append(lines,
				line(shared.JournalRoleToleranceExpense, a.ToleranceWriteoff, decimal.Zero, &docID),
				line(shared.JournalRoleReceivable, decimal.Zero, a.ToleranceWriteoff, &docID))
		case payment.WriteoffOverpayment:
			lines = append(lines,
				line(shared.JournalRoleCash, a.ToleranceWriteoff, decimal.Zero, &docID),
				line(shared.JournalRoleToleranceIncome, decimal.Zero, a.ToleranceWriteoff, &docID))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return s.journal.Record(ctx, shared.JournalRequest{
		TenantID:   p.TenantID,
		CompanyID:  p.CompanyID,
		SourceType: shared.JournalSourceToleranceWriteoff,
		SourceID:   p.ID,
		Lines:      lines,
	})
}

// tolerance returns the tenant's policy, falling back to the configured default
func (s *AllocationService) tolerance(ctx context.Context, tenantID uuid.UUID) (strategy.TolerancePolicy, error) {
	if s.settings == nil {
		return s.defaults, nil
	}
	settings, err := s.settings.FindByTenant(ctx, tenantID)
	if err != nil {
		return strategy.TolerancePolicy{}, err
	}
	if settings == nil {
		return s.defaults, nil
	}
	return settings.Policy(), nil
}

func openInvoices(docs []*ledger.Document) []strategy.OpenInvoice {
	out := make([]strategy.OpenInvoice, 0, len(docs))
	for _, d := range docs {
		out = append(out, strategy.OpenInvoice{
			ID:             d.ID,
			DocumentNumber: d.DocumentNumber,
			DocumentDate:   d.DocumentDate,
			DueDate:        d.DueDate,
			Total:          d.Total,
			Balance:        d.BalanceDue,
			Currency:       d.Currency,
		})
	}
	return out
}
