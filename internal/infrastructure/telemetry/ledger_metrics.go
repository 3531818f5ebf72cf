package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics counts posting, cancellation, allocation and lock activity.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	documentsPosted    *Counter
	documentsCancelled *Counter
	paymentsApplied    *Counter
	amountAllocated    *FloatCounter
	writeoffs          *Counter
	writeoffAmount     *FloatCounter
	lockWait           *Histogram
	lockTimeouts       *Counter
}

// NewLedgerMetrics registers the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error

	if m.documentsPosted, err = NewCounter(meter, "ledger_documents_posted_total",
		"Documents moved to posted", "{documents}"); err != nil {
		return nil, err
	}
	if m.documentsCancelled, err = NewCounter(meter, "ledger_documents_cancelled_total",
		"Posted documents cancelled", "{documents}"); err != nil {
		return nil, err
	}
	if m.paymentsApplied, err = NewCounter(meter, "ledger_payments_applied_total",
		"Payments applied against open invoices", "{payments}"); err != nil {
		return nil, err
	}
	if m.amountAllocated, err = NewFloatCounter(meter, "ledger_amount_allocated_total",
		"Money allocated to invoices", "{currency_unit}"); err != nil {
		return nil, err
	}
	if m.writeoffs, err = NewCounter(meter, "ledger_tolerance_writeoffs_total",
		"Tolerance write-offs booked", "{writeoffs}"); err != nil {
		return nil, err
	}
	if m.writeoffAmount, err = NewFloatCounter(meter, "ledger_tolerance_writeoff_amount_total",
		"Money written off within tolerance", "{currency_unit}"); err != nil {
		return nil, err
	}
	if m.lockWait, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_scope_lock_wait_seconds",
		Description: "Time spent waiting for a ledger scope lock",
		Unit:        "s",
		Boundaries:  LockWaitBuckets,
	}); err != nil {
		return nil, err
	}
	if m.lockTimeouts, err = NewCounter(meter, "ledger_scope_lock_timeouts_total",
		"Scope lock acquisitions that timed out", "{timeouts}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPosted counts a document moved to posted
func (m *LedgerMetrics) RecordPosted(ctx context.Context, docType string) {
	if m == nil {
		return
	}
	m.documentsPosted.Inc(ctx, AttrDocumentType.String(docType))
}

// RecordCancelled counts a posted document cancelled
func (m *LedgerMetrics) RecordCancelled(ctx context.Context, docType string) {
	if m == nil {
		return
	}
	m.documentsCancelled.Inc(ctx, AttrDocumentType.String(docType))
}

// RecordApplied counts an applied payment and the money it allocated
func (m *LedgerMetrics) RecordApplied(ctx context.Context, method, currency, excessHandling string, allocated decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsApplied.Inc(ctx, AttrMethod.String(method), AttrExcessHandled.String(excessHandling))
	m.amountAllocated.Add(ctx, allocated.InexactFloat64(), AttrCurrency.String(currency))
}

// RecordWriteoff counts a tolerance write-off of the given kind
func (m *LedgerMetrics) RecordWriteoff(ctx context.Context, kind, currency string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.writeoffs.Inc(ctx, AttrWriteoffKind.String(kind))
	m.writeoffAmount.Add(ctx, amount.InexactFloat64(), AttrWriteoffKind.String(kind), AttrCurrency.String(currency))
}

// RecordLockWait records how long a scope lock acquisition took
func (m *LedgerMetrics) RecordLockWait(ctx context.Context, backend, operation string, wait time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.lockWait.RecordDuration(ctx, wait, AttrLockBackend.String(backend), AttrOperation.String(operation))
	if timedOut {
		m.lockTimeouts.Inc(ctx, AttrLockBackend.String(backend), AttrOperation.String(operation))
	}
}
