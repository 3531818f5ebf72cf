package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationMethod selects how a payment is spread over open invoices
type AllocationMethod string

const (
	AllocationMethodFIFO    AllocationMethod = "fifo"
	AllocationMethodDueDate AllocationMethod = "due_date"
	AllocationMethodManual  AllocationMethod = "manual"
)

// IsValid returns true if the method is one of the supported methods
func (m AllocationMethod) IsValid() bool {
	switch m {
	case AllocationMethodFIFO, AllocationMethodDueDate, AllocationMethodManual:
		return true
	default:
		return false
	}
}

// String returns the method name
func (m AllocationMethod) String() string {
	return string(m)
}

// OpenInvoice is a posted invoice with an outstanding balance
type OpenInvoice struct {
	ID             uuid.UUID
	DocumentNumber string
	DocumentDate   time.Time
	DueDate        *time.Time
	Total          decimal.Decimal
	Balance        decimal.Decimal
	Currency       string
}

// DaysOverdue returns whole days past the due date at asOf; zero when not due
// or when the invoice has no due date
func (i OpenInvoice) DaysOverdue(asOf time.Time) int {
	if i.DueDate == nil {
		return 0
	}
	due := truncateDay(*i.DueDate)
	at := truncateDay(asOf)
	if !at.After(due) {
		return 0
	}
	return int(at.Sub(due).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ManualAllocation is one caller-specified (document, amount) pair
type ManualAllocation struct {
	DocumentID uuid.UUID
	Amount     decimal.Decimal
}

// Allocation represents a payment allocation to an invoice
type Allocation struct {
	DocumentID     uuid.UUID
	DocumentNumber string
	Amount         decimal.Decimal
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
}

// AllocationContext provides context for payment allocation
type AllocationContext struct {
	TenantID      uuid.UUID
	PartnerID     uuid.UUID
	PaymentAmount decimal.Decimal
	PaymentDate   time.Time
	Currency      string
	// Manual is the caller's ordered list, used by the manual strategy only
	Manual []ManualAllocation
}

// AllocationResult contains the result of payment allocation
type AllocationResult struct {
	Allocations    []Allocation
	TotalAllocated decimal.Decimal
	Remaining      decimal.Decimal
	// Skipped lists manual targets that were not open invoices
	Skipped []uuid.UUID
}

// PaymentAllocationStrategy defines the interface for payment allocation.
// Implementations are pure: they never touch storage.
type PaymentAllocationStrategy interface {
	Strategy
	// Method returns the allocation method this strategy implements
	Method() AllocationMethod
	// Allocate allocates a payment amount to outstanding invoices
	Allocate(ctx context.Context, allocCtx AllocationContext, invoices []OpenInvoice) (AllocationResult, error)
	// SupportsPartialAllocation returns true if the strategy supports partial allocation
	SupportsPartialAllocation() bool
}
