package allocation

import (
	"context"
	"sort"

	"github.com/erp/ledger/internal/domain/shared/strategy"
)

// DueDateAllocationStrategy pays the most overdue invoices first
type DueDateAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewDueDateAllocationStrategy creates a new due-date priority strategy
func NewDueDateAllocationStrategy() *DueDateAllocationStrategy {
	return &DueDateAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(strategy.AllocationMethodDueDate),
			strategy.StrategyTypeAllocation,
			"Allocate payments to the most overdue invoices first",
		),
	}
}

// Method returns due_date
func (s *DueDateAllocationStrategy) Method() strategy.AllocationMethod {
	return strategy.AllocationMethodDueDate
}

// Allocate orders invoices by days overdue at the payment date, descending.
// Ties fall back to the oldest document date.
func (s *DueDateAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	invoices []strategy.OpenInvoice,
) (strategy.AllocationResult, error) {
	sorted := make([]strategy.OpenInvoice, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		oi := sorted[i].DaysOverdue(allocCtx.PaymentDate)
		oj := sorted[j].DaysOverdue(allocCtx.PaymentDate)
		if oi != oj {
			return oi > oj
		}
		if !sorted[i].DocumentDate.Equal(sorted[j].DocumentDate) {
			return sorted[i].DocumentDate.Before(sorted[j].DocumentDate)
		}
		return sorted[i].DocumentNumber < sorted[j].DocumentNumber
	})

	return walk(allocCtx, sorted), nil
}

// SupportsPartialAllocation returns true
func (s *DueDateAllocationStrategy) SupportsPartialAllocation() bool {
	return true
}
