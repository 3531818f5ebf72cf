package allocation

import (
	"context"
	"sort"

	"github.com/erp/ledger/internal/domain/shared/strategy"
)

// FIFOAllocationStrategy implements First-In-First-Out payment allocation
type FIFOAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOAllocationStrategy creates a new FIFO allocation strategy
func NewFIFOAllocationStrategy() *FIFOAllocationStrategy {
	return &FIFOAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(strategy.AllocationMethodFIFO),
			strategy.StrategyTypeAllocation,
			"Allocate payments to oldest invoices first",
		),
	}
}

// Method returns fifo
func (s *FIFOAllocationStrategy) Method() strategy.AllocationMethod {
	return strategy.AllocationMethodFIFO
}

// Allocate allocates payment to invoices in FIFO order
func (s *FIFOAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	invoices []strategy.OpenInvoice,
) (strategy.AllocationResult, error) {
	// Oldest document date first, document number breaks ties
	sorted := make([]strategy.OpenInvoice, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].DocumentDate.Equal(sorted[j].DocumentDate) {
			return sorted[i].DocumentDate.Before(sorted[j].DocumentDate)
		}
		return sorted[i].DocumentNumber < sorted[j].DocumentNumber
	})

	return walk(allocCtx, sorted), nil
}

// SupportsPartialAllocation returns true as FIFO supports partial allocation
func (s *FIFOAllocationStrategy) SupportsPartialAllocation() bool {
	return true
}
