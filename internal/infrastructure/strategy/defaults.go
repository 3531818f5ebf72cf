package strategy

import (
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/erp/ledger/internal/infrastructure/strategy/allocation"
)

// NewRegistryWithDefaults creates a registry with fifo, due_date and manual
// registered and fifo as the default method
func NewRegistryWithDefaults() (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	for _, s := range []strategy.PaymentAllocationStrategy{
		allocation.NewFIFOAllocationStrategy(),
		allocation.NewDueDateAllocationStrategy(),
		allocation.NewManualAllocationStrategy(),
	} {
		if err := r.RegisterAllocationStrategy(s); err != nil {
			return nil, err
		}
	}

	if err := r.SetDefault(strategy.AllocationMethodFIFO); err != nil {
		return nil, err
	}
	return r, nil
}
