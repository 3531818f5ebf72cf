package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
)

// ErrUnknownAllocationMethod is returned when no strategy is registered for a method
var ErrUnknownAllocationMethod = shared.NewValidationError(
	"INVALID_ALLOCATION_METHOD", "Unknown allocation method", "method")

// StrategyRegistry manages allocation strategy registrations keyed by method
type StrategyRegistry struct {
	mu                   sync.RWMutex
	allocationStrategies map[strategy.AllocationMethod]strategy.PaymentAllocationStrategy
	defaultAllocation    strategy.AllocationMethod
}

// NewStrategyRegistry creates a new, empty strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		allocationStrategies: make(map[strategy.AllocationMethod]strategy.PaymentAllocationStrategy),
	}
}

// RegisterAllocationStrategy registers a payment allocation strategy
func (r *StrategyRegistry) RegisterAllocationStrategy(s strategy.PaymentAllocationStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	method := s.Method()
	if _, exists := r.allocationStrategies[method]; exists {
		return fmt.Errorf("%w: allocation strategy '%s' already registered", shared.ErrAlreadyExists, method)
	}
	r.allocationStrategies[method] = s
	return nil
}

// GetAllocationStrategy returns the strategy for method, or the default if method is empty
func (r *StrategyRegistry) GetAllocationStrategy(method strategy.AllocationMethod) (strategy.PaymentAllocationStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if method == "" {
		method = r.defaultAllocation
		if method == "" {
			return nil, fmt.Errorf("%w: no default allocation strategy set", shared.ErrNotFound)
		}
	}

	s, exists := r.allocationStrategies[method]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownAllocationMethod, method)
	}
	return s, nil
}

// ListAllocationStrategies returns all registered method names
func (r *StrategyRegistry) ListAllocationStrategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.allocationStrategies))
	for method := range r.allocationStrategies {
		names = append(names, method.String())
	}
	sort.Strings(names)
	return names
}

// UnregisterAllocationStrategy removes an allocation strategy
func (r *StrategyRegistry) UnregisterAllocationStrategy(method strategy.AllocationMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.allocationStrategies[method]; !exists {
		return fmt.Errorf("%w: allocation strategy '%s' not found", shared.ErrNotFound, method)
	}
	delete(r.allocationStrategies, method)

	if r.defaultAllocation == method {
		r.defaultAllocation = ""
	}
	return nil
}

// SetDefault sets the method used when a request names none
func (r *StrategyRegistry) SetDefault(method strategy.AllocationMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.allocationStrategies[method]; !exists {
		return fmt.Errorf("%w: allocation strategy '%s' not found", shared.ErrNotFound, method)
	}
	r.defaultAllocation = method
	return nil
}

// GetDefault returns the default allocation method
func (r *StrategyRegistry) GetDefault() strategy.AllocationMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultAllocation
}

// IsRegistered returns true if a strategy is registered for method
func (r *StrategyRegistry) IsRegistered(method strategy.AllocationMethod) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.allocationStrategies[method]
	return exists
}
