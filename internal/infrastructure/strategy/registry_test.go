package strategy

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock allocation strategy for testing
type mockAllocationStrategy struct {
	strategy.BaseStrategy
	method strategy.AllocationMethod
}

func newMockAllocationStrategy(method strategy.AllocationMethod) *mockAllocationStrategy {
	return &mockAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(string(method), strategy.StrategyTypeAllocation, "Mock allocation strategy"),
		method:       method,
	}
}

func (s *mockAllocationStrategy) Method() strategy.AllocationMethod {
	return s.method
}

func (s *mockAllocationStrategy) Allocate(ctx context.Context, allocCtx strategy.AllocationContext, invoices []strategy.OpenInvoice) (strategy.AllocationResult, error) {
	return strategy.AllocationResult{}, nil
}

func (s *mockAllocationStrategy) SupportsPartialAllocation() bool {
	return true
}

func TestRegisterAllocationStrategy(t *testing.T) {
	r := NewStrategyRegistry()

	t.Run("successful registration", func(t *testing.T) {
		err := r.RegisterAllocationStrategy(newMockAllocationStrategy("mock_a"))
		assert.NoError(t, err)
		assert.True(t, r.IsRegistered("mock_a"))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := r.RegisterAllocationStrategy(newMockAllocationStrategy("mock_a"))
		assert.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestGetAllocationStrategy(t *testing.T) {
	r := NewStrategyRegistry()
	require.NoError(t, r.RegisterAllocationStrategy(newMockAllocationStrategy("mock_get")))

	t.Run("get by method", func(t *testing.T) {
		got, err := r.GetAllocationStrategy("mock_get")
		assert.NoError(t, err)
		assert.Equal(t, "mock_get", got.Name())
	})

	t.Run("unknown method is a validation error", func(t *testing.T) {
		_, err := r.GetAllocationStrategy("nonexistent")
		assert.ErrorIs(t, err, ErrUnknownAllocationMethod)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("no default set", func(t *testing.T) {
		_, err := r.GetAllocationStrategy("")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("get default when method is empty", func(t *testing.T) {
		require.NoError(t, r.SetDefault("mock_get"))
		got, err := r.GetAllocationStrategy("")
		assert.NoError(t, err)
		assert.Equal(t, strategy.AllocationMethod("mock_get"), got.Method())
	})
}

func TestUnregisterAllocationStrategy(t *testing.T) {
	r := NewStrategyRegistry()
	require.NoError(t, r.RegisterAllocationStrategy(newMockAllocationStrategy("gone")))
	require.NoError(t, r.SetDefault("gone"))

	require.NoError(t, r.UnregisterAllocationStrategy("gone"))
	assert.False(t, r.IsRegistered("gone"))
	assert.Empty(t, r.GetDefault())

	assert.ErrorIs(t, r.UnregisterAllocationStrategy("gone"), shared.ErrNotFound)
	assert.ErrorIs(t, r.SetDefault("gone"), shared.ErrNotFound)
}

func TestNewRegistryWithDefaults(t *testing.T) {
	r, err := NewRegistryWithDefaults()
	require.NoError(t, err)

	assert.Equal(t, []string{"due_date", "fifo", "manual"}, r.ListAllocationStrategies())
	assert.Equal(t, strategy.AllocationMethodFIFO, r.GetDefault())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r, err := NewRegistryWithDefaults()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.GetAllocationStrategy(strategy.AllocationMethodDueDate)
			assert.NoError(t, err)
			assert.NotNil(t, s)
			_ = r.ListAllocationStrategies()
		}()
	}
	wg.Wait()
}
