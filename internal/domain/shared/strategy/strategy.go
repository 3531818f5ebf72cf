package strategy

// StrategyType groups pluggable strategies in the registry.
// Allocation is the only family the ledger uses.
type StrategyType string

const StrategyTypeAllocation StrategyType = "allocation"

// Strategy is what the registry stores and lists
type Strategy interface {
	Name() string
	Type() StrategyType
	Description() string
}

// BaseStrategy carries the registry metadata; concrete strategies embed it
type BaseStrategy struct {
	name         string
	strategyType StrategyType
	description  string
}

func NewBaseStrategy(name string, strategyType StrategyType, description string) BaseStrategy {
	return BaseStrategy{name: name, strategyType: strategyType, description: description}
}

func (s BaseStrategy) Name() string        { return s.name }
func (s BaseStrategy) Type() StrategyType  { return s.strategyType }
func (s BaseStrategy) Description() string { return s.description }
