// Package strategy holds the strategies that ship with the backtest CLI.
package strategy

import (
	"cmp"
	"slices"

	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/version"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// Definition describes a built-in strategy.
type Definition struct {
	Name        string
	Description string
	Factory     runtime.StrategyFactory

	// EngineVersion is the engine release the strategy was written against.
	EngineVersion string
}

const builtinEngineVersion = "v1.0.0"

var definitions = []Definition{
	{
		Name:          EmaCrossoverName,
		Description:   "Goes long when the fast EMA crosses above the slow EMA and short on the opposite cross, with stop-loss and take-profit as a percentage of the signal price",
		Factory:       NewEmaCrossover,
		EngineVersion: builtinEngineVersion,
	},
	{
		Name:          RsiReversionName,
		Description:   "Fades RSI extremes and protects each entry with a stop a multiple of ATR away",
		Factory:       NewRsiReversion,
		EngineVersion: builtinEngineVersion,
	},
	{
		Name:          BreakoutTrailingName,
		Description:   "Enters on a Donchian channel breakout with a fraction of equity and exits on a trailing stop",
		Factory:       NewBreakoutTrailing,
		EngineVersion: builtinEngineVersion,
	},
}

// Definitions returns every built-in strategy, sorted by name.
func Definitions() []Definition {
	sorted := slices.Clone(definitions)
	slices.SortFunc(sorted, func(a, b Definition) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return sorted
}

// Names returns the names of the built-in strategies, sorted.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for _, definition := range Definitions() {
		names = append(names, definition.Name)
	}

	return names
}

// Get returns the factory of the named strategy. A strategy written for an engine release the
// running engine cannot serve is refused.
func Get(name string) (runtime.StrategyFactory, error) {
	for _, definition := range definitions {
		if definition.Name != name {
			continue
		}

		if err := version.CheckStrategyCompatibility(version.GetVersion(), definition.EngineVersion); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStrategyConfigError, err, "strategy %s cannot run on this engine", name)
		}

		return definition.Factory, nil
	}

	return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %s not found, available: %v", name, Names())
}

// ConfigSchema returns the JSON schema of the named strategy's parameters.
func ConfigSchema(name string) (string, error) {
	factory, err := Get(name)
	if err != nil {
		return "", err
	}

	schema, err := ToJSONSchema(factory())
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeStrategyConfigError, err, "failed to generate schema for %s", name)
	}

	return schema, nil
}
