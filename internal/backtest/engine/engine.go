package engine

import (
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

// Lifecycle callback types for backtest phases
// All callbacks with error return can abort execution if they return an error

// OnRunStartCallback is called once the strategy is bound and before the first bar is processed.
// runID identifies the run and is derived from its inputs, so repeating a run repeats the id.
type OnRunStartCallback func(runID string, strategyName string, totalBars int) error

// OnRunEndCallback is called when the run ends (always called via defer).
// stats is nil when err is not nil.
type OnRunEndCallback func(runID string, stats *types.BacktestStats, err error)

// OnProcessDataCallback is called after each bar is processed.
type OnProcessDataCallback func(current int, total int) error

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnRunStart    *OnRunStartCallback
	OnRunEnd      *OnRunEndCallback
	OnProcessData *OnProcessDataCallback
}

type Engine interface {
	// Run binds params onto a fresh strategy instance, simulates the whole bar series
	// and returns the statistics of the run.
	// Use LifecycleCallbacks to receive notifications at different phases of the backtest.
	Run(params map[string]any, callbacks LifecycleCallbacks) (*types.BacktestStats, error)
	// GetConfigSchema returns the schema of the engine configuration
	GetConfigSchema() (string, error)
}
