package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/stats"
	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// BacktestEngineV1 binds a bar series, a strategy and a configuration.
// Every call to Run builds a fresh strategy, broker and indicator registry.
type BacktestEngineV1 struct {
	config  BacktestEngineV1Config
	series  *datasource.Series
	factory runtime.StrategyFactory
	log     *logger.Logger
}

var _ engine.Engine = (*BacktestEngineV1)(nil)

// NewBacktestEngineV1 validates the inputs of a backtest. The series is clipped to the
// configured time window. All failures are input errors.
func NewBacktestEngineV1(series *datasource.Series, factory runtime.StrategyFactory, config BacktestEngineV1Config) (*BacktestEngineV1, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if series == nil || series.Len() == 0 {
		return nil, errors.New(errors.ErrCodeEmptySeries, "bar series is empty")
	}

	if factory == nil {
		return nil, errors.New(errors.ErrCodeBacktestNoStrategy, "no strategy provided")
	}

	if config.StartTime.IsSome() || config.EndTime.IsSome() {
		window, err := series.Window(config.StartTime, config.EndTime)
		if err != nil {
			return nil, err
		}

		series = window
	}

	return &BacktestEngineV1{
		config:  config,
		series:  series,
		factory: factory,
		log:     logger.NewNopLogger(),
	}, nil
}

// SetLogger sets the logger handed to the broker and the strategy.
func (b *BacktestEngineV1) SetLogger(log *logger.Logger) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	b.log = log
}

// Series returns the bar series the engine runs on.
func (b *BacktestEngineV1) Series() *datasource.Series {
	return b.series
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(params map[string]any, callbacks engine.LifecycleCallbacks) (result *types.BacktestStats, err error) {
	strategy := b.factory()
	if strategy == nil {
		return nil, errors.New(errors.ErrCodeBacktestNoStrategy, "strategy factory returned nil")
	}

	if err := runtime.ApplyParams(strategy, params); err != nil {
		return nil, err
	}

	runID := b.runID(strategy.Name(), params)
	total := b.series.Len()

	if callbacks.OnRunEnd != nil {
		defer func() {
			(*callbacks.OnRunEnd)(runID, result, err)
		}()
	}

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(runID, strategy.Name(), total); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	b.log.Info("Backtest started",
		zap.String("run_id", runID),
		zap.String("strategy", strategy.Name()),
		zap.Int("bars", total),
		zap.String("interval", intervalName(b.series.MedianInterval())),
	)

	clock := indicator.NewClock()
	registry := indicator.NewRegistry(clock, total)
	data := indicator.NewDataView(clock, b.series.Times(), b.series.Columns(), registry)
	broker := NewBacktestTrading(b.series, b.config, b.log)
	api := newBacktestStrategyApi(data, registry, clock, broker, b.log)

	api.initializing = true
	err = b.call(strategy, errors.StrategyPhaseInit, -1, func() error {
		return strategy.Init(api)
	})
	api.initializing = false

	if err != nil {
		return nil, err
	}

	warmup := registry.Warmup()

	for i := 0; i < total; i++ {
		clock.Set(i)
		broker.ProcessBar(i)

		if i >= warmup {
			err := b.call(strategy, errors.StrategyPhaseNext, i, func() error {
				return strategy.Next(api)
			})
			if err != nil {
				b.log.Error("Strategy failed", zap.String("run_id", runID), zap.Int("bar", i), zap.Error(err))

				return nil, err
			}
		}

		// orders submitted on the last bar are never filled
		if i == total-1 {
			broker.Finish(i)
		} else if b.config.TradeOnClose {
			broker.ProcessClose(i)
		}

		broker.Mark(i)

		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(i+1, total); err != nil {
				return nil, errors.Wrap(errors.ErrCodeCallbackFailed, "process data callback failed", err)
			}
		}
	}

	closes, _ := b.series.Column(types.ColumnClose)

	computed := stats.Compute(stats.Input{
		StartingCash:   b.config.InitialCapital,
		Closes:         closes,
		EquityCurve:    broker.EquityCurve(),
		Trades:         broker.ClosedTrades(),
		Orders:         broker.Orders(),
		RejectedOrders: broker.RejectedOrders(),
		Commissions:    broker.Commissions(),
		PeriodsPerYear: b.config.PeriodsPerYear,
		BarInterval:    b.series.MedianInterval(),
		Strategy:       strategy,
	})
	computed.ID = runID

	b.log.Info("Backtest finished",
		zap.String("run_id", runID),
		zap.Int("trades", computed.NumberOfTrades),
		zap.Float64("return_pct", computed.ReturnPct),
		zap.Int("rejected_orders", computed.RejectedOrders),
	)

	return &computed, nil
}

// call runs a strategy hook and turns errors and panics into a StrategyError.
// An InsufficientDataError returned from Next skips the bar.
func (b *BacktestEngineV1) call(strategy runtime.Strategy, phase errors.StrategyPhase, bar int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewStrategyError(strategy.Name(), phase, bar, fmt.Errorf("panic: %v", r))
		}
	}()

	if hookErr := fn(); hookErr != nil {
		if phase == errors.StrategyPhaseNext && errors.IsInsufficientDataError(hookErr) {
			return nil
		}

		return errors.NewStrategyError(strategy.Name(), phase, bar, hookErr)
	}

	return nil
}

// runID derives the run id from the inputs of the run, so repeated runs share it.
func (b *BacktestEngineV1) runID(strategyName string, params map[string]any) string {
	fingerprint := fmt.Sprintf("%s|%d|%s|%s", strategyName, b.series.Len(),
		b.series.Time(0).String(), b.series.Time(b.series.Len()-1).String())

	if data, err := yaml.Marshal(params); err == nil {
		fingerprint += "|" + string(data)
	}

	if data, err := yaml.Marshal(b.config); err == nil {
		fingerprint += "|" + string(data)
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fingerprint)).String()
}

// WriteResults records the run in a BacktestState and exports it into folder.
func (b *BacktestEngineV1) WriteResults(folder string, result *types.BacktestStats) error {
	if result == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "backtest stats is nil")
	}

	state, err := NewBacktestState(b.log)
	if err != nil {
		return err
	}
	defer state.Close()

	if err := state.Initialize(); err != nil {
		return err
	}

	if err := state.Record(result); err != nil {
		return err
	}

	return state.Write(folder, result)
}

func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}

	return schema, nil
}

// intervalName names the bar spacing, falling back to the raw duration for uncommon spacings.
func intervalName(spacing time.Duration) string {
	if interval := datasource.IntervalOf(spacing); interval.IsSome() {
		return string(interval.Unwrap())
	}

	return spacing.String()
}
