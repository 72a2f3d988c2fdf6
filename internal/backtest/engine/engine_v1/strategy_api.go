package engine

import (
	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// backtestStrategyApi exposes the run to the strategy. Every getter returns copies.
type backtestStrategyApi struct {
	data         *indicator.DataView
	registry     *indicator.Registry
	broker       *BacktestTrading
	clock        *indicator.Clock
	log          *logger.Logger
	initializing bool
}

var _ runtime.StrategyApi = (*backtestStrategyApi)(nil)

func newBacktestStrategyApi(data *indicator.DataView, registry *indicator.Registry, clock *indicator.Clock, broker *BacktestTrading, log *logger.Logger) *backtestStrategyApi {
	return &backtestStrategyApi{
		data:         data,
		registry:     registry,
		broker:       broker,
		clock:        clock,
		log:          log,
		initializing: false,
	}
}

func (a *backtestStrategyApi) Data() *indicator.DataView {
	return a.data
}

func (a *backtestStrategyApi) I(name string, fn indicator.Func, inputs ...indicator.Source) (*indicator.Handle, error) {
	if !a.initializing {
		return nil, errors.Newf(errors.ErrCodeIndicatorRegistration, "indicator %s must be registered in Init", name)
	}

	return a.registry.Register(name, fn, inputs...)
}

func (a *backtestStrategyApi) Position() types.Position {
	return a.broker.Position()
}

func (a *backtestStrategyApi) Equity() float64 {
	return a.broker.Equity()
}

func (a *backtestStrategyApi) Cash() float64 {
	return a.broker.Cash()
}

func (a *backtestStrategyApi) Trades() []types.Trade {
	return a.broker.Trades()
}

func (a *backtestStrategyApi) ClosedTrades() []types.Trade {
	return a.broker.ClosedTrades()
}

func (a *backtestStrategyApi) Orders() []types.Order {
	return a.broker.PendingOrders()
}

func (a *backtestStrategyApi) Buy(req types.OrderRequest) types.Order {
	return a.broker.Buy(req)
}

func (a *backtestStrategyApi) Sell(req types.OrderRequest) types.Order {
	return a.broker.Sell(req)
}

func (a *backtestStrategyApi) ClosePosition() types.Order {
	return a.broker.ClosePosition()
}

func (a *backtestStrategyApi) CloseTrade(id int) types.Order {
	return a.broker.CloseTrade(id)
}

func (a *backtestStrategyApi) CancelOrder(id int) bool {
	return a.broker.CancelOrder(id)
}

func (a *backtestStrategyApi) CancelAllOrders() {
	a.broker.CancelAllOrders()
}

func (a *backtestStrategyApi) Bar() int {
	return a.clock.Index()
}

func (a *backtestStrategyApi) Logger() *logger.Logger {
	return a.log
}
