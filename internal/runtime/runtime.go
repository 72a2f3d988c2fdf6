package runtime

import (
	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

// Strategy is a user-defined trading strategy driven bar by bar by the backtest engine.
type Strategy interface {
	// Name returns the name of the strategy.
	Name() string
	// Init is called once before the first bar. Indicators are registered here.
	Init(api StrategyApi) error
	// Next is called on every bar after the indicator warm-up.
	// Returning an InsufficientDataError skips the bar without failing the run.
	Next(api StrategyApi) error
}

// StrategyFactory creates a fresh strategy instance for every run.
type StrategyFactory func() Strategy

// StrategyApi is what a strategy can see and do during a run.
//
//nolint:interfacebloat // StrategyApi is the full strategy surface
type StrategyApi interface {
	// Data returns the bar series and registered indicators, clipped to the current bar.
	Data() *indicator.DataView
	// I registers an indicator computed by fn over inputs. It may only be called from Init.
	I(name string, fn indicator.Func, inputs ...indicator.Source) (*indicator.Handle, error)
	// Position returns the net open position, or the empty position.
	Position() types.Position
	// Equity returns the account equity at the close of the previous bar.
	Equity() float64
	// Cash returns the account cash at the close of the previous bar.
	Cash() float64
	// Trades returns a copy of the open trades in entry order.
	Trades() []types.Trade
	// ClosedTrades returns a copy of the closed trades in exit order.
	ClosedTrades() []types.Trade
	// Orders returns a copy of the pending orders.
	Orders() []types.Order
	// Buy submits a long order. A rejected order is returned with status REJECTED.
	Buy(req types.OrderRequest) types.Order
	// Sell submits a short order. A rejected order is returned with status REJECTED.
	Sell(req types.OrderRequest) types.Order
	// ClosePosition queues a market order closing every open trade.
	ClosePosition() types.Order
	// CloseTrade queues a market order closing a single open trade.
	CloseTrade(id int) types.Order
	// CancelOrder cancels a pending order. It reports whether the order was pending.
	CancelOrder(id int) bool
	// CancelAllOrders cancels every pending order.
	CancelAllOrders()
	// Bar returns the current bar index.
	Bar() int
	// Logger returns the run logger.
	Logger() *logger.Logger
}
