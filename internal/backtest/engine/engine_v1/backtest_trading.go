package engine

import (
	"fmt"
	"math"
	"slices"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/internal/utils"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BacktestTrading is the simulated broker and account of a single run.
// It owns cash, open and closed trades, pending orders and the equity curve.
type BacktestTrading struct {
	config     BacktestEngineV1Config
	series     *datasource.Series
	commission commission_fee.CommissionFee
	log        *logger.Logger

	bar  int
	cash float64
	// atClose is set while market orders fill at the close of the current bar
	atClose bool
	// equity and cash at the close of the previous bar, which is what strategies see
	lastEquity float64
	lastCash   float64

	orders        []*types.Order
	pendingOrders []*types.Order
	openTrades    []*types.Trade
	closedTrades  []types.Trade
	equityCurve   []types.EquityPoint

	nextOrderID    int
	nextTradeID    int
	rejectedOrders int
	commissions    decimal.Decimal
	peakEquity     float64
}

// NewBacktestTrading creates a broker with cash set to the configured initial capital.
func NewBacktestTrading(series *datasource.Series, config BacktestEngineV1Config, log *logger.Logger) *BacktestTrading {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BacktestTrading{
		config:         config,
		series:         series,
		commission:     commission_fee.GetCommissionFeeHandler(config.Broker, config.Commission),
		log:            log,
		bar:            -1,
		cash:           config.InitialCapital,
		lastEquity:     config.InitialCapital,
		lastCash:       config.InitialCapital,
		orders:         nil,
		pendingOrders:  nil,
		openTrades:     nil,
		closedTrades:   nil,
		equityCurve:    make([]types.EquityPoint, 0, series.Len()),
		nextOrderID:    1,
		nextTradeID:    1,
		rejectedOrders: 0,
		commissions:    decimal.Zero,
		peakEquity:     config.InitialCapital,
	}
}

// Buy submits a long order.
func (b *BacktestTrading) Buy(req types.OrderRequest) types.Order {
	return b.submit(types.PositionTypeLong, req)
}

// Sell submits a short order.
func (b *BacktestTrading) Sell(req types.OrderRequest) types.Order {
	return b.submit(types.PositionTypeShort, req)
}

func (b *BacktestTrading) submit(side types.PositionType, req types.OrderRequest) types.Order {
	order := b.newOrder(side, req.OrderType(), req.Size)
	order.StopLoss = req.StopLoss
	order.TakeProfit = req.TakeProfit
	order.TrailingOffset = req.TrailingOffset
	order.Limit = req.Limit
	order.Stop = req.Stop
	order.Tag = req.Tag

	if b.bar < 0 {
		return b.reject(order, types.OrderReasonInvalidOrder, "orders can only be placed while bars are processed")
	}

	if err := req.Validate(); err != nil {
		return b.reject(order, rejectionReason(err), err.Error())
	}

	if b.config.ExclusiveOrders {
		b.cancelPending(types.OrderReasonExclusive, fmt.Sprintf("superseded by order %d", order.ID))
	}

	b.pendingOrders = append(b.pendingOrders, order)

	return *order
}

// ClosePosition queues a market order closing every open trade.
// Without open trades the returned order is cancelled and not recorded.
func (b *BacktestTrading) ClosePosition() types.Order {
	position := b.Position()
	if !position.IsOpen() {
		return nothingToClose(b.bar)
	}

	order := b.newOrder(opposite(position.Side), types.OrderTypeMarket, float64(position.Size))
	order.ClosePosition = true
	order.Reason = types.Reason{Reason: types.OrderReasonClose, Message: "close position"}
	b.pendingOrders = append(b.pendingOrders, order)

	return *order
}

// CloseTrade queues a market order closing the open trade with the given id.
func (b *BacktestTrading) CloseTrade(id int) types.Order {
	index := b.openTradeIndex(id)
	if index < 0 {
		return nothingToClose(b.bar)
	}

	trade := b.openTrades[index]
	order := b.newOrder(opposite(trade.Side), types.OrderTypeMarket, float64(trade.Size))
	order.CloseTradeID = optional.Some(id)
	order.Reason = types.Reason{Reason: types.OrderReasonClose, Message: fmt.Sprintf("close trade %d", id)}
	b.pendingOrders = append(b.pendingOrders, order)

	return *order
}

// CancelOrder cancels a pending order. It reports whether the order was pending.
func (b *BacktestTrading) CancelOrder(id int) bool {
	for i, order := range b.pendingOrders {
		if order.ID == id {
			order.Status = types.OrderStatusCancelled
			order.Reason = types.Reason{Reason: types.OrderReasonUserCancelled, Message: "cancelled by strategy"}
			b.pendingOrders = slices.Delete(b.pendingOrders, i, i+1)

			return true
		}
	}

	return false
}

// CancelAllOrders cancels every pending order.
func (b *BacktestTrading) CancelAllOrders() {
	b.cancelPending(types.OrderReasonUserCancelled, "cancelled by strategy")
}

func (b *BacktestTrading) cancelPending(reason string, message string) {
	for _, order := range b.pendingOrders {
		order.Status = types.OrderStatusCancelled
		order.Reason = types.Reason{Reason: reason, Message: message}
	}

	b.pendingOrders = nil
}

// ProcessBar moves the broker to bar i. Pending orders submitted on earlier bars are filled
// against bar i and every open trade is checked for stop-loss, take-profit and trailing exits.
func (b *BacktestTrading) ProcessBar(i int) {
	b.bar = i
	bar := b.series.Bar(i)

	for _, order := range slices.Clone(b.pendingOrders) {
		if order.SubmittedBar >= i || !order.IsActive() {
			continue
		}

		price, ok := b.fillPrice(order, bar)
		if !ok {
			continue
		}

		b.fill(order, price)
	}

	b.processExits(bar)
}

// ProcessClose fills market orders submitted on bar i at its close.
// SL/TP checks for trades opened here start on the next bar.
func (b *BacktestTrading) ProcessClose(i int) {
	closePrice := b.series.Bar(i).Close

	b.atClose = true
	defer func() { b.atClose = false }()

	for _, order := range slices.Clone(b.pendingOrders) {
		if order.SubmittedBar != i || order.Type != types.OrderTypeMarket || !order.IsActive() {
			continue
		}

		b.fill(order, closePrice)
	}
}

// Finish cancels the remaining orders and closes every open trade at the close of bar i.
func (b *BacktestTrading) Finish(i int) {
	b.bar = i
	b.cancelPending(types.OrderReasonLastBar, "cancelled at the last bar")

	closePrice := b.series.Bar(i).Close
	for _, trade := range slices.Clone(b.openTrades) {
		b.closeTrade(trade, closePrice, types.ExitReasonForcedClose)
	}
}

// Mark appends the equity at the close of bar i to the equity curve.
func (b *BacktestTrading) Mark(i int) types.EquityPoint {
	bar := b.series.Bar(i)
	equity := b.equityAt(bar.Close)

	b.peakEquity = math.Max(b.peakEquity, equity)

	drawdown := 0.0
	if b.peakEquity > 0 {
		drawdown = (equity/b.peakEquity - 1) * 100
	}

	position := b.Position()

	size := position.Size
	if position.IsShort() {
		size = -size
	}

	point := types.EquityPoint{
		Bar:          i,
		Time:         bar.Time,
		Close:        bar.Close,
		Cash:         b.cash,
		Equity:       equity,
		DrawdownPct:  drawdown,
		PositionSize: size,
	}

	b.equityCurve = append(b.equityCurve, point)
	b.lastEquity = equity
	b.lastCash = b.cash

	return point
}

// fillPrice decides whether the order fills on bar and at which price.
func (b *BacktestTrading) fillPrice(order *types.Order, bar types.Bar) (float64, bool) {
	switch order.Type {
	case types.OrderTypeMarket:
		return bar.Open, true
	case types.OrderTypeLimit:
		return limitFill(order, bar)
	case types.OrderTypeStop:
		return stopFill(order, bar)
	case types.OrderTypeStopLimit:
		if !order.StopTriggered() {
			if _, hit := stopFill(order, bar); !hit {
				return 0, false
			}

			order.TriggerStop()
		}

		return limitFill(order, bar)
	}

	return 0, false
}

// a limit fills at the limit once the bar range reaches it
func limitFill(order *types.Order, bar types.Bar) (float64, bool) {
	limit := order.Limit.Unwrap()

	if order.IsLong() && bar.Low <= limit {
		return limit, true
	}

	if !order.IsLong() && bar.High >= limit {
		return limit, true
	}

	return 0, false
}

// a stop fills at the stop or at a worse open when the bar gaps through it
func stopFill(order *types.Order, bar types.Bar) (float64, bool) {
	stop := order.Stop.Unwrap()

	if order.IsLong() && bar.High >= stop {
		return math.Max(stop, bar.Open), true
	}

	if !order.IsLong() && bar.Low <= stop {
		return math.Min(stop, bar.Open), true
	}

	return 0, false
}

func (b *BacktestTrading) fill(order *types.Order, price float64) {
	b.removePending(order.ID)

	if order.IsExit() {
		b.fillExit(order, price)

		return
	}

	b.fillEntry(order, price)
}

func (b *BacktestTrading) fillExit(order *types.Order, price float64) {
	var targets []*types.Trade

	if order.ClosePosition {
		targets = slices.Clone(b.openTrades)
	} else if index := b.openTradeIndex(order.CloseTradeID.Unwrap()); index >= 0 {
		targets = []*types.Trade{b.openTrades[index]}
	}

	if len(targets) == 0 {
		order.Status = types.OrderStatusCancelled
		order.Reason = types.Reason{Reason: types.OrderReasonNothingToClose, Message: "no open trade to close"}

		return
	}

	units := 0
	for _, trade := range targets {
		units += trade.Size
		b.closeTrade(trade, price, types.ExitReasonSignal)
	}

	b.markFilled(order, price, units)
}

func (b *BacktestTrading) fillEntry(order *types.Order, price float64) {
	if reason, message, ok := checkRiskLevels(order, price); !ok {
		b.reject(order, reason, message)

		return
	}

	units := utils.CalculateOrderUnits(order.Size, b.equityAt(price), price)
	if units < 1 {
		b.reject(order, types.OrderReasonInvalidQuantity, fmt.Sprintf("order size %v is less than one unit at %v", order.Size, price))

		return
	}

	closed := 0

	for _, trade := range slices.Clone(b.openTrades) {
		if trade.Side == order.Side {
			continue
		}

		if b.config.ExclusiveOrders {
			b.closeTrade(trade, price, types.ExitReasonSignal)

			continue
		}

		// opposing orders reduce open trades first in, first out
		remaining := units - closed
		if remaining == 0 {
			break
		}

		if trade.Size <= remaining {
			closed += trade.Size
			b.closeTrade(trade, price, types.ExitReasonSignal)

			continue
		}

		part := trade.Split(remaining, b.nextTradeID)
		b.nextTradeID++
		closed += remaining
		b.closeTrade(&part, price, types.ExitReasonSignal)
	}

	remaining := units - closed

	// fractional orders shrink the new exposure to what the account can carry once the
	// opposing trades are gone
	if order.Size < 1 && remaining > 0 {
		remaining = min(remaining, utils.CalculateMaxQuantity(b.available(price), price, b.config.Margin, b.commission))

		if remaining < 1 && closed == 0 {
			b.reject(order, types.OrderReasonInvalidQuantity, fmt.Sprintf("order size %v is less than one affordable unit at %v", order.Size, price))

			return
		}
	}

	if remaining == 0 {
		b.markFilled(order, price, closed)

		return
	}

	fee := b.commission.Calculate(price, float64(remaining))
	required := decimal.NewFromFloat(price).
		Mul(decimal.NewFromInt(int64(remaining))).
		Mul(decimal.NewFromFloat(b.config.Margin)).
		Add(decimal.NewFromFloat(fee))

	if required.GreaterThan(decimal.NewFromFloat(b.available(price))) {
		message := fmt.Sprintf("required %s exceeds available %.2f", required.StringFixed(2), b.available(price))
		if closed == 0 {
			b.reject(order, types.OrderReasonInsufficientMargin, message)

			return
		}

		// the opposing part already filled, only the new exposure is dropped
		b.markFilled(order, price, closed)
		order.Reason = types.Reason{Reason: types.OrderReasonInsufficientMargin, Message: message}

		return
	}

	b.cash = decimal.NewFromFloat(b.cash).Sub(decimal.NewFromFloat(fee)).InexactFloat64()
	b.commissions = b.commissions.Add(decimal.NewFromFloat(fee))

	bar := b.series.Bar(b.bar)
	trade := &types.Trade{
		ID:             b.nextTradeID,
		OrderID:        order.ID,
		Side:           order.Side,
		Size:           remaining,
		Tag:            order.Tag,
		EntryBar:       b.bar,
		EntryTime:      bar.Time,
		EntryPrice:     price,
		EntryFee:       fee,
		EntryOnClose:   b.atClose,
		StopLoss:       order.StopLoss,
		TakeProfit:     order.TakeProfit,
		TrailingOffset: order.TrailingOffset,
		HighWater:      price,
		LowWater:       price,
	}
	b.nextTradeID++
	b.openTrades = append(b.openTrades, trade)

	b.markFilled(order, price, closed+remaining)
}

// checkRiskLevels rejects stop-loss and take-profit prices on the wrong side of the fill price.
func checkRiskLevels(order *types.Order, price float64) (string, string, bool) {
	if order.StopLoss.IsSome() {
		sl := order.StopLoss.Unwrap()
		if (order.IsLong() && sl >= price) || (!order.IsLong() && sl <= price) {
			return types.OrderReasonInvalidStopLoss, fmt.Sprintf("stop loss %v is on the wrong side of fill price %v", sl, price), false
		}
	}

	if order.TakeProfit.IsSome() {
		tp := order.TakeProfit.Unwrap()
		if (order.IsLong() && tp <= price) || (!order.IsLong() && tp >= price) {
			return types.OrderReasonInvalidTakeProfit, fmt.Sprintf("take profit %v is on the wrong side of fill price %v", tp, price), false
		}
	}

	return "", "", true
}

// processExits runs trailing stop updates and SL/TP checks for every open trade, in entry order.
func (b *BacktestTrading) processExits(bar types.Bar) {
	for _, trade := range slices.Clone(b.openTrades) {
		stop, trailing := b.updateStop(trade, bar)

		slHit := stop.IsSome() && ((trade.IsLong() && bar.Low <= stop.Unwrap()) || (!trade.IsLong() && bar.High >= stop.Unwrap()))
		tpHit := trade.TakeProfit.IsSome() &&
			((trade.IsLong() && bar.High >= trade.TakeProfit.Unwrap()) || (!trade.IsLong() && bar.Low <= trade.TakeProfit.Unwrap()))

		if slHit && tpHit && b.config.SLTPResolution == SLTPResolutionOptimistic {
			slHit = false
		}

		switch {
		case slHit:
			reason := types.ExitReasonStopLoss
			if trailing {
				reason = types.ExitReasonTrailing
			}

			b.closeTrade(trade, stop.Unwrap(), reason)
		case tpHit:
			b.closeTrade(trade, trade.TakeProfit.Unwrap(), types.ExitReasonTakeProfit)
		}
	}
}

// updateStop advances the trailing stop of the trade with the bar and returns the effective
// stop price. trailing is true when the trailing stop is tighter than the fixed stop-loss.
func (b *BacktestTrading) updateStop(trade *types.Trade, bar types.Bar) (optional.Option[float64], bool) {
	if trade.TrailingOffset.IsNone() {
		return trade.StopLoss, false
	}

	offset := trade.TrailingOffset.Unwrap()

	var stop float64

	if trade.IsLong() {
		trade.HighWater = math.Max(trade.HighWater, bar.High)
		stop = trade.HighWater - offset

		if trade.TrailingStop != 0 {
			stop = math.Max(stop, trade.TrailingStop)
		}
	} else {
		trade.LowWater = math.Min(trade.LowWater, bar.Low)
		stop = trade.LowWater + offset

		if trade.TrailingStop != 0 {
			stop = math.Min(stop, trade.TrailingStop)
		}
	}

	trade.TrailingStop = stop

	if trade.StopLoss.IsNone() {
		return optional.Some(stop), true
	}

	sl := trade.StopLoss.Unwrap()
	if (trade.IsLong() && sl >= stop) || (!trade.IsLong() && sl <= stop) {
		return trade.StopLoss, false
	}

	return optional.Some(stop), true
}

func (b *BacktestTrading) closeTrade(trade *types.Trade, price float64, reason types.ExitReason) {
	bar := b.series.Bar(b.bar)
	fee := b.commission.Calculate(price, float64(trade.Size))

	b.cash = decimal.NewFromFloat(b.cash).
		Add(decimal.NewFromFloat(trade.GrossPnL(price))).
		Sub(decimal.NewFromFloat(fee)).
		InexactFloat64()
	b.commissions = b.commissions.Add(decimal.NewFromFloat(fee))

	trade.Close(b.bar, bar.Time, price, fee, reason)
	b.closedTrades = append(b.closedTrades, *trade)

	if index := b.openTradeIndex(trade.ID); index >= 0 && b.openTrades[index] == trade {
		b.openTrades = slices.Delete(b.openTrades, index, index+1)
	}

	b.log.Debug("Trade closed",
		zap.Int("bar", b.bar),
		zap.Int("trade_id", trade.ID),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
		zap.Float64("pnl", trade.PnL),
	)
}

func (b *BacktestTrading) newOrder(side types.PositionType, orderType types.OrderType, size float64) *types.Order {
	order := &types.Order{
		ID:           b.nextOrderID,
		Side:         side,
		Type:         orderType,
		Size:         size,
		SubmittedBar: b.bar,
		Status:       types.OrderStatusPending,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy, Message: ""},
	}

	if b.bar >= 0 {
		order.SubmittedAt = b.series.Time(b.bar)
	}

	b.nextOrderID++
	b.orders = append(b.orders, order)

	return order
}

func (b *BacktestTrading) reject(order *types.Order, reason string, message string) types.Order {
	b.removePending(order.ID)

	order.Status = types.OrderStatusRejected
	order.Reason = types.Reason{Reason: reason, Message: message}
	b.rejectedOrders++

	b.log.Debug("Order rejected",
		zap.Int("bar", b.bar),
		zap.Int("order_id", order.ID),
		zap.String("reason", reason),
		zap.String("message", message),
	)

	return *order
}

func (b *BacktestTrading) markFilled(order *types.Order, price float64, units int) {
	order.Status = types.OrderStatusFilled
	order.FilledBar = b.bar
	order.FilledPrice = price
	order.FilledSize = units
}

func (b *BacktestTrading) removePending(id int) {
	b.pendingOrders = slices.DeleteFunc(b.pendingOrders, func(order *types.Order) bool {
		return order.ID == id
	})
}

func (b *BacktestTrading) openTradeIndex(id int) int {
	return slices.IndexFunc(b.openTrades, func(trade *types.Trade) bool {
		return trade.ID == id
	})
}

// equityAt marks the account to price.
func (b *BacktestTrading) equityAt(price float64) float64 {
	equity := decimal.NewFromFloat(b.cash)
	for _, trade := range b.openTrades {
		equity = equity.Add(decimal.NewFromFloat(trade.Value(price)))
	}

	return equity.InexactFloat64()
}

// available is the equity at price not yet reserved as margin by open trades.
func (b *BacktestTrading) available(price float64) float64 {
	reserved := decimal.Zero
	for _, trade := range b.openTrades {
		reserved = reserved.Add(decimal.NewFromFloat(trade.EntryPrice).
			Mul(decimal.NewFromInt(int64(trade.Size))).
			Mul(decimal.NewFromFloat(b.config.Margin)))
	}

	return decimal.NewFromFloat(b.equityAt(price)).Sub(reserved).InexactFloat64()
}

// Position aggregates the open trades.
func (b *BacktestTrading) Position() types.Position {
	trades := make([]types.Trade, len(b.openTrades))
	for i, trade := range b.openTrades {
		trades[i] = *trade
	}

	return types.NewPosition(trades)
}

// Equity returns the equity at the close of the previous bar.
func (b *BacktestTrading) Equity() float64 {
	return b.lastEquity
}

// Cash returns the cash at the close of the previous bar.
func (b *BacktestTrading) Cash() float64 {
	return b.lastCash
}

// CurrentCash returns the cash after every fill processed so far.
func (b *BacktestTrading) CurrentCash() float64 {
	return b.cash
}

// Trades returns a copy of the open trades in entry order.
func (b *BacktestTrading) Trades() []types.Trade {
	trades := make([]types.Trade, len(b.openTrades))
	for i, trade := range b.openTrades {
		trades[i] = *trade
	}

	return trades
}

// ClosedTrades returns a copy of the closed trades in exit order.
func (b *BacktestTrading) ClosedTrades() []types.Trade {
	return slices.Clone(b.closedTrades)
}

// PendingOrders returns a copy of the orders waiting for a fill.
func (b *BacktestTrading) PendingOrders() []types.Order {
	orders := make([]types.Order, len(b.pendingOrders))
	for i, order := range b.pendingOrders {
		orders[i] = *order
	}

	return orders
}

// Orders returns a copy of every order submitted during the run.
func (b *BacktestTrading) Orders() []types.Order {
	orders := make([]types.Order, len(b.orders))
	for i, order := range b.orders {
		orders[i] = *order
	}

	return orders
}

// EquityCurve returns the equity marks recorded so far.
func (b *BacktestTrading) EquityCurve() []types.EquityPoint {
	return slices.Clone(b.equityCurve)
}

// RejectedOrders returns the number of rejected orders.
func (b *BacktestTrading) RejectedOrders() int {
	return b.rejectedOrders
}

// Commissions returns the total commission paid.
func (b *BacktestTrading) Commissions() float64 {
	return b.commissions.InexactFloat64()
}

func rejectionReason(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidStopLoss:
		return types.OrderReasonInvalidStopLoss
	case errors.ErrCodeInvalidTakeProfit:
		return types.OrderReasonInvalidTakeProfit
	case errors.ErrCodeInvalidParameter:
		return types.OrderReasonInvalidPrice
	case errors.ErrCodeInvalidOrder:
		return types.OrderReasonInvalidQuantity
	default:
		return types.OrderReasonInvalidOrder
	}
}

func nothingToClose(bar int) types.Order {
	return types.Order{
		Type:         types.OrderTypeMarket,
		SubmittedBar: bar,
		Status:       types.OrderStatusCancelled,
		Reason:       types.Reason{Reason: types.OrderReasonNothingToClose, Message: "no open trade to close"},
	}
}

func opposite(side types.PositionType) types.PositionType {
	if side == types.PositionTypeLong {
		return types.PositionTypeShort
	}

	return types.PositionTypeLong
}
