package engine

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/mocks"
	"github.com/stretchr/testify/suite"
)

type BacktestTradingTestSuite struct {
	suite.Suite
}

func TestBacktestTradingSuite(t *testing.T) {
	suite.Run(t, new(BacktestTradingTestSuite))
}

func (suite *BacktestTradingTestSuite) broker(series *datasource.Series, configure func(config *BacktestEngineV1Config)) *BacktestTrading {
	config := TestConfig()
	if configure != nil {
		configure(&config)
	}

	return NewBacktestTrading(series, config, nil)
}

// step processes bar i, runs fn as the strategy and marks the close.
func step(broker *BacktestTrading, i int, fn func()) {
	broker.ProcessBar(i)

	if fn != nil {
		fn()
	}

	broker.Mark(i)
}

func (suite *BacktestTradingTestSuite) TestInitialState() {
	broker := suite.broker(mustSeries(flat(100, 100)...), nil)

	suite.Equal(10000.0, broker.Equity())
	suite.Equal(10000.0, broker.Cash())
	suite.False(broker.Position().IsOpen())
	suite.Empty(broker.Trades())
	suite.Empty(broker.Orders())
}

func (suite *BacktestTradingTestSuite) TestOrderBeforeFirstBar() {
	broker := suite.broker(mustSeries(flat(100, 100)...), nil)

	order := broker.Buy(types.OrderRequest{Size: 1})

	suite.Equal(types.OrderStatusRejected, order.Status)
	suite.Equal(types.OrderReasonInvalidOrder, order.Reason.Reason)
	suite.Equal(1, broker.RejectedOrders())
}

func (suite *BacktestTradingTestSuite) TestFIFOReduction() {
	broker := suite.broker(mustSeries(flat(100, 100, 100, 100, 100)...), nil)

	step(broker, 0, func() { broker.Buy(types.OrderRequest{Size: 10}) })
	step(broker, 1, func() { broker.Sell(types.OrderRequest{Size: 4}) })
	step(broker, 2, nil)

	suite.Require().Len(broker.ClosedTrades(), 1)
	part := broker.ClosedTrades()[0]
	suite.Equal(2, part.ID)
	suite.Equal(4, part.Size)
	suite.Equal(types.ExitReasonSignal, part.ExitReason)

	suite.Require().Len(broker.Trades(), 1)
	suite.Equal(1, broker.Trades()[0].ID)
	suite.Equal(6, broker.Trades()[0].Size)

	broker.Sell(types.OrderRequest{Size: 10})
	step(broker, 3, nil)

	closed := broker.ClosedTrades()
	suite.Require().Len(closed, 2)
	suite.Equal(1, closed[1].ID)
	suite.Equal(6, closed[1].Size)

	open := broker.Trades()
	suite.Require().Len(open, 1)
	suite.Equal(3, open[0].ID)
	suite.Equal(types.PositionTypeShort, open[0].Side)
	suite.Equal(4, open[0].Size)

	position := broker.Position()
	suite.True(position.IsShort())
	suite.Equal(4, position.Size)
	suite.Equal(-4, broker.EquityCurve()[len(broker.EquityCurve())-1].PositionSize)

	orders := broker.Orders()
	suite.Equal(4, orders[1].FilledSize)
	suite.Equal(10, orders[2].FilledSize)
}

func (suite *BacktestTradingTestSuite) TestPartialCloseWithoutMargin() {
	broker := suite.broker(mustSeries(flat(100, 100, 100, 100)...), nil)

	step(broker, 0, func() { broker.Buy(types.OrderRequest{Size: 100}) })
	step(broker, 1, func() { broker.Sell(types.OrderRequest{Size: 250}) })
	step(broker, 2, nil)

	suite.Empty(broker.Trades())
	suite.Len(broker.ClosedTrades(), 1)

	order := broker.Orders()[1]
	suite.Equal(types.OrderStatusFilled, order.Status)
	suite.Equal(100, order.FilledSize)
	suite.Equal(types.OrderReasonInsufficientMargin, order.Reason.Reason)
	suite.Equal(0, broker.RejectedOrders())
}

func (suite *BacktestTradingTestSuite) TestFractionalFlipWithExclusiveOrders() {
	broker := suite.broker(mustSeries(flat(100, 100, 100, 100)...), func(config *BacktestEngineV1Config) {
		config.ExclusiveOrders = true
	})

	step(broker, 0, func() { broker.Buy(types.OrderRequest{Size: 99}) })
	step(broker, 1, func() { broker.Sell(types.OrderRequest{Size: 0.5}) })
	step(broker, 2, nil)

	closed := broker.ClosedTrades()
	suite.Require().Len(closed, 1)
	suite.Equal(99, closed[0].Size)
	suite.Equal(types.ExitReasonSignal, closed[0].ExitReason)

	open := broker.Trades()
	suite.Require().Len(open, 1)
	suite.Equal(types.PositionTypeShort, open[0].Side)
	suite.Equal(50, open[0].Size)

	order := broker.Orders()[1]
	suite.Equal(types.OrderStatusFilled, order.Status)
	suite.Equal(50, order.FilledSize)
}

func (suite *BacktestTradingTestSuite) TestFractionalReduce() {
	tests := []struct {
		name        string
		long        float64
		closedSize  int
		openSide    types.PositionType
		openSize    int
		filledUnits int
	}{
		{"reduces part of the long", 99, 50, types.PositionTypeLong, 49, 50},
		{"closes the long and opens a short", 20, 20, types.PositionTypeShort, 30, 50},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			broker := suite.broker(mustSeries(flat(100, 100, 100, 100)...), nil)

			step(broker, 0, func() { broker.Buy(types.OrderRequest{Size: tc.long}) })
			step(broker, 1, func() { broker.Sell(types.OrderRequest{Size: 0.5}) })
			step(broker, 2, nil)

			closed := broker.ClosedTrades()
			suite.Require().Len(closed, 1)
			suite.Equal(tc.closedSize, closed[0].Size)

			open := broker.Trades()
			suite.Require().Len(open, 1)
			suite.Equal(tc.openSide, open[0].Side)
			suite.Equal(tc.openSize, open[0].Size)

			order := broker.Orders()[1]
			suite.Equal(types.OrderStatusFilled, order.Status)
			suite.Equal(tc.filledUnits, order.FilledSize)
		})
	}
}

func (suite *BacktestTradingTestSuite) TestExclusiveOrders() {
	broker := suite.broker(mustSeries(flat(100, 100, 100, 100)...), func(config *BacktestEngineV1Config) {
		config.ExclusiveOrders = true
	})

	step(broker, 0, func() {
		broker.Buy(types.OrderRequest{Size: 10, Limit: optional.Some(90.0)})
		broker.Buy(types.OrderRequest{Size: 5})
	})

	orders := broker.Orders()
	suite.Equal(types.OrderStatusCancelled, orders[0].Status)
	suite.Equal(types.OrderReasonExclusive, orders[0].Reason.Reason)

	step(broker, 1, func() { broker.Sell(types.OrderRequest{Size: 3}) })
	step(broker, 2, nil)

	closed := broker.ClosedTrades()
	suite.Require().Len(closed, 1)
	suite.Equal(5, closed[0].Size)

	open := broker.Trades()
	suite.Require().Len(open, 1)
	suite.Equal(types.PositionTypeShort, open[0].Side)
	suite.Equal(3, open[0].Size)
}

func (suite *BacktestTradingTestSuite) TestEntryFills() {
	tests := []struct {
		name  string
		bars  []ohlc
		side  types.PositionType
		req   types.OrderRequest
		bar   int
		price float64
	}{
		{
			name:  "market at next open",
			bars:  []ohlc{{100, 100, 100, 100}, {101, 103, 99, 102}},
			side:  types.PositionTypeLong,
			req:   types.OrderRequest{Size: 1},
			bar:   1,
			price: 101,
		},
		{
			name:  "long limit",
			bars:  []ohlc{{100, 100, 100, 100}, {100, 101, 95, 96}},
			side:  types.PositionTypeLong,
			req:   types.OrderRequest{Size: 1, Limit: optional.Some(97.0)},
			bar:   1,
			price: 97,
		},
		{
			name:  "short limit waits for the high",
			bars:  []ohlc{{100, 100, 100, 100}, {100, 101, 99, 100}, {100, 106, 99, 104}},
			side:  types.PositionTypeShort,
			req:   types.OrderRequest{Size: 1, Limit: optional.Some(105.0)},
			bar:   2,
			price: 105,
		},
		{
			name:  "long stop",
			bars:  []ohlc{{100, 100, 100, 100}, {100, 103, 99, 101}},
			side:  types.PositionTypeLong,
			req:   types.OrderRequest{Size: 1, Stop: optional.Some(102.0)},
			bar:   1,
			price: 102,
		},
		{
			name:  "long stop gapped through",
			bars:  []ohlc{{100, 100, 100, 100}, {104, 106, 103, 105}},
			side:  types.PositionTypeLong,
			req:   types.OrderRequest{Size: 1, Stop: optional.Some(102.0)},
			bar:   1,
			price: 104,
		},
		{
			name:  "short stop gapped through",
			bars:  []ohlc{{100, 100, 100, 100}, {95, 96, 94, 95}},
			side:  types.PositionTypeShort,
			req:   types.OrderRequest{Size: 1, Stop: optional.Some(98.0)},
			bar:   1,
			price: 95,
		},
		{
			name:  "stop limit triggers then fills",
			bars:  []ohlc{{100, 100, 100, 100}, {100, 103, 101.5, 102.5}, {102, 102, 100, 101}},
			side:  types.PositionTypeLong,
			req:   types.OrderRequest{Size: 1, Stop: optional.Some(102.0), Limit: optional.Some(101.0)},
			bar:   2,
			price: 101,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			broker := suite.broker(mustSeries(tc.bars...), nil)

			step(broker, 0, func() {
				if tc.side == types.PositionTypeLong {
					broker.Buy(tc.req)
				} else {
					broker.Sell(tc.req)
				}
			})

			for i := 1; i < len(tc.bars); i++ {
				step(broker, i, nil)
			}

			order := broker.Orders()[0]
			suite.Equal(types.OrderStatusFilled, order.Status)
			suite.Equal(tc.bar, order.FilledBar)
			suite.Equal(tc.price, order.FilledPrice)

			suite.Require().Len(broker.Trades(), 1)
			suite.Equal(tc.price, broker.Trades()[0].EntryPrice)
			suite.Equal(tc.side, broker.Trades()[0].Side)
		})
	}
}

func (suite *BacktestTradingTestSuite) TestStopLimitStaysArmed() {
	broker := suite.broker(mustSeries(
		ohlc{100, 100, 100, 100},
		ohlc{100, 103, 101.5, 102.5},
	), nil)

	step(broker, 0, func() {
		broker.Buy(types.OrderRequest{Size: 1, Stop: optional.Some(102.0), Limit: optional.Some(101.0)})
	})
	step(broker, 1, nil)

	pending := broker.PendingOrders()
	suite.Require().Len(pending, 1)
	suite.True(pending[0].StopTriggered())
	suite.Equal(types.OrderTypeStopLimit, pending[0].Type)
}

func (suite *BacktestTradingTestSuite) TestShortExits() {
	broker := suite.broker(mustSeries(
		ohlc{100, 100, 100, 100},
		ohlc{100, 100, 89, 92},
	), nil)

	step(broker, 0, func() {
		broker.Sell(types.OrderRequest{Size: 10, StopLoss: optional.Some(105.0), TakeProfit: optional.Some(90.0)})
	})
	step(broker, 1, nil)

	closed := broker.ClosedTrades()
	suite.Require().Len(closed, 1)
	suite.Equal(types.ExitReasonTakeProfit, closed[0].ExitReason)
	suite.Equal(90.0, closed[0].ExitPrice)
	suite.Equal(100.0, closed[0].PnL)
	suite.Equal(10100.0, broker.CurrentCash())
}

func (suite *BacktestTradingTestSuite) TestTrailingTighterThanStopLoss() {
	broker := suite.broker(mustSeries(
		ohlc{100, 100, 100, 100},
		ohlc{100, 100, 99, 100},
		ohlc{100, 110, 107.5, 108},
		ohlc{108, 108, 103, 104},
	), nil)

	step(broker, 0, func() {
		broker.Buy(types.OrderRequest{Size: 1, StopLoss: optional.Some(95.0), TrailingOffset: optional.Some(3.0)})
	})
	step(broker, 1, nil)

	// trail at 97 is tighter than the stop loss at 95
	suite.Equal(97.0, broker.Trades()[0].TrailingStop)

	step(broker, 2, nil)
	suite.Equal(107.0, broker.Trades()[0].TrailingStop)

	step(broker, 3, nil)

	closed := broker.ClosedTrades()
	suite.Require().Len(closed, 1)
	suite.Equal(types.ExitReasonTrailing, closed[0].ExitReason)
	suite.Equal(107.0, closed[0].ExitPrice)
}

func (suite *BacktestTradingTestSuite) TestStopLossTighterThanTrailing() {
	broker := suite.broker(mustSeries(
		ohlc{100, 100, 100, 100},
		ohlc{100, 100, 97, 98},
	), nil)

	step(broker, 0, func() {
		broker.Buy(types.OrderRequest{Size: 1, StopLoss: optional.Some(98.0), TrailingOffset: optional.Some(10.0)})
	})
	step(broker, 1, nil)

	closed := broker.ClosedTrades()
	suite.Require().Len(closed, 1)
	suite.Equal(types.ExitReasonStopLoss, closed[0].ExitReason)
	suite.Equal(98.0, closed[0].ExitPrice)
}

func (suite *BacktestTradingTestSuite) TestCloseTrade() {
	broker := suite.broker(mustSeries(flat(100, 100, 100, 100)...), nil)

	step(broker, 0, func() {
		broker.Buy(types.OrderRequest{Size: 2})
		broker.Buy(types.OrderRequest{Size: 3})
	})

	var order types.Order

	step(broker, 1, func() { order = broker.CloseTrade(2) })
	suite.Equal(types.OrderStatusPending, order.Status)
	suite.Equal(types.PositionTypeShort, order.Side)
	suite.Equal(3.0, order.Size)
	suite.True(order.CloseTradeID.IsSome())

	step(broker, 2, nil)

	suite.Require().Len(broker.Trades(), 1)
	suite.Equal(1, broker.Trades()[0].ID)
	suite.Equal(2, broker.ClosedTrades()[0].ID)
	suite.Equal(types.ExitReasonSignal, broker.ClosedTrades()[0].ExitReason)
}

func (suite *BacktestTradingTestSuite) TestNothingToClose() {
	broker := suite.broker(mustSeries(flat(100, 100)...), nil)

	var position, trade types.Order

	step(broker, 0, func() {
		position = broker.ClosePosition()
		trade = broker.CloseTrade(7)
	})

	for _, order := range []types.Order{position, trade} {
		suite.Equal(types.OrderStatusCancelled, order.Status)
		suite.Equal(types.OrderReasonNothingToClose, order.Reason.Reason)
	}

	suite.Empty(broker.Orders())
	suite.Equal(0, broker.RejectedOrders())
}

func (suite *BacktestTradingTestSuite) TestCancelOrders() {
	broker := suite.broker(mustSeries(flat(100, 100, 100)...), nil)

	var first types.Order

	step(broker, 0, func() {
		first = broker.Buy(types.OrderRequest{Size: 1, Limit: optional.Some(50.0)})
		broker.Buy(types.OrderRequest{Size: 1, Limit: optional.Some(60.0)})
		broker.Sell(types.OrderRequest{Size: 1, Limit: optional.Some(150.0)})
	})

	suite.True(broker.CancelOrder(first.ID))
	suite.False(broker.CancelOrder(first.ID))
	suite.Len(broker.PendingOrders(), 2)

	broker.CancelAllOrders()
	suite.Empty(broker.PendingOrders())

	for _, order := range broker.Orders() {
		suite.Equal(types.OrderStatusCancelled, order.Status)
		suite.Equal(types.OrderReasonUserCancelled, order.Reason.Reason)
	}
}

func (suite *BacktestTradingTestSuite) TestFinish() {
	broker := suite.broker(mustSeries(flat(100, 100, 105)...), nil)

	step(broker, 0, func() { broker.Sell(types.OrderRequest{Size: 2}) })
	step(broker, 1, func() { broker.Buy(types.OrderRequest{Size: 1, Limit: optional.Some(80.0)}) })

	broker.ProcessBar(2)
	broker.Finish(2)
	broker.Mark(2)

	suite.Empty(broker.Trades())
	suite.Empty(broker.PendingOrders())
	suite.Equal(types.ExitReasonForcedClose, broker.ClosedTrades()[0].ExitReason)
	suite.Equal(-10.0, broker.ClosedTrades()[0].PnL)
	suite.Equal(types.OrderReasonLastBar, broker.Orders()[1].Reason.Reason)
	suite.Equal(9990.0, broker.EquityCurve()[2].Equity)
}

// TestAccountInvariants drives the broker with random orders and checks the accounting
// after every bar.
func (suite *BacktestTradingTestSuite) TestAccountInvariants() {
	config := mocks.DefaultConfig()
	config.Count = 500
	config.Volatility = 0.01

	bars := mocks.NewDataGenerator(11).Generate(config)
	series, err := datasource.NewSeries(bars, nil)
	suite.Require().NoError(err)

	broker := suite.broker(series, func(config *BacktestEngineV1Config) {
		config.Broker = commission_fee.BrokerProportional
		config.Commission = 0.0005
	})

	random := rand.New(rand.NewSource(5))
	stops := map[int]float64{}

	// fractional sells placed against an open long, checked on the bar they fill
	var fractional *types.Order

	fractionalFills := 0

	for i := 0; i < series.Len(); i++ {
		expectedUnits := 0
		if fractional != nil {
			open := bars[i].Open
			expectedUnits = int(math.Floor(fractional.Size * broker.equityAt(open) / open))
		}

		broker.ProcessBar(i)

		if fractional != nil {
			for _, order := range broker.Orders() {
				if order.ID != fractional.ID {
					continue
				}

				suite.Equal(types.OrderStatusFilled, order.Status, "order %d at bar %d", order.ID, i)
				suite.Equal(expectedUnits, order.FilledSize, "order %d at bar %d", order.ID, i)

				fractionalFills++
			}

			fractional = nil
		}

		switch random.Intn(6) {
		case 0:
			broker.Buy(types.OrderRequest{Size: 0.3, TrailingOffset: optional.Some(bars[i].Close * 0.02)})
		case 1:
			broker.Sell(types.OrderRequest{Size: float64(1 + random.Intn(20)), TrailingOffset: optional.Some(bars[i].Close * 0.015)})
		case 2:
			broker.Buy(types.OrderRequest{Size: 10, StopLoss: optional.Some(bars[i].Close * 0.95), TakeProfit: optional.Some(bars[i].Close * 1.05)})
		case 3:
			broker.ClosePosition()
		case 4:
			if broker.Position().IsLong() && len(broker.PendingOrders()) == 0 && i < series.Len()-1 {
				order := broker.Sell(types.OrderRequest{Size: 0.4})
				fractional = &order
			}
		}

		if i == series.Len()-1 {
			broker.Finish(i)
		}

		point := broker.Mark(i)

		expected := broker.CurrentCash()
		for _, trade := range broker.Trades() {
			expected += trade.Value(bars[i].Close)

			if trade.TrailingOffset.IsNone() || trade.TrailingStop == 0 {
				continue
			}

			if previous, ok := stops[trade.ID]; ok {
				if trade.IsLong() {
					suite.GreaterOrEqual(trade.TrailingStop, previous, "trade %d at bar %d", trade.ID, i)
				} else {
					suite.LessOrEqual(trade.TrailingStop, previous, "trade %d at bar %d", trade.ID, i)
				}
			}

			stops[trade.ID] = trade.TrailingStop
		}

		suite.InDelta(expected, point.Equity, 1e-6)
		suite.LessOrEqual(point.DrawdownPct, 0.0)

		position := broker.Position()
		for _, trade := range broker.Trades() {
			suite.Equal(position.Side, trade.Side)
		}
	}

	suite.Empty(broker.Trades())
	suite.Positive(fractionalFills)

	ids := map[int]bool{}
	for _, trade := range broker.ClosedTrades() {
		suite.False(ids[trade.ID], "trade %d closed twice", trade.ID)
		ids[trade.ID] = true
		suite.GreaterOrEqual(trade.ExitBar, trade.EntryBar)
		suite.Positive(trade.Size)
	}

	suite.Equal(broker.CurrentCash(), broker.EquityCurve()[series.Len()-1].Equity)
	suite.Equal(series.Len(), len(broker.EquityCurve()))
	suite.WithinDuration(bars[0].Time, broker.EquityCurve()[0].Time, time.Duration(0))
}
