// Package stats computes the performance statistics of a finished backtest.
// Everything here is a pure function of the run's equity curve and trade log.
package stats

import (
	"math"
	"slices"
	"time"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/shopspring/decimal"
)

const year = 365 * 24 * time.Hour

// Input is everything the reporter needs from a finished run.
type Input struct {
	StartingCash float64
	// Closes is the close of every bar, aligned with EquityCurve.
	Closes      []float64
	EquityCurve []types.EquityPoint
	// Trades is the closed-trade log in exit order.
	Trades         []types.Trade
	Orders         []types.Order
	RejectedOrders int
	Commissions    float64
	// PeriodsPerYear annualises bar returns. Zero derives it from BarInterval.
	PeriodsPerYear float64
	BarInterval    time.Duration
	Strategy       types.StrategyHandle
}

// Compute builds the statistics of a run.
func Compute(input Input) types.BacktestStats {
	curve := input.EquityCurve
	stats := types.BacktestStats{
		Commissions:    input.Commissions,
		RejectedOrders: input.RejectedOrders,
		Strategy:       input.Strategy,
		Trades:         slices.Clone(input.Trades),
		Orders:         slices.Clone(input.Orders),
		EquityCurve:    slices.Clone(curve),
	}

	if input.Strategy != nil {
		stats.StrategyName = input.Strategy.Name()
	}

	if len(curve) == 0 {
		stats.EquityFinal = input.StartingCash
		stats.EquityPeak = input.StartingCash

		return stats
	}

	stats.Start = curve[0].Time
	stats.End = curve[len(curve)-1].Time
	stats.Duration = stats.End.Sub(stats.Start)
	stats.ExposureTimePct = ExposureTime(input.Trades, len(curve))

	equity := make([]float64, len(curve))
	for i, point := range curve {
		equity[i] = point.Equity
	}

	stats.EquityFinal = equity[len(equity)-1]
	stats.EquityPeak = slices.Max(equity)

	if input.StartingCash > 0 {
		stats.ReturnPct = (stats.EquityFinal/input.StartingCash - 1) * 100
	}

	if len(input.Closes) > 0 && input.Closes[0] != 0 {
		stats.BuyAndHoldPct = (input.Closes[len(input.Closes)-1]/input.Closes[0] - 1) * 100
	}

	periods := PeriodsPerYear(input.PeriodsPerYear, input.BarInterval)
	returns := Returns(equity)

	stats.ReturnAnnPct = AnnualizedReturn(equity, periods) * 100
	stats.VolatilityAnnPct = stdev(returns) * math.Sqrt(periods) * 100
	stats.SharpeRatio = SharpeRatio(returns, periods)
	stats.SortinoRatio = SortinoRatio(returns, periods)

	drawdowns := Drawdowns(curve)
	stats.MaxDrawdownPct = drawdowns.MaxPct
	stats.AvgDrawdownPct = drawdowns.AvgPct
	stats.MaxDrawdownDuration = drawdowns.MaxDuration

	if stats.MaxDrawdownPct < 0 {
		stats.CalmarRatio = stats.ReturnAnnPct / math.Abs(stats.MaxDrawdownPct)
	}

	tradeStats(&stats, input.Trades)

	return stats
}

func tradeStats(stats *types.BacktestStats, trades []types.Trade) {
	stats.NumberOfTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	pnl := make([]float64, len(trades))
	pct := make([]float64, len(trades))
	wins := 0

	var maxDuration, totalDuration time.Duration

	for i, trade := range trades {
		pnl[i] = trade.PnL
		pct[i] = trade.PnLPct

		if trade.PnL > 0 {
			wins++
		}

		maxDuration = max(maxDuration, trade.Duration())
		totalDuration += trade.Duration()
	}

	stats.WinRatePct = float64(wins) / float64(len(trades)) * 100
	stats.BestTradePct = slices.Max(pct)
	stats.WorstTradePct = slices.Min(pct)
	stats.AvgTradePct = mean(pct)
	stats.MaxTradeDuration = maxDuration
	stats.AvgTradeDuration = totalDuration / time.Duration(len(trades))
	stats.ProfitFactor = ProfitFactor(trades)
	stats.ExpectancyPct = mean(pct)

	if deviation := stdev(pnl); len(pnl) > 1 && deviation > 0 {
		stats.SQN = math.Sqrt(float64(len(pnl))) * mean(pnl) / deviation
	}
}

// ProfitFactor is gross profit over gross loss. It is +Inf when there is profit and no loss,
// and 0 when there is neither.
func ProfitFactor(trades []types.Trade) float64 {
	profit := decimal.Zero
	loss := decimal.Zero

	for _, trade := range trades {
		value := decimal.NewFromFloat(trade.PnL)
		if value.IsPositive() {
			profit = profit.Add(value)
		} else {
			loss = loss.Add(value.Abs())
		}
	}

	if loss.IsZero() {
		if profit.IsPositive() {
			return math.Inf(1)
		}

		return 0
	}

	return profit.Div(loss).InexactFloat64()
}

// ExposureTime is the percentage of bars during which at least one trade was open.
// A trade occupies every bar from its entry bar to its exit bar inclusive. A trade opened at
// the close of its entry bar starts on the following bar.
func ExposureTime(trades []types.Trade, bars int) float64 {
	if bars == 0 {
		return 0
	}

	exposed := make([]bool, bars)
	for _, trade := range trades {
		first := trade.EntryBar
		if trade.EntryOnClose {
			first++
		}

		for i := max(first, 0); i <= trade.ExitBar && i < bars; i++ {
			exposed[i] = true
		}
	}

	count := 0

	for _, e := range exposed {
		if e {
			count++
		}
	}

	return float64(count) / float64(bars) * 100
}

// PeriodsPerYear returns configured when set, otherwise the number of bars of length
// interval in a 365-day year. It is zero when neither is known.
func PeriodsPerYear(configured float64, interval time.Duration) float64 {
	if configured > 0 {
		return configured
	}

	if interval <= 0 {
		return 0
	}

	return float64(year) / float64(interval)
}

// Returns computes simple bar-to-bar returns of the equity curve.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equity)-1)

	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			returns = append(returns, 0)

			continue
		}

		returns = append(returns, equity[i]/equity[i-1]-1)
	}

	return returns
}

// SharpeRatio is mean over sample standard deviation of bar returns, scaled by the square
// root of the periods per year. It is zero with fewer than two returns or no variance.
func SharpeRatio(returns []float64, periods float64) float64 {
	deviation := stdev(returns)
	if len(returns) < 2 || deviation == 0 {
		return 0
	}

	return mean(returns) / deviation * math.Sqrt(periods)
}

// SortinoRatio is like SharpeRatio with the downside deviation in the denominator.
func SortinoRatio(returns []float64, periods float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	sum := 0.0

	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}

	downside := math.Sqrt(sum / float64(len(returns)))
	if downside == 0 {
		return 0
	}

	return mean(returns) / downside * math.Sqrt(periods)
}

// AnnualizedReturn compounds the total return of the curve over a year of bars.
func AnnualizedReturn(equity []float64, periods float64) float64 {
	if len(equity) < 2 || periods <= 0 || equity[0] <= 0 {
		return 0
	}

	growth := equity[len(equity)-1] / equity[0]
	if growth <= 0 {
		return -1
	}

	return math.Pow(growth, periods/float64(len(equity)-1)) - 1
}

// DrawdownSummary describes the underwater periods of an equity curve.
type DrawdownSummary struct {
	MaxPct      float64
	AvgPct      float64
	MaxDuration time.Duration
}

// Drawdowns walks the curve and summarises every period spent below a previous peak.
// A period lasts from the peak to the bar that recovers it, or to the last bar.
func Drawdowns(curve []types.EquityPoint) DrawdownSummary {
	var summary DrawdownSummary

	if len(curve) == 0 {
		return summary
	}

	var depths []float64

	peak := curve[0].Equity
	peakTime := curve[0].Time
	depth := 0.0
	underwater := false

	closePeriod := func(end time.Time) {
		depths = append(depths, depth)
		summary.MaxDuration = max(summary.MaxDuration, end.Sub(peakTime))
		depth = 0
		underwater = false
	}

	for _, point := range curve {
		if point.Equity >= peak {
			if underwater {
				closePeriod(point.Time)
			}

			peak = point.Equity
			peakTime = point.Time

			continue
		}

		underwater = true
		depth = math.Min(depth, (point.Equity/peak-1)*100)
	}

	if underwater {
		closePeriod(curve[len(curve)-1].Time)
	}

	if len(depths) > 0 {
		summary.MaxPct = slices.Min(depths)
		summary.AvgPct = mean(depths)
	}

	return summary
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// stdev is the sample standard deviation.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sum := 0.0

	for _, v := range values {
		sum += (v - m) * (v - m)
	}

	return math.Sqrt(sum / float64(len(values)-1))
}
