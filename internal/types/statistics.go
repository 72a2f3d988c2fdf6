package types

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StrategyHandle is the parameterised strategy instance that produced a result.
type StrategyHandle interface {
	Name() string
}

// EquityPoint is the account state at the close of one bar.
type EquityPoint struct {
	Bar    int       `yaml:"bar" json:"bar" csv:"bar"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Cash   float64   `yaml:"cash" json:"cash" csv:"cash"`
	Equity float64   `yaml:"equity" json:"equity" csv:"equity"`
	// DrawdownPct is the drawdown from the running equity peak, in percent (<= 0).
	DrawdownPct float64 `yaml:"drawdown_pct" json:"drawdown_pct" csv:"drawdown_pct"`
	// PositionSize is the net open size after the bar, signed by side.
	PositionSize int `yaml:"position_size" json:"position_size" csv:"position_size"`
}

// BacktestStats is the result of a single backtest run.
type BacktestStats struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// StrategyName is the name of the strategy that produced the result.
	StrategyName string `yaml:"strategy" json:"strategy"`

	Start            time.Time     `yaml:"start" json:"start"`
	End              time.Time     `yaml:"end" json:"end"`
	Duration         time.Duration `yaml:"duration" json:"duration"`
	ExposureTimePct  float64       `yaml:"exposure_time_pct" json:"exposure_time_pct"`
	EquityFinal      float64       `yaml:"equity_final" json:"equity_final"`
	EquityPeak       float64       `yaml:"equity_peak" json:"equity_peak"`
	ReturnPct        float64       `yaml:"return_pct" json:"return_pct"`
	BuyAndHoldPct    float64       `yaml:"buy_and_hold_return_pct" json:"buy_and_hold_return_pct"`
	ReturnAnnPct     float64       `yaml:"return_ann_pct" json:"return_ann_pct"`
	VolatilityAnnPct float64       `yaml:"volatility_ann_pct" json:"volatility_ann_pct"`
	SharpeRatio      float64       `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio     float64       `yaml:"sortino_ratio" json:"sortino_ratio"`
	CalmarRatio      float64       `yaml:"calmar_ratio" json:"calmar_ratio"`
	MaxDrawdownPct   float64       `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	AvgDrawdownPct   float64       `yaml:"avg_drawdown_pct" json:"avg_drawdown_pct"`
	// MaxDrawdownDuration is the longest time spent below a previous equity peak.
	MaxDrawdownDuration time.Duration `yaml:"max_drawdown_duration" json:"max_drawdown_duration"`
	NumberOfTrades      int           `yaml:"number_of_trades" json:"number_of_trades"`
	WinRatePct          float64       `yaml:"win_rate_pct" json:"win_rate_pct"`
	BestTradePct        float64       `yaml:"best_trade_pct" json:"best_trade_pct"`
	WorstTradePct       float64       `yaml:"worst_trade_pct" json:"worst_trade_pct"`
	AvgTradePct         float64       `yaml:"avg_trade_pct" json:"avg_trade_pct"`
	MaxTradeDuration    time.Duration `yaml:"max_trade_duration" json:"max_trade_duration"`
	AvgTradeDuration    time.Duration `yaml:"avg_trade_duration" json:"avg_trade_duration"`
	ProfitFactor        float64       `yaml:"profit_factor" json:"profit_factor"`
	ExpectancyPct       float64       `yaml:"expectancy_pct" json:"expectancy_pct"`
	SQN                 float64       `yaml:"sqn" json:"sqn"`
	Commissions         float64       `yaml:"commissions" json:"commissions"`
	RejectedOrders      int           `yaml:"rejected_orders" json:"rejected_orders"`

	// Strategy is the strategy instance with its parameters bound.
	Strategy StrategyHandle `yaml:"-" json:"-"`
	// Trades is the closed-trade log ordered by exit.
	Trades []Trade `yaml:"-" json:"-"`
	// Orders is every order submitted during the run, including rejected ones.
	Orders []Order `yaml:"-" json:"-"`
	// EquityCurve holds one point per bar.
	EquityCurve []EquityPoint `yaml:"-" json:"-"`
}

// String lists every metric on its own line.
func (s BacktestStats) String() string {
	var b strings.Builder

	line := func(name string, value string) {
		fmt.Fprintf(&b, "%-26s %s\n", name, value)
	}

	line("Start", s.Start.Format(time.RFC3339))
	line("End", s.End.Format(time.RFC3339))
	line("Duration", s.Duration.String())
	line("Exposure Time [%]", formatFloat(s.ExposureTimePct))
	line("Equity Final [$]", formatFloat(s.EquityFinal))
	line("Equity Peak [$]", formatFloat(s.EquityPeak))
	line("Return [%]", formatFloat(s.ReturnPct))
	line("Buy & Hold Return [%]", formatFloat(s.BuyAndHoldPct))
	line("Return (Ann.) [%]", formatFloat(s.ReturnAnnPct))
	line("Volatility (Ann.) [%]", formatFloat(s.VolatilityAnnPct))
	line("Sharpe Ratio", formatFloat(s.SharpeRatio))
	line("Sortino Ratio", formatFloat(s.SortinoRatio))
	line("Calmar Ratio", formatFloat(s.CalmarRatio))
	line("Max. Drawdown [%]", formatFloat(s.MaxDrawdownPct))
	line("Avg. Drawdown [%]", formatFloat(s.AvgDrawdownPct))
	line("Max. Drawdown Duration", s.MaxDrawdownDuration.String())
	line("# Trades", fmt.Sprintf("%d", s.NumberOfTrades))
	line("Win Rate [%]", formatFloat(s.WinRatePct))
	line("Best Trade [%]", formatFloat(s.BestTradePct))
	line("Worst Trade [%]", formatFloat(s.WorstTradePct))
	line("Avg. Trade [%]", formatFloat(s.AvgTradePct))
	line("Max. Trade Duration", s.MaxTradeDuration.String())
	line("Avg. Trade Duration", s.AvgTradeDuration.String())
	line("Profit Factor", formatFloat(s.ProfitFactor))
	line("Expectancy [%]", formatFloat(s.ExpectancyPct))
	line("SQN", formatFloat(s.SQN))
	line("Commissions [$]", formatFloat(s.Commissions))
	line("# Rejected Orders", fmt.Sprintf("%d", s.RejectedOrders))

	name := s.StrategyName
	if s.Strategy != nil {
		name = s.Strategy.Name()
	}

	line("_strategy", name)

	return b.String()
}

func formatFloat(value float64) string {
	switch {
	case math.IsInf(value, 1):
		return "inf"
	case math.IsInf(value, -1):
		return "-inf"
	case math.IsNaN(value):
		return "NaN"
	default:
		return fmt.Sprintf("%.6f", value)
	}
}

// WriteBacktestStats writes the stats to path as YAML.
func WriteBacktestStats(path string, stats BacktestStats) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest stats to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest stats to file: %w", err)
	}

	return nil
}
