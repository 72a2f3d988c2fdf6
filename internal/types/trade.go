package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

type ExitReason string

const (
	ExitReasonTakeProfit  ExitReason = "tp"
	ExitReasonStopLoss    ExitReason = "sl"
	ExitReasonTrailing    ExitReason = "trail"
	ExitReasonSignal      ExitReason = "signal"
	ExitReasonForcedClose ExitReason = "forced_close"
)

// Trade is a single entry/exit pair created by a filled entry order.
// A closed trade is never modified again.
type Trade struct {
	ID      int          `yaml:"id" json:"id" csv:"id"`
	OrderID int          `yaml:"order_id" json:"order_id" csv:"order_id"`
	Side    PositionType `yaml:"side" json:"side" csv:"side"`
	Size    int          `yaml:"size" json:"size" csv:"size"`
	Tag     string       `yaml:"tag" json:"tag" csv:"tag"`

	EntryBar   int       `yaml:"entry_bar" json:"entry_bar" csv:"entry_bar"`
	EntryTime  time.Time `yaml:"entry_time" json:"entry_time" csv:"entry_time"`
	EntryPrice float64   `yaml:"entry_price" json:"entry_price" csv:"entry_price"`
	EntryFee   float64   `yaml:"entry_fee" json:"entry_fee" csv:"entry_fee"`
	// EntryOnClose is set when the trade was opened at the close of its entry bar.
	EntryOnClose bool `yaml:"entry_on_close" json:"entry_on_close" csv:"entry_on_close"`

	StopLoss       optional.Option[float64] `yaml:"stop_loss" json:"stop_loss" csv:"-"`
	TakeProfit     optional.Option[float64] `yaml:"take_profit" json:"take_profit" csv:"-"`
	TrailingOffset optional.Option[float64] `yaml:"trailing_offset" json:"trailing_offset" csv:"-"`
	// HighWater is the highest high seen since entry. Only tracked for long trailing trades.
	HighWater float64 `yaml:"high_water" json:"high_water" csv:"high_water"`
	// LowWater is the lowest low seen since entry. Only tracked for short trailing trades.
	LowWater float64 `yaml:"low_water" json:"low_water" csv:"low_water"`
	// TrailingStop is the current effective trailing stop price, zero until first computed.
	TrailingStop float64 `yaml:"trailing_stop" json:"trailing_stop" csv:"trailing_stop"`

	ExitBar    int        `yaml:"exit_bar" json:"exit_bar" csv:"exit_bar"`
	ExitTime   time.Time  `yaml:"exit_time" json:"exit_time" csv:"exit_time"`
	ExitPrice  float64    `yaml:"exit_price" json:"exit_price" csv:"exit_price"`
	ExitFee    float64    `yaml:"exit_fee" json:"exit_fee" csv:"exit_fee"`
	ExitReason ExitReason `yaml:"exit_reason" json:"exit_reason" csv:"exit_reason"`
	// PnL is the realized profit after both commissions.
	PnL float64 `yaml:"pnl" json:"pnl" csv:"pnl"`
	// PnLPct is the realized return relative to the entry notional, in percent.
	PnLPct float64 `yaml:"pnl_pct" json:"pnl_pct" csv:"pnl_pct"`

	closed bool
}

// IsLong reports whether the trade is a long trade.
func (t *Trade) IsLong() bool {
	return t.Side == PositionTypeLong
}

// IsClosed reports whether the trade has exited.
func (t *Trade) IsClosed() bool {
	return t.closed
}

// Direction is +1 for long trades and -1 for short trades.
func (t *Trade) Direction() float64 {
	if t.IsLong() {
		return 1
	}

	return -1
}

// GrossPnL returns the price difference between entry and price times size, without fees.
func (t *Trade) GrossPnL(price float64) float64 {
	entry := decimal.NewFromFloat(t.EntryPrice)
	diff := decimal.NewFromFloat(price).Sub(entry)

	if !t.IsLong() {
		diff = diff.Neg()
	}

	return diff.Mul(decimal.NewFromInt(int64(t.Size))).InexactFloat64()
}

// Value returns the mark-to-market value of the trade at price: its unrealized gross PnL.
func (t *Trade) Value(price float64) float64 {
	return t.GrossPnL(price)
}

// Close marks the trade as exited and computes its realized PnL.
func (t *Trade) Close(bar int, at time.Time, price float64, fee float64, reason ExitReason) {
	t.ExitBar = bar
	t.ExitTime = at
	t.ExitPrice = price
	t.ExitFee = fee
	t.ExitReason = reason

	pnl := decimal.NewFromFloat(t.GrossPnL(price)).
		Sub(decimal.NewFromFloat(t.EntryFee)).
		Sub(decimal.NewFromFloat(fee))
	t.PnL = pnl.InexactFloat64()

	notional := decimal.NewFromFloat(t.EntryPrice).Mul(decimal.NewFromInt(int64(t.Size)))
	if !notional.IsZero() {
		t.PnLPct = pnl.Div(notional).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	t.closed = true
}

// Split detaches size units from the trade into a new trade sharing its entry.
// The entry fee is divided proportionally. The receiver keeps the remaining units.
func (t *Trade) Split(size int, id int) Trade {
	part := *t
	part.ID = id
	part.Size = size

	fee := decimal.NewFromFloat(t.EntryFee)
	partFee := fee.Mul(decimal.NewFromInt(int64(size))).Div(decimal.NewFromInt(int64(t.Size)))
	part.EntryFee = partFee.InexactFloat64()

	t.EntryFee = fee.Sub(partFee).InexactFloat64()
	t.Size -= size

	return part
}

// Duration returns the holding time of a closed trade.
func (t *Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
