package types

import "github.com/shopspring/decimal"

// Position is the net of all open trades. The zero value is the empty position.
type Position struct {
	Side PositionType `yaml:"side" json:"side"`
	// Size is the sum of open trade sizes.
	Size int `yaml:"size" json:"size"`
	// EntryPrice is the size-weighted average entry price of the open trades.
	EntryPrice float64 `yaml:"entry_price" json:"entry_price"`
}

// NewPosition aggregates open trades into a position. All trades must share one side.
func NewPosition(trades []Trade) Position {
	if len(trades) == 0 {
		return Position{}
	}

	size := 0
	notional := decimal.Zero

	for _, trade := range trades {
		size += trade.Size
		notional = notional.Add(decimal.NewFromFloat(trade.EntryPrice).Mul(decimal.NewFromInt(int64(trade.Size))))
	}

	return Position{
		Side:       trades[0].Side,
		Size:       size,
		EntryPrice: notional.Div(decimal.NewFromInt(int64(size))).InexactFloat64(),
	}
}

// IsOpen reports whether there is any open exposure.
func (p Position) IsOpen() bool {
	return p.Size > 0
}

// IsLong reports whether the position is long.
func (p Position) IsLong() bool {
	return p.IsOpen() && p.Side == PositionTypeLong
}

// IsShort reports whether the position is short.
func (p Position) IsShort() bool {
	return p.IsOpen() && p.Side == PositionTypeShort
}

// PnL returns the unrealized gross profit of the position at price.
func (p Position) PnL(price float64) float64 {
	if !p.IsOpen() {
		return 0
	}

	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice))
	if p.Side == PositionTypeShort {
		diff = diff.Neg()
	}

	return diff.Mul(decimal.NewFromInt(int64(p.Size))).InexactFloat64()
}

// PnLPct returns the unrealized return of the position at price, in percent.
func (p Position) PnLPct(price float64) float64 {
	if !p.IsOpen() || p.EntryPrice == 0 {
		return 0
	}

	pct := (price/p.EntryPrice - 1) * 100
	if p.Side == PositionTypeShort {
		return -pct
	}

	return pct
}
