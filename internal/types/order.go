package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type OrderType string

type OrderStatus string

type PositionType string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

const (
	OrderReasonStrategy           string = "strategy"
	OrderReasonClose              string = "close"
	OrderReasonInsufficientMargin string = "insufficient_margin"
	OrderReasonInvalidQuantity    string = "invalid_quantity"
	OrderReasonInvalidStopLoss    string = "invalid_stop_loss"
	OrderReasonInvalidTakeProfit  string = "invalid_take_profit"
	OrderReasonInvalidPrice       string = "invalid_price"
	OrderReasonInvalidOrder       string = "invalid_order"
	OrderReasonNothingToClose     string = "nothing_to_close"
	OrderReasonLastBar            string = "last_bar"
	OrderReasonExclusive          string = "exclusive_orders"
	OrderReasonUserCancelled      string = "user_cancelled"
)

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// OrderRequest is what a strategy submits through Buy or Sell.
//
// Size >= 1 is a number of units (non-integers are rounded half-to-even at fill).
// 0 < Size < 1 is a fraction of current equity.
type OrderRequest struct {
	Size float64 `yaml:"size" json:"size" validate:"gt=0"`
	// StopLoss is the price at which the resulting trade is stopped out.
	StopLoss optional.Option[float64] `yaml:"stop_loss" json:"stop_loss"`
	// TakeProfit is the price at which the resulting trade takes profit.
	TakeProfit optional.Option[float64] `yaml:"take_profit" json:"take_profit"`
	// TrailingOffset is the distance the trailing stop keeps from the favorable extreme.
	TrailingOffset optional.Option[float64] `yaml:"trailing_offset" json:"trailing_offset"`
	// Limit makes the order a limit order.
	Limit optional.Option[float64] `yaml:"limit" json:"limit"`
	// Stop makes the order a stop (or stop-limit) order.
	Stop optional.Option[float64] `yaml:"stop" json:"stop"`
	Tag  string                   `yaml:"tag" json:"tag"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if !positiveOrNone(r.StopLoss) {
		return errors.New(errors.ErrCodeInvalidStopLoss, "stop loss must be greater than zero")
	}

	if !positiveOrNone(r.TakeProfit) {
		return errors.New(errors.ErrCodeInvalidTakeProfit, "take profit must be greater than zero")
	}

	if !positiveOrNone(r.TrailingOffset) {
		return errors.New(errors.ErrCodeInvalidParameter, "trailing offset must be greater than zero")
	}

	if !positiveOrNone(r.Limit) || !positiveOrNone(r.Stop) {
		return errors.New(errors.ErrCodeInvalidParameter, "limit and stop prices must be greater than zero")
	}

	return nil
}

// OrderType derives the order type from the limit and stop prices.
func (r *OrderRequest) OrderType() OrderType {
	switch {
	case r.Limit.IsSome() && r.Stop.IsSome():
		return OrderTypeStopLimit
	case r.Limit.IsSome():
		return OrderTypeLimit
	case r.Stop.IsSome():
		return OrderTypeStop
	default:
		return OrderTypeMarket
	}
}

func positiveOrNone(value optional.Option[float64]) bool {
	return value.IsNone() || value.Unwrap() > 0
}

// Order is a submitted order and its outcome.
type Order struct {
	ID             int                      `yaml:"id" json:"id" csv:"id"`
	Side           PositionType             `yaml:"side" json:"side" csv:"side"`
	Type           OrderType                `yaml:"type" json:"type" csv:"type"`
	Size           float64                  `yaml:"size" json:"size" csv:"size"`
	StopLoss       optional.Option[float64] `yaml:"stop_loss" json:"stop_loss" csv:"-"`
	TakeProfit     optional.Option[float64] `yaml:"take_profit" json:"take_profit" csv:"-"`
	TrailingOffset optional.Option[float64] `yaml:"trailing_offset" json:"trailing_offset" csv:"-"`
	Limit          optional.Option[float64] `yaml:"limit" json:"limit" csv:"-"`
	Stop           optional.Option[float64] `yaml:"stop" json:"stop" csv:"-"`
	Tag            string                   `yaml:"tag" json:"tag" csv:"tag"`
	// CloseTradeID is set on orders that exit a single trade.
	CloseTradeID optional.Option[int] `yaml:"close_trade_id" json:"close_trade_id" csv:"-"`
	// ClosePosition is set on orders that exit the whole position.
	ClosePosition bool `yaml:"close_position" json:"close_position" csv:"close_position"`

	SubmittedBar int         `yaml:"submitted_bar" json:"submitted_bar" csv:"submitted_bar"`
	SubmittedAt  time.Time   `yaml:"submitted_at" json:"submitted_at" csv:"submitted_at"`
	Status       OrderStatus `yaml:"status" json:"status" csv:"status"`
	// Reason carries why the order was placed, rejected or cancelled.
	Reason      Reason  `yaml:"reason" json:"reason" csv:"reason"`
	FilledBar   int     `yaml:"filled_bar" json:"filled_bar" csv:"filled_bar"`
	FilledPrice float64 `yaml:"filled_price" json:"filled_price" csv:"filled_price"`
	FilledSize  int     `yaml:"filled_size" json:"filled_size" csv:"filled_size"`
	// stopTriggered is set once a stop-limit order's stop has been crossed.
	stopTriggered bool
}

// IsLong reports whether the order buys.
func (o *Order) IsLong() bool {
	return o.Side == PositionTypeLong
}

// IsExit reports whether the order only closes existing exposure.
func (o *Order) IsExit() bool {
	return o.ClosePosition || o.CloseTradeID.IsSome()
}

// IsActive reports whether the order is still waiting for a fill.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusPending
}

// StopTriggered reports whether a stop-limit order has already been armed.
func (o *Order) StopTriggered() bool {
	return o.stopTriggered
}

// TriggerStop arms a stop-limit order so that it behaves as a plain limit order.
func (o *Order) TriggerStop() {
	o.stopTriggered = true
}
