package strategy

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"go.uber.org/zap"
)

const EmaCrossoverName = "ema_crossover"

// EmaCrossover trades crosses of a fast and a slow exponential moving average.
type EmaCrossover struct {
	FastPeriod    int     `yaml:"fast_period" jsonschema:"title=Fast Period,description=Period of the fast EMA,default=10" validate:"gt=0,ltfield=SlowPeriod"`
	SlowPeriod    int     `yaml:"slow_period" jsonschema:"title=Slow Period,description=Period of the slow EMA,default=30" validate:"gt=0"`
	StopLossPct   float64 `yaml:"stop_loss_pct" jsonschema:"title=Stop Loss %,description=Stop-loss distance from the signal price in percent,default=2" validate:"gt=0,lt=100"`
	TakeProfitPct float64 `yaml:"take_profit_pct" jsonschema:"title=Take Profit %,description=Take-profit distance from the signal price in percent,default=4" validate:"gt=0"`
	Size          float64 `yaml:"size" jsonschema:"title=Size,description=Units when >= 1 or a fraction of equity,default=0.5" validate:"gt=0"`
	AllowShort    bool    `yaml:"allow_short" jsonschema:"title=Allow Short,description=Open short trades on a bearish cross,default=true"`

	fast *indicator.Handle
	slow *indicator.Handle
}

func NewEmaCrossover() runtime.Strategy {
	return &EmaCrossover{
		FastPeriod:    10,
		SlowPeriod:    30,
		StopLossPct:   2,
		TakeProfitPct: 4,
		Size:          0.5,
		AllowShort:    true,
	}
}

func (s *EmaCrossover) Name() string {
	return EmaCrossoverName
}

func (s *EmaCrossover) Init(api runtime.StrategyApi) error {
	if err := validator.New().Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "invalid ema_crossover parameters", err)
	}

	var err error

	s.fast, err = api.I("ema_fast", indicator.EMA(s.FastPeriod), api.Data().Close())
	if err != nil {
		return err
	}

	s.slow, err = api.I("ema_slow", indicator.EMA(s.SlowPeriod), api.Data().Close())

	return err
}

func (s *EmaCrossover) Next(api runtime.StrategyApi) error {
	fast, slow := s.fast.Line(0), s.slow.Line(0)
	price := api.Data().Close().Last()
	position := api.Position()

	switch {
	case fast.CrossOver(slow):
		if position.IsShort() {
			api.ClosePosition()
		}

		if !position.IsLong() {
			s.enter(api, api.Buy, price, 1)
		}
	case fast.CrossUnder(slow):
		if position.IsLong() {
			api.ClosePosition()
		}

		if s.AllowShort && !position.IsShort() {
			s.enter(api, api.Sell, price, -1)
		}
	}

	return nil
}

// enter places an order with stop-loss and take-profit around price. direction is +1 for long.
func (s *EmaCrossover) enter(api runtime.StrategyApi, place func(types.OrderRequest) types.Order, price float64, direction float64) {
	order := place(types.OrderRequest{
		Size:       s.Size,
		StopLoss:   optional.Some(price * (1 - direction*s.StopLossPct/100)),
		TakeProfit: optional.Some(price * (1 + direction*s.TakeProfitPct/100)),
		Tag:        "ema_cross",
	})

	api.Logger().Debug("EMA cross",
		zap.Int("bar", api.Bar()),
		zap.Int("order_id", order.ID),
		zap.String("side", string(order.Side)),
		zap.Float64("price", price),
	)
}
