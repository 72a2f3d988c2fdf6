package strategy

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

const RsiReversionName = "rsi_reversion"

// RsiReversion buys oversold and sells overbought conditions and exits when RSI crosses back
// through the middle band.
type RsiReversion struct {
	RsiPeriod     int     `yaml:"rsi_period" jsonschema:"title=RSI Period,default=14" validate:"gt=1"`
	Oversold      float64 `yaml:"oversold" jsonschema:"title=Oversold,description=RSI level below which the strategy buys,default=30" validate:"gt=0,ltfield=Overbought"`
	Overbought    float64 `yaml:"overbought" jsonschema:"title=Overbought,description=RSI level above which the strategy sells,default=70" validate:"lt=100"`
	AtrPeriod     int     `yaml:"atr_period" jsonschema:"title=ATR Period,default=14" validate:"gt=0"`
	AtrMultiplier float64 `yaml:"atr_multiplier" jsonschema:"title=ATR Multiplier,description=Stop distance in ATRs,default=2" validate:"gt=0"`
	Size          float64 `yaml:"size" jsonschema:"title=Size,description=Units when >= 1 or a fraction of equity,default=0.5" validate:"gt=0"`

	rsi *indicator.Handle
	atr *indicator.Handle
}

func NewRsiReversion() runtime.Strategy {
	return &RsiReversion{
		RsiPeriod:     14,
		Oversold:      30,
		Overbought:    70,
		AtrPeriod:     14,
		AtrMultiplier: 2,
		Size:          0.5,
	}
}

func (s *RsiReversion) Name() string {
	return RsiReversionName
}

func (s *RsiReversion) Init(api runtime.StrategyApi) error {
	if err := validator.New().Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "invalid rsi_reversion parameters", err)
	}

	data := api.Data()

	var err error

	s.rsi, err = api.I("rsi", indicator.RSI(s.RsiPeriod), data.Close())
	if err != nil {
		return err
	}

	s.atr, err = api.I("atr", indicator.ATR(s.AtrPeriod), data.High(), data.Low(), data.Close())

	return err
}

func (s *RsiReversion) Next(api runtime.StrategyApi) error {
	rsi, err := s.rsi.Get(-1)
	if err != nil {
		return err
	}

	atr, err := s.atr.Get(-1)
	if err != nil {
		return err
	}

	price := api.Data().Close().Last()
	position := api.Position()
	middle := (s.Oversold + s.Overbought) / 2

	switch {
	case position.IsLong():
		if rsi >= middle {
			api.ClosePosition()
		}
	case position.IsShort():
		if rsi <= middle {
			api.ClosePosition()
		}
	case len(api.Orders()) > 0:
		// an entry is already waiting for the next open
	case rsi < s.Oversold:
		api.Buy(types.OrderRequest{
			Size:     s.Size,
			StopLoss: optional.Some(price - s.AtrMultiplier*atr),
			Tag:      "rsi_oversold",
		})
	case rsi > s.Overbought:
		api.Sell(types.OrderRequest{
			Size:     s.Size,
			StopLoss: optional.Some(price + s.AtrMultiplier*atr),
			Tag:      "rsi_overbought",
		})
	}

	return nil
}
