package strategy

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

const BreakoutTrailingName = "breakout_trailing"

// BreakoutTrailing enters when the close leaves the Donchian channel of the previous bars and
// lets a trailing stop take it out.
type BreakoutTrailing struct {
	Period   int     `yaml:"period" jsonschema:"title=Channel Period,description=Number of bars in the Donchian channel,default=20" validate:"gt=1"`
	TrailPct float64 `yaml:"trail_pct" jsonschema:"title=Trail %,description=Trailing stop distance from the entry signal price in percent,default=3" validate:"gt=0,lt=100"`
	Fraction float64 `yaml:"fraction" jsonschema:"title=Fraction,description=Fraction of equity committed per entry,default=0.25" validate:"gt=0,lt=1"`

	upper *indicator.Handle
	lower *indicator.Handle
}

func NewBreakoutTrailing() runtime.Strategy {
	return &BreakoutTrailing{
		Period:   20,
		TrailPct: 3,
		Fraction: 0.25,
	}
}

func (s *BreakoutTrailing) Name() string {
	return BreakoutTrailingName
}

func (s *BreakoutTrailing) Init(api runtime.StrategyApi) error {
	if err := validator.New().Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "invalid breakout_trailing parameters", err)
	}

	var err error

	s.upper, err = api.I("donchian_upper", indicator.Highest(s.Period), api.Data().High())
	if err != nil {
		return err
	}

	s.lower, err = api.I("donchian_lower", indicator.Lowest(s.Period), api.Data().Low())

	return err
}

func (s *BreakoutTrailing) Next(api runtime.StrategyApi) error {
	// the channel of the previous bar, so the current bar can break it
	upper, err := s.upper.Get(-2)
	if err != nil {
		return err
	}

	lower, err := s.lower.Get(-2)
	if err != nil {
		return err
	}

	if api.Position().IsOpen() || len(api.Orders()) > 0 {
		return nil
	}

	price := api.Data().Close().Last()
	trail := optional.Some(price * s.TrailPct / 100)

	switch {
	case price > upper:
		api.Buy(types.OrderRequest{Size: s.Fraction, TrailingOffset: trail, Tag: "breakout_up"})
	case price < lower:
		api.Sell(types.OrderRequest{Size: s.Fraction, TrailingOffset: trail, Tag: "breakout_down"})
	}

	return nil
}
