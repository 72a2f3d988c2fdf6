package indicator

import (
	"math"
	"testing"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type IndicatorFunctionsTestSuite struct {
	suite.Suite
}

func TestIndicatorFunctionsSuite(t *testing.T) {
	suite.Run(t, new(IndicatorFunctionsTestSuite))
}

func (suite *IndicatorFunctionsTestSuite) assertSeries(expected []float64, actual []float64) {
	suite.Require().Len(actual, len(expected))

	for i := range expected {
		if math.IsNaN(expected[i]) {
			suite.True(math.IsNaN(actual[i]), "expected NaN at %d, got %f", i, actual[i])

			continue
		}

		suite.InDelta(expected[i], actual[i], 1e-9, "index %d", i)
	}
}

func (suite *IndicatorFunctionsTestSuite) TestSMA() {
	out, err := SMA(3)([]float64{1, 2, 3, 4, 5})
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), math.NaN(), 2, 3, 4}, out[0])
}

func (suite *IndicatorFunctionsTestSuite) TestSMAWithLeadingNaN() {
	out, err := SMA(2)([]float64{math.NaN(), 2, 4, 6})
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), math.NaN(), 3, 5}, out[0])
}

func (suite *IndicatorFunctionsTestSuite) TestEMA() {
	out, err := EMA(3)([]float64{1, 2, 3, 4, 5})
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), math.NaN(), 2, 3, 4}, out[0])
}

func (suite *IndicatorFunctionsTestSuite) TestEMAShortInput() {
	out, err := EMA(10)([]float64{1, 2, 3})
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), math.NaN(), math.NaN()}, out[0])
}

func (suite *IndicatorFunctionsTestSuite) TestRSI() {
	out, err := RSI(2)([]float64{1, 2, 3, 2, 4})
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), math.NaN(), 100, 50, 100 - 100.0/6}, out[0])
}

func (suite *IndicatorFunctionsTestSuite) TestATR() {
	high := []float64{10, 11, 15}
	low := []float64{8, 9, 10}
	closes := []float64{9, 10, 14}

	out, err := ATR(2)(high, low, closes)
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), 2, 3.5}, out[0])
}

func (suite *IndicatorFunctionsTestSuite) TestBollingerBands() {
	out, err := BollingerBands(2, 2)([]float64{1, 3, 5})
	suite.Require().NoError(err)
	suite.Len(out, 3)
	suite.assertSeries([]float64{math.NaN(), 4, 6}, out[0])
	suite.assertSeries([]float64{math.NaN(), 2, 4}, out[1])
	suite.assertSeries([]float64{math.NaN(), 0, 2}, out[2])
}

func (suite *IndicatorFunctionsTestSuite) TestMACD() {
	out, err := MACD(2, 3, 2)([]float64{1, 2, 3, 4, 5, 6})
	suite.Require().NoError(err)
	suite.Len(out, 3)

	nan := math.NaN()
	suite.assertSeries([]float64{nan, nan, 0.5, 0.5, 0.5, 0.5}, out[0])
	suite.assertSeries([]float64{nan, nan, nan, 0.5, 0.5, 0.5}, out[1])
	suite.assertSeries([]float64{nan, nan, nan, 0, 0, 0}, out[2])
}

func (suite *IndicatorFunctionsTestSuite) TestHighestLowest() {
	data := []float64{1, 3, 2, 5}

	highest, err := Highest(2)(data)
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), 3, 3, 5}, highest[0])

	lowest, err := Lowest(2)(data)
	suite.Require().NoError(err)
	suite.assertSeries([]float64{math.NaN(), 1, 2, 2}, lowest[0])
}

func (suite *IndicatorFunctionsTestSuite) TestInvalidArguments() {
	tests := []struct {
		name   string
		fn     Func
		inputs [][]float64
		code   errors.ErrorCode
	}{
		{"zero period", SMA(0), [][]float64{{1}}, errors.ErrCodeInvalidPeriod},
		{"negative period", EMA(-1), [][]float64{{1}}, errors.ErrCodeInvalidPeriod},
		{"missing input", RSI(14), nil, errors.ErrCodeMissingParameter},
		{"atr needs three inputs", ATR(14), [][]float64{{1}}, errors.ErrCodeMissingParameter},
		{"macd fast not below slow", MACD(26, 12, 9), [][]float64{{1}}, errors.ErrCodeInvalidPeriod},
		{"bollinger deviation", BollingerBands(20, 0), [][]float64{{1}}, errors.ErrCodeInvalidParameter},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := tc.fn(tc.inputs...)
			suite.Error(err)
			suite.Equal(tc.code, errors.GetCode(err))
		})
	}
}
