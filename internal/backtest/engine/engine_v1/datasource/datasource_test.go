package datasource

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type SeriesTestSuite struct {
	suite.Suite
	start time.Time
}

func TestSeriesSuite(t *testing.T) {
	suite.Run(t, new(SeriesTestSuite))
}

func (suite *SeriesTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *SeriesTestSuite) bars(closes ...float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Time:   suite.start.Add(time.Duration(i) * 15 * time.Minute),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}

	return bars
}

func (suite *SeriesTestSuite) TestNewSeries() {
	series, err := NewSeries(suite.bars(100, 101, 102), map[string][]float64{"funding": {1, 2, 3}})
	suite.Require().NoError(err)

	suite.Equal(3, series.Len())
	suite.Equal(101.0, series.Bar(1).Close)
	suite.Equal(102.0, series.Bar(2).High)
	suite.Equal(suite.start, series.Time(0))
	suite.Equal([]string{"funding"}, series.ExtraColumns())
	suite.Len(series.Columns(), 6)
	suite.Len(series.Bars(), 3)

	funding, ok := series.Column("funding")
	suite.True(ok)
	suite.Equal([]float64{1, 2, 3}, funding)

	funding[0] = 42
	again, _ := series.Column("funding")
	suite.Equal(1.0, again[0], "Column returns a copy")

	_, ok = series.Column("missing")
	suite.False(ok)
}

func (suite *SeriesTestSuite) TestNewSeriesErrors() {
	outOfOrder := suite.bars(1, 2, 3)
	outOfOrder[2].Time = outOfOrder[0].Time

	duplicate := suite.bars(1, 2)
	duplicate[1].Time = duplicate[0].Time

	negativeVolume := suite.bars(1, 2)
	negativeVolume[1].Volume = -1

	inverted := suite.bars(1)
	inverted[0].High, inverted[0].Low = 0, 2

	tests := []struct {
		name   string
		bars   []types.Bar
		extras map[string][]float64
		code   errors.ErrorCode
	}{
		{"empty", nil, nil, errors.ErrCodeEmptySeries},
		{"out of order", outOfOrder, nil, errors.ErrCodeNonMonotonicTime},
		{"duplicate timestamp", duplicate, nil, errors.ErrCodeNonMonotonicTime},
		{"negative volume", negativeVolume, nil, errors.ErrCodeInvalidBarSeries},
		{"high below low", inverted, nil, errors.ErrCodeInvalidBarSeries},
		{"extra length", suite.bars(1, 2), map[string][]float64{"x": {1}}, errors.ErrCodeInvalidBarSeries},
		{"extra shadows price", suite.bars(1), map[string][]float64{"Close": {1}}, errors.ErrCodeInvalidBarSeries},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := NewSeries(tc.bars, tc.extras)
			suite.Error(err)
			suite.Equal(tc.code, errors.GetCode(err))
			suite.True(errors.IsInputError(err))
		})
	}
}

func (suite *SeriesTestSuite) TestWindow() {
	series, err := NewSeries(suite.bars(1, 2, 3, 4, 5), map[string][]float64{"x": {10, 20, 30, 40, 50}})
	suite.Require().NoError(err)

	window, err := series.Window(
		optional.Some(suite.start.Add(15*time.Minute)),
		optional.Some(suite.start.Add(45*time.Minute)),
	)
	suite.Require().NoError(err)
	suite.Equal(3, window.Len())
	suite.Equal(2.0, window.Bar(0).Close)
	suite.Equal(4.0, window.Bar(2).Close)

	x, _ := window.Column("x")
	suite.Equal([]float64{20, 30, 40}, x)

	all, err := series.Window(optional.None[time.Time](), optional.None[time.Time]())
	suite.Require().NoError(err)
	suite.Equal(5, all.Len())

	between, err := series.Window(optional.Some(suite.start.Add(time.Minute)), optional.None[time.Time]())
	suite.Require().NoError(err)
	suite.Equal(4, between.Len())

	_, err = series.Window(optional.Some(suite.start.Add(24*time.Hour)), optional.None[time.Time]())
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))
}

func (suite *SeriesTestSuite) TestMedianInterval() {
	series, err := NewSeries(suite.bars(1, 2, 3, 4), nil)
	suite.Require().NoError(err)
	suite.Equal(15*time.Minute, series.MedianInterval())

	gappy := suite.bars(1, 2, 3)
	gappy[2].Time = gappy[1].Time.Add(time.Hour)
	series, err = NewSeries(gappy, nil)
	suite.Require().NoError(err)
	suite.Equal(37*time.Minute+30*time.Second, series.MedianInterval())

	single, err := NewSeries(suite.bars(1), nil)
	suite.Require().NoError(err)
	suite.Equal(time.Duration(0), single.MedianInterval())
}
