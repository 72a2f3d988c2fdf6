package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// MACD returns the MACD line, its signal line and the histogram of a single input.
func MACD(fastPeriod int, slowPeriod int, signalPeriod int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		for _, period := range []int{fastPeriod, slowPeriod, signalPeriod} {
			if err := checkPeriod("MACD", period); err != nil {
				return nil, err
			}
		}

		if fastPeriod >= slowPeriod {
			return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "fast period (%d) must be less than slow period (%d)", fastPeriod, slowPeriod)
		}

		if err := checkInputs("MACD", 1, inputs); err != nil {
			return nil, err
		}

		data := inputs[0]
		fast := exponentialMovingAverage(data, fastPeriod)
		slow := exponentialMovingAverage(data, slowPeriod)

		macd := nanSlice(len(data))
		for i := range data {
			macd[i] = fast[i] - slow[i]
		}

		signal := exponentialMovingAverage(macd, signalPeriod)

		histogram := nanSlice(len(data))
		for i := range data {
			if !math.IsNaN(signal[i]) {
				histogram[i] = macd[i] - signal[i]
			}
		}

		return [][]float64{macd, signal, histogram}, nil
	}
}
