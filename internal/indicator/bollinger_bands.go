package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// BollingerBands returns the upper, middle and lower bands of a single input.
// The middle band is the SMA; the bands sit stdDev population standard deviations away.
func BollingerBands(period int, stdDev float64) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if err := checkPeriod("BollingerBands", period); err != nil {
			return nil, err
		}

		if stdDev <= 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "standard deviation multiplier must be positive, got %f", stdDev)
		}

		if err := checkInputs("BollingerBands", 1, inputs); err != nil {
			return nil, err
		}

		data := inputs[0]
		middle := simpleMovingAverage(data, period)
		upper := nanSlice(len(data))
		lower := nanSlice(len(data))

		for i := range data {
			if math.IsNaN(middle[i]) {
				continue
			}

			// Calculate standard deviation
			var squaredDiffSum float64

			for j := i - period + 1; j <= i; j++ {
				diff := data[j] - middle[i]
				squaredDiffSum += diff * diff
			}

			deviation := math.Sqrt(squaredDiffSum / float64(period))
			upper[i] = middle[i] + stdDev*deviation
			lower[i] = middle[i] - stdDev*deviation
		}

		return [][]float64{upper, middle, lower}, nil
	}
}
