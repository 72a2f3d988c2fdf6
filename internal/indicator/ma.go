package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "%s period must be a positive integer, got %d", name, period)
	}

	return nil
}

func checkInputs(name string, expected int, inputs [][]float64) error {
	if len(inputs) != expected {
		return errors.Newf(errors.ErrCodeMissingParameter, "%s expects %d input(s), got %d", name, expected, len(inputs))
	}

	return nil
}

// SMA returns the simple moving average of a single input over period bars.
func SMA(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if err := checkPeriod("SMA", period); err != nil {
			return nil, err
		}

		if err := checkInputs("SMA", 1, inputs); err != nil {
			return nil, err
		}

		return [][]float64{simpleMovingAverage(inputs[0], period)}, nil
	}
}

func simpleMovingAverage(data []float64, period int) []float64 {
	out := nanSlice(len(data))
	start := firstValid(data)

	sum := 0.0
	for i := start; i < len(data); i++ {
		sum += data[i]
		if i-start >= period {
			sum -= data[i-period]
		}

		if i-start >= period-1 {
			out[i] = sum / float64(period)
		}
	}

	return out
}

// Highest returns the rolling maximum of a single input over period bars.
func Highest(period int) Func {
	return rollingExtreme("Highest", period, math.Max)
}

// Lowest returns the rolling minimum of a single input over period bars.
func Lowest(period int) Func {
	return rollingExtreme("Lowest", period, math.Min)
}

func rollingExtreme(name string, period int, pick func(a, b float64) float64) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if err := checkPeriod(name, period); err != nil {
			return nil, err
		}

		if err := checkInputs(name, 1, inputs); err != nil {
			return nil, err
		}

		data := inputs[0]
		out := nanSlice(len(data))
		start := firstValid(data)

		for i := start + period - 1; i < len(data); i++ {
			value := data[i-period+1]
			for j := i - period + 2; j <= i; j++ {
				value = pick(value, data[j])
			}

			out[i] = value
		}

		return [][]float64{out}, nil
	}
}
