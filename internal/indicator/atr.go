package indicator

import "math"

// ATR returns the average true range. Inputs are high, low and close.
// The first value is the mean true range of the first period bars, then Wilder's smoothing applies.
func ATR(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if err := checkPeriod("ATR", period); err != nil {
			return nil, err
		}

		if err := checkInputs("ATR", 3, inputs); err != nil {
			return nil, err
		}

		high, low, closes := inputs[0], inputs[1], inputs[2]
		out := nanSlice(len(closes))

		if period > len(closes) {
			return [][]float64{out}, nil
		}

		trueRange := make([]float64, len(closes))
		for i := range closes {
			trueRange[i] = high[i] - low[i]
			if i > 0 {
				trueRange[i] = math.Max(trueRange[i], math.Max(
					math.Abs(high[i]-closes[i-1]),
					math.Abs(low[i]-closes[i-1]),
				))
			}
		}

		atr := 0.0
		for i := 0; i < period; i++ {
			atr += trueRange[i]
		}

		atr /= float64(period)
		out[period-1] = atr

		for i := period; i < len(closes); i++ {
			atr = (atr*float64(period-1) + trueRange[i]) / float64(period)
			out[i] = atr
		}

		return [][]float64{out}, nil
	}
}
