package indicator

// EMA returns the exponential moving average of a single input.
// The first value is the SMA of the first period bars; after that
// EMA = price * alpha + EMA_prev * (1 - alpha) with alpha = 2 / (period + 1).
func EMA(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if err := checkPeriod("EMA", period); err != nil {
			return nil, err
		}

		if err := checkInputs("EMA", 1, inputs); err != nil {
			return nil, err
		}

		return [][]float64{exponentialMovingAverage(inputs[0], period)}, nil
	}
}

func exponentialMovingAverage(data []float64, period int) []float64 {
	out := nanSlice(len(data))
	start := firstValid(data)
	seed := start + period - 1

	if seed >= len(data) {
		return out
	}

	sma := 0.0
	for i := start; i <= seed; i++ {
		sma += data[i]
	}

	alpha := 2.0 / float64(period+1)
	ema := sma / float64(period)
	out[seed] = ema

	for i := seed + 1; i < len(data); i++ {
		ema = data[i]*alpha + ema*(1-alpha)
		out[i] = ema
	}

	return out
}
