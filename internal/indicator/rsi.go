package indicator

// RSI returns the relative strength index of a single input using Wilder's smoothing.
func RSI(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if err := checkPeriod("RSI", period); err != nil {
			return nil, err
		}

		if err := checkInputs("RSI", 1, inputs); err != nil {
			return nil, err
		}

		data := inputs[0]
		out := nanSlice(len(data))
		start := firstValid(data)

		if start+period >= len(data) {
			return [][]float64{out}, nil
		}

		avgGain := 0.0
		avgLoss := 0.0

		// First average
		for i := start + 1; i <= start+period; i++ {
			gain, loss := priceChange(data[i] - data[i-1])
			avgGain += gain
			avgLoss += loss
		}

		avgGain /= float64(period)
		avgLoss /= float64(period)
		out[start+period] = relativeStrength(avgGain, avgLoss)

		// Subsequent averages using Wilder's smoothing method
		for i := start + period + 1; i < len(data); i++ {
			gain, loss := priceChange(data[i] - data[i-1])
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
			out[i] = relativeStrength(avgGain, avgLoss)
		}

		return [][]float64{out}, nil
	}
}

func priceChange(change float64) (gain float64, loss float64) {
	if change > 0 {
		return change, 0
	}

	return 0, -change
}

func relativeStrength(avgGain float64, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100 // Perfect uptrend
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}
