// Package indicator holds the indicator cache used by strategies and a small library of
// indicator functions.
//
// Indicators are computed once over the full bar series when a strategy registers them.
// Strategies only ever see them through Line and Handle views clipped to the runner's
// current bar, so a value from the future is never visible.
package indicator

import "math"

// Func maps full-length input arrays to one or more full-length output arrays.
// Undefined positions (warm-up) must be NaN.
type Func func(inputs ...[]float64) ([][]float64, error)

// Source is anything that can feed an indicator: a bar column, a registered indicator or one of its lines.
type Source interface {
	Name() string
	// values returns the full, unclipped array. It is unexported so strategies cannot look ahead.
	values() []float64
}

// nanSlice returns a slice of length n filled with NaN.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}

	return out
}

// firstValid returns the index of the first non-NaN value, or len(data) if there is none.
func firstValid(data []float64) int {
	for i, v := range data {
		if !math.IsNaN(v) {
			return i
		}
	}

	return len(data)
}

// leadingNaN counts the undefined values at the start of data.
func leadingNaN(data []float64) int {
	return firstValid(data)
}
