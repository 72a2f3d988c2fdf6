package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// Clock is the runner's current bar index. Every line of a run shares one clock.
type Clock struct {
	index int
}

// NewClock returns a clock positioned before the first bar.
func NewClock() *Clock {
	return &Clock{index: -1}
}

// Set moves the clock to bar i.
func (c *Clock) Set(i int) {
	c.index = i
}

// Index returns the current bar index, -1 before the run starts.
func (c *Clock) Index() int {
	return c.index
}

// Line is a read-only series aligned with the bars, clipped to the clock.
type Line struct {
	name  string
	data  []float64
	clock *Clock
}

// NewLine wraps data in a clipped view. data must not be modified afterwards.
func NewLine(name string, data []float64, clock *Clock) *Line {
	return &Line{
		name:  name,
		data:  data,
		clock: clock,
	}
}

func (l *Line) Name() string {
	return l.name
}

func (l *Line) values() []float64 {
	return l.data
}

// Len returns the visible length: the current bar index + 1.
func (l *Line) Len() int {
	return min(l.clock.Index()+1, len(l.data))
}

// resolve maps i onto an absolute index. Negative i counts back from the current bar (-1 is the current bar).
func (l *Line) resolve(i int) (int, bool) {
	visible := l.Len()

	index := i
	if i < 0 {
		index = visible + i
	}

	if index < 0 || index >= visible {
		return index, false
	}

	return index, true
}

// At returns the value at i, or NaN if i is outside the visible range or still warming up.
func (l *Line) At(i int) float64 {
	index, ok := l.resolve(i)
	if !ok {
		return math.NaN()
	}

	return l.data[index]
}

// Last returns the value at the current bar.
func (l *Line) Last() float64 {
	return l.At(-1)
}

// Get is the strict form of At. It returns an InsufficientDataError when the value is undefined.
func (l *Line) Get(i int) (float64, error) {
	index, ok := l.resolve(i)
	if !ok {
		required := index + 1
		if i < 0 {
			required = -i
		}

		return math.NaN(), errors.NewInsufficientDataErrorf(required, l.Len(), l.name,
			"insufficient data for %s: index %d outside %d visible bars", l.name, i, l.Len())
	}

	value := l.data[index]
	if math.IsNaN(value) {
		warmup := leadingNaN(l.data)

		return value, errors.NewInsufficientDataErrorf(warmup+1, l.Len(), l.name,
			"insufficient data for %s: value at bar %d is undefined", l.name, index)
	}

	return value, nil
}

// Slice returns a copy of the visible values.
func (l *Line) Slice() []float64 {
	out := make([]float64, l.Len())
	copy(out, l.data)

	return out
}

// Warmup returns the number of leading undefined values.
func (l *Line) Warmup() int {
	return leadingNaN(l.data)
}

// CrossOver reports whether l crossed above other on the current bar.
func (l *Line) CrossOver(other *Line) bool {
	return crossed(l.At(-2), l.At(-1), other.At(-2), other.At(-1))
}

// CrossUnder reports whether l crossed below other on the current bar.
func (l *Line) CrossUnder(other *Line) bool {
	return crossed(other.At(-2), other.At(-1), l.At(-2), l.At(-1))
}

func crossed(prevA, curA, prevB, curB float64) bool {
	// comparisons with NaN are false, so undefined values never cross
	return prevA <= prevB && curA > curB
}
