package datasource

import (
	"math"
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type DataSource interface {
	// Initialize initializes the data source with the given data path in csv or parquet format
	Initialize(path string) error
	// Load reads the bars in the optional time window into an immutable series
	Load(start optional.Option[time.Time], end optional.Option[time.Time]) (*Series, error)
	// Count returns the number of rows in the data source
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close closes the data source and releases any resources
	Close() error
}

// Series is an immutable, strictly time-ordered sequence of bars plus any user columns.
type Series struct {
	times   []time.Time
	columns map[string][]float64
	extras  []string
}

// NewSeries validates bars and builds a series. extras holds user columns aligned with bars.
func NewSeries(bars []types.Bar, extras map[string][]float64) (*Series, error) {
	if len(bars) == 0 {
		return nil, errors.New(errors.ErrCodeEmptySeries, "bar series is empty")
	}

	times := make([]time.Time, len(bars))
	columns := map[string][]float64{}

	for _, name := range types.OHLCVColumns {
		columns[name] = make([]float64, len(bars))
	}

	for i, bar := range bars {
		if i > 0 && !bar.Time.After(bars[i-1].Time) {
			return nil, errors.Newf(errors.ErrCodeNonMonotonicTime,
				"bar %d at %s is not after bar %d at %s", i, bar.Time.Format(time.RFC3339), i-1, bars[i-1].Time.Format(time.RFC3339))
		}

		if err := validateBar(i, bar); err != nil {
			return nil, err
		}

		times[i] = bar.Time
		columns[types.ColumnOpen][i] = bar.Open
		columns[types.ColumnHigh][i] = bar.High
		columns[types.ColumnLow][i] = bar.Low
		columns[types.ColumnClose][i] = bar.Close
		columns[types.ColumnVolume][i] = bar.Volume
	}

	names := make([]string, 0, len(extras))

	for name, values := range extras {
		if _, exists := columns[name]; exists {
			return nil, errors.Newf(errors.ErrCodeInvalidBarSeries, "user column %s shadows a price column", name)
		}

		if len(values) != len(bars) {
			return nil, errors.Newf(errors.ErrCodeInvalidBarSeries,
				"user column %s has %d values, expected %d", name, len(values), len(bars))
		}

		columns[name] = slices.Clone(values)
		names = append(names, name)
	}

	slices.Sort(names)

	return &Series{
		times:   times,
		columns: columns,
		extras:  names,
	}, nil
}

func validateBar(i int, bar types.Bar) error {
	for _, value := range []float64{bar.Open, bar.High, bar.Low, bar.Close, bar.Volume} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return errors.Newf(errors.ErrCodeInvalidBarSeries, "bar %d has a non-finite price or volume", i)
		}
	}

	if bar.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidBarSeries, "bar %d has negative volume %f", i, bar.Volume)
	}

	if bar.High < bar.Low {
		return errors.Newf(errors.ErrCodeInvalidBarSeries, "bar %d has high %f below low %f", i, bar.High, bar.Low)
	}

	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int {
	return len(s.times)
}

// Time returns the timestamp of bar i.
func (s *Series) Time(i int) time.Time {
	return s.times[i]
}

// Bar returns bar i.
func (s *Series) Bar(i int) types.Bar {
	return types.Bar{
		Time:   s.times[i],
		Open:   s.columns[types.ColumnOpen][i],
		High:   s.columns[types.ColumnHigh][i],
		Low:    s.columns[types.ColumnLow][i],
		Close:  s.columns[types.ColumnClose][i],
		Volume: s.columns[types.ColumnVolume][i],
	}
}

// Bars returns a copy of every bar.
func (s *Series) Bars() []types.Bar {
	bars := make([]types.Bar, s.Len())
	for i := range bars {
		bars[i] = s.Bar(i)
	}

	return bars
}

// Times returns the bar timestamps. The slice must not be modified.
func (s *Series) Times() []time.Time {
	return s.times
}

// Columns returns every column by name. The slices must not be modified.
func (s *Series) Columns() map[string][]float64 {
	return s.columns
}

// Column returns a copy of a single column.
func (s *Series) Column(name string) ([]float64, bool) {
	values, ok := s.columns[name]
	if !ok {
		return nil, false
	}

	return slices.Clone(values), true
}

// ExtraColumns returns the names of the user columns in sorted order.
func (s *Series) ExtraColumns() []string {
	return slices.Clone(s.extras)
}

// Window returns the bars with start <= time <= end.
func (s *Series) Window(start optional.Option[time.Time], end optional.Option[time.Time]) (*Series, error) {
	from := 0
	if start.IsSome() {
		from, _ = slices.BinarySearchFunc(s.times, start.Unwrap(), func(t time.Time, target time.Time) int {
			return t.Compare(target)
		})
	}

	to := len(s.times)
	if end.IsSome() {
		to, _ = slices.BinarySearchFunc(s.times, end.Unwrap(), func(t time.Time, target time.Time) int {
			// position after the last bar at or before end
			if t.After(target) {
				return 1
			}

			return -1
		})
	}

	if from >= to {
		return nil, errors.New(errors.ErrCodeEmptySeries, "no bars inside the requested time window")
	}

	columns := make(map[string][]float64, len(s.columns))
	for name, values := range s.columns {
		columns[name] = values[from:to]
	}

	return &Series{
		times:   s.times[from:to],
		columns: columns,
		extras:  s.extras,
	}, nil
}

// MedianInterval returns the median spacing between consecutive bars, zero for a single bar.
func (s *Series) MedianInterval() time.Duration {
	if len(s.times) < 2 {
		return 0
	}

	gaps := make([]time.Duration, len(s.times)-1)
	for i := 1; i < len(s.times); i++ {
		gaps[i-1] = s.times[i].Sub(s.times[i-1])
	}

	slices.Sort(gaps)

	middle := len(gaps) / 2
	if len(gaps)%2 == 0 {
		return (gaps[middle-1] + gaps[middle]) / 2
	}

	return gaps[middle]
}
