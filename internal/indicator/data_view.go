package indicator

import (
	"sort"
	"time"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// DataView is the strategy's view of the bar series and its indicators, clipped to the current bar.
type DataView struct {
	clock    *Clock
	times    []time.Time
	columns  map[string]*Line
	registry *Registry
}

// NewDataView wraps the bar columns. columns must contain every OHLCV column.
func NewDataView(clock *Clock, times []time.Time, columns map[string][]float64, registry *Registry) *DataView {
	lines := make(map[string]*Line, len(columns))
	for name, data := range columns {
		lines[name] = NewLine(name, data, clock)
	}

	return &DataView{
		clock:    clock,
		times:    times,
		columns:  lines,
		registry: registry,
	}
}

func (d *DataView) Open() *Line {
	return d.columns[types.ColumnOpen]
}

func (d *DataView) High() *Line {
	return d.columns[types.ColumnHigh]
}

func (d *DataView) Low() *Line {
	return d.columns[types.ColumnLow]
}

func (d *DataView) Close() *Line {
	return d.columns[types.ColumnClose]
}

func (d *DataView) Volume() *Line {
	return d.columns[types.ColumnVolume]
}

// Column returns a bar column, including user columns carried over from the input file.
func (d *DataView) Column(name string) (*Line, error) {
	line, ok := d.columns[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMissingColumn, "column %s not found", name)
	}

	return line, nil
}

// Columns returns the names of all bar columns in sorted order.
func (d *DataView) Columns() []string {
	names := make([]string, 0, len(d.columns))
	for name := range d.columns {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Indicator returns a registered indicator by name.
func (d *DataView) Indicator(name string) (*Handle, error) {
	return d.registry.Get(name)
}

// Len returns the number of visible bars.
func (d *DataView) Len() int {
	return min(d.clock.Index()+1, len(d.times))
}

// Index returns the current bar index.
func (d *DataView) Index() int {
	return d.clock.Index()
}

// Now returns the timestamp of the current bar, or the zero time before the first bar.
func (d *DataView) Now() time.Time {
	return d.TimeAt(-1)
}

// TimeAt returns the timestamp at i using the same indexing as Line.At.
func (d *DataView) TimeAt(i int) time.Time {
	visible := d.Len()

	index := i
	if i < 0 {
		index = visible + i
	}

	if index < 0 || index >= visible {
		return time.Time{}
	}

	return d.times[index]
}

// Bar returns the current bar.
func (d *DataView) Bar() types.Bar {
	return types.Bar{
		Time:   d.Now(),
		Open:   d.Open().Last(),
		High:   d.High().Last(),
		Low:    d.Low().Last(),
		Close:  d.Close().Last(),
		Volume: d.Volume().Last(),
	}
}
