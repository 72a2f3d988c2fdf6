package datasource

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"
)

type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

var allIntervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h,
	Interval6h, Interval8h, Interval12h, Interval1d, Interval1w,
}

func getIntervalMinutes(interval Interval) (int, error) {
	var intervalMinutes int

	switch interval {
	case Interval1m:
		intervalMinutes = 1
	case Interval5m:
		intervalMinutes = 5
	case Interval15m:
		intervalMinutes = 15
	case Interval30m:
		intervalMinutes = 30
	case Interval1h:
		intervalMinutes = 60
	case Interval4h:
		intervalMinutes = 240
	case Interval6h:
		intervalMinutes = 360
	case Interval8h:
		intervalMinutes = 480
	case Interval12h:
		intervalMinutes = 720
	case Interval1d:
		intervalMinutes = 1440
	case Interval1w:
		intervalMinutes = 10080
	default:
		return 0, fmt.Errorf("unsupported interval: %s", interval)
	}

	return intervalMinutes, nil
}

// Duration returns the length of one bar of the interval.
func (i Interval) Duration() (time.Duration, error) {
	minutes, err := getIntervalMinutes(i)
	if err != nil {
		return 0, err
	}

	return time.Duration(minutes) * time.Minute, nil
}

// IntervalOf returns the named interval matching the bar spacing, if any.
func IntervalOf(spacing time.Duration) optional.Option[Interval] {
	for _, interval := range allIntervals {
		duration, _ := interval.Duration()
		if duration == spacing {
			return optional.Some(interval)
		}
	}

	return optional.None[Interval]()
}
