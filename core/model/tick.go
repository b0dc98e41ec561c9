package model

import "time"

// Tick is one discrete step of the simulated clock.
type Tick struct {
	Index    int64
	Time     time.Time
	Duration time.Duration
}

// Hours returns the tick duration in hours.
func (t Tick) Hours() float64 { return t.Duration.Hours() }

// HourOfDay returns the fractional hour of the simulated time.
func HourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// FormatSimTime renders simulated time as RFC3339 with millisecond precision
// and a Z suffix, the format expected by the time-series layer.
func FormatSimTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
