package rain

import (
	"time"

	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

// Aggregate reports whether any sample in groups is strictly positive.
func Aggregate(groups []weather.MeasureGroup) bool {
	for _, g := range groups {
		for _, step := range g.Values {
			for _, v := range step {
				if v > 0 {
					return true
				}
			}
		}
	}
	return false
}

// PollWindow returns the trailing window ending at now, in epoch seconds.
func PollWindow(now time.Time, window time.Duration) (begin, end int64) {
	return now.Add(-window).Unix(), now.Unix()
}
