package rain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

func groups(values ...[]float64) []weather.MeasureGroup {
	return []weather.MeasureGroup{{Values: values}}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		groups   []weather.MeasureGroup
		expected bool
	}{
		{"no groups", nil, false},
		{"empty group", []weather.MeasureGroup{{}}, false},
		{"empty step", groups([]float64{}), false},
		{"all zero", groups([]float64{0, 0, 0}), false},
		{"last sample positive", groups([]float64{0, 0, 3.2}), true},
		{"tiny positive", groups([]float64{0.01}), true},
		{"negative is not rain", groups([]float64{-1, 0}), false},
		{"positive in later step", groups([]float64{0}, []float64{0}, []float64{0.4}), true},
		{"positive in later group", []weather.MeasureGroup{
			{Values: [][]float64{{0}}},
			{Values: [][]float64{{0}, {1.1}}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Aggregate(tt.groups))
		})
	}
}

func TestPollWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	begin, end := PollWindow(now, 30*time.Minute)

	assert.Equal(t, now.Unix(), end)
	assert.Equal(t, now.Unix()-1800, begin)
	assert.Less(t, begin, end)
}
