package report_test

import (
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/stats"
)

func hourly(start time.Time, n int, f func(i int) float64) []stats.Sample {
	out := make([]stats.Sample, n)
	for i := range out {
		out[i] = stats.Sample{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: f(i)}
	}
	return out
}
