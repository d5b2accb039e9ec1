package influx

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/eawag-uwo/sensorhealth/internal/health"
)

const (
	MeasurementPSR   = "sensor_psr"
	MeasurementDrift = "sensor_drift"
)

// PointWriter is the non-blocking write API of the influx client.
type PointWriter interface {
	WritePoint(p *write.Point)
	Flush()
	Errors() <-chan error
}

// NewWriter connects the non-blocking write API of an InfluxDB v2 server. Close the
// returned client when done.
func NewWriter(url, token, org, bucket string) (influxdb2.Client, PointWriter) {
	client := influxdb2.NewClient(url, token)
	return client, client.WriteAPI(org, bucket)
}

// LogErrors logs asynchronous write errors until ctx is done or the channel closes.
func LogErrors(ctx context.Context, log *slog.Logger, w PointWriter) {
	errs := w.Errors()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				log.Error("influx write error", "error", err)
			}
		}
	}()
}

func PSRPoint(env string, runAt time.Time, row health.PSRRow) *write.Point {
	return influxdb2.NewPoint(MeasurementPSR,
		map[string]string{
			"env":    env,
			"source": row.Source,
		},
		map[string]any{
			"current":       row.Current,
			"old_mean":      row.OldMean,
			"z_score":       row.ZScore,
			"suspicious":    row.Suspicious,
			"last_recorded": row.LastRecorded,
		},
		runAt,
	)
}

func DriftPoint(env string, runAt time.Time, r health.DriftResult) *write.Point {
	return influxdb2.NewPoint(MeasurementDrift,
		map[string]string{
			"env":        env,
			"source":     r.Source,
			"similar_to": r.SimilarTo,
		},
		map[string]any{
			"statistic":  r.Statistic,
			"p_value":    r.PValue,
			"current_n":  r.CurrentN,
			"historic_n": r.HistoricN,
			"drifting":   r.Drifting,
		},
		runAt,
	)
}
