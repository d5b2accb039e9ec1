package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/decentlab"
	"github.com/spf13/cobra"
)

func (a *app) decentlabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decentlab",
		Short: "Download Decentlab device measurements as CSV",
		Long: `Download Decentlab device measurements as CSV.

--from and --to are wall clock times in --location. The output has one row per
timestamp and one column per series.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var q decentlab.Query
			var err error
			for name, dst := range map[string]*string{
				"device":       &q.Device,
				"sensor":       &q.Sensor,
				"site":         &q.Location,
				"channel":      &q.Channel,
				"agg-func":     &q.AggFunc,
				"agg-interval": &q.AggInterval,
			} {
				if *dst, err = flags.GetString(name); err != nil {
					return fmt.Errorf("failed to get %s flag: %w", name, err)
				}
			}
			if q.IncludeNetworkSensors, err = flags.GetBool("network"); err != nil {
				return fmt.Errorf("failed to get network flag: %w", err)
			}
			outPath, err := flags.GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			if (q.AggFunc == "") != (q.AggInterval == "") {
				return errors.New("--agg-func and --agg-interval must be set together")
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			now := a.clock.Now().In(loc)
			wall := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.UTC)
			from, to, err := timeRange(cmd, wall.AddDate(0, 0, -7), wall)
			if err != nil {
				return err
			}
			q.TimeFilter = decentlab.TimeFilter(inLocation(from, loc), inLocation(to, loc))

			log, env, err := a.setup(cmd)
			if err != nil {
				return err
			}
			client, err := a.newDecentlab(log, env)
			if err != nil {
				return err
			}
			points, err := client.Query(cmd.Context(), q)
			if errors.Is(err, decentlab.ErrNoSeries) {
				log.Warn("no measurements found", "device", q.Device, "sensor", q.Sensor)
				return nil
			}
			if err != nil {
				return err
			}
			table := decentlab.Pivot(points)

			write := func(w io.Writer) error {
				return decentlab.WriteCSV(w, table, decentlab.CSVOptions{Device: q.Device, Location: loc})
			}
			if outPath != "" {
				err = writeFile(outPath, write)
			} else {
				err = write(a.out)
			}
			if err != nil {
				return err
			}
			log.Info("downloaded decentlab data", "device", q.Device, "series", len(table.Series), "rows", len(table.Times))
			return nil
		},
	}
	cmd.Flags().String("device", "", "Device node name, all devices when empty")
	cmd.Flags().String("sensor", "", "Sensor regex")
	cmd.Flags().String("site", "", "Location regex")
	cmd.Flags().String("channel", "", "Channel regex")
	cmd.Flags().Bool("network", false, "Include link- network sensors")
	cmd.Flags().String("agg-func", "", "InfluxQL aggregate, e.g. mean")
	cmd.Flags().String("agg-interval", "", "Aggregation interval, e.g. 10m")
	cmd.Flags().String("out", "", "Output CSV; stdout when empty")
	addTimeRangeFlags(cmd)
	return cmd
}

// inLocation reads the wall clock of t as a time in loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
