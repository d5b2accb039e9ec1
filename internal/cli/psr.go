package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/archive"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/report"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/spf13/cobra"
)

func resolutionFlag(cmd *cobra.Command) (stats.Resolution, error) {
	s, err := cmd.Flags().GetString("resolution")
	if err != nil {
		return "", fmt.Errorf("failed to get resolution flag: %w", err)
	}
	return stats.ParseResolution(s)
}

// historyWindow is the default PSR window ending yesterday in the configured location.
func (a *app) historyWindow(cmd *cobra.Command) (health.Window, error) {
	weeks, err := cmd.Flags().GetInt("history")
	if err != nil {
		return health.Window{}, fmt.Errorf("failed to get history flag: %w", err)
	}
	loc, err := location(cmd)
	if err != nil {
		return health.Window{}, err
	}
	return health.PSRWindow(a.clock.Now(), loc, weeks), nil
}

func (a *app) psrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "psr",
		Short: "Compute the packet success ratio of one source",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := requireString(cmd, "source")
			if err != nil {
				return err
			}
			res, err := resolutionFlag(cmd)
			if err != nil {
				return err
			}
			allowHigher, err := cmd.Flags().GetBool("allow-higher-sampling-rates")
			if err != nil {
				return fmt.Errorf("failed to get allow-higher-sampling-rates flag: %w", err)
			}
			rawCSVPath, err := cmd.Flags().GetString("raw-csv")
			if err != nil {
				return fmt.Errorf("failed to get raw-csv flag: %w", err)
			}
			window, err := a.historyWindow(cmd)
			if err != nil {
				return err
			}
			from, to, err := timeRange(cmd, window.From, window.To)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				samples, err := p.MainSignals(ctx, source, from, to)
				if err != nil {
					return err
				}
				result, err := stats.ComputePSR(source, samples, stats.PSRConfig{
					Resolution:               res,
					AllowHigherSamplingRates: allowHigher,
				})
				if err != nil {
					return fmt.Errorf("failed to compute psr of %s: %w", source, err)
				}

				if rawCSVPath != "" {
					if err := writeFile(rawCSVPath, func(w io.Writer) error {
						return report.WritePSRCSV(w, result)
					}); err != nil {
						return err
					}
					log.Info("wrote psr periods", "path", rawCSVPath, "periods", len(result.Periods))
				}

				printPSRPeriods(a, result)

				eval, err := stats.EvaluatePSR(result, stats.AnomalyConfig{})
				if err != nil {
					fmt.Fprintf(a.out, "not evaluated: %v\n", err)
					return nil
				}
				fmt.Fprintf(a.out, "last period %s: psr %s, history mean %s, z-score %s, suspicious %t\n",
					eval.LastPeriod.Format("2006-01-02"), f3(eval.Current), f3(eval.OldMean), f3(eval.ZScore), eval.Suspicious)
				return nil
			})
		},
	}
	cmd.Flags().String("source", "", "Source name")
	cmd.Flags().String("resolution", "W", "Period resolution (Y, Q, M, W, D)")
	cmd.Flags().Int("history", health.DefaultHistoryWeeks, "Weeks of history when --from is not set")
	cmd.Flags().Bool("allow-higher-sampling-rates", false, "Keep samples arriving faster than the dominant interval")
	cmd.Flags().String("raw-csv", "", "Path to save the periods to CSV")
	addTimeRangeFlags(cmd)
	return cmd
}

func printPSRPeriods(a *app, r *stats.PSRResult) {
	fmt.Fprintf(a.out, "Source: %s\n", r.Source)
	fmt.Fprintf(a.out, "Sampling interval: %d min\n", r.IntervalMinutes)
	table := newTable(a.out, []string{"Period", "Count", "Days", "PSR"})
	for _, p := range r.Periods {
		table.Append([]string{
			p.Timestamp.Format("2006-01-02"),
			strconv.Itoa(p.Count),
			strconv.FormatFloat(p.DayDifference, 'f', -1, 64),
			f3(p.NormalizedCount),
		})
	}
	table.Render()
}

func (a *app) psrReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "psr-report",
		Short: "Run the PSR check over all sources and write the workbook report",
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, err := cmd.Flags().GetString("out-dir")
			if err != nil {
				return fmt.Errorf("failed to get out-dir flag: %w", err)
			}
			upload, err := cmd.Flags().GetBool("upload")
			if err != nil {
				return fmt.Errorf("failed to get upload flag: %w", err)
			}
			weeks, err := cmd.Flags().GetInt("history")
			if err != nil {
				return fmt.Errorf("failed to get history flag: %w", err)
			}
			sources, err := cmd.Flags().GetStringSlice("sources")
			if err != nil {
				return fmt.Errorf("failed to get sources flag: %w", err)
			}
			res, err := resolutionFlag(cmd)
			if err != nil {
				return err
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				if upload && !env.S3.Enabled() {
					return errors.New("--upload needs S3_BUCKET and credentials in the environment")
				}
				checker, err := health.NewPSRChecker(&health.PSRCheckerConfig{
					Logger:       log,
					Provider:     p,
					Clock:        a.clock,
					Location:     loc,
					Sources:      sources,
					HistoryWeeks: weeks,
					Resolution:   res,
				})
				if err != nil {
					return err
				}
				r, err := checker.Run(ctx)
				if err != nil {
					return err
				}
				printPSRReport(a, r)

				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				title := report.PSRTitle(r.GeneratedAt)
				path := filepath.Join(outDir, title+".xlsx")
				if err := report.WritePSRWorkbook(path, r, title); err != nil {
					return err
				}
				log.Info("wrote psr report", "path", path)

				if !upload {
					return nil
				}
				uploader, err := archive.New(ctx, &archive.Config{
					Logger:          log,
					Bucket:          env.S3.Bucket,
					Region:          env.S3.Region,
					EndpointURL:     env.S3.EndpointURL,
					KeyPrefix:       env.S3.KeyPrefix,
					AccessKeyID:     env.S3.AccessKeyID,
					SecretAccessKey: env.S3.SecretAccessKey,
					Verify:          true,
				})
				if err != nil {
					return err
				}
				url, err := uploader.Upload(ctx, path, uploader.Key(path))
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Uploaded:", url)
				return nil
			})
		},
	}
	cmd.Flags().String("out-dir", ".", "Directory for the workbook")
	cmd.Flags().Bool("upload", false, "Archive the workbook in the S3 bucket")
	cmd.Flags().Int("history", health.DefaultHistoryWeeks, "Weeks of history")
	cmd.Flags().String("resolution", "W", "Period resolution (Y, Q, M, W, D)")
	cmd.Flags().StringSlice("sources", nil, "Restrict the check to these sources")
	return cmd
}

func printPSRReport(a *app, r *health.PSRReport) {
	header := []string{"Source", "Last recorded", "History mean", "Last PSR", "Z-score"}
	section := func(name string, rows []health.PSRRow) {
		fmt.Fprintf(a.out, "%s (%d)\n", name, len(rows))
		table := newTable(a.out, header)
		for _, row := range rows {
			table.Append([]string{row.Source, row.LastRecorded, f3(row.OldMean), f3(row.Current), f3(row.ZScore)})
		}
		table.Render()
	}
	fmt.Fprintf(a.out, "Window: %s - %s\n", r.Window.From.Format("2006-01-02"), r.Window.To.Format("2006-01-02"))
	section(report.SheetSuspicious, r.Suspicious)
	section(report.SheetUnsuspicious, r.Unsuspicious)

	fmt.Fprintf(a.out, "%s (%d)\n", report.SheetSkipped, len(r.Skipped))
	table := newTable(a.out, []string{"Source", "Reason"})
	for _, s := range r.Skipped {
		table.Append([]string{s.Source, s.Reason})
	}
	table.Render()
}

func (a *app) heatmapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Draw PSR heatmaps of one sensor at several resolutions or of a sensor group",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cmd.Flags().GetString("mode")
			if err != nil {
				return fmt.Errorf("failed to get mode flag: %w", err)
			}
			resStrs, err := cmd.Flags().GetStringSlice("resolution")
			if err != nil {
				return fmt.Errorf("failed to get resolution flag: %w", err)
			}
			outDir, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			resolutions := make([]stats.Resolution, 0, len(resStrs))
			for _, s := range resStrs {
				res, err := stats.ParseResolution(strings.TrimSpace(s))
				if err != nil {
					return err
				}
				resolutions = append(resolutions, res)
			}
			window, err := a.historyWindow(cmd)
			if err != nil {
				return err
			}
			var name string
			switch mode {
			case "sensor":
				name, err = requireString(cmd, "source")
			case "group":
				name, err = requireString(cmd, "group")
			default:
				err = fmt.Errorf("invalid mode %q (must be sensor or group)", mode)
			}
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				checker, err := health.NewPSRChecker(&health.PSRCheckerConfig{
					Logger:   log,
					Provider: p,
					Clock:    a.clock,
				})
				if err != nil {
					return err
				}

				var matrices []*health.Matrix
				if mode == "sensor" {
					matrices, err = checker.SensorMatrices(ctx, name, resolutions, window)
					if err != nil {
						return err
					}
				} else {
					for _, res := range resolutions {
						m, skipped, err := checker.GroupMatrix(ctx, name, res, window)
						if err != nil {
							return err
						}
						for _, s := range skipped {
							log.Warn("skipped source", "source", s.Source, "reason", s.Reason)
						}
						matrices = append(matrices, m)
					}
				}

				for _, m := range matrices {
					path := filepath.Join(outDir, fmt.Sprintf("%s_PSR_%s.png", name, m.Resolution))
					if err := report.PSRHeatmap(path, m); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "Wrote", path)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("mode", "sensor", "Heatmap of one sensor (sensor) or of a sensor group (group)")
	cmd.Flags().String("source", "", "Source name in sensor mode")
	cmd.Flags().String("group", "", "Group prefix in group mode, e.g. bl")
	cmd.Flags().StringSlice("resolution", []string{"M", "W", "D"}, "Period resolutions")
	cmd.Flags().Int("history", health.DefaultHistoryWeeks, "Weeks of history")
	cmd.Flags().String("out", ".", "Output directory")
	return cmd
}
