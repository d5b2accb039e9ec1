package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/report"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/spf13/cobra"
)

// signalRange reads --from/--to, defaulting to the PSR history window.
func (a *app) signalRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	loc, err := location(cmd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	w := health.PSRWindow(a.clock.Now(), loc, health.DefaultHistoryWeeks)
	return timeRange(cmd, w.From, w.To)
}

// loadSignal loads a variable of a source, or its main parameter when variable is empty.
func loadSignal(ctx context.Context, p datapool.Provider, source, variable string, from, to time.Time) ([]stats.Sample, error) {
	if variable == "" {
		return p.MainSignals(ctx, source, from, to)
	}
	return p.Signals(ctx, datapool.SignalQuery{Source: source, Variable: variable, From: from, To: to})
}

func (a *app) contentHeatmapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content-heatmap",
		Short: "Draw the weekly row counts of every source and variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			exclude, err := cmd.Flags().GetStringSlice("exclude")
			if err != nil {
				return fmt.Errorf("failed to get exclude flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			now := a.clock.Now().UTC()
			from, to, err := timeRange(cmd, now.AddDate(-1, 0, 0), now)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				counts, err := p.WeeklyCounts(ctx, from, to)
				if err != nil {
					return err
				}
				title := fmt.Sprintf("Datapool content %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
				m := report.ContentMatrix(title, counts, exclude)
				if err := report.ContentHeatmap(out, m); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().StringSlice("exclude", nil, "Sources to leave out")
	cmd.Flags().String("out", "content_heatmap.png", "Output image")
	addTimeRangeFlags(cmd)
	return cmd
}

func (a *app) histogramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "histogram",
		Short: "Draw the histogram of the reporting intervals of one source",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := requireString(cmd, "source")
			if err != nil {
				return err
			}
			variable, err := cmd.Flags().GetString("variable")
			if err != nil {
				return fmt.Errorf("failed to get variable flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			from, to, err := a.signalRange(cmd)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				samples, err := loadSignal(ctx, p, source, variable, from, to)
				if err != nil {
					return err
				}
				bins := stats.IntervalHistogram(samples)
				if interval, err := stats.MostCommonInterval(samples); err == nil {
					fmt.Fprintf(a.out, "Most common interval: %d min\n", interval)
				} else {
					log.Warn("no sampling interval", "source", source, "error", err)
				}
				if err := report.IntervalHistogram(out, "Sampling intervals of "+source, bins); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().String("source", "", "Source name")
	cmd.Flags().String("variable", "", "Variable name; the main parameter when empty")
	cmd.Flags().String("out", "intervals.png", "Output image")
	addTimeRangeFlags(cmd)
	return cmd
}

func (a *app) timeseriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeseries",
		Short: "Plot a variable of one or more sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := cmd.Flags().GetStringSlice("source")
			if err != nil {
				return fmt.Errorf("failed to get source flag: %w", err)
			}
			if len(sources) == 0 {
				return fmt.Errorf("--source is required")
			}
			variable, err := cmd.Flags().GetString("variable")
			if err != nil {
				return fmt.Errorf("failed to get variable flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			from, to, err := a.signalRange(cmd)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				series := make([]report.Series, 0, len(sources))
				for _, source := range sources {
					samples, err := loadSignal(ctx, p, source, variable, from, to)
					if err != nil {
						return err
					}
					series = append(series, report.Series{Name: source, Samples: samples})
				}
				if err := report.Timeseries(out, strings.Join(sources, ", "), variable, series); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().StringSlice("source", nil, "Source names")
	cmd.Flags().String("variable", "", "Variable name; the main parameter of each source when empty")
	cmd.Flags().String("out", "timeseries.png", "Output image")
	addTimeRangeFlags(cmd)
	return cmd
}

func (a *app) boxplotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boxplot",
		Short: "Draw monthly boxplots of every source of a sensor group",
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := requireString(cmd, "group")
			if err != nil {
				return err
			}
			units, err := cmd.Flags().GetStringSlice("units")
			if err != nil {
				return fmt.Errorf("failed to get units flag: %w", err)
			}
			sinceStr, err := requireString(cmd, "since")
			if err != nil {
				return err
			}
			since, err := parseTime(sinceStr)
			if err != nil {
				return err
			}
			hourly, err := cmd.Flags().GetBool("hourly")
			if err != nil {
				return fmt.Errorf("failed to get hourly flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				records, err := p.GroupSignals(ctx, datapool.GroupQuery{Group: group, Units: units, Since: since, Hourly: hourly})
				if err != nil {
					return err
				}
				bySource := make(map[string][]stats.Sample)
				for _, r := range records {
					bySource[r.Source] = append(bySource[r.Source], stats.Sample{Timestamp: r.Timestamp, Value: r.Value})
				}
				names := make([]string, 0, len(bySource))
				for name := range bySource {
					names = append(names, name)
				}
				sort.Strings(names)
				series := make([]report.Series, 0, len(names))
				for _, name := range names {
					series = append(series, report.Series{Name: name, Samples: bySource[name]})
				}
				if err := report.MonthlyBoxplot(out, group+" sensors", strings.Join(units, ", "), series); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().String("group", "", "Group prefix, e.g. bl")
	cmd.Flags().StringSlice("units", nil, "Variable units to include")
	cmd.Flags().String("since", "", "Start of the range (YYYY-MM-DD)")
	cmd.Flags().Bool("hourly", true, "Average to hourly values before plotting")
	cmd.Flags().String("out", "boxplot.png", "Output image")
	return cmd
}

func (a *app) flattenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Extract and plot the trend of a noisy signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := requireString(cmd, "source")
			if err != nil {
				return err
			}
			variable, err := cmd.Flags().GetString("variable")
			if err != nil {
				return fmt.Errorf("failed to get variable flag: %w", err)
			}
			minV, err := cmd.Flags().GetFloat64("min")
			if err != nil {
				return fmt.Errorf("failed to get min flag: %w", err)
			}
			maxV, err := cmd.Flags().GetFloat64("max")
			if err != nil {
				return fmt.Errorf("failed to get max flag: %w", err)
			}
			medianWindow, err := cmd.Flags().GetInt("median-window")
			if err != nil {
				return fmt.Errorf("failed to get median-window flag: %w", err)
			}
			meanWindow, err := cmd.Flags().GetInt("mean-window")
			if err != nil {
				return fmt.Errorf("failed to get mean-window flag: %w", err)
			}
			normalize, err := cmd.Flags().GetString("normalize")
			if err != nil {
				return fmt.Errorf("failed to get normalize flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			from, to, err := a.signalRange(cmd)
			if err != nil {
				return err
			}
			cfg := stats.FlattenConfig{
				Min:          &minV,
				Max:          &maxV,
				MedianWindow: medianWindow,
				MeanWindow:   meanWindow,
				Normalize:    stats.Normalization(normalize),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				raw, err := loadSignal(ctx, p, source, variable, from, to)
				if err != nil {
					return err
				}
				flat, err := stats.Flatten(raw, cfg)
				if err != nil {
					return err
				}
				if err := report.FlattenedSignal(out, source, raw, flat); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().String("source", "", "Source name")
	cmd.Flags().String("variable", "", "Variable name; the main parameter when empty")
	cmd.Flags().Float64("min", stats.DefaultFlattenMin, "Values below are clipped")
	cmd.Flags().Float64("max", stats.DefaultFlattenMax, "Values above are clipped")
	cmd.Flags().Int("median-window", stats.DefaultMedianWindow, "Rolling median window")
	cmd.Flags().Int("mean-window", stats.DefaultMeanWindow, "Rolling mean window")
	cmd.Flags().String("normalize", "", "Normalize the trend by the mean or median of the signal")
	cmd.Flags().String("out", "flattened.png", "Output image")
	addTimeRangeFlags(cmd)
	return cmd
}
