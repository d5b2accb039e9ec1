package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/report"
	"github.com/spf13/cobra"
)

const duplicatesLogFile = "datapool_duplicates.log"

func (a *app) driftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Check configured sensors for drift against their reference sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireString(cmd, "config")
			if err != nil {
				return err
			}
			outDir, err := cmd.Flags().GetString("out-dir")
			if err != nil {
				return fmt.Errorf("failed to get out-dir flag: %w", err)
			}
			weeks, err := cmd.Flags().GetInt("history")
			if err != nil {
				return fmt.Errorf("failed to get history flag: %w", err)
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			driftCfg, err := config.LoadDriftConfig(path)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				checker, err := health.NewDriftChecker(&health.DriftCheckerConfig{
					Logger:       log,
					Provider:     p,
					Clock:        a.clock,
					Location:     loc,
					HistoryWeeks: weeks,
					Alpha:        driftCfg.Alpha,
					MinStatistic: driftCfg.MinStatistic,
					Window:       driftCfg.Window,
				})
				if err != nil {
					return err
				}
				results, err := checker.Check(ctx, driftCfg.Pairs())
				if err != nil {
					return err
				}

				table := newTable(a.out, []string{"Source", "Similar to", "D", "p-value", "n current", "n history", "Drifting", "Error"})
				for _, r := range results {
					table.Append([]string{
						r.Source, r.SimilarTo, f3(r.Statistic), fmt.Sprintf("%.3g", r.PValue),
						fmt.Sprint(r.CurrentN), fmt.Sprint(r.HistoricN), fmt.Sprint(r.Drifting), r.Error,
					})
				}
				table.Render()

				if outDir == "" {
					return nil
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				now := a.clock.Now()
				out := filepath.Join(outDir, "Drift_Report_"+now.Format("2006-01-02")+".xlsx")
				if err := report.WriteDriftWorkbook(out, results, now); err != nil {
					return err
				}
				log.Info("wrote drift report", "path", out)
				return nil
			})
		},
	}
	cmd.Flags().String("config", "", "drift.yaml with the sensor pairs")
	cmd.Flags().String("out-dir", "", "Directory for the workbook; none when empty")
	cmd.Flags().Int("history", health.DefaultHistoryWeeks, "Weeks of history")
	return cmd
}

func (a *app) duplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Look for repeated rows of the configured source and variable pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireString(cmd, "config")
			if err != nil {
				return err
			}
			outDir, err := cmd.Flags().GetString("out-dir")
			if err != nil {
				return fmt.Errorf("failed to get out-dir flag: %w", err)
			}
			dupCfg, err := config.LoadDuplicatesConfig(path)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				log, closeLog, err := teeLogFile(log, outDir, duplicatesLogFile)
				if err != nil {
					return err
				}
				defer closeLog()

				reports, err := health.CheckDuplicates(ctx, log, p, dupCfg.Candidates)
				if err != nil {
					return err
				}
				table := newTable(a.out, []string{"Source", "Variable", "Timestamp", "Value", "Occurrences"})
				for _, r := range reports {
					for _, d := range r.Duplicates {
						table.Append([]string{
							r.Source, r.Variable, d.Timestamp.Format("2006-01-02 15:04:05"),
							fmt.Sprint(d.Value), fmt.Sprint(d.Occurrences),
						})
					}
				}
				table.Render()
				fmt.Fprintf(a.out, "%d of %d candidates have duplicates\n", len(reports), len(dupCfg.Candidates))
				return nil
			})
		},
	}
	cmd.Flags().String("config", "", "duplicates.yaml with the candidates")
	cmd.Flags().String("out-dir", ".", "Directory for the log file")
	return cmd
}
