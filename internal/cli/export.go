package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/report"
	"github.com/spf13/cobra"
)

const (
	sourceVariablesFile = "datapool_sources_variables.json"
	sourceTypesFile     = "source_types.csv"
)

func (a *app) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the signal of one source and variable to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := requireString(cmd, "source")
			if err != nil {
				return err
			}
			variable, err := requireString(cmd, "variable")
			if err != nil {
				return err
			}
			outPath, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			compress, err := cmd.Flags().GetBool("gzip")
			if err != nil {
				return fmt.Errorf("failed to get gzip flag: %w", err)
			}
			now := a.clock.Now().UTC()
			from, to, err := timeRange(cmd, now.AddDate(0, 0, -7), now)
			if err != nil {
				return err
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				samples, err := p.Signals(ctx, datapool.SignalQuery{Source: source, Variable: variable, From: from, To: to})
				if err != nil {
					return err
				}
				write := func(w io.Writer) error {
					return report.WriteSignalsCSV(w, samples, compress)
				}
				if outPath != "" {
					err = writeFile(outPath, write)
				} else {
					err = write(a.out)
				}
				if err != nil {
					return err
				}
				log.Info("exported signal", "source", source, "variable", variable, "rows", len(samples))
				return nil
			})
		},
	}
	cmd.Flags().String("source", "", "Source name")
	cmd.Flags().String("variable", "", "Variable name")
	cmd.Flags().String("out", "", "Output file; stdout when empty")
	cmd.Flags().Bool("gzip", false, "Compress the output with gzip")
	addTimeRangeFlags(cmd)
	return cmd
}

func (a *app) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Write the source to variable overview and the source type table",
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				overview, err := p.SourceVariables(ctx)
				if err != nil {
					return err
				}
				if err := writeFile(filepath.Join(outDir, sourceVariablesFile), func(w io.Writer) error {
					return report.WriteSourceVariablesJSON(w, overview)
				}); err != nil {
					return err
				}

				types, err := p.SourceTypes(ctx)
				if err != nil {
					return err
				}
				if err := writeFile(filepath.Join(outDir, sourceTypesFile), func(w io.Writer) error {
					return report.WriteSourceTypesCSV(w, types)
				}); err != nil {
					return err
				}
				log.Info("wrote catalog", "dir", outDir, "sources", len(overview), "source_types", len(types))
				return nil
			})
		},
	}
	cmd.Flags().String("out", ".", "Output directory")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
