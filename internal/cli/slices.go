package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/dataslice"
	"github.com/spf13/cobra"
)

const consistencyLogFile = "dataslice_consistency.log"

func (a *app) slicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slices",
		Short: "Check and query the yearly SQLite data slices",
	}
	cmd.PersistentFlags().String("config", "slices.yaml", "slices.yaml with the slice files")
	cmd.AddCommand(
		a.slicesCheckCmd(),
		a.slicesQueryCmd(),
		a.slicesCompareCmd(),
	)
	return cmd
}

// withSlices runs fn with every slice of the configuration opened. With a log file name,
// the logger also writes to that file in --out-dir.
func (a *app) withSlices(cmd *cobra.Command, logFile string, fn func(ctx context.Context, log *slog.Logger, cfg *config.SliceConfig, set *dataslice.Set) error) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.LoadSliceConfig(path)
	if err != nil {
		return err
	}
	log, _, err := a.setup(cmd)
	if err != nil {
		return err
	}
	if logFile != "" {
		outDir, err := cmd.Flags().GetString("out-dir")
		if err != nil {
			return fmt.Errorf("failed to get out-dir flag: %w", err)
		}
		var closeLog func() error
		log, closeLog, err = teeLogFile(log, outDir, logFile)
		if err != nil {
			return err
		}
		defer closeLog()
	}
	ctx := cmd.Context()
	set, err := dataslice.OpenSet(ctx, log, cfg.Files)
	if err != nil {
		return err
	}
	defer set.Close()
	return fn(ctx, log, cfg, set)
}

func (a *app) slicesCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the consistency checks over all slices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSlices(cmd, consistencyLogFile, func(ctx context.Context, log *slog.Logger, cfg *config.SliceConfig, set *dataslice.Set) error {
				var findings []dataslice.Finding
				if cfg.ContentList != "" {
					file, err := os.Open(cfg.ContentList)
					if err != nil {
						return fmt.Errorf("failed to open content list: %w", err)
					}
					content, err := dataslice.ReadContentList(file)
					file.Close()
					if err != nil {
						return err
					}
					f, err := set.CheckSourcesAvailable(ctx, content.Sources())
					if err != nil {
						return err
					}
					findings = append(findings, f...)

					if cfg.Overview != "" {
						overview, err := readOverview(cfg.Overview)
						if err != nil {
							return err
						}
						f, err := set.CheckVariablesAvailable(ctx, content.Sources(), overview)
						if err != nil {
							return err
						}
						findings = append(findings, f...)
					}
				}
				if len(cfg.RainSources) > 0 {
					f, err := set.CheckRainSums(ctx, cfg.RainSources)
					if err != nil {
						return err
					}
					findings = append(findings, f...)
				}
				if len(cfg.FlowSources) > 0 {
					f, err := set.CheckFlowVolumes(ctx, cfg.FlowSources, cfg.FlowReference)
					if err != nil {
						return err
					}
					findings = append(findings, f...)
				}

				failed := 0
				table := newTable(a.out, []string{"Year", "Check", "Source", "Variable", "Value", "OK"})
				for _, f := range findings {
					if !f.OK {
						failed++
					}
					table.Append([]string{
						strconv.Itoa(f.Year), string(f.Kind), f.Source, f.Variable,
						strconv.FormatFloat(f.Value, 'f', -1, 64), strconv.FormatBool(f.OK),
					})
				}
				table.Render()
				fmt.Fprintf(a.out, "%d findings, %d failed\n", len(findings), failed)
				return nil
			})
		},
	}
	cmd.Flags().String("out-dir", ".", "Directory for the log file")
	return cmd
}

// readOverview reads the source to variables JSON written by the catalog command.
func readOverview(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overview: %w", err)
	}
	var overview map[string][]string
	if err := json.Unmarshal(data, &overview); err != nil {
		return nil, fmt.Errorf("failed to parse overview %s: %w", path, err)
	}
	return overview, nil
}

func sliceOfYear(cmd *cobra.Command, set *dataslice.Set) (*dataslice.Slice, error) {
	year, err := cmd.Flags().GetInt("year")
	if err != nil {
		return nil, fmt.Errorf("failed to get year flag: %w", err)
	}
	sl := set.Slice(year)
	if sl == nil {
		return nil, fmt.Errorf("no slice for year %d", year)
	}
	return sl, nil
}

func (a *app) slicesQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query one slice",
		Long: `Query one slice. Kinds:
  special-values         special value definitions
  site                   all values of --site between --from and --to
  package                all values of the sources of --package in the content list
  sources-with-variable  sources that recorded --variable
  latest                 last timestamp of every source of --source-type
  weekly                 value counts per week, source and variable
  records                values of --source and --variable`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := requireString(cmd, "kind")
			if err != nil {
				return err
			}
			outPath, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			from, to, err := timeRange(cmd, timeZero, timeZero)
			if err != nil {
				return err
			}
			return a.withSlices(cmd, "", func(ctx context.Context, log *slog.Logger, cfg *config.SliceConfig, set *dataslice.Set) error {
				sl, err := sliceOfYear(cmd, set)
				if err != nil {
					return err
				}
				write := func(w io.Writer) error {
					return writeSliceQuery(ctx, w, cmd, cfg, sl, kind, from, to)
				}
				if outPath != "" {
					return writeFile(outPath, write)
				}
				return write(a.out)
			})
		},
	}
	cmd.Flags().Int("year", 0, "Year of the slice")
	cmd.Flags().String("kind", "", "Query kind")
	cmd.Flags().String("site", "", "Site name")
	cmd.Flags().String("package", "", "Package column of the content list, e.g. A1")
	cmd.Flags().String("source", "", "Source name")
	cmd.Flags().String("variable", "", "Variable name")
	cmd.Flags().String("source-type", "", "Source type name")
	cmd.Flags().String("out", "", "Output CSV; stdout when empty")
	addTimeRangeFlags(cmd)
	return cmd
}

func writeSliceQuery(ctx context.Context, w io.Writer, cmd *cobra.Command, cfg *config.SliceConfig, sl *dataslice.Slice, kind string, from, to time.Time) error {
	str := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	cw := csv.NewWriter(w)

	switch kind {
	case "special-values":
		values, err := sl.SpecialValues(ctx)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"source_type", "description", "categorical_value", "numerical_value"})
		for _, v := range values {
			num := ""
			if v.NumericalValue != nil {
				num = strconv.FormatFloat(*v.NumericalValue, 'f', -1, 64)
			}
			_ = cw.Write([]string{v.SourceType, v.Description, v.CategoricalValue, num})
		}
	case "site", "package":
		var records []dataslice.SiteRecord
		var err error
		if kind == "site" {
			site := str("site")
			if site == "" {
				return fmt.Errorf("--site is required")
			}
			records, err = sl.SiteData(ctx, site, from, to)
		} else {
			var sources []string
			sources, err = packageSources(cfg, str("package"))
			if err == nil {
				records, err = sl.PackageData(ctx, sources)
			}
		}
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"timestamp", "value", "unit", "variable", "source_type", "source"})
		for _, r := range records {
			_ = cw.Write([]string{
				r.Timestamp.Format("2006-01-02 15:04:05"), formatCSVFloat(r.Value),
				r.Unit, r.Variable, r.SourceType, r.Source,
			})
		}
	case "sources-with-variable":
		variable := str("variable")
		if variable == "" {
			return fmt.Errorf("--variable is required")
		}
		names, err := sl.SourcesWithVariable(ctx, variable)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"source"})
		for _, n := range names {
			_ = cw.Write([]string{n})
		}
	case "latest":
		sourceType := str("source-type")
		if sourceType == "" {
			return fmt.Errorf("--source-type is required")
		}
		latest, err := sl.LatestByType(ctx, sourceType)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"source", "timestamp"})
		for _, l := range latest {
			_ = cw.Write([]string{l.Source, l.Timestamp.Format("2006-01-02 15:04:05")})
		}
	case "weekly":
		counts, err := sl.WeeklyCounts(ctx)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"week", "source", "variable", "count"})
		for _, c := range counts {
			_ = cw.Write([]string{c.Week, c.Source, c.Variable, strconv.FormatInt(c.Count, 10)})
		}
	case "records":
		q := datapool.SignalQuery{Source: str("source"), Variable: str("variable"), From: from, To: to}
		if q.Source == "" || q.Variable == "" {
			return fmt.Errorf("--source and --variable are required")
		}
		records, err := sl.Records(ctx, q)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"timestamp", "value", "unit", "variable", "source"})
		for _, r := range records {
			_ = cw.Write([]string{r.Timestamp.Format("2006-01-02 15:04:05"), formatCSVFloat(r.Value), r.Unit, r.Variable, r.Source})
		}
	default:
		return fmt.Errorf("invalid kind %q", kind)
	}
	cw.Flush()
	return cw.Error()
}

func packageSources(cfg *config.SliceConfig, name string) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("--package is required")
	}
	if cfg.ContentList == "" {
		return nil, fmt.Errorf("content_list is not configured")
	}
	file, err := os.Open(cfg.ContentList)
	if err != nil {
		return nil, fmt.Errorf("failed to open content list: %w", err)
	}
	defer file.Close()
	content, err := dataslice.ReadContentList(file)
	if err != nil {
		return nil, err
	}
	return content.Package(name)
}

func (a *app) slicesCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a selection of one slice with the datapool",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := requireString(cmd, "source")
			if err != nil {
				return err
			}
			variable, err := requireString(cmd, "variable")
			if err != nil {
				return err
			}
			from, to, err := timeRange(cmd, timeZero, timeZero)
			if err != nil {
				return err
			}

			return a.withSlices(cmd, "", func(_ context.Context, _ *slog.Logger, _ *config.SliceConfig, set *dataslice.Set) error {
				sl, err := sliceOfYear(cmd, set)
				if err != nil {
					return err
				}
				if from.IsZero() && to.IsZero() {
					from, to = yearRange(sl.Year)
				}
				return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
					c, err := dataslice.CompareWithDatapool(ctx, p, sl, datapool.SignalQuery{
						Source: source, Variable: variable, From: from, To: to,
					})
					if err != nil {
						return err
					}
					table := newTable(a.out, []string{"Datapool rows", "Slice rows", "Same variable", "Same unit", "Squared diff", "Consistent"})
					table.Append([]string{
						strconv.Itoa(c.DatapoolCount), strconv.Itoa(c.SliceCount),
						strconv.FormatBool(c.SameVariable), strconv.FormatBool(c.SameUnit),
						formatCSVFloat(c.SquaredDiff), strconv.FormatBool(c.Consistent()),
					})
					table.Render()
					if !c.Consistent() {
						log.Warn("slice differs from datapool", "year", sl.Year, "source", source, "variable", variable)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().Int("year", 0, "Year of the slice")
	cmd.Flags().String("source", "", "Source name")
	cmd.Flags().String("variable", "", "Variable name")
	addTimeRangeFlags(cmd)
	return cmd
}
