package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/spf13/cobra"
)

func (a *app) sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List datapool sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			withMain, err := cmd.Flags().GetBool("main-parameter")
			if err != nil {
				return fmt.Errorf("failed to get main-parameter flag: %w", err)
			}
			return a.withDatapool(cmd, func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error {
				sources, err := p.Sources(ctx)
				if err != nil {
					return err
				}
				sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })

				header := []string{"Source", "Type"}
				if withMain {
					header = append(header, "Main parameter", "Unit")
				}
				table := newTable(a.out, header)
				for _, s := range sources {
					row := []string{s.Name, s.Type}
					if withMain {
						v, err := p.MainParameter(ctx, s.Name)
						switch {
						case errors.Is(err, datapool.ErrNoMainParameter):
							row = append(row, "-", "")
						case err != nil:
							return err
						default:
							row = append(row, v.Name, v.Unit)
						}
					}
					table.Append(row)
				}
				table.Render()
				fmt.Fprintf(a.out, "%d sources\n", len(sources))
				return nil
			})
		},
	}
	cmd.Flags().Bool("main-parameter", false, "Also look up the main measurement parameter of every source")
	return cmd
}
