package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// parseTime reads a datapool timestamp. Values without zone are wall clock time labelled UTC,
// like the timestamps stored in the datapool.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", s)
}

func addTimeRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Start of the range (YYYY-MM-DD[ HH:MM:SS])")
	cmd.Flags().String("to", "", "End of the range (YYYY-MM-DD[ HH:MM:SS])")
}

// timeRange reads --from and --to. Missing bounds default to the given values.
func timeRange(cmd *cobra.Command, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	fromStr, err := cmd.Flags().GetString("from")
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to get from flag: %w", err)
	}
	toStr, err := cmd.Flags().GetString("to")
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to get to flag: %w", err)
	}
	from, to := defFrom, defTo
	if fromStr != "" {
		if from, err = parseTime(fromStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if toStr != "" {
		if to, err = parseTime(toStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from %s is after to %s", from.Format(time.DateTime), to.Format(time.DateTime))
	}
	return from, to, nil
}

func requireString(cmd *cobra.Command, name string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}

var timeZero time.Time

// yearRange spans a calendar year up to its last second.
func yearRange(year int) (time.Time, time.Time) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0).Add(-time.Second)
}

func formatCSVFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
