package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradewatch/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportSince     time.Duration
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived trades as CSV and/or a flow chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		to, err := parseTimestamp("--to", exportTo)
		if err != nil {
			return err
		}
		opts.To = to

		switch {
		case exportSince > 0 && exportFrom != "":
			return errors.New("--since and --from are mutually exclusive")
		case exportSince > 0:
			end := time.Now().UTC()
			if to != nil {
				end = *to
			}
			from := end.Add(-exportSince)
			opts.From = &from
		default:
			if opts.From, err = parseTimestamp("--from", exportFrom); err != nil {
				return err
			}
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimestamp(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", flag, err)
	}
	return &ts, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().DurationVar(&exportSince, "since", 0, "Window length ending at --to (e.g. 24h)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the buy/sell flow chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write trade rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum chart points (defaults to config)")
}
