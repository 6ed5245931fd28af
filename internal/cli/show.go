package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tradewatch/internal/app"
	"tradewatch/internal/trade"
)

var (
	showLimit int
	showSide  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently archived trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{Limit: showLimit}
		switch strings.ToUpper(showSide) {
		case "":
		case string(trade.SideBuy), string(trade.SideSell):
			opts.Side = trade.Side(strings.ToUpper(showSide))
		default:
			return fmt.Errorf("--side must be buy or sell, got %q", showSide)
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of archived trades to scan")
	showCmd.Flags().StringVar(&showSide, "side", "", "Only show buy or sell trades")
}
