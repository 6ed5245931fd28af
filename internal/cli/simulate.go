package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradewatch/internal/app"
)

var (
	simulateNotional string
	simulateSide     string
	simulateTitle    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一笔大额成交并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		notional, err := decimal.NewFromString(simulateNotional)
		if err != nil {
			return fmt.Errorf("invalid --notional value: %w", err)
		}

		opts := app.SimulateOptions{
			Notional: notional,
			Side:     simulateSide,
			Title:    simulateTitle,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateNotional, "notional", "25000", "成交金额 (USDC)")
	simulateCmd.Flags().StringVar(&simulateSide, "side", "BUY", "BUY 或 SELL")
	simulateCmd.Flags().StringVar(&simulateTitle, "title", "", "市场标题")
}
