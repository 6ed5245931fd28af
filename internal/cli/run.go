package cli

import (
	"github.com/spf13/cobra"
)

var (
	runRPCURL      string
	runPort        int
	runMinNotional string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the chain and serve live trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		flags := cmd.Flags()
		if flags.Changed("rpc-url") {
			a.Config.Chain.RPCURL = runRPCURL
		}
		if flags.Changed("port") {
			a.Config.Server.Port = runPort
		}
		if flags.Changed("min-notional") {
			a.Config.Detector.MinNotional = runMinNotional
		}
		if err := a.Config.Validate(); err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runRPCURL, "rpc-url", "", "Polygon RPC endpoint (ws:// subscribes, http:// polls)")
	runCmd.Flags().IntVar(&runPort, "port", 0, "HTTP/websocket listen port")
	runCmd.Flags().StringVar(&runMinNotional, "min-notional", "", "Minimum USDC notional to report, inclusive")
}
