package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tradewatch/internal/app"
	"tradewatch/internal/config"
	"tradewatch/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "tradewatch",
	Short: "Stream large Polymarket trades from Polygon to websocket viewers",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		if cfg.Logging.Fields == nil {
			cfg.Logging.Fields = map[string]string{}
		}
		if _, ok := cfg.Logging.Fields["app"]; !ok && cfg.App.Name != "" {
			cfg.Logging.Fields["app"] = cfg.App.Name
		}
		if _, ok := cfg.Logging.Fields["env"]; !ok && cfg.App.Environment != "" {
			cfg.Logging.Fields["env"] = cfg.App.Environment
		}

		logger := logging.NewLogger(cfg.Logging)
		logging.RedirectStdLog(logger)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
