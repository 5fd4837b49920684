package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ldttech/poscore/internal/config"
	"github.com/ldttech/poscore/internal/logging"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "poscore",
	Short:         "Offline-first POS sync core",
	Long:          "poscore runs the local POS terminal core: durable operation queue,\nlocal catalog cache, GST tax engine, and background sync against ERPNext.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logging.Init(os.Stderr, logLevel(cfg.LogLevel))
		return nil
	},
}

func logLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logging.Error("Command failed", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "poscore.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(loginCmd)
}
