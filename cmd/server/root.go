package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/config"
	"github.com/nicktill/clusterwatch/pkg/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "clusterwatch",
	Short: "Cluster storage metrics pipeline",
	Long: `Regenerates per-window storage performance datasets for monitored clusters
and serves them with a bounded number of points per request.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.AddCommand(serveCmd, regenerateCmd, getCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "clusterwatch")
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}
