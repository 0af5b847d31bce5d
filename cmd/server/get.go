package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/nicktill/clusterwatch/pkg/export"
	"github.com/nicktill/clusterwatch/pkg/metricsvc"
	"github.com/nicktill/clusterwatch/pkg/server"
)

var getFlags struct {
	timeRange  string
	resolution string
	csv        bool
}

var getCmd = &cobra.Command{
	Use:   "get <entityId>",
	Short: "Print one metrics window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		app, err := server.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		m, err := app.Service.GetMetrics(cmd.Context(), metricsvc.Request{
			EntityID:   args[0],
			TimeRange:  getFlags.timeRange,
			Resolution: getFlags.resolution,
		})
		if err != nil {
			return err
		}

		if getFlags.csv {
			return export.WriteCSV(cmd.OutOrStdout(), m.Series)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

func init() {
	getCmd.Flags().StringVar(&getFlags.timeRange, "range", "", "time range: 1h, 6h, 24h, 7d, 30d, 90d (default 24h)")
	getCmd.Flags().StringVar(&getFlags.resolution, "resolution", "", "resolution label override")
	getCmd.Flags().BoolVar(&getFlags.csv, "csv", false, "print CSV instead of JSON")
}
