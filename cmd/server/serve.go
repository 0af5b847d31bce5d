package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the regeneration scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := server.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Warn("failed to close storage", zap.Error(err))
			}
		}()

		logger.Info("starting clusterwatch",
			zap.String("version", server.Version),
			zap.String("backend", cfg.Storage.Backend),
			zap.Duration("regeneration_interval", cfg.Regeneration.Interval),
			zap.Strings("entities", cfg.Regeneration.Entities))

		return app.Serve(ctx)
	},
}
