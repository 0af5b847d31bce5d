package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicktill/clusterwatch/pkg/server"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate [entityId...]",
	Short: "Rebuild window datasets once and exit",
	Long: `Rebuilds every window dataset of the given entities, or of the entities
listed in regeneration.entities when none are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		entities := args
		if len(entities) == 0 {
			entities = cfg.Regeneration.Entities
		}
		if len(entities) == 0 {
			return fmt.Errorf("no entities given and regeneration.entities is empty")
		}

		app, err := server.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		results, err := app.Regenerator.RegenerateAll(cmd.Context(), entities)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(results); encErr != nil {
			return encErr
		}
		return err
	},
}
