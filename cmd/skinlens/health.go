package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/skinlens/internal/models"
)

// healthCmd probes the inference service once
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the analysis service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		client := newClient(cfg, newLogger(cmd, cfg))

		if err := client.Health(cmd.Context()); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", client.BaseURL(), models.ServiceError)
			return models.NewAnalysisError(models.ErrorServiceUnreachable, models.ErrServiceUnreachable.Message, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", client.BaseURL(), models.ServiceConnected)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
