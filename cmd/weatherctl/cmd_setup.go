package main

import (
	"fmt"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/spf13/cobra"
)

var setupDefaultsCmd = &cobra.Command{
	Use:   "setup-defaults",
	Short: "Seed the default cities and interval",
	Long: `Insert the default city list, leaving cities that already exist
untouched, and reset the ingestion interval to the configured default.`,
	RunE: runSetupDefaults,
}

func init() {
	rootCmd.AddCommand(setupDefaultsCmd)
}

func runSetupDefaults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	added := 0
	for _, c := range weather.DefaultCities {
		_, err := st.GetCity(ctx, c.Name)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return err
		}
		if err := st.UpsertCity(ctx, c); err != nil {
			return err
		}
		added++
	}

	if err := st.SetInterval(ctx, cfg.Ingestion.IntervalMinutes); err != nil {
		return err
	}

	fmt.Printf("✓ %d cities added (%d already present)\n", added, len(weather.DefaultCities)-added)
	fmt.Printf("✓ Interval set to %d minutes\n", cfg.Ingestion.IntervalMinutes)
	return nil
}
