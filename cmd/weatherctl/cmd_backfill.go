package main

import (
	"errors"
	"fmt"

	"github.com/smukkama/weather-pipeline/internal/aggregation"
	"github.com/smukkama/weather-pipeline/internal/openweather"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Seed past rollups from the 5-day forecast",
	Long: `Delete every rollup older than today and rebuild the previous days
from the upstream 5-day forecast, mirrored into the past, for every stored
city.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func newClient() *openweather.Client {
	return openweather.NewClient(openweather.Config{
		APIKey:  cfg.OpenWeather.APIKey,
		BaseURL: cfg.OpenWeather.BaseURL,
		Timeout: cfg.OpenWeather.Timeout,
	}, log)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cities, err := st.ListCities(ctx)
	if err != nil {
		return err
	}
	if len(cities) == 0 {
		return errors.New("no cities stored, run setup-defaults first")
	}

	backfiller := aggregation.NewBackfiller(newClient(), st, cfg.Ingestion.Location, log)
	written, err := backfiller.Run(ctx, cities)
	if err != nil {
		return err
	}

	fmt.Printf("✓ %d rollups written for %d cities\n", written, len(cities))
	return nil
}

func isNotFound(err error) bool {
	var nf *weather.NotFoundError
	return errors.As(err, &nf)
}
