package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/smukkama/weather-pipeline/internal/aggregation"
	"github.com/smukkama/weather-pipeline/internal/alarming"
	"github.com/smukkama/weather-pipeline/internal/ingestion"
	"github.com/smukkama/weather-pipeline/internal/notification"
	"github.com/spf13/cobra"
)

var runCycleCmd = &cobra.Command{
	Use:   "run-cycle",
	Short: "Run one ingestion cycle and print the result",
	Long: `Fetch every stored city once, record the observations, refresh
today's rollups and evaluate thresholds. The cycle report is printed as
JSON and not published.`,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(runCycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cities, err := st.ListCities(ctx)
	if err != nil {
		return err
	}
	if len(cities) == 0 {
		cities = cfg.Ingestion.Cities
	}

	orch := ingestion.NewOrchestrator(
		ingestion.Config{
			Cities:       cities,
			Topic:        cfg.Notifier.Topic,
			Concurrency:  cfg.Ingestion.Concurrency,
			CycleTimeout: cfg.Ingestion.CycleTimeout,
		},
		newClient(),
		st,
		aggregation.NewDailyAggregator(st, st, cfg.Ingestion.Location, log),
		alarming.NewEvaluator(st, st, log),
		notification.Multi{},
		ingestion.NewConnectionState(),
		log,
	)

	result, err := orch.RunCycle(ctx)
	if err != nil && !errors.Is(err, ingestion.ErrAllFetchesFailed) {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}

	if err != nil {
		return fmt.Errorf("cycle %s: %w", result.CycleID, err)
	}
	return nil
}
