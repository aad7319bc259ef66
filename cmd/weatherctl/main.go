package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/weather-pipeline/internal/store"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/smukkama/weather-pipeline/pkg/config"
	"github.com/smukkama/weather-pipeline/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// shared by every subcommand, set up in PersistentPreRunE
var (
	cfg *config.Config
	log *zap.Logger
	st  weather.Store
)

var rootCmd = &cobra.Command{
	Use:   "weatherctl",
	Short: "Weather pipeline administration",
	Long: `weatherctl seeds reference data, backfills rollup history and runs
ingestion cycles by hand against the configured store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if log, err = logger.New(cfg.Log.Level, "console"); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		if st, err = store.Open(cfg, log); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		log.Sync()
		return st.Close()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
