package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-mastery/internal/app"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

var envFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "neurobridge-mastery",
		Short:         "Learner model service: mastery, memory, velocity and recommendations",
		Version:       app.Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	root.AddCommand(newServeCommand())
	root.AddCommand(newReestimateCommand())
	root.AddCommand(newTrimHistoryCommand())
	root.AddCommand(newGraphSyncCommand())
	root.AddCommand(newDueCommand())
	root.AddCommand(newReportCommand())
	return root
}

// bootstrap loads configuration and builds the app. Offline commands pass
// inProcess so outcomes never leave for Temporal and no jobs are scheduled.
func bootstrap(ctx context.Context, inProcess bool) (*app.App, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := app.LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if inProcess {
		cfg.Temporal.Address = ""
		cfg.JobsEnabled = false
	}
	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("app init failed", "error", err)
		log.Sync()
		return nil, err
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
