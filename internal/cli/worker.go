package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code-exam-service/internal/config"
	"github.com/spf13/cobra"
)

// NewWorkerCmd builds the CLI subcommand that processes generation jobs.
// It shares the service wiring with the server, so it can run either in a
// separate process or be skipped entirely when jobs are processed inline.
func NewWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the question generation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

func runWorker(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	deps, cleanup, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	interval := config.TTLDuration(cfg.Worker.Interval, 30*time.Second)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down worker")
		cancel()
	}()

	logger.Info("starting generation worker", "interval", interval)
	deps.generation.Run(workerCtx, interval)
	return nil
}
