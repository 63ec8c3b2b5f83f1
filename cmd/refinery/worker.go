package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued jobs",
	Long:  `Run a dedicated queue consumer. Requires REDIS_URL; several workers may share one queue.`,
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Concurrent jobs (overrides WORKER_CONCURRENCY)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required to run a worker")
	}
	if workerConcurrency > 0 {
		cfg.WorkerConcurrency = workerConcurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	proc, err := a.newProcessor(ctx)
	if err != nil {
		return err
	}
	b, err := a.newBridge(a.newWorker(proc))
	if err != nil {
		return err
	}

	logger.Info("worker started",
		slog.String("queue", cfg.QueueName),
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.Int("max_retries", cfg.MaxRetries),
	)
	return b.Run(ctx)
}
