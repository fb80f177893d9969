package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

var (
	workerMode bool
)

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Run webhook related commands",
}

var webhooksDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch pending webhook deliveries to merchant endpoints",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"webhooks_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.DispatchInterval },
			func(app *application, ctx context.Context) error {
				return app.webhookService.RunDispatchBatch(ctx)
			},
		)
	},
}

var idempotencyCmd = &cobra.Command{
	Use:   "idempotency",
	Short: "Run idempotency ledger related commands",
}

var idempotencyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete idempotency records past their retention window",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"idempotency_purge",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PurgeInterval },
			func(app *application, ctx context.Context) error {
				return app.coordinator.RunPurgeBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(webhooksCmd)
	rootCmd.AddCommand(idempotencyCmd)
	webhooksCmd.AddCommand(webhooksDispatchCmd)
	idempotencyCmd.AddCommand(idempotencyPurgeCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(app *application, ctx context.Context) error,
) {
	cfg, app, cleanup := mustCreateApp()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), app, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	app *application,
	fn func(app *application, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(app, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(app, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
