package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/export"
	"github.com/doujins-org/plankit/tasks"
	"github.com/doujins-org/plankit/worker"
)

var (
	workerPoll  time.Duration
	workerBatch int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs waiting export tasks until interrupted",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().DurationVar(&workerPoll, "poll", 5*time.Second, "Interval between polls for waiting tasks")
	workerCmd.Flags().IntVar(&workerBatch, "batch", 10, "Tasks picked up per poll")
}

// runTask runs a waiting task through runner. A task claimed by another
// process in the meantime is skipped.
func runTask(runner *export.Runner, alias string) worker.RunFunc {
	return func(ctx context.Context, t tasks.Task) error {
		res, err := runner.Run(ctx, export.Options{Database: alias, TaskID: t.ID})
		if errors.Is(err, tasks.ErrNotWaiting) {
			logger.Debug("task claimed elsewhere", zap.Int64("task", t.ID))
			return nil
		}
		if err != nil {
			return err
		}
		if res.Failed() {
			return fmt.Errorf("task %d: %s", t.ID, res.Message)
		}
		return nil
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, _, pool, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("worker started", zap.String("database", database), zap.Duration("poll", workerPoll))
	err = worker.Run(ctx, tasks.NewRepo(pool), runTask(newRunner(settings, pool, logger), database), worker.Options{
		Names:     export.TaskNames,
		BatchSize: workerBatch,
		PollEvery: workerPoll,
		Logger:    logger,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
