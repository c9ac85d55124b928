// Package worker picks up waiting export tasks and runs them one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/doujins-org/plankit/tasks"
)

// Lister is the read side of tasks.Repo the worker polls.
type Lister interface {
	ListWaiting(ctx context.Context, names []string, limit int) ([]tasks.Task, error)
}

// RunFunc executes one waiting task.
type RunFunc func(ctx context.Context, t tasks.Task) error

type Options struct {
	// Names restricts the tasks picked up.
	Names     []string
	BatchSize int
	PollEvery time.Duration
	Logger    *zap.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.BatchSize <= 0 {
		out.BatchSize = 10
	}
	if out.PollEvery <= 0 {
		out.PollEvery = 5 * time.Second
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// DrainOnce runs a single batch of waiting tasks and returns how many were
// started. A failing task is logged and does not stop the batch.
func DrainOnce(ctx context.Context, lister Lister, run RunFunc, opts Options) (int, error) {
	if lister == nil {
		return 0, fmt.Errorf("lister is required")
	}
	if run == nil {
		return 0, fmt.Errorf("run func is required")
	}
	cfg := opts.withDefaults()
	return drain(ctx, lister, run, cfg)
}

func drain(ctx context.Context, lister Lister, run RunFunc, cfg Options) (int, error) {
	batch, err := lister.ListWaiting(ctx, cfg.Names, cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list waiting tasks: %w", err)
	}
	n := 0
	for _, t := range batch {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		n++
		if err := run(ctx, t); err != nil {
			cfg.Logger.Error("task failed", zap.Int64("task", t.ID), zap.String("name", t.Name), zap.Error(err))
			continue
		}
		cfg.Logger.Debug("task done", zap.Int64("task", t.ID), zap.String("name", t.Name))
	}
	return n, nil
}

// Run drains waiting tasks every PollEvery until ctx is done. Listing
// errors are logged and retried on the next tick.
func Run(ctx context.Context, lister Lister, run RunFunc, opts Options) error {
	if lister == nil {
		return fmt.Errorf("lister is required")
	}
	if run == nil {
		return fmt.Errorf("run func is required")
	}
	cfg := opts.withDefaults()

	ticker := time.NewTicker(cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := drain(ctx, lister, run, cfg); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return ctx.Err()
				}
				cfg.Logger.Warn("poll failed", zap.Error(err))
			}
		}
	}
}
