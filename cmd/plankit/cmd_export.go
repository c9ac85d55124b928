package main

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/auth"
	"github.com/doujins-org/plankit/config"
	"github.com/doujins-org/plankit/export"
	"github.com/doujins-org/plankit/pg"
	"github.com/doujins-org/plankit/tasks"
)

var (
	exportUser string
	exportTask int64
)

// exportCmd exports the plan to the upload folder of a database
var exportCmd = &cobra.Command{
	Use:   "exporttofolder",
	Short: "Exports tables from the database to CSV files in a folder",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "User running the command")
	exportCmd.Flags().Int64Var(&exportTask, "task", 0, "Task identifier (generated automatically if not provided)")
}

func newRunner(settings *config.Settings, pool *pgxpool.Pool, log *zap.Logger) *export.Runner {
	return &export.Runner{
		Settings: settings,
		DB:       pg.NewDB(pool),
		Tasks:    tasks.NewRepo(pool),
		Users:    auth.NewStore(pool),
		Jobs:     export.DefaultJobs(),
		Logger:   log,
		Stderr:   os.Stderr,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	settings, _, pool, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	res, err := newRunner(settings, pool, logger).Run(ctx, export.Options{
		User:     exportUser,
		Database: database,
		TaskID:   exportTask,
		Args:     args,
	})
	if err != nil {
		return err
	}
	logger.Info("export finished",
		zap.Int64("task", res.TaskID),
		zap.String("status", res.Status),
		zap.String("message", res.Message),
		zap.String("logfile", res.Logfile),
	)
	if res.Failed() {
		return fmt.Errorf("export failed: %s", res.Message)
	}
	return nil
}
