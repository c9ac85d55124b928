package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doujins-org/plankit/config"
	"github.com/doujins-org/plankit/dashboard"
	"github.com/doujins-org/plankit/export"
	"github.com/doujins-org/plankit/menu"
	"github.com/doujins-org/plankit/pg"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	configPath string
	verbose    bool
	database   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "plankit",
	Short:         "Planning back office: exports, migrations, worker and web server",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			return nil
		}
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (YAML); environment only when empty")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&database, "database", config.DefaultDatabase, "Nominates a specific database")

	rootCmd.AddCommand(exportCmd, migrateCmd, workerCmd, serveCmd)
}

// openDatabase loads the settings and connects to the nominated database.
func openDatabase(ctx context.Context) (*config.Settings, config.Database, *pgxpool.Pool, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, config.Database{}, nil, err
	}
	dbcfg, err := export.DatabaseSettings(settings, database)
	if err != nil {
		return nil, config.Database{}, nil, err
	}
	pool, err := pg.Open(ctx, dbcfg.DSN, dbcfg.Schema)
	if err != nil {
		return nil, config.Database{}, nil, fmt.Errorf("database %s: %w", database, err)
	}
	return settings, dbcfg, pool, nil
}

func newMenu(settings *config.Settings) *menu.Menu {
	m := menu.New()
	menu.RegisterDefaults(m, settings.DocumentationURL, version)
	return m
}

func newDashboard() *dashboard.Registry {
	d := dashboard.New()
	dashboard.RegisterDefaults(d)
	return d
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
