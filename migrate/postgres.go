// Package migrate applies the embedded schema to a database and runs the
// post-migrate hooks registered by other packages.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/migrations"
	"github.com/doujins-org/plankit/pg"
)

// Hook runs after the schema of database was applied, inside the same
// transaction.
type Hook func(ctx context.Context, db pg.DBTX, database string) error

type namedHook struct {
	name string
	fn   Hook
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Migrator struct {
	logger *zap.Logger
	fsys   fs.FS

	mu    sync.Mutex
	hooks []namedHook
}

func New(logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{logger: logger, fsys: migrations.Postgres}
}

// OnPostMigrate registers fn; hooks run in registration order.
func (m *Migrator) OnPostMigrate(name string, fn Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: fn})
}

// Files lists the up migrations in the order they are applied.
func (m *Migrator) Files() ([]string, error) {
	dirEntries, err := fs.ReadDir(m.fsys, "postgres")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	var files []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if name := de.Name(); strings.HasSuffix(name, ".up.sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Apply migrates database in a single transaction, hooks included. The
// tables are created in schema.
func (m *Migrator) Apply(ctx context.Context, pool TxBeginner, database string, schema string) error {
	if pool == nil {
		return fmt.Errorf("pool is required")
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := m.runIn(ctx, tx, database, schema); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.logger.Info("database migrated", zap.String("database", database), zap.String("schema", schema))
	return nil
}

func (m *Migrator) runIn(ctx context.Context, tx pg.DBTX, database string, schema string) error {
	if err := pg.SetSearchPath(ctx, tx, schema); err != nil {
		return err
	}
	return m.Run(ctx, tx, database)
}

// Run executes every migration and then every hook against db.
func (m *Migrator) Run(ctx context.Context, db pg.DBTX, database string) error {
	files, err := m.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		raw, err := fs.ReadFile(m.fsys, "postgres/"+f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := db.Exec(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
		m.logger.Debug("migration applied", zap.String("database", database), zap.String("file", f))
	}

	m.mu.Lock()
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()
	for _, h := range hooks {
		if err := h.fn(ctx, db, database); err != nil {
			return fmt.Errorf("post-migrate %s: %w", h.name, err)
		}
		m.logger.Debug("post-migrate hook done", zap.String("database", database), zap.String("hook", h.name))
	}
	return nil
}
