package pg

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx, so stores
// can run either standalone or inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DBTX = (*pgxpool.Pool)(nil)

// Open connects a pool to dsn and verifies the connection. A non-empty
// schema becomes the search_path of every connection.
func Open(ctx context.Context, dsn string, schema string) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn, schema)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func poolConfig(dsn string, schema string) (*pgxpool.Config, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if strings.TrimSpace(schema) != "" {
		quoted, err := QuoteIdent(schema)
		if err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = quoted
	}
	return cfg, nil
}

// DB is the database handle the export and reports work against.
type DB struct {
	pool *pgxpool.Pool
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// CopyTo runs a `COPY ... TO STDOUT` statement and streams its output into w.
// It returns the number of rows copied.
func (d *DB) CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error) {
	if d == nil || d.pool == nil {
		return 0, fmt.Errorf("pool is required")
	}
	if strings.TrimSpace(sql) == "" {
		return 0, fmt.Errorf("sql is required")
	}
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire pg connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Conn().PgConn().CopyTo(ctx, w, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Exec runs a statement and returns the number of rows it modified.
func (d *DB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if d == nil || d.pool == nil {
		return 0, fmt.Errorf("pool is required")
	}
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if d == nil || d.pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return d.pool.Query(ctx, sql, args...)
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.pool.QueryRow(ctx, sql, args...)
}
