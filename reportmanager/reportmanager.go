// Package reportmanager stores user-written SQL reports and runs them in
// read-only transactions.
package reportmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/doujins-org/plankit/pg"
)

// ErrNotFound is returned when no report has the requested identifier.
var ErrNotFound = errors.New("report not found")

type Report struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	SQL          string    `json:"sql"`
	Public       bool      `json:"public"`
	UserID       *int64    `json:"user,omitempty"`
	LastModified time.Time `json:"lastmodified"`
}

// Table is a table of the current schema with its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

const reportColumns = `id, name, description, sql, public, user_id, lastmodified`

type Store struct {
	db pg.DBTX
}

func NewStore(db pg.DBTX) *Store {
	return &Store{db: db}
}

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.SQL, &r.Public, &r.UserID, &r.LastModified); err != nil {
		return nil, err
	}
	return &r, nil
}

func validate(r *Report) error {
	if r == nil {
		return fmt.Errorf("report is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("report name is required")
	}
	if _, err := CleanSQL(r.SQL); err != nil {
		return err
	}
	return nil
}

// List returns the reports owned by userID and the public ones, by name.
func (s *Store) List(ctx context.Context, userID int64) ([]Report, error) {
	if s.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reportmanager_report
		WHERE public OR user_id = $1
		ORDER BY name, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (*Report, error) {
	if s.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	r, err := scanReport(s.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reportmanager_report WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", id, err)
	}
	return r, nil
}

// Create inserts r and sets its ID and modification time.
func (s *Store) Create(ctx context.Context, r *Report) error {
	if s.db == nil {
		return fmt.Errorf("db is required")
	}
	if err := validate(r); err != nil {
		return err
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO reportmanager_report (name, description, sql, public, user_id, lastmodified)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, lastmodified
	`, r.Name, r.Description, r.SQL, r.Public, r.UserID).Scan(&r.ID, &r.LastModified)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, r *Report) error {
	if s.db == nil {
		return fmt.Errorf("db is required")
	}
	if err := validate(r); err != nil {
		return err
	}
	err := s.db.QueryRow(ctx, `
		UPDATE reportmanager_report
		SET name = $2, description = $3, sql = $4, public = $5, lastmodified = now()
		WHERE id = $1
		RETURNING lastmodified
	`, r.ID, r.Name, r.Description, r.SQL, r.Public).Scan(&r.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update report %d: %w", r.ID, err)
	}
	return nil
}

// Schema lists the tables and views of the schema on the search path.
func (s *Store) Schema(ctx context.Context) ([]Table, error) {
	if s.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	rows, err := s.db.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position
	`)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Name != table {
			out = append(out, Table{Name: table})
		}
		out[len(out)-1].Columns = append(out[len(out)-1].Columns, column)
	}
	return out, rows.Err()
}
