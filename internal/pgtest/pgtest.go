// Package pgtest provides an in-memory stand-in for pg.DBTX so stores can be
// tested without a running Postgres.
package pgtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
}

// Result is what a matching statement returns.
type Result struct {
	Tag  string
	Rows [][]any
	Err  error
}

// DB records every statement and answers with the first registered result
// whose key is contained in the statement text.
type DB struct {
	mu      sync.Mutex
	Calls   []Call
	results []match
}

type match struct {
	contains string
	result   Result
}

func New() *DB {
	return &DB{}
}

// On registers the result for statements containing substr.
func (d *DB) On(substr string, r Result) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, match{contains: substr, result: r})
	return d
}

// Executed returns the statements seen so far containing substr.
func (d *DB) Executed(substr string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if strings.Contains(c.SQL, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (d *DB) record(sql string, args []any) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{SQL: sql, Args: args})
	for _, m := range d.results {
		if strings.Contains(sql, m.contains) {
			return m.result
		}
	}
	return Result{}
}

func (d *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := d.record(sql, args)
	if r.Err != nil {
		return pgconn.CommandTag{}, r.Err
	}
	return pgconn.NewCommandTag(r.Tag), nil
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := d.record(sql, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return &rows{data: r.Rows, idx: -1, tag: r.Tag}, nil
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r := d.record(sql, args)
	return &row{result: r}
}

type row struct {
	result Result
}

func (r *row) Scan(dest ...any) error {
	if r.result.Err != nil {
		return r.result.Err
	}
	if len(r.result.Rows) == 0 {
		return pgx.ErrNoRows
	}
	return assign(r.result.Rows[0], dest)
}

type rows struct {
	data [][]any
	idx  int
	tag  string
}

func (r *rows) Close()                                       {}
func (r *rows) Err() error                                   { return nil }
func (r *rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag(r.tag) }
func (r *rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rows) RawValues() [][]byte                          { return nil }
func (r *rows) Conn() *pgx.Conn                              { return nil }

func (r *rows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return fmt.Errorf("scan outside of result set")
	}
	return assign(r.data[r.idx], dest)
}

func (r *rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.data) {
		return nil, fmt.Errorf("values outside of result set")
	}
	return r.data[r.idx], nil
}

// assign copies src values into dest pointers, following pointer-to-pointer
// destinations so nullable columns can be faked with nil.
func assign(src []any, dest []any) error {
	if len(src) != len(dest) {
		return fmt.Errorf("expected %d destinations, got %d", len(src), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("destination %d is not a pointer", i)
		}
		target := dv.Elem()
		if src[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		sv := reflect.ValueOf(src[i])
		if target.Kind() == reflect.Pointer && sv.Type().AssignableTo(target.Type().Elem()) {
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(sv)
			target.Set(p)
			continue
		}
		if sv.Type().AssignableTo(target.Type()) {
			target.Set(sv)
			continue
		}
		if isNumeric(sv.Kind()) && isNumeric(target.Kind()) {
			target.Set(sv.Convert(target.Type()))
			continue
		}
		return fmt.Errorf("cannot assign %T to destination %d (%s)", src[i], i, target.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
