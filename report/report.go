// Package report defines tabular planning reports and renders them to CSV
// and spreadsheet files outside of any HTTP request.
package report

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is the read side of pg.DBTX.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Permission is a permission a report requires, created under the report's
// content type when the database is migrated.
type Permission struct {
	Codename string
	Name     string
}

type Column struct {
	Name  string
	Title string
}

// Report produces rows for a request. Implementations must be safe to use
// from several requests at once; per-request state lives in Request.
type Report interface {
	// Name is the content type model of the report, e.g. "resource_overview".
	Name() string
	// App is the content type app label, e.g. "output".
	App() string
	Title() string
	Permissions() []Permission
	HasTimeBuckets() bool
	Columns(req *Request) []Column
	// Rows calls emit once per data row, in column order.
	Rows(ctx context.Context, q Querier, req *Request, emit func(row []any) error) error
}

// Initializer is implemented by reports that prepare request state before
// buckets are computed.
type Initializer interface {
	Initialize(ctx context.Context, q Querier, req *Request) error
}

// Prepare runs the report's initializer and loads time buckets when the
// report needs them.
func Prepare(ctx context.Context, r Report, q Querier, req *Request) error {
	if init, ok := r.(Initializer); ok {
		if err := init.Initialize(ctx, q, req); err != nil {
			return err
		}
	}
	if r.HasTimeBuckets() {
		return LoadBuckets(ctx, q, req)
	}
	return nil
}

// ViewPermission is the default permission of a report.
func ViewPermission(r Report) Permission {
	return Permission{Codename: "view_" + r.Name(), Name: "Can view " + r.Title()}
}
