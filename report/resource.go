package report

import (
	"context"
	"fmt"
	"time"
)

// ResourceOverview is the capacity report: available, unavailable, setup and
// load hours of every resource per time bucket.
type ResourceOverview struct{}

var _ Report = ResourceOverview{}

func (ResourceOverview) Name() string         { return "resource_overview" }
func (ResourceOverview) App() string          { return "output" }
func (ResourceOverview) Title() string        { return "Resource report" }
func (ResourceOverview) HasTimeBuckets() bool { return true }

func (r ResourceOverview) Permissions() []Permission {
	return []Permission{ViewPermission(r)}
}

func (ResourceOverview) Columns(*Request) []Column {
	return []Column{
		{Name: "resource", Title: "resource"},
		{Name: "bucket", Title: "bucket"},
		{Name: "startdate", Title: "start date"},
		{Name: "enddate", Title: "end date"},
		{Name: "available", Title: "available"},
		{Name: "unavailable", Title: "unavailable"},
		{Name: "setup", Title: "setup"},
		{Name: "load", Title: "load"},
		{Name: "utilization", Title: "utilization %"},
	}
}

const resourceOverviewSQL = `
	WITH buckets AS (
		SELECT * FROM unnest($1::text[], $2::timestamp[], $3::timestamp[]) AS b(name, startdate, enddate)
	),
	resources AS (
		SELECT DISTINCT resource FROM out_resourceplan
	)
	SELECT res.resource, b.name, b.startdate, b.enddate,
		COALESCE(SUM(rp.available), 0)::float8,
		COALESCE(SUM(rp.unavailable), 0)::float8,
		COALESCE(SUM(rp.setup), 0)::float8,
		COALESCE(SUM(rp.load), 0)::float8
	FROM resources res
	CROSS JOIN buckets b
	LEFT JOIN out_resourceplan rp
		ON rp.resource = res.resource
		AND rp.startdate >= b.startdate
		AND rp.startdate < b.enddate
	GROUP BY res.resource, b.name, b.startdate, b.enddate
	ORDER BY res.resource, b.startdate
`

func (ResourceOverview) Rows(ctx context.Context, q Querier, req *Request, emit func([]any) error) error {
	if len(req.Buckets) == 0 {
		return nil
	}
	names, starts, ends := bucketColumns(req.Buckets)
	rows, err := q.Query(ctx, resourceOverviewSQL, names, starts, ends)
	if err != nil {
		return fmt.Errorf("resource overview: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			resource, bucket                    string
			start, end                          time.Time
			available, unavailable, setup, load float64
		)
		if err := rows.Scan(&resource, &bucket, &start, &end, &available, &unavailable, &setup, &load); err != nil {
			return err
		}
		if err := emit([]any{
			resource, bucket, start, end,
			available, unavailable, setup, load,
			utilization(load, available-unavailable),
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func utilization(load float64, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return load / capacity * 100
}
