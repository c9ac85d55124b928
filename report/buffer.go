package report

import (
	"context"
	"fmt"
	"time"
)

// BufferOverview is the inventory report: start and end onhand with the
// produced and consumed quantities of every item/location per bucket.
type BufferOverview struct{}

var _ Report = BufferOverview{}

func (BufferOverview) Name() string         { return "buffer_overview" }
func (BufferOverview) App() string          { return "output" }
func (BufferOverview) Title() string        { return "Inventory report" }
func (BufferOverview) HasTimeBuckets() bool { return true }

func (r BufferOverview) Permissions() []Permission {
	return []Permission{ViewPermission(r)}
}

func (BufferOverview) Columns(*Request) []Column {
	return []Column{
		{Name: "item", Title: "item"},
		{Name: "location", Title: "location"},
		{Name: "bucket", Title: "bucket"},
		{Name: "startdate", Title: "start date"},
		{Name: "enddate", Title: "end date"},
		{Name: "startoh", Title: "start inventory"},
		{Name: "produced", Title: "produced"},
		{Name: "consumed", Title: "consumed"},
		{Name: "endoh", Title: "end inventory"},
	}
}

const bufferOverviewSQL = `
	WITH buckets AS (
		SELECT * FROM unnest($1::text[], $2::timestamp[], $3::timestamp[]) AS b(name, startdate, enddate)
	),
	buffers AS (
		SELECT DISTINCT item_id, location_id FROM operationplanmaterial
	)
	SELECT buf.item_id, buf.location_id, b.name, b.startdate, b.enddate,
		COALESCE((
			SELECT prev.onhand
			FROM operationplanmaterial prev
			WHERE prev.item_id = buf.item_id
			  AND prev.location_id = buf.location_id
			  AND prev.flowdate < b.startdate
			ORDER BY prev.flowdate DESC, prev.id DESC
			LIMIT 1
		), 0)::float8,
		COALESCE(SUM(opm.quantity) FILTER (WHERE opm.quantity > 0), 0)::float8,
		COALESCE(-SUM(opm.quantity) FILTER (WHERE opm.quantity < 0), 0)::float8
	FROM buffers buf
	CROSS JOIN buckets b
	LEFT JOIN operationplanmaterial opm
		ON opm.item_id = buf.item_id
		AND opm.location_id = buf.location_id
		AND opm.flowdate >= b.startdate
		AND opm.flowdate < b.enddate
	GROUP BY buf.item_id, buf.location_id, b.name, b.startdate, b.enddate
	ORDER BY buf.item_id, buf.location_id, b.startdate
`

func (BufferOverview) Rows(ctx context.Context, q Querier, req *Request, emit func([]any) error) error {
	if len(req.Buckets) == 0 {
		return nil
	}
	names, starts, ends := bucketColumns(req.Buckets)
	rows, err := q.Query(ctx, bufferOverviewSQL, names, starts, ends)
	if err != nil {
		return fmt.Errorf("buffer overview: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item, location, bucket      string
			start, end                  time.Time
			startoh, produced, consumed float64
		)
		if err := rows.Scan(&item, &location, &bucket, &start, &end, &startoh, &produced, &consumed); err != nil {
			return err
		}
		if err := emit([]any{
			item, location, bucket, start, end,
			startoh, produced, consumed, startoh + produced - consumed,
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}
