package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Bucket is one time interval of a report, [Start, End).
type Bucket struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Horizon returns the [start, end) window req covers given the plan's
// current date.
func Horizon(current time.Time, req *Request) (time.Time, time.Time) {
	day := truncateDay(current)
	if req.HorizonRelative {
		return day, addUnits(day, req.HorizonUnit, req.HorizonLength)
	}
	start, end := req.HorizonStart, req.HorizonEnd
	if start.IsZero() {
		start = day
	}
	if end.IsZero() || !end.After(start) {
		end = addUnits(start, req.HorizonUnit, req.HorizonLength)
	}
	return start, end
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addUnits(t time.Time, unit string, n int) time.Time {
	switch unit {
	case "day":
		return t.AddDate(0, 0, n)
	case "week":
		return t.AddDate(0, 0, 7*n)
	default:
		return t.AddDate(0, n, 0)
	}
}

// GenerateBuckets cuts [start, end) into calendar buckets of the named level.
// Weeks start on Monday. It is used when the database defines no bucket
// details for the level.
func GenerateBuckets(level string, start time.Time, end time.Time) ([]Bucket, error) {
	var first time.Time
	var next func(time.Time) time.Time
	var name func(time.Time) string

	switch level {
	case "day":
		first = truncateDay(start)
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
		name = func(t time.Time) string { return t.Format("2006-01-02") }
	case "week":
		d := truncateDay(start)
		offset := (int(d.Weekday()) + 6) % 7
		first = d.AddDate(0, 0, -offset)
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
		name = func(t time.Time) string {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%d W%02d", y, w)
		}
	case "month":
		y, m, _ := start.Date()
		first = time.Date(y, m, 1, 0, 0, 0, 0, start.Location())
		next = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
		name = func(t time.Time) string { return t.Format("Jan 2006") }
	default:
		return nil, fmt.Errorf("unknown bucket level %q", level)
	}

	var out []Bucket
	for b := first; b.Before(end); b = next(b) {
		out = append(out, Bucket{Name: name(b), Start: b, End: next(b)})
	}
	return out, nil
}

// LoadBuckets sets req.Current from the currentdate parameter (now when
// absent) and req.Buckets from the bucket details of req.BucketName that
// overlap the horizon.
func LoadBuckets(ctx context.Context, q Querier, req *Request) error {
	current, err := currentDate(ctx, q)
	if err != nil {
		return err
	}
	req.Current = current
	start, end := Horizon(current, req)

	rows, err := q.Query(ctx, `
		SELECT name, startdate, enddate
		FROM common_bucketdetail
		WHERE bucket_id = $1 AND enddate > $2 AND startdate < $3
		ORDER BY startdate
	`, req.BucketName, start, end)
	if err != nil {
		return fmt.Errorf("load buckets: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Name, &b.Start, &b.End); err != nil {
			return err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(buckets) == 0 {
		buckets, err = GenerateBuckets(req.BucketName, start, end)
		if err != nil {
			return err
		}
	}
	req.Buckets = buckets
	return nil
}

func currentDate(ctx context.Context, q Querier) (time.Time, error) {
	var raw *string
	err := q.QueryRow(ctx, `SELECT value FROM common_parameter WHERE name = 'currentdate'`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && (raw == nil || strings.TrimSpace(*raw) == "")) {
		return time.Now(), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load currentdate: %w", err)
	}
	t, err := parseDate(strings.TrimSpace(*raw))
	if err != nil {
		return time.Now(), nil
	}
	return t, nil
}

func bucketColumns(buckets []Bucket) (names []string, starts []time.Time, ends []time.Time) {
	names = make([]string, len(buckets))
	starts = make([]time.Time, len(buckets))
	ends = make([]time.Time, len(buckets))
	for i, b := range buckets {
		names[i] = b.Name
		starts[i] = b.Start
		ends[i] = b.End
	}
	return names, starts, ends
}
