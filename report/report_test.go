package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/doujins-org/plankit/internal/pgtest"
)

type staticReport struct {
	rows [][]any
}

func (staticReport) Name() string         { return "static" }
func (staticReport) App() string          { return "test" }
func (staticReport) Title() string        { return "Static: report" }
func (staticReport) HasTimeBuckets() bool { return false }

func (r staticReport) Permissions() []Permission {
	return []Permission{ViewPermission(r)}
}

func (staticReport) Columns(*Request) []Column {
	return []Column{{Name: "name", Title: "name"}, {Name: "when", Title: "when"}, {Name: "qty", Title: "quantity"}}
}

func (r staticReport) Rows(_ context.Context, _ Querier, _ *Request, emit func([]any) error) error {
	for _, row := range r.rows {
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, FormatCSVList, req.Format)
	assert.Equal(t, "week", req.BucketName)
	assert.True(t, req.HorizonRelative)
	assert.Equal(t, "month", req.HorizonUnit)
	assert.Equal(t, 6, req.HorizonLength)
}

func TestParseRequestRejectsUnknownFormat(t *testing.T) {
	_, err := ParseRequest(url.Values{"format": {"csvtable"}})
	assert.Error(t, err)

	req, err := ParseRequest(url.Values{"format": {FormatSpreadsheetList}})
	require.NoError(t, err)
	assert.Equal(t, FormatSpreadsheetList, req.Format)
}

func TestParseRequestExportParameters(t *testing.T) {
	req, err := ParseRequest(url.Values{
		"format":        {"csvlist"},
		"buckets":       {"day"},
		"horizontype":   {"True"},
		"horizonunit":   {"week"},
		"horizonlength": {"3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "day", req.BucketName)
	assert.Equal(t, "week", req.HorizonUnit)
	assert.Equal(t, 3, req.HorizonLength)
}

func TestParseRequestInvalid(t *testing.T) {
	for _, v := range []url.Values{
		{"horizonunit": {"year"}},
		{"horizonlength": {"-1"}},
		{"horizontype": {"maybe"}},
		{"horizonstart": {"yesterday"}},
	} {
		_, err := ParseRequest(v)
		assert.Error(t, err, "%v", v)
	}
}

func TestHorizonRelative(t *testing.T) {
	current := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	start, end := Horizon(current, &Request{HorizonRelative: true, HorizonUnit: "month", HorizonLength: 6})
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC), end)

	_, end = Horizon(current, &Request{HorizonRelative: true, HorizonUnit: "week", HorizonLength: 2})
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), end)
}

func TestHorizonAbsolute(t *testing.T) {
	current := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	start, end := Horizon(current, &Request{HorizonStart: from, HorizonEnd: to, HorizonUnit: "month", HorizonLength: 6})
	assert.Equal(t, from, start)
	assert.Equal(t, to, end)

	start, end = Horizon(current, &Request{HorizonUnit: "day", HorizonLength: 10})
	assert.Equal(t, current, start)
	assert.Equal(t, current.AddDate(0, 0, 10), end)
}

func TestGenerateBucketsWeek(t *testing.T) {
	start := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) // Wednesday
	end := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	buckets, err := GenerateBuckets("week", start, end)
	require.NoError(t, err)
	require.Len(t, buckets, 27)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), buckets[0].Start)
	assert.Equal(t, "2026 W10", buckets[0].Name)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].End, buckets[i].Start)
	}
	assert.True(t, buckets[len(buckets)-1].End.After(end) || buckets[len(buckets)-1].End.Equal(end))
}

func TestGenerateBucketsMonthAndDay(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	months, err := GenerateBuckets("month", start, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, "Jan 2026", months[0].Name)

	days, err := GenerateBuckets("day", start, start.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Len(t, days, 3)

	_, err = GenerateBuckets("quarter", start, start)
	assert.Error(t, err)
}

func TestLoadBucketsFallsBackToGenerated(t *testing.T) {
	db := pgtest.New().
		On("common_parameter", pgtest.Result{Rows: [][]any{{"2026-03-04 00:00:00"}}}).
		On("common_bucketdetail", pgtest.Result{})

	req := &Request{BucketName: "week", HorizonRelative: true, HorizonUnit: "month", HorizonLength: 6}
	require.NoError(t, LoadBuckets(context.Background(), db, req))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), req.Current)
	assert.Len(t, req.Buckets, 27)

	calls := db.Executed("common_bucketdetail")
	require.Len(t, calls, 1)
	assert.Equal(t, "week", calls[0].Args[0])
}

func TestLoadBucketsFromDatabase(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC) }
	db := pgtest.New().
		On("common_bucketdetail", pgtest.Result{Rows: [][]any{
			{"W10", d(2), d(9)},
			{"W11", d(9), d(16)},
		}})

	req := &Request{BucketName: "week", HorizonRelative: true, HorizonUnit: "week", HorizonLength: 2}
	require.NoError(t, LoadBuckets(context.Background(), db, req))
	require.Len(t, req.Buckets, 2)
	assert.Equal(t, "W11", req.Buckets[1].Name)
}

func TestWriteCSV(t *testing.T) {
	when := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	r := staticReport{rows: [][]any{
		{"widget", when, 12.5},
		{"gadget, large", nil, int64(3)},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(context.Background(), &buf, r, nil, &Request{}, "utf-8"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "when", "quantity"},
		{"widget", "2026-05-06 07:08:09", "12.5"},
		{"gadget, large", "", "3"},
	}, records)
}

func TestWriteCSVCharset(t *testing.T) {
	r := staticReport{rows: [][]any{{"5 € café", nil, nil}}}

	tests := []struct {
		charset string
		want    string
	}{
		{"utf-8", "5 € café"},
		{"", "5 € café"},
		{"iso-8859-1", "5 EUR caf\xe9"},
		{"latin1", "5 EUR caf\xe9"},
		{"ISO-8859-15", "5 \xa4 caf\xe9"},
		{"us-ascii", "5 EUR cafe"},
		{"ascii", "5 EUR cafe"},
		{"windows-1252", "5 \x80 caf\xe9"},
	}
	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCSV(context.Background(), &buf, r, nil, &Request{}, tt.charset))
			assert.Equal(t, "name,when,quantity\n"+tt.want+",,\n", buf.String())
		})
	}

	err := WriteCSV(context.Background(), &bytes.Buffer{}, r, nil, &Request{}, "no-such-charset")
	assert.Error(t, err)
}

func TestRenderFollowsFormat(t *testing.T) {
	r := staticReport{rows: [][]any{{"widget", nil, nil}}}

	var buf bytes.Buffer
	require.NoError(t, Render(context.Background(), &buf, r, nil, &Request{Format: FormatCSVList}, "utf-8"))
	assert.Equal(t, "name,when,quantity\nwidget,,\n", buf.String())

	buf.Reset()
	require.NoError(t, Render(context.Background(), &buf, r, nil, &Request{Format: FormatSpreadsheetList}, "utf-8"))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName(r.Title()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "widget", rows[1][0])

	assert.Error(t, Render(context.Background(), &bytes.Buffer{}, r, nil, &Request{Format: "csvtable"}, "utf-8"))
}

func TestFormatForFile(t *testing.T) {
	got, ok := FormatForFile("capacity.XLSX")
	assert.True(t, ok)
	assert.Equal(t, FormatSpreadsheetList, got)

	got, ok = FormatForFile("capacity.csv")
	assert.True(t, ok)
	assert.Equal(t, FormatCSVList, got)

	_, ok = FormatForFile("capacity.csv.gz")
	assert.False(t, ok)
}

func TestWriteSpreadsheet(t *testing.T) {
	r := staticReport{rows: [][]any{{"widget", "2026-05-06", 12.5}}}

	var buf bytes.Buffer
	require.NoError(t, WriteSpreadsheet(context.Background(), &buf, r, nil, &Request{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheet := sheetName(r.Title())
	assert.Equal(t, "Static_ report", sheet)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"name", "when", "quantity"}, rows[0])
	assert.Equal(t, "widget", rows[1][0])
}

func TestResourceOverviewRows(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	db := pgtest.New().On("out_resourceplan", pgtest.Result{Rows: [][]any{
		{"machine", "W10", start, end, 40.0, 8.0, 2.0, 16.0},
	}})

	req := &Request{Buckets: []Bucket{{Name: "W10", Start: start, End: end}}}
	var got [][]any
	err := ResourceOverview{}.Rows(context.Background(), db, req, func(row []any) error {
		got = append(got, row)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "machine", got[0][0])
	assert.InDelta(t, 50.0, got[0][8], 0.0001)

	calls := db.Executed("out_resourceplan")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"W10"}, calls[0].Args[0])
}

func TestOverviewReportsSkipQueryWithoutBuckets(t *testing.T) {
	db := pgtest.New()
	emit := func([]any) error { t.Fatalf("unexpected row"); return nil }
	require.NoError(t, ResourceOverview{}.Rows(context.Background(), db, &Request{}, emit))
	require.NoError(t, BufferOverview{}.Rows(context.Background(), db, &Request{}, emit))
	assert.Empty(t, db.Calls)
}

func TestBufferOverviewEndInventory(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	db := pgtest.New().On("operationplanmaterial", pgtest.Result{Rows: [][]any{
		{"item A", "DC", "W10", start, end, 10.0, 5.0, 7.0},
	}})

	req := &Request{Buckets: []Bucket{{Name: "W10", Start: start, End: end}}}
	var got []any
	require.NoError(t, BufferOverview{}.Rows(context.Background(), db, req, func(row []any) error {
		got = row
		return nil
	}))
	assert.InDelta(t, 8.0, got[8], 0.0001)
}

func TestViewPermission(t *testing.T) {
	p := ViewPermission(ResourceOverview{})
	assert.Equal(t, "view_resource_overview", p.Codename)
	assert.Equal(t, "Can view Resource report", p.Name)
}
