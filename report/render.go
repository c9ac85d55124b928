package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// FormatForFile returns the format a file name asks for: FormatSpreadsheetList
// for .xlsx and FormatCSVList for .csv.
func FormatForFile(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return FormatSpreadsheetList, true
	case ".csv":
		return FormatCSVList, true
	}
	return "", false
}

// Render writes r into w in req.Format. charset applies to CSV output only.
func Render(ctx context.Context, w io.Writer, r Report, q Querier, req *Request, charset string) error {
	switch req.Format {
	case FormatCSVList:
		return WriteCSV(ctx, w, r, q, req, charset)
	case FormatSpreadsheetList:
		return WriteSpreadsheet(ctx, w, r, q, req)
	}
	return fmt.Errorf("unsupported format %q", req.Format)
}

// WriteCSV renders r as CSV into w, encoded in charset (e.g. "utf-8",
// "iso-8859-1"). Text the charset cannot hold is transliterated. Prepare
// must have been called on req.
func WriteCSV(ctx context.Context, w io.Writer, r Report, q Querier, req *Request, charset string) error {
	enc, err := lookupCharset(charset)
	if err != nil {
		return err
	}
	ew := enc.NewEncoder().Writer(w)
	cw := csv.NewWriter(ew)

	cols := r.Columns(req)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = fitCharset(enc, c.Title)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(cols))
	err = r.Rows(ctx, q, req, func(row []any) error {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = fitCharset(enc, formatValue(row[i]))
			}
		}
		return cw.Write(record)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if c, ok := ew.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(dateTimeLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(x)
	}
}

// WriteSpreadsheet renders r as a single-sheet xlsx workbook into w.
func WriteSpreadsheet(ctx context.Context, w io.Writer, r Report, q Querier, req *Request) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(r.Title())
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	cols := r.Columns(req)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = excelize.Cell{StyleID: bold, Value: c.Title}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	rowNum := 1
	err = r.Rows(ctx, q, req, func(row []any) error {
		rowNum++
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		return sw.SetRow(cell, row)
	})
	if err != nil {
		return err
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// sheetName trims title to the characters and length a sheet name allows.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return "Sheet1"
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}
