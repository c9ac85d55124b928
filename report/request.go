package report

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	FormatCSVList         = "csvlist"
	FormatSpreadsheetList = "spreadsheetlist"
)

// Request carries the parameters of one report rendering.
type Request struct {
	Database string
	User     string

	// Format selects the renderer: FormatCSVList or FormatSpreadsheetList.
	Format string

	// BucketName selects the bucket level, e.g. "day", "week", "month".
	BucketName string

	// HorizonRelative selects a horizon of HorizonLength HorizonUnit starting
	// at the current date. Otherwise HorizonStart/HorizonEnd apply.
	HorizonRelative bool
	HorizonUnit     string
	HorizonLength   int
	HorizonStart    time.Time
	HorizonEnd      time.Time

	// Current is the plan's current date, loaded with the buckets.
	Current time.Time
	Buckets []Bucket
}

// ParseRequest reads the query parameters a report accepts. Missing values
// fall back to a six month horizon in weekly buckets.
func ParseRequest(v url.Values) (*Request, error) {
	req := &Request{
		Format:          strings.TrimSpace(v.Get("format")),
		BucketName:      strings.TrimSpace(v.Get("buckets")),
		HorizonRelative: true,
		HorizonUnit:     strings.TrimSpace(v.Get("horizonunit")),
		HorizonLength:   6,
	}
	switch req.Format {
	case "":
		req.Format = FormatCSVList
	case FormatCSVList, FormatSpreadsheetList:
	default:
		return nil, fmt.Errorf("unsupported format %q", req.Format)
	}
	if req.BucketName == "" {
		req.BucketName = "week"
	}
	if req.HorizonUnit == "" {
		req.HorizonUnit = "month"
	}
	switch req.HorizonUnit {
	case "day", "week", "month":
	default:
		return nil, fmt.Errorf("invalid horizonunit %q", req.HorizonUnit)
	}

	if raw := strings.TrimSpace(v.Get("horizontype")); raw != "" {
		rel, err := parseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid horizontype %q", raw)
		}
		req.HorizonRelative = rel
	}
	if raw := strings.TrimSpace(v.Get("horizonlength")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid horizonlength %q", raw)
		}
		req.HorizonLength = n
	}
	if raw := strings.TrimSpace(v.Get("horizonstart")); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid horizonstart %q", raw)
		}
		req.HorizonStart = t
	}
	if raw := strings.TrimSpace(v.Get("horizonend")); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid horizonend %q", raw)
		}
		req.HorizonEnd = t
	}
	return req, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
