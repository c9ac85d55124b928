package export

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/doujins-org/plankit/report"
)

// defaultReportUser renders report jobs of runs started without --user.
const defaultReportUser = "admin"

// writeJob writes the file of job into dir. A file left incomplete by a
// failure is removed.
func (x *run) writeJob(ctx context.Context, dir string, job Job) (err error) {
	path := filepath.Join(dir, job.Filename)

	var write func(io.Writer) error
	switch {
	case job.Report != nil:
		render, err := x.reportWriter(ctx, job)
		if err != nil {
			return err
		}
		write = render
	case strings.TrimSpace(job.SQL) != "":
		write = func(w io.Writer) error {
			n, err := x.DB.CopyTo(ctx, w, job.SQL)
			if err == nil {
				x.log.Debug("copied", zap.String("file", job.Filename), zap.Int64("rows", n))
			}
			return err
		}
		if strings.HasSuffix(strings.ToLower(job.Filename), ".gz") {
			write = gzipped(write)
		}
	default:
		return fmt.Errorf("unknown export type for %s", job.Filename)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return write(f)
}

func gzipped(write func(io.Writer) error) func(io.Writer) error {
	return func(w io.Writer) error {
		zw := gzip.NewWriter(w)
		if err := write(zw); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	}
}

// reportWriter prepares the request of a report job and returns the
// function rendering it in the format the file name asks for.
func (x *run) reportWriter(ctx context.Context, job Job) (func(io.Writer) error, error) {
	format, ok := report.FormatForFile(job.Filename)
	if !ok {
		return nil, fmt.Errorf("unknown output format for %s", job.Filename)
	}

	req, err := report.ParseRequest(job.Data)
	if err != nil {
		return nil, err
	}
	req.Format = format
	req.Database = x.opts.Database

	user := x.user
	if user == nil {
		if x.Users == nil {
			return nil, fmt.Errorf("no user to run report %s", job.Report.Name())
		}
		if user, err = x.Users.UserByUsername(ctx, defaultReportUser); err != nil {
			return nil, fmt.Errorf("report user %s: %w", defaultReportUser, err)
		}
	}
	req.User = user.Username

	if err := report.Prepare(ctx, job.Report, x.DB, req); err != nil {
		return nil, err
	}

	charset := "utf-8"
	if x.Settings != nil && x.Settings.CSVCharset != "" {
		charset = x.Settings.CSVCharset
	}
	return func(w io.Writer) error {
		return report.Render(ctx, w, job.Report, x.DB, req, charset)
	}, nil
}
