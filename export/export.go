// Package export implements the export-to-folder command: it writes the
// planning tables and reports to files under a database's upload folder and
// keeps a task row up to date while doing so.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doujins-org/plankit/auth"
	"github.com/doujins-org/plankit/config"
	"github.com/doujins-org/plankit/report"
	"github.com/doujins-org/plankit/tasks"
)

// TaskName is the name of the task rows an export run records itself in.
const TaskName = "exporttofolder"

// TaskNames are the task names a waiting task may carry to be picked up.
var TaskNames = []string{TaskName, "frepple_exporttofolder"}

// CommandError is a validation failure reported to whoever started the
// command. No task row has been modified when it is returned.
type CommandError struct {
	Msg string
	Err error
}

func (e *CommandError) Error() string { return e.Msg }

func (e *CommandError) Unwrap() error { return e.Err }

func commandErrorf(format string, args ...any) error {
	return &CommandError{Msg: fmt.Sprintf(format, args...)}
}

// DB is the database an export reads from.
type DB interface {
	report.Querier
	CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

type TaskStore interface {
	Claim(ctx context.Context, id int64, names []string, st tasks.Start) (*tasks.Task, error)
	Create(ctx context.Context, t *tasks.Task) error
	Save(ctx context.Context, t *tasks.Task) error
}

type UserStore interface {
	UserByUsername(ctx context.Context, username string) (*auth.User, error)
}

// Options are the arguments of one run.
type Options struct {
	User     string
	Database string
	TaskID   int64
	Args     []string
}

// Result describes a finished run.
type Result struct {
	TaskID   int64
	Status   string
	Message  string
	Errors   int
	Exported int
	Logfile  string
}

// Failed reports whether the run ended in the Failed status.
func (r Result) Failed() bool { return r.Status == tasks.StatusFailed }

// Runner executes export runs against one database.
type Runner struct {
	Settings *config.Settings
	DB       DB
	Tasks    TaskStore
	Users    UserStore

	Jobs    []Job
	PreSQL  []string
	PostSQL []string

	Logger *zap.Logger
	// Stderr receives the complaint when the log file cannot be opened.
	Stderr io.Writer
	Now    func() time.Time
	PID    int
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// DatabaseSettings returns the settings of alias, or the command error
// reported for an unknown alias.
func DatabaseSettings(s *config.Settings, alias string) (config.Database, error) {
	if s != nil {
		if db, ok := s.Database(alias); ok {
			return db, nil
		}
	}
	return config.Database{}, commandErrorf("No database settings known for '%s'", alias)
}

// LogfileName is the name of the log file of a run started at now.
func LogfileName(database string, now time.Time) string {
	ts := now.Format("20060102150405")
	if database == "" || database == config.DefaultDatabase {
		return fmt.Sprintf("exporttofolder-%s.log", ts)
	}
	return fmt.Sprintf("exporttofolder_%s-%s.log", database, ts)
}

// quoteArgs renders the command arguments the way they are stored on the task.
func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = `"` + a + `"`
	}
	return strings.Join(quoted, " ")
}

// run is the state of one invocation.
type run struct {
	*Runner
	opts   Options
	folder string
	user   *auth.User
	task   *tasks.Task
	log    *zap.Logger
	errors int
	done   int

	// failure is the message of the latest failure; it survives the
	// progress messages of later jobs.
	failure string
}

// Run executes every job once. The returned error is a *CommandError when
// the arguments are invalid, or the failure to record the task row; job
// failures only show in the result.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if r.DB == nil || r.Tasks == nil {
		return Result{}, fmt.Errorf("db and task store are required")
	}
	if opts.Database == "" {
		opts.Database = config.DefaultDatabase
	}
	start := r.now()

	dbcfg, err := DatabaseSettings(r.Settings, opts.Database)
	if err != nil {
		return Result{}, err
	}

	x := &run{Runner: r, opts: opts, folder: dbcfg.FileUploadFolder}
	if opts.User != "" {
		if r.Users == nil {
			return Result{}, commandErrorf("User '%s' not found", opts.User)
		}
		u, err := r.Users.UserByUsername(ctx, opts.User)
		if err != nil {
			return Result{}, commandErrorf("User '%s' not found", opts.User)
		}
		x.user = u
	}

	logfile := LogfileName(opts.Database, start)
	log, closeLog := r.openLog(logfile, start)
	defer closeLog()
	x.log = log.With(zap.String("database", opts.Database))

	if err := x.initTask(ctx, logfile, start); err != nil {
		return Result{}, err
	}

	defer x.finish(ctx)
	x.execute(ctx)

	// The deferred finish has not run yet; report what it will record.
	status, message := x.outcome()
	return Result{
		TaskID:   x.task.ID,
		Status:   status,
		Message:  message,
		Errors:   x.errors,
		Exported: x.done,
		Logfile:  logfile,
	}, nil
}

// openLog tees the runner's logger into the run's log file. A log file that
// cannot be opened is reported on stderr and the run goes on without it.
func (r *Runner) openLog(name string, now time.Time) (*zap.Logger, func()) {
	base := r.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logDir := "."
	if r.Settings != nil && r.Settings.LogDir != "" {
		logDir = r.Settings.LogDir
	}

	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if r.Stderr != nil {
			fmt.Fprintf(r.Stderr, "%s Failed to open logfile %s: %v\n", now.Format(time.DateTime), name, err)
		}
		return base, func() {}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)
	logger := zap.New(zapcore.NewTee(base.Core(), fileCore))
	return logger, func() {
		_ = logger.Sync()
		_ = f.Close()
	}
}

// initTask claims the nominated task or creates a new one, and records the
// start of the run on it.
func (x *run) initTask(ctx context.Context, logfile string, now time.Time) error {
	started := now
	pid := x.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	if x.opts.TaskID != 0 {
		t, err := x.Tasks.Claim(ctx, x.opts.TaskID, TaskNames, tasks.Start{
			Status:    "0%",
			Started:   started,
			Logfile:   logfile,
			Arguments: quoteArgs(x.opts.Args),
			ProcessID: &pid,
		})
		switch {
		case errors.Is(err, tasks.ErrNotWaiting):
			return &CommandError{Msg: "Invalid task identifier", Err: err}
		case err != nil:
			if !errors.Is(err, tasks.ErrNotFound) {
				x.log.Error("claim task", zap.Int64("task", x.opts.TaskID), zap.Error(err))
			}
			return &CommandError{Msg: "Task identifier not found", Err: err}
		}
		x.task = t
		return nil
	}

	t := &tasks.Task{
		Name:      TaskName,
		Submitted: now,
		Started:   &started,
		Status:    "0%",
		Logfile:   logfile,
		Arguments: quoteArgs(x.opts.Args),
		ProcessID: &pid,
	}
	if x.user != nil {
		id := x.user.ID
		t.UserID = &id
	}
	if err := x.Tasks.Create(ctx, t); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	x.task = t
	return nil
}

func (x *run) save(ctx context.Context) error {
	return x.Tasks.Save(ctx, x.task)
}

// execute runs the statements and jobs. Failures of single jobs and
// statements are counted; anything else stops the run and counts once.
func (x *run) execute(ctx context.Context) {
	info, err := os.Stat(x.folder)
	if x.folder == "" || err != nil || !info.IsDir() {
		x.log.Error("Failed, folder does not exist", zap.String("folder", x.folder))
		x.fail("Destination folder does not exist")
		if err := x.save(ctx); err != nil {
			x.log.Error("save task", zap.Error(err))
		}
		return
	}

	if err := x.exportAll(ctx); err != nil {
		x.log.Error("Failed to export", zap.Error(err))
		x.fail("Failed to export")
	}
}

// fail counts a failure and makes msg the task message.
func (x *run) fail(msg string) {
	x.errors++
	x.failure = msg
	x.task.Message = msg
}

func (x *run) exportAll(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(x.folder, ExportFolder), 0o755); err != nil {
		return err
	}
	x.log.Info("Started export to folder", zap.String("folder", x.folder))

	x.task.Status = "0%"
	if err := x.save(ctx); err != nil {
		return err
	}

	x.statements(ctx, "pre", x.PreSQL)

	cnt := len(x.Jobs)
	for _, job := range x.Jobs {
		if job.Filename == "" {
			return fmt.Errorf("missing filename in export configuration")
		}
		if job.Folder == "" {
			return fmt.Errorf("missing folder in export configuration for %s", job.Filename)
		}

		x.log.Info("Started export", zap.String("file", job.Filename))
		x.task.Message = "Exporting " + job.Filename
		if err := x.save(ctx); err != nil {
			return err
		}

		dir := filepath.Join(x.folder, job.Folder)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		if err := x.writeJob(ctx, dir, job); err != nil {
			x.log.Error("Failed to export", zap.String("file", job.Filename), zap.Error(err))
			x.fail("Failed to export " + job.Filename)
		} else {
			x.done++
		}

		x.task.Status = tasks.Progress(x.done, cnt)
		if err := x.save(ctx); err != nil {
			return err
		}
	}
	x.log.Info("Exported files", zap.Int("count", cnt-x.errors))

	x.statements(ctx, "post", x.PostSQL)
	return nil
}

func (x *run) statements(ctx context.Context, stage string, stmts []string) {
	for _, stmt := range stmts {
		x.log.Info("Executing "+stage+"-statement", zap.String("sql", stmt))
		n, err := x.DB.Exec(ctx, stmt)
		if err != nil {
			x.log.Error("An error occurred when executing statement", zap.String("sql", stmt), zap.Error(err))
			x.fail("Failed to execute " + stage + "-statement")
			continue
		}
		x.log.Info("record(s) modified", zap.Int64("rows", n))
	}
}

func (x *run) outcome() (string, string) {
	if x.errors == 0 {
		return tasks.StatusDone, fmt.Sprintf("Exported %d data files", len(x.Jobs))
	}
	return tasks.StatusFailed, x.failure
}

// finish records the outcome. It runs whatever happened before, and still
// writes the task when ctx was cancelled.
func (x *run) finish(ctx context.Context) {
	x.log.Info("End of export to folder")
	x.task.Status, x.task.Message = x.outcome()
	finished := x.now()
	x.task.Finished = &finished
	x.task.ProcessID = nil
	if err := x.Tasks.Save(context.WithoutCancel(ctx), x.task); err != nil {
		x.log.Error("save task", zap.Int64("task", x.task.ID), zap.Error(err))
	}
}
