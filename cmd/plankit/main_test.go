package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/config"
	"github.com/doujins-org/plankit/export"
	"github.com/doujins-org/plankit/internal/pgtest"
	"github.com/doujins-org/plankit/pg"
	"github.com/doujins-org/plankit/tasks"
)

func writeSettings(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plankit.yaml")
	raw := []byte("databases:\n  default:\n    dsn: postgres://localhost/plankit\n    file_upload_folder: /srv/plankit\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"exporttofolder": true, "migrate": true, "worker": true, "serve": true}
	for _, c := range rootCmd.Commands() {
		delete(want, c.Name())
	}
	if len(want) != 0 {
		t.Errorf("missing commands: %v", want)
	}
	if f := exportCmd.Flags().Lookup("task"); f == nil {
		t.Error("exporttofolder has no --task flag")
	}
	if f := rootCmd.PersistentFlags().Lookup("database"); f == nil || f.DefValue != config.DefaultDatabase {
		t.Errorf("unexpected --database flag: %+v", f)
	}
}

func TestExportUnknownDatabase(t *testing.T) {
	logger = zap.NewNop()
	configPath = writeSettings(t)
	database = "scenario9"
	defer func() { configPath, database = "", config.DefaultDatabase }()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	err := runExport(cmd, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*export.CommandError); !ok {
		t.Fatalf("expected a command error, got %T", err)
	}
	if err.Error() != "No database settings known for 'scenario9'" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRunTaskReturnsCommandError(t *testing.T) {
	runner := &export.Runner{
		Settings: &config.Settings{},
		DB:       pg.NewDB(nil),
		Tasks:    tasks.NewRepo(nil),
		Logger:   zap.NewNop(),
	}
	err := runTask(runner, "default")(context.Background(), tasks.Task{ID: 3})
	if err == nil || err.Error() != "No database settings known for 'default'" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type claimedTasks struct{}

func (claimedTasks) Claim(context.Context, int64, []string, tasks.Start) (*tasks.Task, error) {
	return nil, tasks.ErrNotWaiting
}
func (claimedTasks) Create(context.Context, *tasks.Task) error { return nil }
func (claimedTasks) Save(context.Context, *tasks.Task) error   { return nil }

func TestRunTaskSkipsTaskClaimedElsewhere(t *testing.T) {
	logger = zap.NewNop()
	runner := &export.Runner{
		Settings: &config.Settings{
			Databases: map[string]config.Database{config.DefaultDatabase: {FileUploadFolder: t.TempDir()}},
			LogDir:    t.TempDir(),
		},
		DB:     pg.NewDB(nil),
		Tasks:  claimedTasks{},
		Logger: zap.NewNop(),
	}
	if err := runTask(runner, config.DefaultDatabase)(context.Background(), tasks.Task{ID: 3}); err != nil {
		t.Fatalf("expected the task to be skipped, got %v", err)
	}
}

func TestMigratorRunsPermissionHooks(t *testing.T) {
	logger = zap.NewNop()
	settings, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("parse settings: %v", err)
	}

	db := pgtest.New().On("INSERT INTO django_content_type", pgtest.Result{Rows: [][]any{{int64(1)}}})
	if err := newMigrator(settings).Run(context.Background(), db, config.DefaultDatabase); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if n := len(db.Executed("DELETE FROM auth_permission WHERE codename")); n != 1 {
		t.Errorf("expected the permission cleanup to run once, got %d", n)
	}
	// One from the schema, two report and two widget permissions.
	if n := len(db.Executed("INSERT INTO auth_permission")); n != 5 {
		t.Errorf("expected 5 permission inserts, got %d", n)
	}
}
